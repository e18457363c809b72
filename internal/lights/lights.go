package lights

import (
	"errors"
	"math"
)

// ErrConnectionLost is wrapped by a LightService when its downstream
// connection can no longer be written to.
var ErrConnectionLost = errors.New("light service connection lost")

// Color is a color on the 0-255 scale used by remote clients.
type Color struct {
	Red   float64
	Green float64
	Blue  float64
}

// Normalized scales the color to [0,1].
func (c Color) Normalized() RGB {
	return RGB{
		R: clamp01(c.Red / 255.0),
		G: clamp01(c.Green / 255.0),
		B: clamp01(c.Blue / 255.0),
	}
}

// RGB is a color with components in [0,1].
type RGB struct {
	R float64
	G float64
	B float64
}

var Off = RGB{}

// Light is a fixture known to the light driver. Scan values are fractions of
// the capture area.
type Light struct {
	Name  string
	HScan [2]float64 // left, right
	VScan [2]float64 // top, bottom
}

// HCenter is the horizontal center of the light's capture area.
func (l Light) HCenter() float64 {
	return (l.HScan[0] + l.HScan[1]) / 2
}

// LightColor is the color one light should display.
type LightColor struct {
	Name string
	RGB
}

type LightService interface {
	Lights() []Light
	SetPriority(priority int) error
	SetColors(colors []LightColor) error
	Close() error
}

// Broadcast builds one LightColor per light, all with the same color.
func Broadcast(lights []Light, color RGB) []LightColor {
	colors := make([]LightColor, 0, len(lights))
	for _, l := range lights {
		colors = append(colors, LightColor{Name: l.Name, RGB: color})
	}
	return colors
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
