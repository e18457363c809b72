package effects

import (
	"math"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/AlexisBRENON/hyperion2boblight/internal/lights"
)

// rainbowSteps is the number of increments in one full hue cycle.
const rainbowSteps = 360

// Rainbow sweeps the hue through red, yellow, green, cyan, blue and magenta.
// Every light shows the same color.
type Rainbow struct {
	step int
}

func NewRainbow() *Rainbow {
	return &Rainbow{}
}

func (r *Rainbow) Color(lights.Light) lights.RGB {
	return hueColor(r.hue())
}

func (r *Rainbow) Increment() {
	r.step = (r.step + 1) % rainbowSteps
}

func (r *Rainbow) hue() float64 {
	return float64(r.step) * 360 / rainbowSteps
}

// RainbowSwirl is a Rainbow whose hue is shifted by each light's horizontal
// position, so the rainbow travels across the screen.
type RainbowSwirl struct {
	Rainbow
}

func NewRainbowSwirl() *RainbowSwirl {
	return &RainbowSwirl{}
}

func (r *RainbowSwirl) Color(light lights.Light) lights.RGB {
	offset := light.HCenter() * 360
	return hueColor(math.Mod(r.hue()+offset, 360))
}

func hueColor(hue float64) lights.RGB {
	c := colorful.Hsv(hue, 1, 1)
	return lights.RGB{R: round4(c.R), G: round4(c.G), B: round4(c.B)}
}
