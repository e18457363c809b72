package util

import (
	"math"
)

func RgbToHsb(r, g, b uint8) (uint16, uint16, uint16) {
	red := float64(r) / 255.0
	green := float64(g) / 255.0
	blue := float64(b) / 255.0

	max := math.Max(red, math.Max(green, blue))
	min := math.Min(red, math.Min(green, blue))
	delta := max - min

	var h, s, v float64
	v = max // Brightness is the max of RGB

	if delta != 0 {
		s = delta / max

		deltaR := (((max - red) / 6) + (delta / 2)) / delta
		deltaG := (((max - green) / 6) + (delta / 2)) / delta
		deltaB := (((max - blue) / 6) + (delta / 2)) / delta

		switch max {
		case red:
			h = deltaB - deltaG
		case green:
			h = (1.0 / 3.0) + deltaR - deltaB
		default:
			h = (2.0 / 3.0) + deltaG - deltaR
		}

		if h < 0 {
			h += 1
		}
		if h > 1 {
			h -= 1
		}
	}

	hue := uint16(math.Round(h * 0xFFFF))
	saturation := uint16(math.Round(s * 0xFFFF))
	brightness := uint16(math.Round(v * 0xFFFF))

	return hue, saturation, brightness
}

// To255 converts a [0,1] component to the 0-255 scale, clamping out of range
// values.
func To255(v float64) uint8 {
	return uint8(math.Round(math.Min(1, math.Max(0, v)) * 0xFF))
}
