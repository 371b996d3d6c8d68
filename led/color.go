package led

import (
	colorful "github.com/lucasb-eyer/go-colorful"
)

// HSV converts an 8-bit hue/saturation/value triple into a Led. The hue
// wheel is 256 steps wide so hue arithmetic can wrap naturally.
func HSV(hue, sat, val byte) Led {
	c := colorful.Hsv(float64(hue)*360.0/256.0, float64(sat)/255.0, float64(val)/255.0)
	r, g, b := c.Clamped().RGB255()
	return Led{Red: r, Green: g, Blue: b}
}

// FromRGB builds a Led from a config triple. Values are expected to be
// validated to 0..255 already.
func FromRGB(rgb []int) Led {
	if len(rgb) < 3 {
		return Led{}
	}
	return Led{Red: byte(rgb[0]), Green: byte(rgb[1]), Blue: byte(rgb[2])}
}
