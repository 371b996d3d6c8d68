package plan

import (
	"time"

	"flamingods.net/ledplans/led"
)

// Halo is the breathing idle light: every pixel shows the same base color,
// its brightness following an 8-bit sine.
type Halo struct {
	base  led.Led
	speed byte
	step  byte
}

func NewHalo(s IdleSettings) *Halo {
	speed := byte(s.PulseSpeed)
	if speed == 0 {
		speed = 1
	}
	return &Halo{base: led.FromRGB(s.LedRGB), speed: speed}
}

func (h *Halo) Reset() {
	h.step = 0
}

func (h *Halo) Render(f *led.Frame, _ time.Duration) bool {
	h.advance()
	f.Fill(h.color())
	return false
}

func (h *Halo) advance() {
	h.step += h.speed
}

func (h *Halo) color() led.Led {
	return haloColor(h.base, led.Sin8(h.step*2))
}
