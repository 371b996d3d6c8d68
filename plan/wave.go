package plan

import (
	"time"

	"flamingods.net/ledplans/led"
)

// Wave is the flamingo idle: a sine wave of color travelling along every
// strip, each strip a quarter turn out of phase with the previous one.
type Wave struct {
	maxBrightness byte
	pixelStep     byte
	wave          byte
	hue           byte
}

func NewWave(s WaveSettings) *Wave {
	return &Wave{maxBrightness: byte(s.MaxBrightness), pixelStep: byte(s.PixelStep)}
}

func (w *Wave) Reset() {
	w.wave = 0
	w.hue = 0
}

func (w *Wave) Render(f *led.Frame, _ time.Duration) bool {
	for k, strip := range f.Strips {
		shift := byte(k * 64)
		for i := range strip {
			pos := w.wave + byte(i)*w.pixelStep
			value := byte(uint16(led.Sin8(pos+shift)) * uint16(w.maxBrightness) >> 8)
			strip[i] = led.HSV(w.hue+shift, 255, value)
		}
	}
	w.wave += 2
	w.hue++
	return false
}
