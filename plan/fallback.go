package plan

import (
	"time"

	"flamingods.net/ledplans/led"
)

// Fallback signals the offline state: the idle halo as background with a
// few colored pixels running over it, each dragging a short fading trail.
type Fallback struct {
	halo    *Halo
	runners int
	spacing int
	trail   int
	fade    int
	hueStep byte
	pos     int
	hue     byte
}

func NewFallback(s FallbackSettings) *Fallback {
	return &Fallback{
		halo:    NewHalo(IdleSettings{LedRGB: s.HaloRGB, PulseSpeed: 1}),
		runners: s.Runners,
		spacing: s.Spacing,
		trail:   s.Trail,
		fade:    s.TrailFade,
		hueStep: byte(s.HueStep),
	}
}

func (r *Fallback) Reset() {
	r.halo.Reset()
	r.pos = 0
	r.hue = 0
}

func (r *Fallback) Render(f *led.Frame, elapsed time.Duration) bool {
	r.halo.Render(f, elapsed)
	n := f.Len()
	if n == 0 {
		return false
	}
	r.pos = (r.pos + 1) % n
	r.hue += r.hueStep
	for _, strip := range f.Strips {
		for k := 0; k < r.runners; k++ {
			at := (r.pos + k*r.spacing) % n
			color := led.HSV(r.hue+byte(k*85), 255, 255)
			strip[at] = color
			for j := 1; j <= r.trail; j++ {
				amount := j * r.fade
				if amount > 255 {
					amount = 255
				}
				// trails are cut at the strip end, they do not wrap
				strip.Set(at+j, color.FadeToBlackBy(byte(amount)))
			}
		}
	}
	return false
}
