package plan

import (
	"time"

	"flamingods.net/ledplans/led"
)

// Sub patterns of the show plan, in rotation order.
const (
	ShowRainbow = iota
	ShowPulse
	ShowRunningLights
	ShowStrobe
	showPatternCount
)

// ShowRenderer rotates through its sub patterns on a fixed period without any
// external input.
type ShowRenderer struct {
	period time.Duration
	color  led.Led
	hue    byte
	step   byte
}

func NewShow(s ShowSettings) *ShowRenderer {
	return &ShowRenderer{period: s.RotationPeriod, color: led.FromRGB(s.LedRGB)}
}

// PatternAt returns the sub pattern shown at the given time since entry.
func (s *ShowRenderer) PatternAt(elapsed time.Duration) int {
	return int((elapsed / s.period) % showPatternCount)
}

func (s *ShowRenderer) Reset() {
	s.hue = 0
	s.step = 0
}

func (s *ShowRenderer) Render(f *led.Frame, elapsed time.Duration) bool {
	s.step++
	switch s.PatternAt(elapsed) {
	case ShowRainbow:
		s.rainbow(f)
	case ShowPulse:
		s.pulse(f)
	case ShowRunningLights:
		s.runningLights(f)
	case ShowStrobe:
		s.strobe(f)
	}
	return false
}

func (s *ShowRenderer) rainbow(f *led.Frame) {
	s.hue += 2
	n := f.Len()
	for _, strip := range f.Strips {
		for i := range strip {
			strip[i] = led.HSV(s.hue+byte(i*256/n), 255, 255)
		}
	}
}

// pulse breathes from the middle of the strip outwards.
func (s *ShowRenderer) pulse(f *led.Frame) {
	b := led.Sin8(s.step * 3)
	n := f.Len()
	center := n / 2
	for _, strip := range f.Strips {
		for i := range strip {
			dist := i - center
			if dist < 0 {
				dist = -dist
			}
			falloff := 255 - dist*255/(center+1)
			strip[i] = s.color.Scale(led.Scale8(b, byte(falloff)))
		}
	}
}

func (s *ShowRenderer) runningLights(f *led.Frame) {
	offset := int(s.step / 2)
	for _, strip := range f.Strips {
		for i := range strip {
			if (i+offset)%3 == 0 {
				strip[i] = s.color
			} else {
				strip[i] = led.Black
			}
		}
	}
}

func (s *ShowRenderer) strobe(f *led.Frame) {
	if s.step%4 < 2 {
		f.Fill(led.White)
	} else {
		f.Clear()
	}
}
