package plan

import (
	"time"

	"flamingods.net/ledplans/led"
)

// MovingDot runs a single dot along the first strips, one pixel per
// interval.
type MovingDot struct {
	interval time.Duration
	color    led.Led
	strips   int
}

func NewMovingDot(s MovingSettings) *MovingDot {
	return &MovingDot{interval: s.Interval, color: led.FromRGB(s.LedRGB), strips: s.Strips}
}

func (m *MovingDot) Reset() {}

// Position returns the dot index for the given time since entry.
func (m *MovingDot) Position(elapsed time.Duration, length int) int {
	if length == 0 {
		return 0
	}
	return int(elapsed/m.interval) % length
}

func (m *MovingDot) Render(f *led.Frame, elapsed time.Duration) bool {
	f.Clear()
	at := m.Position(elapsed, f.Len())
	for k, strip := range f.Strips {
		if k >= m.strips {
			break
		}
		strip.Set(at, m.color)
	}
	return false
}
