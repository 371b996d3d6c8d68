package plan

import (
	"time"

	"flamingods.net/ledplans/led"
)

type skipStep struct {
	until time.Duration
	color led.Led
}

// SkipSequence plays a fixed scripted flash sequence and expires once its
// total duration has elapsed.
type SkipSequence struct {
	steps []skipStep
	total time.Duration
}

func NewSkipSequence(s SkipSettings) *SkipSequence {
	inst := &SkipSequence{}
	for _, step := range s.Steps {
		inst.total += step.Duration
		inst.steps = append(inst.steps, skipStep{until: inst.total, color: led.FromRGB(step.LedRGB)})
	}
	return inst
}

// Duration is the total length of the sequence.
func (s *SkipSequence) Duration() time.Duration {
	return s.total
}

// Stateless apart from the entry time kept by the machine.
func (s *SkipSequence) Reset() {}

func (s *SkipSequence) Render(f *led.Frame, elapsed time.Duration) bool {
	if elapsed >= s.total {
		return true
	}
	for _, step := range s.steps {
		if elapsed < step.until {
			f.Fill(step.color)
			break
		}
	}
	return false
}
