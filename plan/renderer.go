package plan

import (
	"time"

	"flamingods.net/ledplans/led"
)

// Renderer is the outside interface all concrete plan renderers need to
// fulfill. A renderer owns the animation phase of exactly one plan.
type Renderer interface {
	// Reset restores the phase counters to their initial values.
	Reset()
	// Render draws the next frame for the given time since plan entry.
	// It returns true, without drawing, once the plan has run its course
	// and the device should return to idle.
	Render(f *led.Frame, elapsed time.Duration) (expired bool)
}

// haloColor scales the base color by the 8-bit brightness.
func haloColor(base led.Led, brightness byte) led.Led {
	return base.Scale(brightness)
}
