package platform

import (
	"flamingods.net/ledplans/led"
)

// Platform defines the interface for abstracting away the real hardware
// from the TUI simulation.
type Platform interface {
	// Start initializes the platform (e.g., opens GPIO/SPI, or starts the TUI).
	Start() error

	// Stop cleans up all platform resources.
	Stop()

	// DisplayLeds hands one rendered frame to the output device. It must
	// not block the device loop.
	DisplayLeds(f *led.Frame)

	// Ready is closed once the platform can take frames.
	Ready() <-chan bool
}
