package platform

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"

	"flamingods.net/ledplans/config"
	"flamingods.net/ledplans/led"
)

type RaspberryPiPlatform struct {
	*AbstractPlatform
	encoder      *ws2812Encoder
	spiMutex     sync.Mutex
	spiOpen      bool
	statusViewer *StatusViewer
}

func NewRaspberryPiPlatform(conf *config.Config) *RaspberryPiPlatform {
	inst := &RaspberryPiPlatform{
		encoder: newWS2812Encoder(conf.Hardware.ColorOrder, conf.Hardware.ResetBytes),
	}
	inst.AbstractPlatform = newAbstractPlatform(conf, inst.rpiDisplayFunc)
	return inst
}

// SetStatusViewer attaches an optional console view of the device state.
func (s *RaspberryPiPlatform) SetStatusViewer(v *StatusViewer) {
	s.statusViewer = v
}

func (s *RaspberryPiPlatform) Start() error {
	slog.Info("Initialise GPIO and Spi...", "speed", s.config.Hardware.SpiSpeedHz, "order", s.config.Hardware.ColorOrder)
	if err := rpio.Open(); err != nil {
		return fmt.Errorf("failed to open rpio: %w", err)
	}
	if err := rpio.SpiBegin(rpio.Spi0); err != nil {
		rpio.Close()
		return fmt.Errorf("failed to begin spi: %w", err)
	}
	rpio.SpiSpeed(s.config.Hardware.SpiSpeedHz)
	s.spiOpen = true

	if s.statusViewer != nil {
		go s.statusViewer.Start()
	}

	s.startDisplayDriver()
	close(s.readyChan) // For RPi, we are ready immediately.
	return nil
}

func (s *RaspberryPiPlatform) Stop() {
	s.stopDisplayDriver()

	s.spiMutex.Lock()
	if s.spiOpen {
		// blank the strips before letting go of the bus
		off := led.NewFrame(s.config.Hardware.Strips, s.config.Hardware.LedsPerStrip)
		rpio.SpiExchange(s.encoder.encode(off))
		rpio.SpiEnd(rpio.Spi0)
		if err := rpio.Close(); err != nil {
			slog.Error("Error closing rpio", "error", err)
		}
		s.spiOpen = false
	}
	s.spiMutex.Unlock()

	if s.statusViewer != nil {
		s.statusViewer.Stop()
	}
}

func (s *RaspberryPiPlatform) rpiDisplayFunc(f *led.Frame) {
	s.spiMutex.Lock()
	defer s.spiMutex.Unlock()
	if !s.spiOpen {
		return
	}
	rpio.SpiExchange(s.encoder.encode(f))
}
