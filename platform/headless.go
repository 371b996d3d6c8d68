package platform

import (
	"sync"

	"flamingods.net/ledplans/config"
	"flamingods.net/ledplans/led"
)

// HeadlessPlatform discards frames but remembers the last one. It serves
// devices without attached strips and the tests.
type HeadlessPlatform struct {
	*AbstractPlatform
	mu   sync.Mutex
	last *led.Frame
}

func NewHeadlessPlatform(conf *config.Config) *HeadlessPlatform {
	inst := &HeadlessPlatform{}
	inst.AbstractPlatform = newAbstractPlatform(conf, inst.keep)
	return inst
}

func (s *HeadlessPlatform) Start() error {
	s.startDisplayDriver()
	close(s.readyChan)
	return nil
}

func (s *HeadlessPlatform) Stop() {
	s.stopDisplayDriver()
}

func (s *HeadlessPlatform) keep(f *led.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = f.CopyInto(s.last)
}

// LastFrame returns a copy of the most recently displayed frame, or nil.
func (s *HeadlessPlatform) LastFrame() *led.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	return s.last.Clone()
}
