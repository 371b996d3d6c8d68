package platform

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"flamingods.net/ledplans/config"
	"flamingods.net/ledplans/led"
)

// AbstractPlatform hands frames from the device loop to a display
// goroutine. A frame arriving while the previous one is still being
// written is dropped, so a slow output never stalls rendering.
type AbstractPlatform struct {
	config          *config.Config
	displayFunc     func(*led.Frame)
	display         chan *led.Frame
	displayWg       sync.WaitGroup
	displayStopChan chan bool
	readyChan       chan bool
	shutdownMutex   sync.RWMutex
	isShuttingDown  bool
	framePool       *sync.Pool
	frames          atomic.Uint64
	dropped         atomic.Uint64
}

func newAbstractPlatform(conf *config.Config, displayFunc func(*led.Frame)) *AbstractPlatform {
	strips, leds := conf.Hardware.Strips, conf.Hardware.LedsPerStrip
	return &AbstractPlatform{
		config:          conf,
		displayFunc:     displayFunc,
		display:         make(chan *led.Frame, 1),
		displayStopChan: make(chan bool),
		readyChan:       make(chan bool),
		framePool: &sync.Pool{
			New: func() any { return led.NewFrame(strips, leds) },
		},
	}
}

func (s *AbstractPlatform) Ready() <-chan bool {
	return s.readyChan
}

// DisplayLeds copies f into a pooled buffer and queues it for the display
// goroutine.
func (s *AbstractPlatform) DisplayLeds(f *led.Frame) {
	buf := f.CopyInto(s.framePool.Get().(*led.Frame))
	select {
	case s.display <- buf:
		s.frames.Add(1)
	default:
		s.dropped.Add(1)
		s.framePool.Put(buf)
	}
}

// Frames returns the number of frames accepted and dropped so far.
func (s *AbstractPlatform) Frames() (accepted, dropped uint64) {
	return s.frames.Load(), s.dropped.Load()
}

func (s *AbstractPlatform) startDisplayDriver() {
	s.displayWg.Add(1)
	go s.displayDriver()
}

func (s *AbstractPlatform) stopDisplayDriver() {
	s.setInShutdown()
	close(s.displayStopChan)
	s.displayWg.Wait()
}

func (s *AbstractPlatform) setInShutdown() {
	s.shutdownMutex.Lock()
	s.isShuttingDown = true
	s.shutdownMutex.Unlock()
}

func (s *AbstractPlatform) displayDriver() {
	defer s.displayWg.Done()
	for {
		select {
		case <-s.displayStopChan:
			slog.Info("Ending DisplayDriver go-routine...")
			return
		case frame := <-s.display:
			s.shutdownMutex.RLock()
			if !s.isShuttingDown {
				s.displayFunc(frame)
			}
			s.shutdownMutex.RUnlock()
			// Return the buffer to the pool for reuse.
			s.framePool.Put(frame)
		}
	}
}
