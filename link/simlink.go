package link

import (
	"context"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"github.com/jonboulle/clockwork"
)

type scheduled struct {
	at        time.Time
	connected bool
}

// SimLink is a link whose state is set by hand or by a script of future
// changes. It drives the terminal simulation and the tests.
type SimLink struct {
	mu         sync.Mutex
	clock      clockwork.Clock
	connected  bool
	script     deque.Deque[scheduled]
	reconnects int
}

func NewSimLink(connected bool, clock clockwork.Clock) *SimLink {
	return &SimLink{connected: connected, clock: clock}
}

// Set changes the state immediately.
func (l *SimLink) Set(connected bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected = connected
}

// Toggle flips the state and returns the new one.
func (l *SimLink) Toggle() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected = !l.connected
	return l.connected
}

// After schedules a state change at now+d. Changes must be scheduled in
// chronological order.
func (l *SimLink) After(d time.Duration, connected bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.script.PushBack(scheduled{at: l.clock.Now().Add(d), connected: connected})
}

func (l *SimLink) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	for l.script.Len() > 0 && !l.script.Front().at.After(now) {
		l.connected = l.script.PopFront().connected
	}
	st := Status{Connected: l.connected, CheckedAt: now}
	if st.Connected {
		st.IP = "127.0.0.1"
		st.RSSI = -50
	}
	return st
}

func (l *SimLink) Probe(context.Context) Status {
	return l.Status()
}

func (l *SimLink) Reconnect() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reconnects++
}

// Reconnects counts Reconnect calls.
func (l *SimLink) Reconnects() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reconnects
}
