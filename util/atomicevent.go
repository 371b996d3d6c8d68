package util

import (
	"maps"
	"sync"
)

// AtomicEvent keeps only the latest value sent to it. Senders never
// block; a reader selects on Channel and then fetches the value. Several
// sends between two reads collapse into one notification.
type AtomicEvent[T any] struct {
	mu     sync.Mutex
	value  T
	notify chan struct{}
}

func NewAtomicEvent[T any]() *AtomicEvent[T] {
	return &AtomicEvent[T]{
		notify: make(chan struct{}, 1),
	}
}

// Send replaces the value and flags a notification.
func (ae *AtomicEvent[T]) Send(event T) {
	ae.mu.Lock()
	defer ae.mu.Unlock()
	ae.value = event
	select {
	case ae.notify <- struct{}{}:
	default:
		// already pending
	}
}

// Channel returns the notification channel for use in select statements.
func (ae *AtomicEvent[T]) Channel() <-chan struct{} {
	return ae.notify
}

// Value returns the latest value without touching the notification.
func (ae *AtomicEvent[T]) Value() T {
	ae.mu.Lock()
	defer ae.mu.Unlock()
	return ae.value
}

// HasPending checks if a notification is waiting to be consumed.
func (ae *AtomicEvent[T]) HasPending() bool {
	return len(ae.notify) > 0
}

// AtomicMapEvent collects the latest value per key until a reader
// consumes the whole batch.
type AtomicMapEvent[T any] struct {
	mu     sync.Mutex
	value  map[string]T
	notify chan struct{}
}

func NewAtomicMapEvent[T any]() *AtomicMapEvent[T] {
	return &AtomicMapEvent[T]{
		notify: make(chan struct{}, 1),
		value:  make(map[string]T),
	}
}

// Send stores event under key, replacing an unconsumed one.
func (ae *AtomicMapEvent[T]) Send(key string, event T) {
	ae.mu.Lock()
	defer ae.mu.Unlock()
	ae.value[key] = event
	select {
	case ae.notify <- struct{}{}:
	default:
	}
}

func (ae *AtomicMapEvent[T]) Channel() <-chan struct{} {
	return ae.notify
}

// Value returns a copy of the collected values without consuming them.
func (ae *AtomicMapEvent[T]) Value() map[string]T {
	ae.mu.Lock()
	defer ae.mu.Unlock()
	return maps.Clone(ae.value)
}

// ConsumeValues returns all collected values, empties the collection and
// clears a pending notification.
func (ae *AtomicMapEvent[T]) ConsumeValues() map[string]T {
	ae.mu.Lock()
	defer ae.mu.Unlock()
	ret := ae.value
	ae.value = make(map[string]T)
	select {
	case <-ae.notify:
	default:
	}
	return ret
}

func (ae *AtomicMapEvent[T]) HasPending() bool {
	return len(ae.notify) > 0
}
