// Package link reports whether the device has network association. The
// device loop reads the cached status cheaply on every connectivity check;
// the expensive work happens elsewhere.
package link

import (
	"context"
	"time"
)

type Status struct {
	Connected bool      `json:"connected"`
	IP        string    `json:"ip_address"`
	RSSI      int       `json:"rssi"`
	CheckedAt time.Time `json:"checked_at"`
}

type Link interface {
	// Status returns the last known state without blocking.
	Status() Status
	// Probe checks the link synchronously. It is used once at boot.
	Probe(ctx context.Context) Status
	// Reconnect asks for a new association attempt and returns
	// immediately. The outcome shows up in a later Status.
	Reconnect()
}
