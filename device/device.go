// Package device is the owning context of one lighting device: plan state,
// frame buffer, connectivity and OTA session. Only the goroutine running
// the loop touches that state; everybody else submits commands or reads
// published snapshots.
package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"flamingods.net/ledplans/config"
	"flamingods.net/ledplans/led"
	"flamingods.net/ledplans/link"
	"flamingods.net/ledplans/ota"
	"flamingods.net/ledplans/plan"
	"flamingods.net/ledplans/util"
)

var ErrStopped = errors.New("device stopped")

// Display receives every rendered frame.
type Display interface {
	DisplayLeds(f *led.Frame)
}

// OTAChannel is the receiving end of firmware transfers.
type OTAChannel interface {
	Events() <-chan ota.Event
	Arm() error
	// InProgress reports a transfer the receiver has accepted, possibly
	// before its Start event was delivered.
	InProgress() bool
}

// Connectivity is the device's view of the network link.
type Connectivity struct {
	Connected bool
	LastCheck time.Time
	Attempts  int
	IP        string
	RSSI      int
	// Plan a link transition asked for that could not be applied yet.
	Pending plan.Plan
}

type Device struct {
	variant         *plan.Variant
	firmwareVersion string
	clock           clockwork.Clock
	link            link.Link
	display         Display
	otaCh           OTAChannel
	restarter       ota.Restarter
	dimmer          *Dimmer
	stations        *stationRouter

	tickDelay       time.Duration
	checkInterval   time.Duration
	commandsPerTick int
	restartDelay    time.Duration

	machine     *plan.Machine
	conn        Connectivity
	session     ota.Session
	restartAt   time.Time
	lastStation *StationMessage
	out         *led.Frame
	startedAt   time.Time

	commands chan command
	snapshot *util.AtomicEvent[Snapshot]
	stopped  chan struct{}
}

// New creates the device and boots it: the link is probed once and the
// initial plan is idle when connected, otherwise the fallback plan of the
// variant. otaCh and restarter may be nil when OTA is disabled.
func New(ctx context.Context, cfg *config.Config, l link.Link, display Display, otaCh OTAChannel,
	restarter ota.Restarter, clock clockwork.Clock,
) (*Device, error) {
	v, err := cfg.Variant()
	if err != nil {
		return nil, err
	}
	stations, err := newStationRouter(v, cfg.Policy.StationColorPlans, cfg.Policy.StationDefaultPlan, cfg.Policy.StationMixedPlan)
	if err != nil {
		return nil, fmt.Errorf("station policy: %w", err)
	}
	d := &Device{
		variant:         v,
		firmwareVersion: config.FirmwareVersion,
		clock:           clock,
		link:            l,
		display:         display,
		otaCh:           otaCh,
		restarter:       restarter,
		dimmer:          NewDimmer(cfg.Hardware.Brightness, cfg.Daylight),
		stations:        stations,
		tickDelay:       cfg.Loop.TickDelay,
		checkInterval:   cfg.Loop.CheckInterval,
		commandsPerTick: cfg.Loop.CommandsPerTick,
		restartDelay:    cfg.OTA.RestartDelay,
		startedAt:       clock.Now(),
		commands:        make(chan command, cfg.Loop.CommandQueue),
		snapshot:        util.NewAtomicEvent[Snapshot](),
		stopped:         make(chan struct{}),
	}

	st := l.Probe(ctx)
	d.conn = Connectivity{
		Connected: st.Connected,
		LastCheck: clock.Now(),
		IP:        st.IP,
		RSSI:      st.RSSI,
		Pending:   plan.None,
	}
	initial := v.Idle
	if !st.Connected && v.HasFallback() {
		initial = v.Fallback
	}
	slog.Info("Booting device", "device", v.DeviceID, "variant", v.Name, "connected", st.Connected, "plan", initial)

	frame := led.NewFrame(cfg.Hardware.Strips, cfg.Hardware.LedsPerStrip)
	rnd := led.NewRandom(uint64(clock.Now().UnixNano()))
	d.machine, err = plan.NewMachine(v, v.Renderers(cfg.Plans, rnd), frame, clock, initial)
	if err != nil {
		return nil, err
	}
	d.publish()
	return d, nil
}

// Variant returns the variant the device runs.
func (d *Device) Variant() *plan.Variant {
	return d.variant
}

// Snapshot returns the state published after the last tick.
func (d *Device) Snapshot() Snapshot {
	return d.snapshot.Value()
}

// Updates notifies whenever a new snapshot was published.
func (d *Device) Updates() <-chan struct{} {
	return d.snapshot.Channel()
}

// Run drives the loop until ctx is cancelled.
func (d *Device) Run(ctx context.Context) error {
	defer close(d.stopped)
	for {
		d.Tick()
		select {
		case <-ctx.Done():
			slog.Info("Device loop stopped")
			return nil
		case <-d.clock.After(d.tickDelay):
		}
	}
}
