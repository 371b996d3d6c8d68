package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"flamingods.net/ledplans/ota"
	"flamingods.net/ledplans/plan"
)

var ErrOTADisabled = errors.New("OTA is disabled")

type commandKind int

const (
	cmdSetPlan commandKind = iota
	cmdStation
	cmdArmOTA
)

type command struct {
	kind    commandKind
	plan    plan.Plan
	station *StationMessage
	reply   chan result
}

type result struct {
	plan plan.Plan
	err  error
}

// SetPlan asks the loop to switch to p and waits until it did.
func (d *Device) SetPlan(ctx context.Context, p plan.Plan) (plan.Plan, error) {
	if !d.variant.Has(p) {
		return plan.None, fmt.Errorf("%w: %s is not a plan of %s", plan.ErrUnknownPlan, p, d.variant.Name)
	}
	return d.submit(ctx, command{kind: cmdSetPlan, plan: p})
}

// Station hands a validated station message to the loop and returns the
// plan it was mapped to.
func (d *Device) Station(ctx context.Context, m StationMessage) (plan.Plan, error) {
	if err := m.Validate(); err != nil {
		return plan.None, err
	}
	return d.submit(ctx, command{kind: cmdStation, station: &m})
}

// ArmOTA prepares the device for a firmware push. It fails with
// ota.ErrBusy while a transfer runs.
func (d *Device) ArmOTA(ctx context.Context) error {
	_, err := d.submit(ctx, command{kind: cmdArmOTA})
	return err
}

func (d *Device) submit(ctx context.Context, cmd command) (plan.Plan, error) {
	cmd.reply = make(chan result, 1)
	select {
	case d.commands <- cmd:
	case <-ctx.Done():
		return plan.None, ctx.Err()
	case <-d.stopped:
		return plan.None, ErrStopped
	}
	select {
	case res := <-cmd.reply:
		return res.plan, res.err
	case <-ctx.Done():
		return plan.None, ctx.Err()
	case <-d.stopped:
		return plan.None, ErrStopped
	}
}

// serviceCommands handles at most commandsPerTick queued commands so a
// burst of requests cannot stall rendering.
func (d *Device) serviceCommands() {
	for range d.commandsPerTick {
		select {
		case cmd := <-d.commands:
			cmd.reply <- d.execute(cmd)
		default:
			return
		}
	}
}

func (d *Device) execute(cmd command) result {
	switch cmd.kind {
	case cmdSetPlan:
		d.conn.Pending = plan.None
		return result{plan: cmd.plan, err: d.machine.SetPlan(cmd.plan, plan.ReasonCommand)}
	case cmdStation:
		p := d.stations.route(cmd.station)
		slog.Info("Station message", "station", cmd.station.StationID, "name", cmd.station.StationName,
			"action", cmd.station.Action, "color", cmd.station.Color, "colors", cmd.station.Colors, "plan", p)
		d.lastStation = cmd.station
		d.conn.Pending = plan.None
		return result{plan: p, err: d.machine.SetPlan(p, plan.ReasonStation)}
	case cmdArmOTA:
		if d.otaCh == nil {
			return result{plan: plan.None, err: ErrOTADisabled}
		}
		// the receiver may have accepted a push whose start event is
		// still queued
		if d.session.InProgress || d.otaCh.InProgress() {
			return result{plan: plan.None, err: ota.ErrBusy}
		}
		return result{plan: plan.None, err: d.otaCh.Arm()}
	}
	return result{plan: plan.None, err: fmt.Errorf("unknown command %d", cmd.kind)}
}
