package device

import (
	"log/slog"
	"time"

	"flamingods.net/ledplans/ota"
	"flamingods.net/ledplans/plan"
)

// Tick runs one iteration of the loop. The order is fixed: OTA events,
// commands, connectivity check, pending restart, render, flush, publish.
func (d *Device) Tick() {
	d.serviceOTA()
	d.serviceCommands()
	now := d.clock.Now()
	if now.Sub(d.conn.LastCheck) >= d.checkInterval {
		d.checkAndReconcile()
	}
	if !d.restartAt.IsZero() && !now.Before(d.restartAt) {
		d.restart()
	}
	before := d.machine.Current()
	d.machine.Update()
	if cur := d.machine.Current(); cur != before {
		// an override ran out, a switch it held back is due now
		d.applyPending()
		if d.machine.Current() != cur {
			d.machine.Update()
		}
	}
	d.flush(now)
	d.publish()
}

func (d *Device) serviceOTA() {
	if d.otaCh == nil {
		return
	}
	for {
		select {
		case ev := <-d.otaCh.Events():
			d.handleOTA(ev)
		default:
			return
		}
	}
}

func (d *Device) handleOTA(ev ota.Event) {
	now := d.clock.Now()
	switch ev.Kind {
	case ota.Start:
		prior := d.machine.Current()
		d.session.Begin(ev.Session, now, prior)
		d.restartAt = time.Time{}
		slog.Info("OTA update started", "session", ev.Session, "prior", prior)
		if err := d.machine.SetPlan(d.variant.OTASafe, plan.ReasonOTA); err != nil {
			slog.Error("Cannot enter OTA safe plan", "plan", d.variant.OTASafe, "error", err)
		}
	case ota.Progress:
		d.session.SetProgress(ev.Session, ev.Percent)
		slog.Debug("OTA progress", "session", ev.Session, "percent", d.session.Progress)
	case ota.End:
		if !d.session.InProgress || ev.Session != d.session.ID {
			slog.Warn("OTA end for unknown session", "session", ev.Session)
			return
		}
		d.session.Finish()
		d.restartAt = now.Add(d.restartDelay)
		slog.Info("OTA update completed", "session", ev.Session, "restart_in", d.restartDelay)
	case ota.Error:
		if !d.session.InProgress || ev.Session != d.session.ID {
			// auth failures happen before a session starts
			slog.Warn("OTA error", "session", ev.Session, "code", ev.Code)
			return
		}
		d.session.Fail()
		slog.Error("OTA update failed", "session", ev.Session, "code", ev.Code)
		d.restore(d.session.PriorPlan)
	}
}

// restore returns to prior after an aborted transfer.
func (d *Device) restore(prior plan.Plan) {
	d.conn.Pending = plan.None
	p := d.reconciledPlan(prior)
	if err := d.machine.SetPlan(p, plan.ReasonOTA); err != nil {
		slog.Error("Cannot restore plan", "plan", p, "error", err)
	}
}

func (d *Device) restart() {
	d.restartAt = time.Time{}
	if d.restarter == nil {
		slog.Warn("No restarter configured, staying on running firmware")
		d.restore(d.session.PriorPlan)
		return
	}
	if err := d.restarter.Restart(); err != nil {
		slog.Error("Restart failed", "error", err)
		if rb, ok := d.restarter.(ota.Rollbacker); ok {
			if err := rb.Rollback(); err != nil {
				slog.Error("Firmware rollback failed", "error", err)
			}
		}
		d.restore(d.session.PriorPlan)
	}
}

func (d *Device) flush(now time.Time) {
	if d.out == nil {
		d.out = d.machine.Frame().Clone()
	} else {
		d.machine.Frame().CopyInto(d.out)
	}
	d.dimmer.Apply(d.out, now)
	if d.display != nil {
		d.display.DisplayLeds(d.out)
	}
}
