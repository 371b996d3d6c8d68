package device

import (
	"log/slog"

	"flamingods.net/ledplans/plan"
)

// checkAndReconcile reads the cached link status, records a pending plan
// on a link edge and applies it when nothing with precedence is active.
func (d *Device) checkAndReconcile() {
	st := d.link.Status()
	now := d.clock.Now()
	d.conn.LastCheck = now
	d.conn.IP = st.IP
	d.conn.RSSI = st.RSSI

	if st.Connected != d.conn.Connected {
		d.conn.Connected = st.Connected
		slog.Info("Link changed", "connected", st.Connected, "ip", st.IP)
		if d.variant.HasFallback() {
			if st.Connected {
				d.conn.Pending = d.variant.Idle
			} else {
				d.conn.Pending = d.variant.Fallback
			}
		}
		if st.Connected {
			d.conn.Attempts = 0
		}
	}
	d.applyPending()

	if !st.Connected {
		d.conn.Attempts++
		slog.Debug("Requesting reconnect", "attempt", d.conn.Attempts)
		d.link.Reconnect()
	}
}

// applyPending switches to the pending plan unless an OTA transfer runs or
// an override plan is active. In that case it stays pending.
func (d *Device) applyPending() {
	if d.conn.Pending == plan.None {
		return
	}
	current := d.machine.Current()
	if d.session.InProgress || d.variant.IsOverride(current) {
		slog.Debug("Keeping plan pending", "pending", d.conn.Pending, "current", current, "ota", d.session.InProgress)
		return
	}
	target := d.conn.Pending
	d.conn.Pending = plan.None
	if current == target {
		return
	}
	if err := d.machine.SetPlan(target, plan.ReasonConnectivity); err != nil {
		slog.Error("Connectivity switch failed", "plan", target, "error", err)
	}
}

// reconciledPlan is the plan to return to after an aborted OTA transfer.
func (d *Device) reconciledPlan(prior plan.Plan) plan.Plan {
	switch {
	case !d.variant.Has(prior):
		return d.variant.Idle
	case d.conn.Connected && d.variant.HasFallback() && prior == d.variant.Fallback:
		return d.variant.Idle
	case !d.conn.Connected && d.variant.HasFallback() && !d.variant.IsOverride(prior):
		return d.variant.Fallback
	}
	return prior
}
