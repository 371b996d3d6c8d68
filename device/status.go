package device

import (
	"time"

	"flamingods.net/ledplans/led"
	"flamingods.net/ledplans/plan"
)

// Snapshot is the read-only view of the device published after every
// tick. Its JSON form is the /status document.
type Snapshot struct {
	Status          string          `json:"status"`
	CurrentPlan     string          `json:"current_plan"`
	WiFiConnected   bool            `json:"wifi_connected"`
	IP              string          `json:"ip_address"`
	RSSI            int             `json:"rssi"`
	Uptime          int64           `json:"uptime"`
	FirmwareVersion string          `json:"firmware_version"`
	Device          string          `json:"device"`
	OTAInProgress   bool            `json:"ota_in_progress"`
	OTAProgress     int             `json:"ota_progress"`
	OTADuration     *int64          `json:"ota_duration,omitempty"`
	PlanElapsedMs   int64           `json:"plan_elapsed_ms"`
	Plans           []string        `json:"plans"`
	PendingPlan     string          `json:"pending_plan,omitempty"`
	Reconnects      int             `json:"reconnect_attempts"`
	LastStation     *StationMessage `json:"last_station,omitempty"`

	Plan    plan.Plan         `json:"-"`
	History []plan.Transition `json:"-"`
	Frame   *led.Frame        `json:"-"`
	At      time.Time         `json:"-"`
}

func (d *Device) publish() {
	now := d.clock.Now()
	s := Snapshot{
		Status:          "success",
		CurrentPlan:     d.machine.Current().String(),
		WiFiConnected:   d.conn.Connected,
		IP:              d.conn.IP,
		RSSI:            d.conn.RSSI,
		Uptime:          int64(now.Sub(d.startedAt) / time.Second),
		FirmwareVersion: d.firmwareVersion,
		Device:          d.variant.DeviceID,
		OTAInProgress:   d.session.InProgress,
		OTAProgress:     d.session.Progress,
		PlanElapsedMs:   d.machine.Elapsed().Milliseconds(),
		Plans:           d.variant.PlanNames(),
		Reconnects:      d.conn.Attempts,
		Plan:            d.machine.Current(),
		History:         d.machine.History(),
		At:              now,
	}
	if d.session.InProgress {
		secs := int64(d.session.Duration(now) / time.Second)
		s.OTADuration = &secs
	}
	if d.conn.Pending != plan.None {
		s.PendingPlan = d.conn.Pending.String()
	}
	if d.lastStation != nil {
		st := *d.lastStation
		s.LastStation = &st
	}
	if d.out != nil {
		s.Frame = d.out.Clone()
	} else {
		s.Frame = d.machine.Frame().Clone()
	}
	d.snapshot.Send(s)
}
