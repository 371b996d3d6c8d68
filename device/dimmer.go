package device

import (
	"time"

	"github.com/nathan-osman/go-sunrise"

	"flamingods.net/ledplans/config"
	"flamingods.net/ledplans/led"
)

// Dimmer scales the output brightness. Between sunrise and sunset at the
// configured location the day brightness is applied on top.
type Dimmer struct {
	brightness    byte
	daylight      bool
	dayBrightness byte
	lat, lon      float64

	day     time.Time
	sunrise time.Time
	sunset  time.Time
}

func NewDimmer(brightness int, dl config.DaylightConfig) *Dimmer {
	return &Dimmer{
		brightness:    byte(brightness),
		daylight:      dl.Enabled,
		dayBrightness: byte(dl.DayBrightness),
		lat:           dl.Latitude,
		lon:           dl.Longitude,
	}
}

// Scale returns the output scale for the given time.
func (d *Dimmer) Scale(now time.Time) byte {
	if !d.daylight || !d.isDay(now) {
		return d.brightness
	}
	return led.Scale8(d.brightness, d.dayBrightness)
}

func (d *Dimmer) isDay(now time.Time) bool {
	y, m, day := now.Date()
	today := time.Date(y, m, day, 0, 0, 0, 0, now.Location())
	if !today.Equal(d.day) {
		d.day = today
		d.sunrise, d.sunset = sunrise.SunriseSunset(d.lat, d.lon, y, m, day)
	}
	// polar day and night yield zero times
	if d.sunrise.IsZero() || d.sunset.IsZero() {
		return false
	}
	return now.After(d.sunrise) && now.Before(d.sunset)
}

// Apply scales every pixel of f in place.
func (d *Dimmer) Apply(f *led.Frame, now time.Time) {
	scale := d.Scale(now)
	if scale == 255 {
		return
	}
	for _, strip := range f.Strips {
		for i := range strip {
			strip[i] = strip[i].Scale(scale)
		}
	}
}
