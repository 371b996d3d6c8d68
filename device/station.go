package device

import (
	"errors"
	"fmt"
	"strings"

	"flamingods.net/ledplans/plan"
)

// Station colours a button station can send.
var StationColors = []string{"red", "green", "blue", "yellow", "white"}

var ErrInvalidStation = errors.New("invalid station message")

// StationMessage is the JSON body a button station posts to
// /station-color and /station-mixed-color.
type StationMessage struct {
	StationID   int      `json:"station_id"`
	StationName string   `json:"station_name"`
	Action      string   `json:"action"`
	Color       string   `json:"color,omitempty"`
	Colors      []string `json:"colors,omitempty"`
	Timestamp   int64    `json:"timestamp"`
}

// Validate checks the message against the action it claims.
func (m *StationMessage) Validate() error {
	if m.StationID <= 0 {
		return fmt.Errorf("%w: station_id must be > 0", ErrInvalidStation)
	}
	switch m.Action {
	case "color":
		if !validColor(m.Color) {
			return fmt.Errorf("%w: unknown color %q", ErrInvalidStation, m.Color)
		}
	case "mixed-color":
		if len(m.Colors) == 0 {
			return fmt.Errorf("%w: colors must not be empty", ErrInvalidStation)
		}
		for _, c := range m.Colors {
			if !validColor(c) {
				return fmt.Errorf("%w: unknown color %q", ErrInvalidStation, c)
			}
		}
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidStation, m.Action)
	}
	return nil
}

func validColor(c string) bool {
	for _, known := range StationColors {
		if strings.EqualFold(c, known) {
			return true
		}
	}
	return false
}

// stationRouter maps station messages to plans.
type stationRouter struct {
	colors   map[string]plan.Plan
	fallback plan.Plan
	mixed    plan.Plan
}

func newStationRouter(v *plan.Variant, colorPlans map[string]string, defaultPlan, mixedPlan string) (*stationRouter, error) {
	r := &stationRouter{colors: make(map[string]plan.Plan)}
	switch {
	case defaultPlan != "":
		p, err := plan.Parse(defaultPlan)
		if err != nil {
			return nil, err
		}
		r.fallback = p
	case len(v.Overrides) > 0:
		r.fallback = v.Overrides[0]
	case v.Has(plan.Show):
		r.fallback = plan.Show
	default:
		r.fallback = v.Idle
	}
	r.mixed = r.fallback
	if mixedPlan != "" {
		p, err := plan.Parse(mixedPlan)
		if err != nil {
			return nil, err
		}
		r.mixed = p
	}
	for color, name := range colorPlans {
		p, err := plan.Parse(name)
		if err != nil {
			return nil, err
		}
		r.colors[strings.ToLower(color)] = p
	}
	return r, nil
}

func (r *stationRouter) route(m *StationMessage) plan.Plan {
	if m.Action == "mixed-color" {
		return r.mixed
	}
	if p, ok := r.colors[strings.ToLower(m.Color)]; ok {
		return p
	}
	return r.fallback
}
