package plan

import (
	"errors"
	"fmt"
	"strings"
)

// Plan is one named lighting behavior. Exactly one plan is active on a
// device at any time.
type Plan uint8

const (
	Idle Plan = iota
	Skip
	Show
	Special
	Button
	WiFiFallback
	Moving
)

// None marks the absence of a plan, e.g. a variant without a fallback.
const None Plan = 255

var ErrUnknownPlan = errors.New("unknown plan")

var planNames = map[Plan]string{
	Idle:         "idle",
	Skip:         "skip",
	Show:         "show",
	Special:      "special",
	Button:       "button",
	WiFiFallback: "wifi_fallback",
	Moving:       "moving",
}

func (p Plan) String() string {
	if name, ok := planNames[p]; ok {
		return name
	}
	if p == None {
		return "none"
	}
	return fmt.Sprintf("plan(%d)", uint8(p))
}

// Parse maps a wire name (case insensitive) onto a Plan.
func Parse(name string) (Plan, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for p, n := range planNames {
		if n == name {
			return p, nil
		}
	}
	return None, fmt.Errorf("%w: %q", ErrUnknownPlan, name)
}

func (p Plan) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Plan) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Reason records why a plan switch happened.
type Reason string

const (
	ReasonBoot         Reason = "boot"
	ReasonCommand      Reason = "command"
	ReasonStation      Reason = "station"
	ReasonConnectivity Reason = "connectivity"
	ReasonOTA          Reason = "ota"
	ReasonTimeout      Reason = "timeout"
)
