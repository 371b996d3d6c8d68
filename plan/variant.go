package plan

import (
	"fmt"

	"golang.org/x/exp/slices"

	"flamingods.net/ledplans/led"
)

// Variant describes one device image: which plans it knows and how it
// reacts to connectivity changes and firmware updates.
type Variant struct {
	Name     string
	DeviceID string
	// Plans that can be triggered by command, in route order.
	Plans []Plan
	Idle  Plan
	// Plan entered on link loss, None if the device ignores the link.
	Fallback Plan
	// Manually triggered plans that must not be interrupted by
	// connectivity switching.
	Overrides []Plan
	// Plan shown while a firmware transfer runs.
	OTASafe      Plan
	Strips       int
	LedsPerStrip int
	ColorOrder   string
}

var variants = map[string]*Variant{
	"stage": {
		Name:         "stage",
		DeviceID:     "stage-esp32",
		Plans:        []Plan{Idle, Skip, Show, Special},
		Idle:         Idle,
		Fallback:     None,
		OTASafe:      Idle,
		Strips:       1,
		LedsPerStrip: 100,
		ColorOrder:   "GRB",
	},
	"crown": {
		Name:         "crown",
		DeviceID:     "crown-esp32",
		Plans:        []Plan{Idle, Button, WiFiFallback},
		Idle:         Idle,
		Fallback:     WiFiFallback,
		Overrides:    []Plan{Button},
		OTASafe:      WiFiFallback,
		Strips:       1,
		LedsPerStrip: 200,
		ColorOrder:   "RBG",
	},
	"button": {
		Name:         "button",
		DeviceID:     "button-esp32",
		Plans:        []Plan{Idle, Skip, Show, Special},
		Idle:         Idle,
		Fallback:     None,
		OTASafe:      Idle,
		Strips:       1,
		LedsPerStrip: 100,
		ColorOrder:   "GRB",
	},
	"flamingo": {
		Name:         "flamingo",
		DeviceID:     "flamingo-esp32",
		Plans:        []Plan{Idle, Moving},
		Idle:         Idle,
		Fallback:     None,
		Overrides:    []Plan{Moving},
		OTASafe:      Idle,
		Strips:       4,
		LedsPerStrip: 100,
		ColorOrder:   "GRB",
	},
}

// LookupVariant returns a copy of the named variant.
func LookupVariant(name string) (*Variant, error) {
	v, ok := variants[name]
	if !ok {
		return nil, fmt.Errorf("unknown device variant %q, valid variants are %v", name, VariantNames())
	}
	cp := *v
	cp.Plans = slices.Clone(v.Plans)
	cp.Overrides = slices.Clone(v.Overrides)
	return &cp, nil
}

// VariantNames lists the known variants, sorted.
func VariantNames() []string {
	names := make([]string, 0, len(variants))
	for name := range variants {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Has reports whether p is one of the variant's plans.
func (v *Variant) Has(p Plan) bool {
	return slices.Contains(v.Plans, p)
}

func (v *Variant) HasFallback() bool {
	return v.Fallback != None
}

func (v *Variant) IsOverride(p Plan) bool {
	return slices.Contains(v.Overrides, p)
}

// PlanNames returns the wire names of the variant's plans.
func (v *Variant) PlanNames() []string {
	names := make([]string, len(v.Plans))
	for i, p := range v.Plans {
		names[i] = p.String()
	}
	return names
}

// Renderers builds one renderer per plan of the variant.
func (v *Variant) Renderers(s Settings, rnd *led.Random) map[Plan]Renderer {
	out := make(map[Plan]Renderer, len(v.Plans))
	for _, p := range v.Plans {
		switch p {
		case Idle:
			if v.Name == "flamingo" {
				out[p] = NewWave(s.Wave)
			} else {
				out[p] = NewHalo(s.Idle)
			}
		case Skip:
			out[p] = NewSkipSequence(s.Skip)
		case Show:
			out[p] = NewShow(s.Show)
		case Special:
			out[p] = NewParty(s.Party, 0, rnd)
		case Button:
			out[p] = NewParty(s.Party, s.Party.ButtonDuration, rnd)
		case WiFiFallback:
			out[p] = NewFallback(s.Fallback)
		case Moving:
			out[p] = NewMovingDot(s.Moving)
		}
	}
	return out
}
