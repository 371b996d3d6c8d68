package plan

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gammazero/deque"
	"github.com/jonboulle/clockwork"

	"flamingods.net/ledplans/led"
)

const maxHistory = 32

// Transition is one entry of the plan switch history.
type Transition struct {
	From   Plan      `json:"from"`
	To     Plan      `json:"to"`
	Reason Reason    `json:"reason"`
	At     time.Time `json:"at"`
}

// Machine holds the active plan of a device and drives its renderer. It
// is not safe for concurrent use; the device loop is its only owner.
type Machine struct {
	clock     clockwork.Clock
	idle      Plan
	renderers map[Plan]Renderer
	frame     *led.Frame
	current   Plan
	enteredAt time.Time
	history   *deque.Deque[Transition]
}

// NewMachine creates a machine drawing into frame and enters the initial
// plan with reason boot.
func NewMachine(v *Variant, renderers map[Plan]Renderer, frame *led.Frame, clock clockwork.Clock, initial Plan) (*Machine, error) {
	m := &Machine{
		clock:     clock,
		idle:      v.Idle,
		renderers: renderers,
		frame:     frame,
		current:   None,
		history:   new(deque.Deque[Transition]),
	}
	if _, ok := renderers[v.Idle]; !ok {
		return nil, fmt.Errorf("variant %s: no renderer for idle plan %s", v.Name, v.Idle)
	}
	if err := m.SetPlan(initial, ReasonBoot); err != nil {
		return nil, err
	}
	return m, nil
}

// SetPlan makes p the active plan. The frame is cleared and the renderer
// of p starts over from its initial phase, even when p is already active.
func (m *Machine) SetPlan(p Plan, reason Reason) error {
	r, ok := m.renderers[p]
	if !ok {
		slog.Warn("Ignoring unsupported plan", "plan", p, "reason", reason)
		return fmt.Errorf("%w: %s", ErrUnknownPlan, p)
	}
	now := m.clock.Now()
	m.frame.Clear()
	r.Reset()
	if m.history.Len() == maxHistory {
		m.history.PopFront()
	}
	m.history.PushBack(Transition{From: m.current, To: p, Reason: reason, At: now})
	slog.Info("Switched plan", "from", m.current, "to", p, "reason", reason)
	m.current = p
	m.enteredAt = now
	return nil
}

// Update renders one frame of the active plan. A plan that has run its
// course is replaced by idle, which is rendered in the same call.
func (m *Machine) Update() {
	if m.renderers[m.current].Render(m.frame, m.Elapsed()) {
		// idle is guaranteed to exist, see NewMachine
		_ = m.SetPlan(m.idle, ReasonTimeout)
		m.renderers[m.idle].Render(m.frame, 0)
	}
}

func (m *Machine) Current() Plan {
	return m.current
}

// Elapsed is the time since the active plan was entered.
func (m *Machine) Elapsed() time.Duration {
	return m.clock.Since(m.enteredAt)
}

func (m *Machine) Frame() *led.Frame {
	return m.frame
}

// History returns the recorded transitions, oldest first.
func (m *Machine) History() []Transition {
	out := make([]Transition, m.history.Len())
	for i := range m.history.Len() {
		out[i] = m.history.At(i)
	}
	return out
}
