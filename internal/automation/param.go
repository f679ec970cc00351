package automation

import (
	"errors"
	"sort"
)

// Param is one automatable node parameter: a default value plus an ordered
// event list. The scheduling methods follow the Web Audio AudioParam names.
type Param struct {
	name   string
	def    float64
	events []Event
	frozen bool
}

func NewParam(name string, def float64) *Param {
	return &Param{name: name, def: def}
}

func (p *Param) Name() string     { return p.name }
func (p *Param) Default() float64 { return p.def }
func (p *Param) Frozen() bool     { return p.frozen }

// Events returns a copy of the scheduled events in time order.
func (p *Param) Events() []Event {
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// SetDefault changes the value in effect before the first event.
func (p *Param) SetDefault(v float64) error {
	if p.frozen {
		return ErrFrozen
	}
	if !finite(v) {
		return &InvalidAutomationError{Param: p.name, Event: Set(0, v), Reason: "default must be finite"}
	}
	if err := Validate(p.events, v); err != nil {
		return p.named(err)
	}
	p.def = v
	return nil
}

func (p *Param) SetValueAtTime(v, t float64) error {
	return p.insert(Set(t, v))
}

func (p *Param) LinearRampToValueAtTime(v, t float64) error {
	return p.insert(Linear(t, v))
}

func (p *Param) ExponentialRampToValueAtTime(v, t float64) error {
	return p.insert(Exponential(t, v))
}

func (p *Param) SetValueCurveAtTime(values []float64, t, duration float64) error {
	return p.insert(Curve(t, duration, values))
}

// Schedule inserts an arbitrary event.
func (p *Param) Schedule(ev Event) error {
	return p.insert(ev)
}

// Freeze makes the parameter read-only.
func (p *Param) Freeze() { p.frozen = true }

// Timeline compiles the current events.
func (p *Param) Timeline() *Timeline {
	return &Timeline{base: p.def, events: p.Events()}
}

// At evaluates the parameter at t.
func (p *Param) At(t float64) float64 {
	return p.Timeline().At(t)
}

func (p *Param) insert(ev Event) error {
	if p.frozen {
		return ErrFrozen
	}
	candidate := make([]Event, 0, len(p.events)+2)
	if len(p.events) == 0 && ev.isRamp() {
		// A ramp needs a starting point; anchor it at the offline context's
		// scheduling time.
		candidate = append(candidate, Set(0, p.def))
	}
	candidate = append(candidate, p.events...)
	at := sort.Search(len(candidate), func(k int) bool { return candidate[k].Time > ev.Time })
	candidate = append(candidate, Event{})
	copy(candidate[at+1:], candidate[at:])
	candidate[at] = ev
	if err := Validate(candidate, p.def); err != nil {
		return p.named(err)
	}
	p.events = candidate
	return nil
}

func (p *Param) named(err error) error {
	var ia *InvalidAutomationError
	if errors.As(err, &ia) && ia.Param == "" {
		ia.Param = p.name
	}
	return err
}
