package automation

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Kind identifies how an event shapes the value curve.
type Kind int

const (
	// SetValue jumps to Value at Time and holds it.
	SetValue Kind = iota
	// LinearRamp moves linearly from the previous event's value, reaching
	// Value exactly at Time.
	LinearRamp
	// ExponentialRamp moves exponentially from the previous event's value,
	// reaching Value exactly at Time. Both ends must be positive.
	ExponentialRamp
	// ValueCurve interpolates linearly across Curve during
	// [Time, Time+Duration] and holds the last point afterwards.
	ValueCurve
)

func (k Kind) String() string {
	switch k {
	case SetValue:
		return "setValue"
	case LinearRamp:
		return "linearRamp"
	case ExponentialRamp:
		return "exponentialRamp"
	case ValueCurve:
		return "valueCurve"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is one scheduled automation point. Times are seconds on the render
// timeline.
type Event struct {
	Kind     Kind
	Time     float64
	Value    float64
	Duration float64
	Curve    []float64
}

func Set(t, v float64) Event         { return Event{Kind: SetValue, Time: t, Value: v} }
func Linear(t, v float64) Event      { return Event{Kind: LinearRamp, Time: t, Value: v} }
func Exponential(t, v float64) Event { return Event{Kind: ExponentialRamp, Time: t, Value: v} }

// Curve builds a ValueCurve event. The values slice is copied.
func Curve(t, duration float64, values []float64) Event {
	c := make([]float64, len(values))
	copy(c, values)
	return Event{Kind: ValueCurve, Time: t, Duration: duration, Curve: c}
}

// End is the time at which the event's own shape is complete.
func (e Event) End() float64 {
	if e.Kind == ValueCurve {
		return e.Time + e.Duration
	}
	return e.Time
}

func (e Event) isRamp() bool {
	return e.Kind == LinearRamp || e.Kind == ExponentialRamp
}

// endValue is the value the event leaves in effect once it is complete.
func (e Event) endValue() float64 {
	if e.Kind == ValueCurve {
		if len(e.Curve) == 0 {
			return 0
		}
		return e.Curve[len(e.Curve)-1]
	}
	return e.Value
}

var (
	ErrInvalidAutomation = errors.New("invalid automation")
	ErrFrozen            = errors.New("parameter is frozen")
)

// InvalidAutomationError reports an event that cannot be scheduled.
type InvalidAutomationError struct {
	Param  string
	Event  Event
	Reason string
}

func (e *InvalidAutomationError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("invalid automation on %s: %s at %gs: %s", e.Param, e.Event.Kind, e.Event.Time, e.Reason)
	}
	return fmt.Sprintf("invalid automation: %s at %gs: %s", e.Event.Kind, e.Event.Time, e.Reason)
}

func (e *InvalidAutomationError) Unwrap() error { return ErrInvalidAutomation }

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// sorted returns a copy of events ordered by time. Events sharing a timestamp
// keep their list order.
func sorted(events []Event) []Event {
	out := make([]Event, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

// Validate checks a whole event list against a base value.
func Validate(events []Event, base float64) error {
	evs := sorted(events)
	prev := base
	for i, ev := range evs {
		if !finite(ev.Time) || ev.Time < 0 {
			return &InvalidAutomationError{Event: ev, Reason: "time must be finite and non-negative"}
		}
		switch ev.Kind {
		case SetValue, LinearRamp:
			if !finite(ev.Value) {
				return &InvalidAutomationError{Event: ev, Reason: "value must be finite"}
			}
		case ExponentialRamp:
			if !finite(ev.Value) || ev.Value <= 0 {
				return &InvalidAutomationError{Event: ev, Reason: "exponential ramp target must be positive"}
			}
			if prev <= 0 {
				return &InvalidAutomationError{Event: ev, Reason: fmt.Sprintf("exponential ramp start value %g must be positive", prev)}
			}
		case ValueCurve:
			if len(ev.Curve) < 2 {
				return &InvalidAutomationError{Event: ev, Reason: "value curve needs at least two points"}
			}
			if !finite(ev.Duration) || ev.Duration <= 0 {
				return &InvalidAutomationError{Event: ev, Reason: "value curve duration must be positive"}
			}
			for _, v := range ev.Curve {
				if !finite(v) {
					return &InvalidAutomationError{Event: ev, Reason: "value curve points must be finite"}
				}
			}
			for j, other := range evs {
				if j != i && other.Time > ev.Time && other.Time < ev.End() {
					return &InvalidAutomationError{Event: other, Reason: fmt.Sprintf("overlaps value curve scheduled at %gs", ev.Time)}
				}
			}
		default:
			return &InvalidAutomationError{Event: ev, Reason: "unknown event kind"}
		}
		prev = ev.endValue()
	}
	return nil
}
