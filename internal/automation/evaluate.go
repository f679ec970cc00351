package automation

import (
	"math"
	"sort"
)

// Evaluate returns the value of a parameter with the given base value and
// events at time t. Before the first event the base value applies.
func Evaluate(events []Event, base, t float64) float64 {
	return Compile(events, base).At(t)
}

// Timeline is a compiled, read-only event list.
type Timeline struct {
	base   float64
	events []Event
}

// Compile sorts a copy of events into a Timeline.
func Compile(events []Event, base float64) *Timeline {
	return &Timeline{base: base, events: sorted(events)}
}

// Base is the value in effect before any event.
func (tl *Timeline) Base() float64 { return tl.base }

// Static reports whether the value never changes.
func (tl *Timeline) Static() bool { return len(tl.events) == 0 }

// At evaluates the timeline at t.
func (tl *Timeline) At(t float64) float64 {
	i := sort.Search(len(tl.events), func(k int) bool { return tl.events[k].Time > t }) - 1
	return tl.valueAt(i, t)
}

// valueAt evaluates t given i, the index of the last event with Time <= t.
func (tl *Timeline) valueAt(i int, t float64) float64 {
	if i < 0 {
		return tl.base
	}
	cur := tl.events[i]
	if cur.Kind == ValueCurve && t < cur.End() {
		return curveAt(cur, t)
	}
	v0 := cur.endValue()
	if i+1 >= len(tl.events) {
		return v0
	}
	next := tl.events[i+1]
	if !next.isRamp() {
		return v0
	}
	t0, t1 := cur.End(), next.Time
	if t1 <= t0 || t >= t1 {
		return next.Value
	}
	frac := (t - t0) / (t1 - t0)
	if next.Kind == LinearRamp {
		return v0 + (next.Value-v0)*frac
	}
	if v0 <= 0 || next.Value <= 0 {
		return v0
	}
	return v0 * math.Exp2(math.Log2(next.Value/v0)*frac)
}

func curveAt(ev Event, t float64) float64 {
	n := len(ev.Curve)
	pos := (t - ev.Time) / ev.Duration * float64(n-1)
	k := int(pos)
	if k >= n-1 {
		return ev.Curve[n-1]
	}
	if k < 0 {
		return ev.Curve[0]
	}
	frac := pos - float64(k)
	return ev.Curve[k] + (ev.Curve[k+1]-ev.Curve[k])*frac
}

// Cursor evaluates a timeline at non-decreasing times in amortised constant
// time.
type Cursor struct {
	tl  *Timeline
	idx int
}

// Cursor returns a cursor positioned before the first event.
func (tl *Timeline) Cursor() *Cursor {
	return &Cursor{tl: tl, idx: -1}
}

// Next evaluates at t. t must not be smaller than the previous call's t.
func (c *Cursor) Next(t float64) float64 {
	evs := c.tl.events
	for c.idx+1 < len(evs) && evs[c.idx+1].Time <= t {
		c.idx++
	}
	return c.tl.valueAt(c.idx, t)
}
