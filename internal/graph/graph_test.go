package graph

import (
	"errors"
	"testing"

	"github.com/cbegin/audiograph-go/internal/automation"
)

func must(t *testing.T) func(NodeID, error) NodeID {
	return func(id NodeID, err error) NodeID {
		t.Helper()
		if err != nil {
			t.Fatalf("create node: %v", err)
		}
		return id
	}
}

func TestCreateNodeDefaults(t *testing.T) {
	g := New()
	osc := must(t)(g.Oscillator(Options{Waveform: Square}))
	bq := must(t)(g.Biquad(Options{FilterType: Highpass, Values: map[string]float64{ParamFrequency: 1200}}))
	dl := must(t)(g.Delay(Options{}))

	cases := []struct {
		id    NodeID
		param string
		want  float64
	}{
		{osc, ParamFrequency, 440},
		{osc, ParamDetune, 0},
		{bq, ParamFrequency, 1200},
		{bq, ParamQ, 1},
		{bq, ParamGain, 0},
		{dl, ParamDelayTime, 0},
	}
	for _, tc := range cases {
		p, err := g.Param(tc.id, tc.param)
		if err != nil {
			t.Fatalf("param %s: %v", tc.param, err)
		}
		if p.Default() != tc.want {
			t.Fatalf("%s default = %v, want %v", tc.param, p.Default(), tc.want)
		}
	}
	if g.Node(dl).MaxDelayTime() != 1 {
		t.Fatalf("max delay = %v, want 1", g.Node(dl).MaxDelayTime())
	}
	if g.Node(osc).Waveform() != Square {
		t.Fatalf("waveform = %v", g.Node(osc).Waveform())
	}
}

func TestCreateNodeRejectsUnknownParamAndMissingBuffer(t *testing.T) {
	g := New()
	if _, err := g.Gain(Options{Values: map[string]float64{"frequency": 1}}); !errors.Is(err, ErrUnknownParam) {
		t.Fatalf("err = %v, want ErrUnknownParam", err)
	}
	if _, err := g.BufferSource(Options{}); !errors.Is(err, ErrInvalidNode) {
		t.Fatalf("err = %v, want ErrInvalidNode", err)
	}
	if _, err := g.Param(g.Destination(), ParamGain); !errors.Is(err, ErrUnknownParam) {
		t.Fatalf("err = %v, want ErrUnknownParam", err)
	}
}

func TestSourceLifetime(t *testing.T) {
	cases := []struct {
		name  string
		start float64
		stop  float64
		ok    bool
	}{
		{"start then later stop", 0.5, 1.0, true},
		{"stop before start", 1.0, 0.5, false},
		{"stop equals start", 1.0, 1.0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := New()
			osc := must(t)(g.Oscillator(Options{}))
			if err := g.Start(osc, tc.start); err != nil {
				t.Fatalf("start: %v", err)
			}
			if err := g.Stop(osc, tc.stop); err != nil {
				t.Fatalf("stop: %v", err)
			}
			if err := g.Connect(osc, g.Destination()); err != nil {
				t.Fatalf("connect: %v", err)
			}
			_, err := g.Validate()
			if tc.ok && err != nil {
				t.Fatalf("validate: %v", err)
			}
			var inv *InvalidNodeError
			if !tc.ok && !errors.As(err, &inv) {
				t.Fatalf("err = %v, want InvalidNodeError", err)
			}
		})
	}

	g := New()
	osc := must(t)(g.Oscillator(Options{}))
	if err := g.Start(osc, -1); !errors.Is(err, ErrInvalidNode) {
		t.Fatalf("negative start err = %v", err)
	}
	gain := must(t)(g.Gain(Options{}))
	if err := g.Start(gain, 0); !errors.Is(err, ErrInvalidNode) {
		t.Fatalf("start on effect err = %v", err)
	}
}

func TestConnectRules(t *testing.T) {
	g := New()
	osc := must(t)(g.Oscillator(Options{}))
	osc2 := must(t)(g.Oscillator(Options{}))
	if err := g.Connect(osc, osc2); !errors.Is(err, ErrConnection) {
		t.Fatalf("source audio input err = %v", err)
	}
	if err := g.Connect(g.Destination(), osc); !errors.Is(err, ErrConnection) {
		t.Fatalf("destination output err = %v", err)
	}
	if err := g.ConnectParam(osc, osc2, "Q"); !errors.Is(err, ErrUnknownParam) {
		t.Fatalf("unknown param err = %v", err)
	}
	if err := g.ConnectParam(osc, osc2, ParamFrequency); err != nil {
		t.Fatalf("param connect: %v", err)
	}
	if err := g.Connect(osc, 99); !errors.Is(err, ErrUnknownNode) {
		t.Fatalf("unknown node err = %v", err)
	}
}

func TestAudioCycleWithoutDelayFails(t *testing.T) {
	g := New()
	a := must(t)(g.Gain(Options{}))
	b := must(t)(g.Biquad(Options{}))
	for _, c := range [][2]NodeID{{a, b}, {b, a}, {b, g.Destination()}} {
		if err := g.Connect(c[0], c[1]); err != nil {
			t.Fatal(err)
		}
	}
	_, err := g.Validate()
	var cyc *CycleError
	if !errors.As(err, &cyc) {
		t.Fatalf("err = %v, want CycleError", err)
	}
	if len(cyc.Path) != 3 || cyc.Path[0] != cyc.Path[len(cyc.Path)-1] {
		t.Fatalf("path = %v", cyc.Path)
	}
	if _, err := g.Freeze(); !errors.Is(err, ErrCycle) {
		t.Fatalf("freeze err = %v", err)
	}
	if g.Frozen() {
		t.Fatalf("graph frozen after failed validation")
	}
}

func TestFeedbackThroughDelayIsLegal(t *testing.T) {
	g := New()
	osc := must(t)(g.Oscillator(Options{}))
	dl := must(t)(g.Delay(Options{Values: map[string]float64{ParamDelayTime: 0.25}}))
	fb := must(t)(g.Gain(Options{Values: map[string]float64{ParamGain: 0.5}}))
	if err := g.Start(osc, 0); err != nil {
		t.Fatal(err)
	}
	for _, c := range [][2]NodeID{{osc, dl}, {dl, fb}, {fb, dl}, {dl, g.Destination()}} {
		if err := g.Connect(c[0], c[1]); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := g.Freeze(); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	assertOrdered(t, g, [][2]NodeID{{dl, fb}, {dl, g.Destination()}})
}

func TestParamLoopIsReportedNotRejected(t *testing.T) {
	g := New()
	lfo := must(t)(g.Oscillator(Options{}))
	amp := must(t)(g.Gain(Options{}))
	other := must(t)(g.Oscillator(Options{}))
	_ = g.Start(lfo, 0)
	_ = g.Start(other, 0)
	if err := g.Connect(lfo, amp); err != nil {
		t.Fatal(err)
	}
	if err := g.ConnectParam(amp, lfo, ParamFrequency); err != nil {
		t.Fatal(err)
	}
	if err := g.ConnectParam(other, amp, ParamGain); err != nil {
		t.Fatal(err)
	}
	if err := g.Connect(amp, g.Destination()); err != nil {
		t.Fatal(err)
	}
	rep, err := g.Freeze()
	if err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if len(rep.Feedback) != 1 || rep.Feedback[0].To != lfo {
		t.Fatalf("feedback = %+v", rep.Feedback)
	}
	assertOrdered(t, g, [][2]NodeID{{lfo, amp}, {other, amp}, {amp, g.Destination()}})
}

func TestOrphansAreWarnings(t *testing.T) {
	g := New()
	osc := must(t)(g.Oscillator(Options{}))
	lonely := must(t)(g.Gain(Options{}))
	_ = g.Start(osc, 0)
	if err := g.Connect(osc, g.Destination()); err != nil {
		t.Fatal(err)
	}
	rep, err := g.Validate()
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(rep.Orphans) != 1 || rep.Orphans[0] != lonely {
		t.Fatalf("orphans = %v, want [%d]", rep.Orphans, lonely)
	}
	if len(rep.Warnings) == 0 {
		t.Fatalf("expected a warning")
	}
}

func TestFreezeBlocksMutation(t *testing.T) {
	g := New()
	osc := must(t)(g.Oscillator(Options{}))
	_ = g.Start(osc, 0)
	_ = g.Connect(osc, g.Destination())
	if _, err := g.Freeze(); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Gain(Options{}); !errors.Is(err, ErrFrozen) {
		t.Fatalf("create err = %v", err)
	}
	if err := g.Connect(osc, g.Destination()); !errors.Is(err, ErrFrozen) {
		t.Fatalf("connect err = %v", err)
	}
	p, _ := g.Param(osc, ParamFrequency)
	if err := p.SetValueAtTime(220, 0); !errors.Is(err, automation.ErrFrozen) {
		t.Fatalf("param err = %v", err)
	}
}

func TestOrderIsStable(t *testing.T) {
	build := func() *Graph {
		g := New()
		for i := 0; i < 8; i++ {
			osc, _ := g.Oscillator(Options{})
			gain, _ := g.Gain(Options{})
			_ = g.Start(osc, 0)
			_ = g.Connect(osc, gain)
			_ = g.Connect(gain, g.Destination())
		}
		return g
	}
	a, b := build().Order(), build().Order()
	if len(a) != len(b) {
		t.Fatalf("length mismatch")
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("order differs at %d: %v vs %v", i, a, b)
		}
	}
	if a[len(a)-1] != 0 {
		t.Fatalf("destination should be processed last, got %v", a)
	}
}

func assertOrdered(t *testing.T, g *Graph, pairs [][2]NodeID) {
	t.Helper()
	pos := map[NodeID]int{}
	for i, id := range g.Order() {
		pos[id] = i
	}
	for _, p := range pairs {
		if pos[p[0]] >= pos[p[1]] {
			t.Fatalf("node %d should precede %d in %v", p[0], p[1], g.Order())
		}
	}
}
