// Package render turns a frozen signal graph into a fixed-length sample
// buffer. Frames are processed once each in increasing order and every
// parameter is evaluated per frame.
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cbegin/audiograph-go/internal/automation"
	"github.com/cbegin/audiograph-go/internal/buffer"
	"github.com/cbegin/audiograph-go/internal/graph"
)

// MaxChannels bounds a plan's channel count.
const MaxChannels = 32

// blockFrames is how often cancellation is checked.
const blockFrames = 128

var (
	ErrInvalidPlan = errors.New("invalid render plan")
	ErrNotFrozen   = errors.New("graph must be frozen before rendering")
)

// Plan is the complete input of one render.
type Plan struct {
	Duration   float64
	Channels   int
	SampleRate int
	Graph      *graph.Graph
}

// NewPlan freezes g and returns a validated plan together with the graph's
// warnings.
func NewPlan(g *graph.Graph, duration float64, channels, sampleRate int) (Plan, graph.Report, error) {
	p := Plan{Duration: duration, Channels: channels, SampleRate: sampleRate, Graph: g}
	if g == nil {
		return p, graph.Report{}, fmt.Errorf("%w: nil graph", ErrInvalidPlan)
	}
	rep, err := g.Freeze()
	if err != nil {
		return p, rep, err
	}
	return p, rep, p.Validate()
}

// Validate checks the plan's scalar fields and that its graph is frozen.
func (p Plan) Validate() error {
	if math.IsNaN(p.Duration) || math.IsInf(p.Duration, 0) || p.Duration <= 0 {
		return fmt.Errorf("%w: duration %g must be positive", ErrInvalidPlan, p.Duration)
	}
	if p.Channels < 1 || p.Channels > MaxChannels {
		return fmt.Errorf("%w: channel count %d out of range", ErrInvalidPlan, p.Channels)
	}
	if p.SampleRate <= 0 {
		return fmt.Errorf("%w: sampleRate must be positive", ErrInvalidPlan)
	}
	if p.Graph == nil {
		return fmt.Errorf("%w: nil graph", ErrInvalidPlan)
	}
	if !p.Graph.Frozen() {
		return ErrNotFrozen
	}
	return nil
}

// Frames is the number of frames the plan renders: duration × sampleRate
// rounded up, with products within 1e-6 of an integer taken as that integer.
func (p Plan) Frames() int {
	return FrameCount(p.Duration, p.SampleRate)
}

func FrameCount(duration float64, sampleRate int) int {
	n := duration * float64(sampleRate)
	if r := math.Round(n); math.Abs(n-r) < 1e-6 {
		return int(r)
	}
	return int(math.Ceil(n))
}

// Option configures Render.
type Option func(*config)

type config struct {
	logger *slog.Logger
}

// WithLogger sets the logger for debug timing and graph warnings.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// Render computes the plan's output buffer. It checks ctx every 128 frames;
// when ctx is done the partial result is dropped and ctx.Err() is returned.
func Render(ctx context.Context, plan Plan, opts ...Option) (*buffer.Buffer, error) {
	cfg := config{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	for _, w := range plan.Graph.Report().Warnings {
		cfg.logger.Debug("graph warning", "warning", w)
	}

	began := time.Now()
	e, err := newEngine(plan)
	if err != nil {
		return nil, err
	}
	frames := plan.Frames()
	out := make([][]float32, plan.Channels)
	for c := range out {
		out[c] = make([]float32, frames)
	}
	sr := float64(plan.SampleRate)
	for f := 0; f < frames; f++ {
		if f%blockFrames == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		e.step(float64(f) / sr)
		dst := e.dest.out
		for c := range out {
			out[c][f] = dst[c]
		}
	}
	buf, err := buffer.New(plan.SampleRate, out)
	if err != nil {
		return nil, err
	}
	cfg.logger.Debug("rendered",
		"frames", frames,
		"channels", plan.Channels,
		"nodes", plan.Graph.Len(),
		"elapsed", time.Since(began))
	return buf, nil
}

// paramState is one parameter's per-render evaluation state.
type paramState struct {
	cursor *automation.Cursor
	static bool
	base   float64
	inputs []*nodeState
}

func (p *paramState) value(t float64) float64 {
	v := p.base
	if !p.static {
		v = p.cursor.Next(t)
	}
	for _, src := range p.inputs {
		if !src.silent {
			v += float64(mono(src.out))
		}
	}
	return v
}

// nodeState holds one node's output for the current frame. Nodes that have
// not run yet this frame still hold the previous frame.
type nodeState struct {
	node     *graph.Node
	channels int
	in       []float32
	out      []float32
	silent   bool
	inputs   []*nodeState
	params   []paramState
	values   []float64
	proc     processor
}

// gather mixes the audio inputs into in and reports whether they are all
// silent.
func (n *nodeState) gather() bool {
	for i := range n.in {
		n.in[i] = 0
	}
	silent := true
	for _, src := range n.inputs {
		if src.silent {
			continue
		}
		silent = false
		mixInto(n.in, src.out)
	}
	return silent
}

type engine struct {
	order   []*nodeState
	latches []*nodeState
	dest    *nodeState
}

func newEngine(plan Plan) (*engine, error) {
	g := plan.Graph
	states := make([]*nodeState, g.Len())
	for i := range states {
		states[i] = &nodeState{node: g.Node(graph.NodeID(i)), silent: true}
	}
	conns := g.Connections()
	for _, c := range conns {
		if c.Audio() {
			states[c.To].inputs = append(states[c.To].inputs, states[c.From])
		}
	}
	inferChannels(states, plan.Channels)

	sr := float64(plan.SampleRate)
	for _, s := range states {
		s.in = make([]float32, s.channels)
		s.out = make([]float32, s.channels)
		for _, p := range s.node.Params() {
			tl := p.Timeline()
			ps := paramState{static: tl.Static(), base: tl.Base()}
			if !ps.static {
				ps.cursor = tl.Cursor()
			}
			for _, c := range conns {
				if !c.Audio() && c.To == s.node.ID() && c.Param == p.Name() {
					ps.inputs = append(ps.inputs, states[c.From])
				}
			}
			s.params = append(s.params, ps)
		}
		s.values = make([]float64, len(s.params))
		proc, err := newProcessor(s.node, s.channels, sr)
		if err != nil {
			return nil, err
		}
		s.proc = proc
	}

	e := &engine{dest: states[g.Destination()]}
	for _, id := range g.Order() {
		s := states[id]
		e.order = append(e.order, s)
		if _, ok := s.proc.(latcher); ok {
			e.latches = append(e.latches, s)
		}
	}
	return e, nil
}

// inferChannels assigns output channel counts. Sources have fixed counts, the
// destination uses the plan's count, and effects take the widest input.
// Counts only grow, so iterating to a fixed point terminates even around
// delay loops.
func inferChannels(states []*nodeState, destChannels int) {
	for _, s := range states {
		switch s.node.Kind() {
		case graph.Destination:
			s.channels = destChannels
		case graph.BufferSource:
			s.channels = s.node.Buffer().NumChannels()
		default:
			s.channels = 1
		}
	}
	for changed := true; changed; {
		changed = false
		for _, s := range states {
			switch s.node.Kind() {
			case graph.Gain, graph.Biquad, graph.Delay:
			default:
				continue
			}
			for _, src := range s.inputs {
				if src.channels > s.channels {
					s.channels = src.channels
					changed = true
				}
			}
		}
	}
}

func (e *engine) step(t float64) {
	for _, s := range e.order {
		inSilent := s.gather()
		if s.proc.quiet(t, inSilent) {
			if !s.silent {
				for i := range s.out {
					s.out[i] = 0
				}
				s.silent = true
			}
			continue
		}
		for i := range s.params {
			s.values[i] = s.params[i].value(t)
		}
		s.proc.render(t, s.in, s.values, s.out)
		s.silent = false
	}
	for _, s := range e.latches {
		inSilent := s.gather()
		s.proc.(latcher).latch(s.in, inSilent)
	}
}
