package compose

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/cbegin/audiograph-go/internal/automation"
	"github.com/cbegin/audiograph-go/internal/buffer"
	"github.com/cbegin/audiograph-go/internal/graph"
	"github.com/cbegin/audiograph-go/internal/render"
)

// loadLimit bounds concurrent sample loads during scheduling.
const loadLimit = 8

// envFloor replaces zero for exponential envelope segments.
const envFloor = 1e-4

var ErrNoLoader = errors.New("scene uses samples but no loader was given")

// Loader supplies decoded sample buffers by asset path.
type Loader interface {
	Load(ctx context.Context, path string) (*buffer.Buffer, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, path string) (*buffer.Buffer, error)

func (f LoaderFunc) Load(ctx context.Context, path string) (*buffer.Buffer, error) {
	return f(ctx, path)
}

// HitTime is one scheduled hit. Stop is where the hit falls silent,
// including envelope release.
type HitTime struct {
	Voice string
	Index int
	Bar   int
	Beat  float64
	Start float64
	Stop  float64
}

// Scheduled is a composition laid out on a frozen graph.
type Scheduled struct {
	Composition Composition
	Graph       *graph.Graph
	Plan        render.Plan
	Report      graph.Report
	Hits        []HitTime
}

// Schedule validates comp, loads its samples, builds the signal graph and
// returns it frozen together with the render plan.
func Schedule(ctx context.Context, comp Composition, sampleRate int, loader Loader) (*Scheduled, error) {
	if err := comp.Validate(); err != nil {
		return nil, err
	}
	bufs, err := loadSamples(ctx, comp.SamplePaths(), loader)
	if err != nil {
		return nil, err
	}

	b := &builder{
		comp:     &comp,
		g:        graph.New(),
		bufs:     bufs,
		controls: map[string]graph.NodeID{},
		starts:   map[string][]float64{},
	}
	if err := b.build(); err != nil {
		return nil, fmt.Errorf("schedule %s: %w", comp.Name, err)
	}
	plan, rep, err := render.NewPlan(b.g, comp.TotalDuration(), comp.OutputChannels(), sampleRate)
	if err != nil {
		return nil, fmt.Errorf("schedule %s: %w", comp.Name, err)
	}
	return &Scheduled{Composition: comp, Graph: b.g, Plan: plan, Report: rep, Hits: b.table}, nil
}

func loadSamples(ctx context.Context, paths []string, loader Loader) (map[string]*buffer.Buffer, error) {
	out := make(map[string]*buffer.Buffer, len(paths))
	if len(paths) == 0 {
		return out, nil
	}
	if loader == nil {
		return nil, ErrNoLoader
	}
	loaded := make([]*buffer.Buffer, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(loadLimit)
	for i, p := range paths {
		g.Go(func() error {
			buf, err := loader.Load(ctx, p)
			if err != nil {
				return err
			}
			loaded[i] = buf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, p := range paths {
		out[p] = loaded[i]
	}
	return out, nil
}

type builder struct {
	comp     *Composition
	g        *graph.Graph
	bufs     map[string]*buffer.Buffer
	controls map[string]graph.NodeID
	// starts holds every voice's hit start times, for ducking.
	starts map[string][]float64
	table  []HitTime
}

// hit is a placed hit before nodes exist for it.
type hit struct {
	HitTime
	hit Hit
	// gate is where the release begins; end is where the source stops.
	gate, end float64
	natural   bool
}

func (b *builder) build() error {
	placed := make([][]hit, len(b.comp.Voices))
	for i := range b.comp.Voices {
		hits := b.place(i)
		placed[i] = hits
		name := b.voiceName(i)
		for _, h := range hits {
			b.starts[name] = append(b.starts[name], h.Start)
			b.table = append(b.table, h.HitTime)
		}
	}
	for _, ctl := range b.comp.Controls {
		if err := b.control(ctl); err != nil {
			return err
		}
	}
	for i := range b.comp.Voices {
		if err := b.voice(i, placed[i]); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) voiceName(i int) string {
	if n := b.comp.Voices[i].Name; n != "" {
		return n
	}
	return fmt.Sprintf("voice%d", i)
}

func (b *builder) bars(v *Voice) []int {
	if len(v.Bars) > 0 {
		return v.Bars
	}
	all := make([]int, b.comp.Bars)
	for i := range all {
		all[i] = i
	}
	return all
}

// place computes the timing of every hit of voice i.
func (b *builder) place(i int) []hit {
	v := &b.comp.Voices[i]
	beat := b.comp.BeatDuration()
	var release float64
	if v.Envelope != nil {
		release = v.Envelope.Release
	}
	var out []hit
	for _, bar := range b.bars(v) {
		for _, h := range v.Hits {
			start := b.comp.HitTime(bar, h.Beat)
			ph := hit{
				HitTime: HitTime{Voice: b.voiceName(i), Index: len(out), Bar: bar, Beat: h.Beat, Start: start},
				hit:     h,
			}
			length := h.Length
			if length == 0 {
				length = v.Length
			}
			switch {
			case length > 0:
				ph.gate = start + length*beat
				ph.end = ph.gate + release
			case v.Source.Kind == SourceSample:
				buf := b.bufs[v.Source.Sample]
				if v.Source.Loop {
					ph.gate = math.Max(b.comp.TotalDuration(), start+beat)
				} else {
					rate := math.Exp2(h.Semitones/12) * math.Exp2(v.Source.Detune/1200)
					ph.gate = start + math.Max(buf.Duration()-v.Source.Offset, 0)/rate
				}
				ph.end = ph.gate + release
				ph.natural = !v.Source.Loop && release == 0
			default:
				ph.gate = start + beat
				ph.end = ph.gate + release
			}
			ph.Stop = ph.end
			out = append(out, ph)
		}
	}
	return out
}

func (b *builder) control(ctl Control) error {
	id, err := b.g.ConstantSource(graph.Options{Values: map[string]float64{graph.ParamOffset: ctl.Value}})
	if err != nil {
		return err
	}
	if err := b.points(id, graph.ParamOffset, 0, ctl.Points); err != nil {
		return fmt.Errorf("control %s: %w", ctl.Name, err)
	}
	b.controls[ctl.Name] = id
	return b.g.Start(id, 0)
}

// points schedules beat-relative automation onto a parameter.
func (b *builder) points(id graph.NodeID, param string, origin float64, pts []Point) error {
	if len(pts) == 0 {
		return nil
	}
	p, err := b.g.Param(id, param)
	if err != nil {
		return err
	}
	beat := b.comp.BeatDuration()
	for _, pt := range pts {
		t := origin + pt.Beat*beat
		var ev automation.Event
		switch pt.Ramp {
		case RampLinear:
			ev = automation.Linear(t, pt.Value)
		case RampExponential:
			ev = automation.Exponential(t, pt.Value)
		default:
			ev = automation.Set(t, pt.Value)
		}
		if err := p.Schedule(ev); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) voice(i int, hits []hit) error {
	v := &b.comp.Voices[i]
	name := b.voiceName(i)

	level := v.Level
	if level == 0 && v.LevelControl == "" {
		level = 1
	}
	bus, err := b.g.Gain(graph.Options{Values: map[string]float64{graph.ParamGain: level}})
	if err != nil {
		return err
	}
	if v.LevelControl != "" {
		if err := b.g.ConnectParam(b.controls[v.LevelControl], bus, graph.ParamGain); err != nil {
			return err
		}
	}

	out := bus
	if v.Duck != nil {
		duck, err := b.g.Gain(graph.Options{})
		if err != nil {
			return err
		}
		if err := b.duck(duck, v.Duck); err != nil {
			return fmt.Errorf("voice %s: %w", name, err)
		}
		if err := b.g.Connect(bus, duck); err != nil {
			return err
		}
		out = duck
	}
	if err := b.send(out, v.Delay); err != nil {
		return err
	}

	var vibrato graph.NodeID = -1
	if v.LFO != nil && !v.LFO.PerHit {
		depth, err := b.lfo(v.LFO, 0, math.Inf(1))
		if err != nil {
			return err
		}
		if v.LFO.Target == TargetGain {
			if err := b.g.ConnectParam(depth, bus, graph.ParamGain); err != nil {
				return err
			}
		} else {
			vibrato = depth
		}
	}

	for _, h := range hits {
		// An offset past the end of the sample leaves nothing to play.
		if h.end <= h.Start {
			continue
		}
		if err := b.hit(v, h, bus, vibrato); err != nil {
			return fmt.Errorf("voice %s hit %d: %w", name, h.Index, err)
		}
	}
	return nil
}

// send routes out to the destination, through a feedback delay when d is
// set.
func (b *builder) send(out graph.NodeID, d *DelaySend) error {
	dest := b.g.Destination()
	if d == nil {
		return b.g.Connect(out, dest)
	}
	dry := d.Dry
	if dry == 0 {
		dry = 1
	}
	dryID, err := b.g.Gain(graph.Options{Values: map[string]float64{graph.ParamGain: dry}})
	if err != nil {
		return err
	}
	delay, err := b.g.Delay(graph.Options{
		MaxDelayTime: math.Max(1, d.Time),
		Values:       map[string]float64{graph.ParamDelayTime: d.Time},
	})
	if err != nil {
		return err
	}
	fb, err := b.g.Gain(graph.Options{Values: map[string]float64{graph.ParamGain: d.Feedback}})
	if err != nil {
		return err
	}
	wet, err := b.g.Gain(graph.Options{Values: map[string]float64{graph.ParamGain: d.Wet}})
	if err != nil {
		return err
	}
	for _, c := range [][2]graph.NodeID{
		{out, dryID}, {dryID, dest},
		{out, delay}, {delay, fb}, {fb, delay},
		{delay, wet}, {wet, dest},
	} {
		if err := b.g.Connect(c[0], c[1]); err != nil {
			return err
		}
	}
	return nil
}

// lfo creates an oscillator feeding a depth gain and returns the gain.
func (b *builder) lfo(l *LFO, start, stop float64) (graph.NodeID, error) {
	wave, err := parseWaveform(l.Waveform)
	if err != nil {
		return 0, err
	}
	osc, err := b.g.Oscillator(graph.Options{Waveform: wave, Values: map[string]float64{graph.ParamFrequency: l.Rate}})
	if err != nil {
		return 0, err
	}
	if err := b.g.Start(osc, start); err != nil {
		return 0, err
	}
	if !math.IsInf(stop, 1) {
		if err := b.g.Stop(osc, stop); err != nil {
			return 0, err
		}
	}
	depth, err := b.g.Gain(graph.Options{Values: map[string]float64{graph.ParamGain: l.Depth}})
	if err != nil {
		return 0, err
	}
	return depth, b.g.Connect(osc, depth)
}

func (b *builder) source(v *Voice, h hit) (graph.NodeID, error) {
	switch v.Source.Kind {
	case SourceOscillator:
		wave, err := parseWaveform(v.Source.Waveform)
		if err != nil {
			return 0, err
		}
		freq := v.Source.Frequency
		if freq == 0 {
			freq = 440
		}
		return b.g.Oscillator(graph.Options{Waveform: wave, Values: map[string]float64{
			graph.ParamFrequency: freq * math.Exp2(h.hit.Semitones/12),
			graph.ParamDetune:    v.Source.Detune,
		}})
	case SourceSample:
		return b.g.BufferSource(graph.Options{
			Buffer:       b.bufs[v.Source.Sample],
			Loop:         v.Source.Loop,
			BufferOffset: v.Source.Offset,
			Values: map[string]float64{
				graph.ParamPlaybackRate: math.Exp2(h.hit.Semitones / 12),
				graph.ParamDetune:       v.Source.Detune,
			},
		})
	default:
		offset := v.Source.Offset
		if offset == 0 {
			offset = 1
		}
		return b.g.ConstantSource(graph.Options{Values: map[string]float64{graph.ParamOffset: offset}})
	}
}

// hit builds source -> hit gain -> filters -> bus for one hit.
func (b *builder) hit(v *Voice, h hit, bus, vibrato graph.NodeID) error {
	src, err := b.source(v, h)
	if err != nil {
		return err
	}
	if err := b.g.Start(src, h.Start); err != nil {
		return err
	}
	if !h.natural {
		if err := b.g.Stop(src, h.end); err != nil {
			return err
		}
	}

	target := graph.ParamFrequency
	if v.LFO != nil && v.LFO.Target == TargetDetune {
		target = graph.ParamDetune
	}
	if vibrato >= 0 {
		if err := b.g.ConnectParam(vibrato, src, target); err != nil {
			return err
		}
	}

	amp := 1.0
	if h.hit.Velocity > 0 {
		amp = h.hit.Velocity
	}
	if len(v.Accents) > 0 {
		amp *= v.Accents[h.Index%len(v.Accents)]
	}
	gain, err := b.g.Gain(graph.Options{Values: map[string]float64{graph.ParamGain: amp}})
	if err != nil {
		return err
	}
	if v.Envelope != nil {
		p, err := b.g.Param(gain, graph.ParamGain)
		if err != nil {
			return err
		}
		if err := schedule(p, envelope(v.Envelope, amp, h.Start, h.gate)); err != nil {
			return err
		}
	}
	if v.LFO != nil && v.LFO.PerHit {
		depth, err := b.lfo(v.LFO, h.Start, h.end)
		if err != nil {
			return err
		}
		if v.LFO.Target == TargetGain {
			err = b.g.ConnectParam(depth, gain, graph.ParamGain)
		} else {
			err = b.g.ConnectParam(depth, src, target)
		}
		if err != nil {
			return err
		}
	}
	if err := b.g.Connect(src, gain); err != nil {
		return err
	}

	prev := gain
	for _, f := range v.Filters {
		id, err := b.filter(f, h)
		if err != nil {
			return err
		}
		if err := b.g.Connect(prev, id); err != nil {
			return err
		}
		prev = id
	}
	return b.g.Connect(prev, bus)
}

func (b *builder) filter(f Filter, h hit) (graph.NodeID, error) {
	typ, err := graph.ParseFilterType(f.Type)
	if err != nil {
		return 0, err
	}
	q := f.Q
	if q == 0 {
		q = 1
	}
	id, err := b.g.Biquad(graph.Options{FilterType: typ, Values: map[string]float64{
		graph.ParamFrequency: f.Frequency,
		graph.ParamQ:         q,
		graph.ParamGain:      f.Gain,
	}})
	if err != nil {
		return 0, err
	}
	if err := b.points(id, graph.ParamFrequency, h.Start, f.Sweep); err != nil {
		return 0, err
	}
	if f.LFO != nil {
		depth, err := b.lfo(f.LFO, h.Start, h.end)
		if err != nil {
			return 0, err
		}
		if err := b.g.ConnectParam(depth, id, graph.ParamFrequency); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// duck schedules a dip to 1-depth at each trigger hit.
func (b *builder) duck(id graph.NodeID, d *Duck) error {
	low := 1 - d.Depth
	// Trigger hits are placed in pattern order, which need not be time order.
	starts := append([]float64(nil), b.starts[d.Trigger]...)
	sort.Float64s(starts)
	var events []automation.Event
	for _, t := range starts {
		events = cut(events, 1, t)
		if d.Attack > 0 {
			events = append(events, automation.Linear(t+d.Attack, low))
		} else {
			events = append(events, automation.Set(t, low))
		}
		events = append(events, automation.Linear(t+d.Attack+d.Release, 1))
	}
	p, err := b.g.Param(id, graph.ParamGain)
	if err != nil {
		return err
	}
	return schedule(p, events)
}

// envelope builds the ADSR curve of one hit scaled by amp, releasing at
// gate.
func envelope(e *Envelope, amp, start, gate float64) []automation.Event {
	peak := e.Peak
	if peak == 0 {
		peak = 1
	}
	peak *= amp
	sustain := peak * e.Sustain
	exp := e.Exponential && peak > envFloor
	floor := func(v float64) float64 {
		if exp {
			return math.Max(v, envFloor)
		}
		return v
	}
	ramp := func(t, v float64) automation.Event {
		if exp {
			return automation.Exponential(t, floor(v))
		}
		return automation.Linear(t, v)
	}

	var events []automation.Event
	if e.Attack > 0 {
		events = append(events, automation.Set(start, floor(0)), ramp(start+e.Attack, peak))
	} else {
		events = append(events, automation.Set(start, peak))
	}
	if e.Decay > 0 {
		events = append(events, ramp(start+e.Attack+e.Decay, sustain))
	} else {
		events = append(events, automation.Set(start+e.Attack, floor(sustain)))
	}

	events = cut(events, 0, gate)
	if e.Release > 0 {
		events = append(events, ramp(gate+e.Release, 0))
	}
	return append(events, automation.Set(gate+e.Release, 0))
}

// cut drops events after t and ends the list with a point at t on the
// uncut curve.
func cut(events []automation.Event, base, t float64) []automation.Event {
	v := automation.Evaluate(events, base, t)
	out := make([]automation.Event, 0, len(events)+1)
	var next *automation.Event
	for i := range events {
		if events[i].Time < t {
			out = append(out, events[i])
			continue
		}
		next = &events[i]
		break
	}
	switch {
	case next != nil && next.Kind == automation.LinearRamp:
		return append(out, automation.Linear(t, v))
	case next != nil && next.Kind == automation.ExponentialRamp && v > 0:
		return append(out, automation.Exponential(t, v))
	default:
		return append(out, automation.Set(t, v))
	}
}

func schedule(p *automation.Param, events []automation.Event) error {
	for _, ev := range events {
		if err := p.Schedule(ev); err != nil {
			return err
		}
	}
	return nil
}
