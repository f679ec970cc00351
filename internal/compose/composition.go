// Package compose describes scenes as data (tempo, bars, voices and their
// hit patterns) and schedules them onto a signal graph ready for offline
// rendering.
package compose

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/cbegin/audiograph-go/internal/graph"
)

// Source kinds.
const (
	SourceOscillator = "oscillator"
	SourceSample     = "sample"
	SourceConstant   = "constant"
)

// LFO targets.
const (
	TargetGain      = "gain"
	TargetFrequency = "frequency"
	TargetDetune    = "detune"
)

// Ramp shapes for automation points.
const (
	RampSet         = "set"
	RampLinear      = "linear"
	RampExponential = "exponential"
)

// MaxDelaySend bounds a voice's delay time in seconds.
const MaxDelaySend = 10.0

const defaultChannels = 2

var (
	ErrInvalidComposition = errors.New("invalid composition")
	ErrUnknownScene       = errors.New("unknown scene")
)

// ValidationError names the first field of a composition that failed
// validation.
type ValidationError struct {
	Scene  string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Scene == "" {
		return fmt.Sprintf("invalid composition: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid composition %q: %s: %s", e.Scene, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidComposition }

// Composition is a complete scene. Durations derive from Tempo and
// BeatsPerBar unless Duration overrides them.
type Composition struct {
	Name string `json:"name"`
	// FileName is the default export name; empty means Name + ".wav".
	FileName    string    `json:"file_name,omitempty"`
	Tempo       float64   `json:"tempo"`
	BeatsPerBar int       `json:"beats_per_bar"`
	Bars        int       `json:"bars"`
	Duration    float64   `json:"duration,omitempty"`
	Tail        float64   `json:"tail,omitempty"`
	Channels    int       `json:"channels,omitempty"`
	Controls    []Control `json:"controls,omitempty"`
	Voices      []Voice   `json:"voices"`
}

// Control is a shared constant-source bus. Voices referencing it by name
// have it summed into their level.
type Control struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	Points []Point `json:"points,omitempty"`
}

// Voice is one instrument line: a source, the hits it plays and the
// processing applied per hit and per voice.
type Voice struct {
	Name   string `json:"name"`
	Source Source `json:"source"`
	Hits   []Hit  `json:"hits"`
	// Bars lists the zero-based bars the voice plays; empty means every bar.
	Bars []int `json:"bars,omitempty"`
	// Length is the default hit length in beats. Zero plays samples to their
	// end and holds other sources for one beat.
	Length   float64   `json:"length,omitempty"`
	Accents  []float64 `json:"accents,omitempty"`
	Envelope *Envelope `json:"envelope,omitempty"`
	Filters  []Filter  `json:"filters,omitempty"`

	// Level is the voice bus gain. Zero means unity unless LevelControl is
	// set, in which case the control is added to it.
	Level        float64    `json:"level,omitempty"`
	LevelControl string     `json:"level_control,omitempty"`
	LFO          *LFO       `json:"lfo,omitempty"`
	Delay        *DelaySend `json:"delay,omitempty"`
	Duck         *Duck      `json:"duck,omitempty"`
}

// Source selects what each hit plays.
type Source struct {
	Kind     string `json:"kind"`
	Waveform string `json:"waveform,omitempty"`
	// Frequency zero means 440 Hz.
	Frequency float64 `json:"frequency,omitempty"`
	Detune    float64 `json:"detune,omitempty"`
	// Sample is the asset path of a sample source.
	Sample string `json:"sample,omitempty"`
	Loop   bool   `json:"loop,omitempty"`
	// Offset is the constant source's value (zero means 1), or the start
	// position in seconds inside a sample.
	Offset float64 `json:"offset,omitempty"`
}

// Hit is one note of a pattern. Beat is a fractional offset inside the bar.
type Hit struct {
	Beat      float64 `json:"beat"`
	Semitones float64 `json:"semitones,omitempty"`
	// Velocity scales the hit; zero means full velocity.
	Velocity float64 `json:"velocity,omitempty"`
	// Length in beats; zero falls back to the voice's length.
	Length float64 `json:"length,omitempty"`
}

// Beats is shorthand for a pattern of plain hits.
func Beats(beats ...float64) []Hit {
	hits := make([]Hit, len(beats))
	for i, b := range beats {
		hits[i].Beat = b
	}
	return hits
}

// Envelope is an ADSR amplitude envelope in seconds. Sustain is a fraction
// of Peak; Peak zero means 1.
type Envelope struct {
	Attack      float64 `json:"attack"`
	Decay       float64 `json:"decay"`
	Sustain     float64 `json:"sustain"`
	Release     float64 `json:"release"`
	Peak        float64 `json:"peak,omitempty"`
	Exponential bool    `json:"exponential,omitempty"`
}

// Filter is a per-hit biquad. Sweep points are relative to the hit start in
// beats and automate the cutoff frequency.
type Filter struct {
	Type      string  `json:"type"`
	Frequency float64 `json:"frequency"`
	// Q zero means the Web Audio default of 1.
	Q     float64 `json:"q,omitempty"`
	Gain  float64 `json:"gain,omitempty"`
	Sweep []Point `json:"sweep,omitempty"`
	LFO   *LFO    `json:"lfo,omitempty"`
}

// Point is one automation step at a beat offset.
type Point struct {
	Beat  float64 `json:"beat"`
	Value float64 `json:"value"`
	// Ramp is how the value is reached: "set" (default), "linear" or
	// "exponential".
	Ramp string `json:"ramp,omitempty"`
}

// LFO is a low-frequency oscillator whose output, scaled by Depth, is added
// to Target. PerHit restarts it with every hit instead of running it for the
// whole render.
type LFO struct {
	Waveform string  `json:"waveform,omitempty"`
	Rate     float64 `json:"rate"`
	Depth    float64 `json:"depth"`
	Target   string  `json:"target,omitempty"`
	PerHit   bool    `json:"per_hit,omitempty"`
}

// DelaySend routes the voice bus through a feedback delay. Dry zero means
// unity.
type DelaySend struct {
	Time     float64 `json:"time"`
	Feedback float64 `json:"feedback"`
	Wet      float64 `json:"wet"`
	Dry      float64 `json:"dry,omitempty"`
}

// Duck lowers the voice by Depth every time the Trigger voice hits.
type Duck struct {
	Trigger string  `json:"trigger"`
	Depth   float64 `json:"depth"`
	Attack  float64 `json:"attack"`
	Release float64 `json:"release"`
}

// BeatDuration is the length of one beat in seconds.
func (c *Composition) BeatDuration() float64 { return 60 / c.Tempo }

// BarDuration is the length of one bar in seconds.
func (c *Composition) BarDuration() float64 {
	return float64(c.BeatsPerBar) * 60 / c.Tempo
}

// TotalDuration is the render length: Duration when set, otherwise the
// bars plus the tail.
func (c *Composition) TotalDuration() float64 {
	if c.Duration > 0 {
		return c.Duration
	}
	return float64(c.Bars)*c.BarDuration() + c.Tail
}

// OutputChannels is the destination width, defaulting to stereo.
func (c *Composition) OutputChannels() int {
	if c.Channels == 0 {
		return defaultChannels
	}
	return c.Channels
}

// ExportName is the default file name for downloads.
func (c *Composition) ExportName() string {
	if c.FileName != "" {
		return c.FileName
	}
	return c.Name + ".wav"
}

// HitTime places a hit on the timeline. The bar start is computed from
// integers per hit so long scenes accumulate no drift.
func (c *Composition) HitTime(bar int, beat float64) float64 {
	beatDur := 60 / c.Tempo
	return float64(bar*c.BeatsPerBar)*beatDur + beat*beatDur
}

// SamplePaths lists the distinct sample assets in voice order.
func (c *Composition) SamplePaths() []string {
	var paths []string
	seen := map[string]bool{}
	for _, v := range c.Voices {
		if v.Source.Kind != SourceSample || seen[v.Source.Sample] {
			continue
		}
		seen[v.Source.Sample] = true
		paths = append(paths, v.Source.Sample)
	}
	return paths
}

// parseWaveform treats an empty name as sine.
func parseWaveform(s string) (graph.Waveform, error) {
	if s == "" {
		return graph.Sine, nil
	}
	return graph.ParseWaveform(s)
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

func nonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Validate reports the first problem in c.
func (c *Composition) Validate() error {
	fail := func(field, format string, args ...any) error {
		return &ValidationError{Scene: c.Name, Field: field, Reason: fmt.Sprintf(format, args...)}
	}
	if strings.TrimSpace(c.Name) == "" {
		return fail("name", "must not be empty")
	}
	if !positive(c.Tempo) {
		return fail("tempo", "%g must be positive", c.Tempo)
	}
	if c.BeatsPerBar < 1 {
		return fail("beats_per_bar", "%d must be at least 1", c.BeatsPerBar)
	}
	if c.Bars < 1 {
		return fail("bars", "%d must be at least 1", c.Bars)
	}
	if !nonNegative(c.Duration) {
		return fail("duration", "%g must be non-negative", c.Duration)
	}
	if !nonNegative(c.Tail) {
		return fail("tail", "%g must be non-negative", c.Tail)
	}
	if ch := c.OutputChannels(); ch < 1 || ch > 32 {
		return fail("channels", "%d out of range", c.Channels)
	}
	if len(c.Voices) == 0 {
		return fail("voices", "scene has no voices")
	}

	controls := map[string]bool{}
	for i, ctl := range c.Controls {
		field := fmt.Sprintf("controls[%d]", i)
		if ctl.Name == "" {
			return fail(field, "name must not be empty")
		}
		if controls[ctl.Name] {
			return fail(field, "duplicate control %q", ctl.Name)
		}
		controls[ctl.Name] = true
		if !finite(ctl.Value) {
			return fail(field, "value must be finite")
		}
		if err := c.validatePoints(field+".points", ctl.Points, fail); err != nil {
			return err
		}
	}

	names := map[string]bool{}
	for _, v := range c.Voices {
		if v.Name == "" {
			continue
		}
		if names[v.Name] {
			return fail("voices", "duplicate voice %q", v.Name)
		}
		names[v.Name] = true
	}

	for i, v := range c.Voices {
		field := fmt.Sprintf("voices[%d]", i)
		if v.Name != "" {
			field = fmt.Sprintf("voices[%s]", v.Name)
		}
		if err := c.validateVoice(field, &v, controls, names, fail); err != nil {
			return err
		}
	}
	return nil
}

type failFunc func(field, format string, args ...any) error

func (c *Composition) validateVoice(field string, v *Voice, controls, names map[string]bool, fail failFunc) error {
	switch v.Source.Kind {
	case SourceOscillator:
		if _, err := parseWaveform(v.Source.Waveform); err != nil {
			return fail(field+".source.waveform", "%v", err)
		}
		if !finite(v.Source.Frequency) {
			return fail(field+".source.frequency", "must be finite")
		}
	case SourceSample:
		if v.Source.Sample == "" {
			return fail(field+".source.sample", "sample path must not be empty")
		}
		if !nonNegative(v.Source.Offset) {
			return fail(field+".source.offset", "%g must be non-negative", v.Source.Offset)
		}
	case SourceConstant:
		if !finite(v.Source.Offset) {
			return fail(field+".source.offset", "must be finite")
		}
	default:
		return fail(field+".source.kind", "unknown source %q", v.Source.Kind)
	}
	if !finite(v.Source.Detune) {
		return fail(field+".source.detune", "must be finite")
	}

	if len(v.Hits) == 0 {
		return fail(field+".hits", "voice has no hits")
	}
	for j, h := range v.Hits {
		hf := fmt.Sprintf("%s.hits[%d]", field, j)
		if !(h.Beat >= 0 && h.Beat < float64(c.BeatsPerBar)) {
			return fail(hf, "beat %g outside the bar of %d beats", h.Beat, c.BeatsPerBar)
		}
		if !finite(h.Semitones) {
			return fail(hf, "semitones must be finite")
		}
		if !nonNegative(h.Velocity) {
			return fail(hf, "velocity %g must be non-negative", h.Velocity)
		}
		if !nonNegative(h.Length) {
			return fail(hf, "length %g must be non-negative", h.Length)
		}
	}
	for _, b := range v.Bars {
		if b < 0 || b >= c.Bars {
			return fail(field+".bars", "bar %d outside 0..%d", b, c.Bars-1)
		}
	}
	if !nonNegative(v.Length) {
		return fail(field+".length", "%g must be non-negative", v.Length)
	}
	for _, a := range v.Accents {
		if !nonNegative(a) {
			return fail(field+".accents", "accent %g must be non-negative", a)
		}
	}
	if e := v.Envelope; e != nil {
		if !nonNegative(e.Attack) || !nonNegative(e.Decay) || !nonNegative(e.Release) {
			return fail(field+".envelope", "times must be non-negative")
		}
		if !(e.Sustain >= 0 && e.Sustain <= 1) {
			return fail(field+".envelope.sustain", "%g outside [0, 1]", e.Sustain)
		}
		if !nonNegative(e.Peak) {
			return fail(field+".envelope.peak", "%g must be non-negative", e.Peak)
		}
	}
	for j, f := range v.Filters {
		ff := fmt.Sprintf("%s.filters[%d]", field, j)
		if _, err := graph.ParseFilterType(f.Type); err != nil {
			return fail(ff+".type", "%v", err)
		}
		if !nonNegative(f.Frequency) || !finite(f.Q) || !finite(f.Gain) {
			return fail(ff, "frequency, q and gain must be finite")
		}
		if err := c.validatePoints(ff+".sweep", f.Sweep, fail); err != nil {
			return err
		}
		if err := validateLFO(ff+".lfo", f.LFO, fail); err != nil {
			return err
		}
	}

	if !nonNegative(v.Level) {
		return fail(field+".level", "%g must be non-negative", v.Level)
	}
	if v.LevelControl != "" && !controls[v.LevelControl] {
		return fail(field+".level_control", "unknown control %q", v.LevelControl)
	}
	if err := validateLFO(field+".lfo", v.LFO, fail); err != nil {
		return err
	}
	if l := v.LFO; l != nil {
		switch l.Target {
		case TargetGain:
		case TargetFrequency:
			if v.Source.Kind != SourceOscillator {
				return fail(field+".lfo.target", "frequency vibrato needs an oscillator source")
			}
		case TargetDetune:
			if v.Source.Kind == SourceConstant {
				return fail(field+".lfo.target", "constant sources have no detune")
			}
		default:
			return fail(field+".lfo.target", "unknown target %q", l.Target)
		}
	}
	if d := v.Delay; d != nil {
		if !positive(d.Time) || d.Time > MaxDelaySend {
			return fail(field+".delay.time", "%g outside (0, %g]", d.Time, MaxDelaySend)
		}
		if !(d.Feedback >= 0 && d.Feedback < 1) {
			return fail(field+".delay.feedback", "%g outside [0, 1)", d.Feedback)
		}
		if !nonNegative(d.Wet) || !nonNegative(d.Dry) {
			return fail(field+".delay", "wet and dry must be non-negative")
		}
	}
	if d := v.Duck; d != nil {
		if d.Trigger == v.Name || !names[d.Trigger] {
			return fail(field+".duck.trigger", "unknown trigger voice %q", d.Trigger)
		}
		if !(d.Depth >= 0 && d.Depth <= 1) {
			return fail(field+".duck.depth", "%g outside [0, 1]", d.Depth)
		}
		if !nonNegative(d.Attack) || !positive(d.Release) {
			return fail(field+".duck", "attack must be non-negative and release positive")
		}
	}
	return nil
}

func (c *Composition) validatePoints(field string, points []Point, fail failFunc) error {
	for k, p := range points {
		if !nonNegative(p.Beat) || !finite(p.Value) {
			return fail(fmt.Sprintf("%s[%d]", field, k), "beat must be non-negative and value finite")
		}
		switch p.Ramp {
		case "", RampSet, RampLinear:
		case RampExponential:
			if p.Value <= 0 {
				return fail(fmt.Sprintf("%s[%d]", field, k), "exponential target %g must be positive", p.Value)
			}
		default:
			return fail(fmt.Sprintf("%s[%d]", field, k), "unknown ramp %q", p.Ramp)
		}
	}
	return nil
}

func validateLFO(field string, l *LFO, fail failFunc) error {
	if l == nil {
		return nil
	}
	if _, err := parseWaveform(l.Waveform); err != nil {
		return fail(field+".waveform", "%v", err)
	}
	if !positive(l.Rate) {
		return fail(field+".rate", "%g must be positive", l.Rate)
	}
	if !finite(l.Depth) {
		return fail(field+".depth", "must be finite")
	}
	return nil
}
