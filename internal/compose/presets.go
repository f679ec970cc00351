package compose

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
)

// SamplePath is the asset path of a named sample.
func SamplePath(name string) string {
	return "/static/samples/" + name + ".wav"
}

// presetSeed feeds the scenes that pick random pitches.
const presetSeed = 0x5eed

var presets = map[string]func() Composition{
	"beat":            beat,
	"demo":            demo,
	"oscillator":      oscillatorSweep,
	"params-demo":     paramsDemo,
	"stress-test":     stressTest,
	"constant-source": constantSource,
	"beeps":           beeps,
	"drums":           drums,
	"groove":          groove,
}

// Presets lists the built-in scene names in sorted order.
func Presets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Preset returns a fresh copy of a built-in scene.
func Preset(name string) (Composition, error) {
	fn, ok := presets[name]
	if !ok {
		return Composition{}, fmt.Errorf("%w: %q", ErrUnknownScene, name)
	}
	return fn(), nil
}

func tone(waveform string, freq float64) Source {
	return Source{Kind: SourceOscillator, Waveform: waveform, Frequency: freq}
}

func sample(name string) Source {
	return Source{Kind: SourceSample, Sample: SamplePath(name)}
}

// One second of a 110 Hz sine.
func beat() Composition {
	return Composition{
		Name: "beat", Tempo: 240, BeatsPerBar: 4, Bars: 1,
		Voices: []Voice{{Name: "tone", Source: tone("sine", 110), Hits: Beats(0), Length: 4}},
	}
}

// Five seconds of concert A.
func demo() Composition {
	return Composition{
		Name: "demo", Tempo: 60, BeatsPerBar: 5, Bars: 1,
		Voices: []Voice{{Name: "tone", Source: tone("sine", 440), Hits: Beats(0), Length: 5}},
	}
}

// A triangle through a lowpass whose cutoff sweeps up five octaves and back
// in every half-second note.
func oscillatorSweep() Composition {
	return Composition{
		Name: "oscillator", Tempo: 240, BeatsPerBar: 4, Bars: 2,
		Voices: []Voice{{
			Name:   "triangle",
			Source: tone("triangle", 110),
			Hits:   Beats(0),
			Length: 2,
			Filters: []Filter{{
				Type:      "lowpass",
				Frequency: 110,
				Sweep: []Point{
					{Beat: 0, Value: 110},
					{Beat: 1, Value: 3520, Ramp: RampExponential},
					{Beat: 2, Value: 110, Ramp: RampExponential},
				},
			}},
		}},
	}
}

// A square wave whose lowpass cutoff is wobbled by a 2.5 Hz sine.
func paramsDemo() Composition {
	return Composition{
		Name: "params-demo", Tempo: 120, BeatsPerBar: 4, Bars: 1,
		Voices: []Voice{{
			Name:   "square",
			Source: tone("square", 110),
			Hits:   Beats(0),
			Length: 4,
			Filters: []Filter{{
				Type:      "lowpass",
				Frequency: 100,
				LFO:       &LFO{Waveform: "sine", Rate: 2.5, Depth: 100},
			}},
		}},
	}
}

// Thirty-two staggered voices, each with vibrato, a lowpass and a feedback
// delay.
func stressTest() Composition {
	rng := rand.New(rand.NewPCG(presetSeed, 1))
	c := Composition{Name: "stress-test", Tempo: 150, BeatsPerBar: 16, Bars: 1, Duration: 6}
	for i := range 32 {
		n := float64(i + 1)
		c.Voices = append(c.Voices, Voice{
			Name:    fmt.Sprintf("voice%02d", i),
			Source:  tone("triangle", (110+rng.Float64()*220)*n),
			Hits:    []Hit{{Beat: float64(i) * 0.25}},
			Length:  0.5,
			Level:   0.25,
			LFO:     &LFO{Waveform: "sine", Rate: 10, Depth: 110 * n, Target: TargetFrequency, PerHit: true},
			Filters: []Filter{{Type: "lowpass", Frequency: 750, Q: 1}},
			Delay:   &DelaySend{Time: 0.5, Feedback: 0.75, Wet: 0.75, Dry: 1},
		})
	}
	return c
}

// A C major triad whose three voices share one constant-source volume.
func constantSource() Composition {
	c := Composition{
		Name: "constant-source", Tempo: 120, BeatsPerBar: 4, Bars: 1,
		Controls: []Control{{Name: "volume", Value: 0.75}},
	}
	for _, f := range []float64{261.625, 329.628, 391.995} {
		c.Voices = append(c.Voices, Voice{
			Name:         fmt.Sprintf("%.0f", f),
			Source:       tone("sine", f),
			Hits:         Beats(0),
			Length:       4,
			LevelControl: "volume",
		})
	}
	return c
}

// Ten short sine beeps, one every half second, at random pitches.
func beeps() Composition {
	rng := rand.New(rand.NewPCG(presetSeed, 2))
	hits := make([]Hit, 10)
	for i := range hits {
		// Semitones relative to 220 Hz; pitches span one octave.
		hits[i] = Hit{Beat: float64(i), Semitones: 12 * math.Log2(1+rng.Float64())}
	}
	return Composition{
		Name: "beeps", Tempo: 120, BeatsPerBar: 10, Bars: 1,
		Voices: []Voice{{Name: "beep", Source: tone("sine", 220), Hits: hits, Length: 0.2}},
	}
}

// A two-bar sample beat: kick, highpassed snare and accented hi-hats.
func drums() Composition {
	return Composition{
		Name: "drums", Tempo: 120, BeatsPerBar: 4, Bars: 2,
		Voices: []Voice{
			{Name: "kick", Source: sample("kick"), Hits: Beats(0, 2)},
			{
				Name: "snare", Source: sample("snare"), Hits: Beats(1, 3),
				Filters: []Filter{{Type: "highpass", Frequency: 180}},
			},
			{
				Name: "hihat", Source: sample("hihat"), Hits: Beats(0, 0.5, 1, 1.5, 2, 2.5, 3, 3.5),
				Level: 0.5, Accents: []float64{1, 0.6},
				Filters: []Filter{{Type: "highpass", Frequency: 6000}},
			},
		},
	}
}

// Four bars of drums with a ducked sample bass and an enveloped lead that
// enters in the second half.
func groove() Composition {
	c := drums()
	c.Name = "groove"
	c.Tempo = 100
	c.Bars = 4
	c.Tail = 1.5
	c.Voices[0].Hits = Beats(0, 1.5, 2)
	c.Voices = append(c.Voices,
		Voice{
			Name:   "bass",
			Source: sample("bass"),
			Hits: []Hit{
				{Beat: 0}, {Beat: 1, Semitones: 0}, {Beat: 1.5, Semitones: 3},
				{Beat: 2, Semitones: 5}, {Beat: 3, Semitones: 7, Velocity: 0.8},
			},
			Length:   0.5,
			Level:    0.8,
			Envelope: &Envelope{Attack: 0.005, Decay: 0.1, Sustain: 0.7, Release: 0.05},
			Duck:     &Duck{Trigger: "kick", Depth: 0.6, Attack: 0.01, Release: 0.2},
		},
		Voice{
			Name:   "lead",
			Source: tone("sawtooth", 440),
			Bars:   []int{2, 3},
			Hits: []Hit{
				{Beat: 0, Length: 1}, {Beat: 1, Semitones: 3}, {Beat: 1.5, Semitones: 5},
				{Beat: 2, Semitones: 7, Length: 1.5}, {Beat: 3.5, Semitones: 10},
			},
			Length:   0.5,
			Level:    0.3,
			Envelope: &Envelope{Attack: 0.01, Decay: 0.2, Sustain: 0.6, Release: 0.3, Exponential: true},
			Filters: []Filter{{
				Type:      "lowpass",
				Frequency: 800,
				Q:         4,
				Sweep:     []Point{{Beat: 0, Value: 800}, {Beat: 0.5, Value: 3200, Ramp: RampExponential}},
			}},
			LFO:   &LFO{Waveform: "sine", Rate: 5, Depth: 6, Target: TargetDetune},
			Delay: &DelaySend{Time: 0.45, Feedback: 0.35, Wet: 0.3},
		},
	)
	return c
}
