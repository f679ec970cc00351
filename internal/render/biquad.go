package render

import (
	"math"

	"github.com/cbegin/audiograph-go/internal/graph"
)

// denormal is the magnitude below which a silent filter's history is
// flushed to zero.
const denormal = 1e-15

type coeffs struct {
	b0, b1, b2 float64
	a1, a2     float64
}

// biquadState is the Direct Form I history of one channel.
type biquadState struct {
	x1, x2 float64
	y1, y2 float64
}

func (s *biquadState) process(c *coeffs, in float64) float64 {
	out := c.b0*in + c.b1*s.x1 + c.b2*s.x2 - c.a1*s.y1 - c.a2*s.y2
	s.x2 = s.x1
	s.x1 = in
	s.y2 = s.y1
	s.y1 = out
	return out
}

func (s *biquadState) idle() bool {
	return math.Abs(s.x1) < denormal && math.Abs(s.x2) < denormal &&
		math.Abs(s.y1) < denormal && math.Abs(s.y2) < denormal
}

// biquad filters every channel with shared coefficients that are recomputed
// whenever a parameter changes.
type biquad struct {
	typ        graph.FilterType
	sampleRate float64
	state      []biquadState
	c          coeffs
	last       [4]float64
	valid      bool
}

func newBiquad(typ graph.FilterType, channels int, sampleRate float64) *biquad {
	return &biquad{typ: typ, sampleRate: sampleRate, state: make([]biquadState, channels)}
}

func (b *biquad) quiet(_ float64, inSilent bool) bool {
	if !inSilent {
		return false
	}
	for i := range b.state {
		if !b.state[i].idle() {
			return false
		}
	}
	for i := range b.state {
		b.state[i] = biquadState{}
	}
	return true
}

func (b *biquad) render(_ float64, in []float32, p []float64, out []float32) {
	params := [4]float64{p[0], p[1], p[2], p[3]}
	if !b.valid || params != b.last {
		b.c = biquadCoeffs(b.typ, detuned(p[0], p[1]), p[2], p[3], b.sampleRate)
		b.last = params
		b.valid = true
	}
	for i, v := range in {
		out[i] = float32(b.state[i].process(&b.c, float64(v)))
	}
}

// biquadCoeffs follows the Audio EQ Cookbook as used by Web Audio's
// BiquadFilterNode: lowpass and highpass read Q in dB, the shelves use a
// fixed slope of 1 and ignore Q.
func biquadCoeffs(typ graph.FilterType, freq, q, gainDB, sampleRate float64) coeffs {
	nyquist := sampleRate / 2
	f := freq / nyquist
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	A := math.Pow(10, gainDB/40)
	pass := coeffs{b0: 1}
	mute := coeffs{}
	if f == 0 || f == 1 {
		switch {
		case typ == graph.Lowpass && f == 0, typ == graph.Highpass && f == 1, typ == graph.Bandpass:
			return mute
		case typ == graph.Lowshelf && f == 1, typ == graph.Highshelf && f == 0:
			return coeffs{b0: A * A}
		default:
			return pass
		}
	}

	w0 := math.Pi * f
	cosw := math.Cos(w0)
	sinw := math.Sin(w0)
	var b0, b1, b2, a0, a1, a2 float64
	switch typ {
	case graph.Lowpass, graph.Highpass:
		alpha := sinw / (2 * math.Pow(10, q/20))
		a0, a1, a2 = 1+alpha, -2*cosw, 1-alpha
		if typ == graph.Lowpass {
			b0, b1, b2 = (1-cosw)/2, 1-cosw, (1-cosw)/2
		} else {
			b0, b1, b2 = (1+cosw)/2, -(1 + cosw), (1+cosw)/2
		}
	case graph.Bandpass, graph.Notch, graph.Allpass, graph.Peaking:
		if q <= 0 {
			if typ == graph.Peaking {
				return coeffs{b0: A * A}
			}
			switch typ {
			case graph.Bandpass:
				return pass
			case graph.Notch:
				return mute
			}
			return coeffs{b0: -1}
		}
		alpha := sinw / (2 * q)
		a0, a1, a2 = 1+alpha, -2*cosw, 1-alpha
		switch typ {
		case graph.Bandpass:
			b0, b1, b2 = alpha, 0, -alpha
		case graph.Notch:
			b0, b1, b2 = 1, -2*cosw, 1
		case graph.Allpass:
			b0, b1, b2 = 1-alpha, -2*cosw, 1+alpha
		default:
			b0, b1, b2 = 1+alpha*A, -2*cosw, 1-alpha*A
			a0, a2 = 1+alpha/A, 1-alpha/A
		}
	case graph.Lowshelf, graph.Highshelf:
		alpha := sinw / 2 * math.Sqrt2
		k := 2 * math.Sqrt(A) * alpha
		if typ == graph.Lowshelf {
			b0 = A * ((A + 1) - (A-1)*cosw + k)
			b1 = 2 * A * ((A - 1) - (A+1)*cosw)
			b2 = A * ((A + 1) - (A-1)*cosw - k)
			a0 = (A + 1) + (A-1)*cosw + k
			a1 = -2 * ((A - 1) + (A+1)*cosw)
			a2 = (A + 1) + (A-1)*cosw - k
		} else {
			b0 = A * ((A + 1) + (A-1)*cosw + k)
			b1 = -2 * A * ((A - 1) + (A+1)*cosw)
			b2 = A * ((A + 1) + (A-1)*cosw - k)
			a0 = (A + 1) - (A-1)*cosw + k
			a1 = 2 * ((A - 1) - (A+1)*cosw)
			a2 = (A + 1) - (A-1)*cosw - k
		}
	default:
		return pass
	}
	return coeffs{b0: b0 / a0, b1: b1 / a0, b2: b2 / a0, a1: a1 / a0, a2: a2 / a0}
}
