package render

import (
	"math"

	"github.com/cbegin/audiograph-go/internal/buffer"
	"github.com/cbegin/audiograph-go/internal/graph"
)

// oscillator keeps its phase in cycles [0, 1) measured from the node's own
// start time.
type oscillator struct {
	node       *graph.Node
	sampleRate float64
	running    bool
	phase      float64
}

func (o *oscillator) quiet(t float64, _ bool) bool { return !o.node.Active(t) }

func (o *oscillator) render(t float64, _ []float32, p []float64, out []float32) {
	freq := detuned(p[0], p[1])
	if !o.running {
		// The first active frame lands up to one sample after the start
		// time; begin the waveform at that offset.
		o.running = true
		o.phase = wrap(freq * (t - o.node.Start()))
	}
	out[0] = float32(shape(o.node.Waveform(), o.phase))
	o.phase = wrap(o.phase + freq/o.sampleRate)
}

func wrap(phase float64) float64 {
	if phase >= 0 && phase < 1 {
		return phase
	}
	return phase - math.Floor(phase)
}

// shape evaluates a waveform at phase in cycles. All shapes start at zero
// crossing upwards except square, which starts high.
func shape(w graph.Waveform, phase float64) float64 {
	switch w {
	case graph.Square:
		if phase < 0.5 {
			return 1
		}
		return -1
	case graph.Sawtooth:
		if phase < 0.5 {
			return 2 * phase
		}
		return 2*phase - 2
	case graph.Triangle:
		switch {
		case phase < 0.25:
			return 4 * phase
		case phase < 0.75:
			return 2 - 4*phase
		default:
			return 4*phase - 4
		}
	default:
		return math.Sin(2 * math.Pi * phase)
	}
}

// bufferPlayer reads a sample buffer at a variable rate with linear
// interpolation between frames.
type bufferPlayer struct {
	node    *graph.Node
	buf     *buffer.Buffer
	chans   [][]float32
	ratio   float64 // buffer frames per output frame at playbackRate 1
	bufRate float64
	running bool
	done    bool
	pos     float64
}

func newBufferPlayer(n *graph.Node, sampleRate float64) *bufferPlayer {
	b := n.Buffer()
	return &bufferPlayer{
		node:    n,
		buf:     b,
		chans:   b.Channels(),
		ratio:   float64(b.SampleRate()) / sampleRate,
		bufRate: float64(b.SampleRate()),
	}
}

func (b *bufferPlayer) quiet(t float64, _ bool) bool {
	return b.done || !b.node.Active(t) || b.buf.Frames() == 0
}

func (b *bufferPlayer) render(t float64, _ []float32, p []float64, out []float32) {
	rate := detuned(p[0], p[1])
	frames := float64(b.buf.Frames())
	if !b.running {
		b.running = true
		b.pos = b.node.BufferOffset()*b.bufRate + (t-b.node.Start())*rate*b.bufRate
	}
	if b.node.Loop() {
		if b.pos >= frames || b.pos < 0 {
			b.pos -= math.Floor(b.pos/frames) * frames
		}
	} else if b.pos >= frames || b.pos < 0 {
		b.done = true
		for i := range out {
			out[i] = 0
		}
		return
	}
	lo := int(b.pos)
	if lo >= len(b.chans[0]) {
		lo = len(b.chans[0]) - 1
	}
	frac := float32(b.pos - float64(lo))
	hi := lo + 1
	if hi >= len(b.chans[0]) {
		if b.node.Loop() {
			hi = 0
		} else {
			hi = lo
		}
	}
	for c, ch := range b.chans {
		out[c] = ch[lo] + (ch[hi]-ch[lo])*frac
	}
	b.pos += rate * b.ratio
}
