package render

import (
	"fmt"
	"math"

	"github.com/cbegin/audiograph-go/internal/graph"
)

// processor computes one node's frame. Parameter values arrive in the order
// of graph.Node.Params.
type processor interface {
	// quiet reports whether the frame is silent, before parameters are
	// evaluated.
	quiet(t float64, inSilent bool) bool
	render(t float64, in []float32, params []float64, out []float32)
}

// latcher is implemented by processors that consume their input after every
// node has produced the current frame.
type latcher interface {
	latch(in []float32, silent bool)
}

func newProcessor(n *graph.Node, channels int, sampleRate float64) (processor, error) {
	switch n.Kind() {
	case graph.Destination:
		return passthrough{}, nil
	case graph.Oscillator:
		return &oscillator{node: n, sampleRate: sampleRate}, nil
	case graph.BufferSource:
		return newBufferPlayer(n, sampleRate), nil
	case graph.ConstantSource:
		return constant{node: n}, nil
	case graph.Gain:
		return gain{}, nil
	case graph.Biquad:
		return newBiquad(n.FilterType(), channels, sampleRate), nil
	case graph.Delay:
		return newDelayLine(n.MaxDelayTime(), channels, sampleRate), nil
	default:
		return nil, fmt.Errorf("%w: no processor for %s", ErrInvalidPlan, n.Kind())
	}
}

type passthrough struct{}

func (passthrough) quiet(_ float64, inSilent bool) bool { return inSilent }

func (passthrough) render(_ float64, in []float32, _ []float64, out []float32) {
	copy(out, in)
}

type gain struct{}

func (gain) quiet(_ float64, inSilent bool) bool { return inSilent }

func (gain) render(_ float64, in []float32, p []float64, out []float32) {
	g := float32(p[0])
	for i, v := range in {
		out[i] = v * g
	}
}

type constant struct {
	node *graph.Node
}

func (c constant) quiet(t float64, _ bool) bool { return !c.node.Active(t) }

func (constant) render(_ float64, _ []float32, p []float64, out []float32) {
	out[0] = float32(p[0])
}

// detuned applies a detune in cents to a frequency or rate.
func detuned(v, cents float64) float64 {
	if cents == 0 {
		return v
	}
	return v * math.Exp2(cents/1200)
}
