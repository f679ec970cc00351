package graph

import (
	"fmt"
	"math"
	"strings"

	"github.com/cbegin/audiograph-go/internal/automation"
	"github.com/cbegin/audiograph-go/internal/buffer"
)

// Kind identifies a node type.
type Kind int

const (
	Destination Kind = iota
	Oscillator
	BufferSource
	Gain
	Biquad
	ConstantSource
	Delay
)

func (k Kind) String() string {
	switch k {
	case Destination:
		return "destination"
	case Oscillator:
		return "oscillator"
	case BufferSource:
		return "bufferSource"
	case Gain:
		return "gain"
	case Biquad:
		return "biquad"
	case ConstantSource:
		return "constantSource"
	case Delay:
		return "delay"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// IsSource reports whether nodes of this kind generate signal and carry a
// start/stop lifetime.
func (k Kind) IsSource() bool {
	return k == Oscillator || k == BufferSource || k == ConstantSource
}

// hasInput reports whether nodes of this kind accept audio connections.
func (k Kind) hasInput() bool {
	return k == Destination || k == Gain || k == Biquad || k == Delay
}

// Waveform selects the oscillator shape.
type Waveform int

const (
	Sine Waveform = iota
	Square
	Sawtooth
	Triangle
)

var waveformNames = [...]string{"sine", "square", "sawtooth", "triangle"}

func (w Waveform) String() string {
	if w < 0 || int(w) >= len(waveformNames) {
		return fmt.Sprintf("waveform(%d)", int(w))
	}
	return waveformNames[w]
}

// ParseWaveform accepts the Web Audio oscillator type names.
func ParseWaveform(s string) (Waveform, error) {
	for i, name := range waveformNames {
		if strings.EqualFold(s, name) {
			return Waveform(i), nil
		}
	}
	return Sine, fmt.Errorf("unknown waveform %q", s)
}

// FilterType selects the biquad response.
type FilterType int

const (
	Lowpass FilterType = iota
	Highpass
	Bandpass
	Lowshelf
	Highshelf
	Peaking
	Notch
	Allpass
)

var filterNames = [...]string{"lowpass", "highpass", "bandpass", "lowshelf", "highshelf", "peaking", "notch", "allpass"}

func (f FilterType) String() string {
	if f < 0 || int(f) >= len(filterNames) {
		return fmt.Sprintf("filter(%d)", int(f))
	}
	return filterNames[f]
}

// ParseFilterType accepts the Web Audio BiquadFilterNode type names.
func ParseFilterType(s string) (FilterType, error) {
	for i, name := range filterNames {
		if strings.EqualFold(s, name) {
			return FilterType(i), nil
		}
	}
	return Lowpass, fmt.Errorf("unknown filter type %q", s)
}

// Parameter names.
const (
	ParamFrequency    = "frequency"
	ParamDetune       = "detune"
	ParamGain         = "gain"
	ParamQ            = "Q"
	ParamPlaybackRate = "playbackRate"
	ParamOffset       = "offset"
	ParamDelayTime    = "delayTime"
)

type paramSpec struct {
	name string
	def  float64
}

// paramSpecs lists each kind's automatable parameters in processing order.
var paramSpecs = map[Kind][]paramSpec{
	Oscillator:     {{ParamFrequency, 440}, {ParamDetune, 0}},
	BufferSource:   {{ParamPlaybackRate, 1}, {ParamDetune, 0}},
	Gain:           {{ParamGain, 1}},
	Biquad:         {{ParamFrequency, 350}, {ParamDetune, 0}, {ParamQ, 1}, {ParamGain, 0}},
	ConstantSource: {{ParamOffset, 1}},
	Delay:          {{ParamDelayTime, 0}},
}

// Options configures a new node. Fields that do not apply to the node's kind
// are ignored. Values overrides parameter defaults by name.
type Options struct {
	Waveform   Waveform
	FilterType FilterType

	// Buffer is the sample data played by a BufferSource.
	Buffer *buffer.Buffer
	Loop   bool
	// BufferOffset is the position in seconds inside Buffer where playback
	// begins.
	BufferOffset float64

	// MaxDelayTime bounds a Delay node's delayTime. Zero means one second.
	MaxDelayTime float64

	Values map[string]float64
}

// Node is one vertex of the signal graph.
type Node struct {
	id       NodeID
	kind     Kind
	waveform Waveform
	filter   FilterType
	buf      *buffer.Buffer
	loop     bool
	bufOff   float64
	maxDelay float64

	started bool
	start   float64
	stop    float64

	params []*automation.Param
}

func newNode(id NodeID, kind Kind, opts Options) (*Node, error) {
	n := &Node{
		id:       id,
		kind:     kind,
		waveform: opts.Waveform,
		filter:   opts.FilterType,
		buf:      opts.Buffer,
		loop:     opts.Loop,
		bufOff:   opts.BufferOffset,
		maxDelay: opts.MaxDelayTime,
		stop:     math.Inf(1),
	}
	switch kind {
	case Oscillator:
		if n.waveform < Sine || n.waveform > Triangle {
			return nil, &InvalidNodeError{Node: id, Kind: kind, Reason: fmt.Sprintf("unknown waveform %d", int(n.waveform))}
		}
	case Biquad:
		if n.filter < Lowpass || n.filter > Allpass {
			return nil, &InvalidNodeError{Node: id, Kind: kind, Reason: fmt.Sprintf("unknown filter type %d", int(n.filter))}
		}
	case BufferSource:
		if n.buf == nil {
			return nil, &InvalidNodeError{Node: id, Kind: kind, Reason: "buffer source needs a buffer"}
		}
		if !(n.bufOff >= 0) || math.IsInf(n.bufOff, 0) {
			return nil, &InvalidNodeError{Node: id, Kind: kind, Reason: "buffer offset must be finite and non-negative"}
		}
	case Delay:
		if n.maxDelay == 0 {
			n.maxDelay = 1
		}
		if !(n.maxDelay > 0) || math.IsInf(n.maxDelay, 0) {
			return nil, &InvalidNodeError{Node: id, Kind: kind, Reason: "maxDelayTime must be positive"}
		}
	}
	for _, spec := range paramSpecs[kind] {
		p := automation.NewParam(spec.name, spec.def)
		if v, ok := opts.Values[spec.name]; ok {
			if err := p.SetDefault(v); err != nil {
				return nil, err
			}
		}
		n.params = append(n.params, p)
	}
	for name := range opts.Values {
		if n.param(name) == nil {
			return nil, fmt.Errorf("%w: %s has no parameter %q", ErrUnknownParam, kind, name)
		}
	}
	return n, nil
}

func (n *Node) param(name string) *automation.Param {
	for _, p := range n.params {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

func (n *Node) ID() NodeID                 { return n.id }
func (n *Node) Kind() Kind                 { return n.kind }
func (n *Node) Waveform() Waveform         { return n.waveform }
func (n *Node) FilterType() FilterType     { return n.filter }
func (n *Node) Buffer() *buffer.Buffer     { return n.buf }
func (n *Node) Loop() bool                 { return n.loop }
func (n *Node) BufferOffset() float64      { return n.bufOff }
func (n *Node) MaxDelayTime() float64      { return n.maxDelay }
func (n *Node) Params() []*automation.Param { return n.params }

// Param returns the named parameter or nil.
func (n *Node) Param(name string) *automation.Param { return n.param(name) }

// Started reports whether Start was called on a source node.
func (n *Node) Started() bool { return n.started }

// Start is the source's start time in seconds. Effect nodes report 0.
func (n *Node) Start() float64 { return n.start }

// Stop is the source's stop time, or +Inf when it runs to the end.
func (n *Node) Stop() float64 { return n.stop }

// Active reports whether a node produces output at t.
func (n *Node) Active(t float64) bool {
	if !n.kind.IsSource() {
		return true
	}
	return n.started && t >= n.start && t < n.stop
}

func (n *Node) String() string {
	return fmt.Sprintf("%s#%d", n.kind, n.id)
}
