// Package graph holds the signal node graph: typed nodes, audio and parameter
// connections, validation and the processing order used by the renderer.
package graph

import (
	"fmt"
	"math"

	"github.com/cbegin/audiograph-go/internal/automation"
)

// NodeID is a handle to a node inside one Graph.
type NodeID int

// Connection is a directed edge. An empty Param targets the destination's
// main audio input, otherwise the named parameter.
type Connection struct {
	From  NodeID
	To    NodeID
	Param string
}

// Audio reports whether the connection feeds an audio input.
func (c Connection) Audio() bool { return c.Param == "" }

// Report carries non-fatal findings from validation.
type Report struct {
	// Orphans have no path to the destination and contribute silence.
	Orphans []NodeID
	// Feedback lists parameter connections left out of the processing
	// order because they close a loop. Their targets read the source's
	// previous frame.
	Feedback []Connection
	Warnings []string
}

// Graph is built during scheduling and frozen before rendering. It is not
// safe for concurrent mutation.
type Graph struct {
	nodes  []*Node
	conns  []Connection
	frozen bool
	order  []NodeID
	report Report
}

// New returns a graph containing only the destination node.
func New() *Graph {
	g := &Graph{}
	g.nodes = append(g.nodes, &Node{id: 0, kind: Destination, stop: math.Inf(1)})
	return g
}

// Destination returns the handle of the output node.
func (g *Graph) Destination() NodeID { return 0 }

// Len is the number of nodes including the destination.
func (g *Graph) Len() int { return len(g.nodes) }

// Frozen reports whether Freeze succeeded.
func (g *Graph) Frozen() bool { return g.frozen }

// Node returns the node for id or nil.
func (g *Graph) Node(id NodeID) *Node {
	if id < 0 || int(id) >= len(g.nodes) {
		return nil
	}
	return g.nodes[id]
}

// Connections returns a copy of all edges in insertion order.
func (g *Graph) Connections() []Connection {
	out := make([]Connection, len(g.conns))
	copy(out, g.conns)
	return out
}

// CreateNode adds a node of the given kind.
func (g *Graph) CreateNode(kind Kind, opts Options) (NodeID, error) {
	if g.frozen {
		return -1, ErrFrozen
	}
	if kind == Destination {
		return -1, fmt.Errorf("%w: a graph has exactly one destination", ErrInvalidNode)
	}
	if _, ok := paramSpecs[kind]; !ok {
		return -1, fmt.Errorf("%w: %s", ErrInvalidNode, kind)
	}
	id := NodeID(len(g.nodes))
	n, err := newNode(id, kind, opts)
	if err != nil {
		return -1, err
	}
	g.nodes = append(g.nodes, n)
	return id, nil
}

func (g *Graph) Oscillator(opts Options) (NodeID, error) {
	return g.CreateNode(Oscillator, opts)
}

func (g *Graph) BufferSource(opts Options) (NodeID, error) {
	return g.CreateNode(BufferSource, opts)
}

func (g *Graph) Gain(opts Options) (NodeID, error) {
	return g.CreateNode(Gain, opts)
}

func (g *Graph) Biquad(opts Options) (NodeID, error) {
	return g.CreateNode(Biquad, opts)
}

func (g *Graph) ConstantSource(opts Options) (NodeID, error) {
	return g.CreateNode(ConstantSource, opts)
}

func (g *Graph) Delay(opts Options) (NodeID, error) {
	return g.CreateNode(Delay, opts)
}

func (g *Graph) lookup(id NodeID) (*Node, error) {
	n := g.Node(id)
	if n == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	return n, nil
}

// Start schedules a source node to begin at t seconds.
func (g *Graph) Start(id NodeID, t float64) error {
	if g.frozen {
		return ErrFrozen
	}
	n, err := g.lookup(id)
	if err != nil {
		return err
	}
	if !n.kind.IsSource() {
		return &InvalidNodeError{Node: id, Kind: n.kind, Reason: "only source nodes can be started"}
	}
	if n.started {
		return &InvalidNodeError{Node: id, Kind: n.kind, Reason: "already started"}
	}
	if math.IsNaN(t) || math.IsInf(t, 0) || t < 0 {
		return &InvalidNodeError{Node: id, Kind: n.kind, Reason: fmt.Sprintf("start time %g must be finite and non-negative", t)}
	}
	n.started = true
	n.start = t
	return nil
}

// Stop schedules a source node to end at t seconds. The stop must come after
// the start; this is checked by Validate so Start and Stop may be called in
// either order.
func (g *Graph) Stop(id NodeID, t float64) error {
	if g.frozen {
		return ErrFrozen
	}
	n, err := g.lookup(id)
	if err != nil {
		return err
	}
	if !n.kind.IsSource() {
		return &InvalidNodeError{Node: id, Kind: n.kind, Reason: "only source nodes can be stopped"}
	}
	if math.IsNaN(t) {
		return &InvalidNodeError{Node: id, Kind: n.kind, Reason: "stop time is NaN"}
	}
	n.stop = t
	return nil
}

// Param returns a node's automatable parameter.
func (g *Graph) Param(id NodeID, name string) (*automation.Param, error) {
	n, err := g.lookup(id)
	if err != nil {
		return nil, err
	}
	p := n.param(name)
	if p == nil {
		return nil, fmt.Errorf("%w: %s has no parameter %q", ErrUnknownParam, n, name)
	}
	return p, nil
}

// Connect routes src's output into dst's audio input.
func (g *Graph) Connect(src, dst NodeID) error {
	return g.connect(Connection{From: src, To: dst})
}

// ConnectParam routes src's output, summed to mono, into a parameter of dst.
func (g *Graph) ConnectParam(src, dst NodeID, param string) error {
	if param == "" {
		return fmt.Errorf("%w: empty parameter name", ErrUnknownParam)
	}
	return g.connect(Connection{From: src, To: dst, Param: param})
}

func (g *Graph) connect(c Connection) error {
	if g.frozen {
		return ErrFrozen
	}
	from, err := g.lookup(c.From)
	if err != nil {
		return err
	}
	to, err := g.lookup(c.To)
	if err != nil {
		return err
	}
	if from.kind == Destination {
		return fmt.Errorf("%w: the destination has no output", ErrConnection)
	}
	if c.Audio() {
		if !to.kind.hasInput() {
			return fmt.Errorf("%w: %s has no audio input", ErrConnection, to)
		}
	} else if to.param(c.Param) == nil {
		return fmt.Errorf("%w: %s has no parameter %q", ErrUnknownParam, to, c.Param)
	}
	g.conns = append(g.conns, c)
	return nil
}

// Validate checks lifetimes and audio-rate cycles. Orphans and loops that
// only exist through parameter connections are reported, not rejected.
func (g *Graph) Validate() (Report, error) {
	for _, n := range g.nodes {
		if !n.kind.IsSource() {
			continue
		}
		if n.started && !(n.stop > n.start) {
			return Report{}, &InvalidNodeError{Node: n.id, Kind: n.kind, Reason: fmt.Sprintf("stop time %g must be after start time %g", n.stop, n.start)}
		}
	}
	if path := g.findCycle(); path != nil {
		return Report{}, &CycleError{Path: path}
	}
	var rep Report
	for _, n := range g.nodes {
		if n.kind.IsSource() && !n.started {
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("%s is never started", n))
		}
	}
	reach := g.reachesDestination()
	for _, n := range g.nodes {
		if !reach[n.id] {
			rep.Orphans = append(rep.Orphans, n.id)
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("%s has no path to the destination", n))
		}
	}
	_, rep.Feedback = g.sortNodes()
	for _, c := range rep.Feedback {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("parameter connection %d -> %d.%s reads the previous frame", c.From, c.To, c.Param))
	}
	return rep, nil
}

// Freeze validates the graph, freezes every parameter and fixes the
// processing order. A frozen graph rejects further changes with ErrFrozen.
func (g *Graph) Freeze() (Report, error) {
	if g.frozen {
		return g.report, nil
	}
	rep, err := g.Validate()
	if err != nil {
		return rep, err
	}
	for _, n := range g.nodes {
		for _, p := range n.params {
			p.Freeze()
		}
	}
	g.order, _ = g.sortNodes()
	g.report = rep
	g.frozen = true
	return rep, nil
}

// Report returns the findings recorded by Freeze.
func (g *Graph) Report() Report { return g.report }

// Order returns the node processing order. Each node appears after every
// node feeding it, except across Delay inputs and Feedback connections.
func (g *Graph) Order() []NodeID {
	if g.frozen {
		out := make([]NodeID, len(g.order))
		copy(out, g.order)
		return out
	}
	order, _ := g.sortNodes()
	return order
}
