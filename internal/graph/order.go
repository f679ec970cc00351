package graph

// audioAdjacency lists same-frame audio dependencies. Edges into a Delay are
// left out: a delay reads its input at least one frame late.
func (g *Graph) audioAdjacency() [][]NodeID {
	adj := make([][]NodeID, len(g.nodes))
	for _, c := range g.conns {
		if c.Audio() && g.nodes[c.To].kind != Delay {
			adj[c.From] = append(adj[c.From], c.To)
		}
	}
	return adj
}

// findCycle returns the first audio cycle found, visiting nodes in id order.
func (g *Graph) findCycle() []NodeID {
	const (
		white = iota
		grey
		black
	)
	adj := g.audioAdjacency()
	color := make([]int, len(g.nodes))
	var stack []NodeID
	var cycle []NodeID
	var visit func(u NodeID) bool
	visit = func(u NodeID) bool {
		color[u] = grey
		stack = append(stack, u)
		for _, v := range adj[u] {
			switch color[v] {
			case grey:
				for i, id := range stack {
					if id == v {
						cycle = append(append([]NodeID{}, stack[i:]...), v)
						break
					}
				}
				return true
			case white:
				if visit(v) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[u] = black
		return false
	}
	for id := range g.nodes {
		if color[id] == white && visit(NodeID(id)) {
			return cycle
		}
	}
	return nil
}

// reachesDestination marks nodes with a path of any connection type to the
// destination.
func (g *Graph) reachesDestination() []bool {
	rev := make([][]NodeID, len(g.nodes))
	for _, c := range g.conns {
		rev[c.To] = append(rev[c.To], c.From)
	}
	seen := make([]bool, len(g.nodes))
	queue := []NodeID{g.Destination()}
	seen[g.Destination()] = true
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, v := range rev[u] {
			if !seen[v] {
				seen[v] = true
				queue = append(queue, v)
			}
		}
	}
	return seen
}

func reachable(adj [][]NodeID, from, to NodeID) bool {
	seen := make([]bool, len(adj))
	stack := []NodeID{from}
	for len(stack) > 0 {
		u := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if u == to {
			return true
		}
		if seen[u] {
			continue
		}
		seen[u] = true
		stack = append(stack, adj[u]...)
	}
	return false
}

// sortNodes orders nodes so that every node follows its same-frame inputs.
// Parameter connections join the ordering in insertion order unless they
// would close a loop, in which case they are returned as feedback. Ties are
// broken by the smaller node id so the order is stable for a given graph.
func (g *Graph) sortNodes() ([]NodeID, []Connection) {
	adj := g.audioAdjacency()
	var feedback []Connection
	for _, c := range g.conns {
		if c.Audio() {
			continue
		}
		if c.From == c.To || reachable(adj, c.To, c.From) {
			feedback = append(feedback, c)
			continue
		}
		adj[c.From] = append(adj[c.From], c.To)
	}

	indeg := make([]int, len(g.nodes))
	for _, outs := range adj {
		for _, v := range outs {
			indeg[v]++
		}
	}
	placed := make([]bool, len(g.nodes))
	order := make([]NodeID, 0, len(g.nodes))
	var ready []NodeID
	for id := range g.nodes {
		if indeg[id] == 0 {
			ready = append(ready, NodeID(id))
		}
	}
	for len(ready) > 0 {
		best := 0
		for i := range ready {
			if ready[i] < ready[best] {
				best = i
			}
		}
		u := ready[best]
		ready = append(ready[:best], ready[best+1:]...)
		order = append(order, u)
		placed[u] = true
		for _, v := range adj[u] {
			indeg[v]--
			if indeg[v] == 0 {
				ready = append(ready, v)
			}
		}
	}
	// Only reachable when an audio cycle slipped past validation.
	for id := range g.nodes {
		if !placed[id] {
			order = append(order, NodeID(id))
		}
	}
	return order, feedback
}
