package dag

import (
	"fmt"
	"slices"
)

// Build validates nodes and edges and returns the resulting graph. Node
// insertion order is preserved; duplicate edges are collapsed.
func Build(nodes []Node, edges []Edge) (*Graph, error) {
	g := &Graph{
		nodes: make([]Node, 0, len(nodes)),
		index: make(map[string]int, len(nodes)),
		preds: make([][]int, len(nodes)),
		succs: make([][]int, len(nodes)),
	}

	for _, n := range nodes {
		if n.ID == "" {
			return nil, &GraphError{Kind: ErrInvalidID, Msg: fmt.Sprintf("node #%d has an empty id", len(g.nodes))}
		}
		if _, exists := g.index[n.ID]; exists {
			return nil, duplicateError(n.ID)
		}
		g.index[n.ID] = len(g.nodes)
		g.nodes = append(g.nodes, n)
	}

	seen := make(map[[2]int]struct{}, len(edges))
	for _, e := range edges {
		from, ok := g.index[e.From]
		if !ok {
			return nil, danglingError(e, e.From)
		}
		to, ok := g.index[e.To]
		if !ok {
			return nil, danglingError(e, e.To)
		}
		key := [2]int{from, to}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		g.succs[from] = append(g.succs[from], to)
		g.preds[to] = append(g.preds[to], from)
	}

	byID := func(a, b int) int {
		switch {
		case g.nodes[a].ID < g.nodes[b].ID:
			return -1
		case g.nodes[a].ID > g.nodes[b].ID:
			return 1
		}
		return 0
	}
	for i := range g.nodes {
		slices.SortFunc(g.preds[i], byID)
		slices.SortFunc(g.succs[i], byID)
	}
	g.lexical = make([]int, len(g.nodes))
	for i := range g.lexical {
		g.lexical[i] = i
	}
	slices.SortFunc(g.lexical, byID)

	if path := g.findCycle(); path != nil {
		return nil, cycleError(path)
	}
	return g, nil
}

// findCycle runs a three-color depth-first search in lexical order and
// returns the first cycle found as a closed path of IDs, or nil.
func (g *Graph) findCycle() []string {
	const (
		white = iota
		gray
		black
	)
	color := make([]uint8, len(g.nodes))
	var stack []int
	var cycle []int

	var visit func(i int) bool
	visit = func(i int) bool {
		color[i] = gray
		stack = append(stack, i)
		for _, s := range g.succs[i] {
			switch color[s] {
			case gray:
				start := slices.Index(stack, s)
				cycle = append(slices.Clone(stack[start:]), s)
				return true
			case white:
				if visit(s) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[i] = black
		return false
	}

	for _, i := range g.lexical {
		if color[i] == white && visit(i) {
			path := make([]string, len(cycle))
			for k, idx := range cycle {
				path[k] = g.nodes[idx].ID
			}
			return path
		}
	}
	return nil
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Nodes returns the nodes in insertion (serialization) order.
func (g *Graph) Nodes() []Node {
	return slices.Clone(g.nodes)
}

// Node returns the node stored at arena index i.
func (g *Graph) Node(i int) Node {
	return g.nodes[i]
}

// Index returns the arena index of id.
func (g *Graph) Index(id string) (int, bool) {
	i, ok := g.index[id]
	return i, ok
}

// Edges returns every edge, grouped by source in insertion order and by
// target ID within a source.
func (g *Graph) Edges() []Edge {
	var edges []Edge
	for from, targets := range g.succs {
		for _, to := range targets {
			edges = append(edges, Edge{From: g.nodes[from].ID, To: g.nodes[to].ID})
		}
	}
	return edges
}

// PredecessorsOf returns the arena indices node i depends on.
func (g *Graph) PredecessorsOf(i int) []int {
	return g.preds[i]
}

// SuccessorsOf returns the arena indices that depend on node i.
func (g *Graph) SuccessorsOf(i int) []int {
	return g.succs[i]
}

// Predecessors returns the IDs id depends on, sorted.
func (g *Graph) Predecessors(id string) ([]string, error) {
	i, ok := g.index[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}
	return g.ids(g.preds[i]), nil
}

// Successors returns the IDs that depend on id, sorted.
func (g *Graph) Successors(id string) ([]string, error) {
	i, ok := g.index[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}
	return g.ids(g.succs[i]), nil
}

// IDs returns every node ID in lexicographic order. This is the tie-break
// order used when several nodes become ready at once.
func (g *Graph) IDs() []string {
	return g.ids(g.lexical)
}

// LexicalOrder returns every arena index sorted by node ID.
func (g *Graph) LexicalOrder() []int {
	return slices.Clone(g.lexical)
}

func (g *Graph) ids(indices []int) []string {
	out := make([]string, len(indices))
	for k, i := range indices {
		out[k] = g.nodes[i].ID
	}
	return out
}
