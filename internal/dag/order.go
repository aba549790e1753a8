package dag

import (
	"cmp"
	"slices"
)

// TopologicalOrder returns the node IDs in dependency order, breaking ties
// between simultaneously available nodes by ID. A serial run of the graph
// dispatches nodes in exactly this order.
func (g *Graph) TopologicalOrder() []string {
	indegree := make([]int, len(g.nodes))
	var ready []int
	for _, i := range g.lexical {
		indegree[i] = len(g.preds[i])
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	byID := func(a, b int) int { return cmp.Compare(g.nodes[a].ID, g.nodes[b].ID) }

	order := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		i := ready[0]
		ready = ready[1:]
		order = append(order, g.nodes[i].ID)
		for _, s := range g.succs[i] {
			indegree[s]--
			if indegree[s] == 0 {
				pos, _ := slices.BinarySearchFunc(ready, s, byID)
				ready = slices.Insert(ready, pos, s)
			}
		}
	}
	return order
}
