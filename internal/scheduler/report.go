package scheduler

import (
	"time"

	"github.com/specialistvlad/shmdag/internal/dag"
	"github.com/specialistvlad/shmdag/internal/node"
)

// Report summarizes a finished run.
type Report struct {
	RunID string        `json:"run_id"`
	State node.RunState `json:"state"`
	// DispatchOrder lists node ids in the order they were handed to workers.
	DispatchOrder []string      `json:"dispatch_order"`
	Nodes         []NodeReport  `json:"nodes"`
	Failures      []NodeFailure `json:"failures,omitempty"`
	WallTime      time.Duration `json:"wall_time"`
}

// NodeReport is the final slot of one node.
type NodeReport struct {
	ID   string    `json:"id"`
	Slot node.Slot `json:"slot"`
}

func newReport(runID string, state node.RunState, topo *dag.Graph, snap []node.Slot, order []string, failures []NodeFailure, wall time.Duration) *Report {
	nodes := make([]NodeReport, len(snap))
	for i, slot := range snap {
		nodes[i] = NodeReport{ID: topo.Node(i).ID, Slot: slot}
	}
	return &Report{
		RunID:         runID,
		State:         state,
		DispatchOrder: order,
		Nodes:         nodes,
		Failures:      failures,
		WallTime:      wall,
	}
}

// Counts tallies the final slots by status.
func (r *Report) Counts() node.Counts {
	slots := make([]node.Slot, len(r.Nodes))
	for i, n := range r.Nodes {
		slots[i] = n.Slot
	}
	return node.Count(slots)
}

// Slot returns the final slot of the node with the given id.
func (r *Report) Slot(id string) (node.Slot, bool) {
	for _, n := range r.Nodes {
		if n.ID == id {
			return n.Slot, true
		}
	}
	return node.Slot{}, false
}
