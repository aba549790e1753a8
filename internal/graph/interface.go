package graph

import (
	"context"

	"github.com/specialistvlad/shmdag/internal/dag"
	"github.com/specialistvlad/shmdag/internal/node"
	"github.com/specialistvlad/shmdag/internal/nodestore"
)

// Graph is a unified interface for interacting with the execution DAG of one
// run, combining the immutable topology with the mutable status table.
//
// Nodes are addressed by their index in the topology's insertion order,
// which is also the index of their status slot.
//
// # Usage Patterns
//
// **Scheduler** uses Graph to:
//   - Find runnable nodes: Ready()
//   - Claim them: MarkReady(), MarkDispatched()
//   - Reconcile dead workers: Get(), MarkFailed()
//
// **Worker** uses Graph to:
//   - Report progress: MarkRunning(), MarkCompleted(), MarkFailed()
//
// # Thread-Safety
//
// Implementations MUST be safe for concurrent use. Every Mark* method is a
// compare-and-set against the store, so two agents racing for the same node
// cannot both win.
type Graph interface {
	// Topology returns the immutable DAG.
	Topology() *dag.Graph

	// Store returns the backing status table.
	Store() nodestore.Store

	// Get returns the current slot of node i.
	Get(ctx context.Context, i int) (node.Slot, error)

	// Snapshot returns a consistent copy of every slot.
	Snapshot(ctx context.Context) ([]node.Slot, error)

	// Ready returns the nodes that may be dispatched now, in lexicographic id
	// order. See ReadyIndices.
	Ready(ctx context.Context) ([]int, error)

	// MarkReady moves node i from Pending to Ready. It returns false without
	// an error when another agent changed the slot first.
	//
	// State transition: Pending → Ready
	MarkReady(ctx context.Context, i int) (bool, error)

	// MarkDispatched moves node i from Ready to Dispatched. It returns false
	// without an error when another agent changed the slot first.
	//
	// State transition: Ready → Dispatched
	MarkDispatched(ctx context.Context, i int) (bool, error)

	// MarkRunning records that the worker with the given pid started node i.
	//
	// State transition: Dispatched → Running
	MarkRunning(ctx context.Context, i int, pid int) error

	// MarkCompleted records that node i finished successfully.
	//
	// State transition: Running → Completed
	MarkCompleted(ctx context.Context, i int) error

	// MarkFailed records that node i failed, from whichever of Dispatched or
	// Running it is in. It returns false without an error when the node is
	// already terminal, so the first recorded outcome wins.
	//
	// State transition: Dispatched | Running → Failed
	MarkFailed(ctx context.Context, i int, exitCode int, detail string) (bool, error)
}
