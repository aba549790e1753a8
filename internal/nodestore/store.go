// Package nodestore defines the interface for storing and retrieving the
// mutable execution state of nodes during a run.
//
// # Why Node Store Exists
//
// The node store isolates **mutable execution state** (one status slot per
// node plus the global run state) from the **immutable topology** held by
// dag.Graph. The topology is written once; only the store is ever locked.
//
// Two implementations exist:
//   - segment.Segment keeps the slots in a POSIX shared-memory segment guarded
//     by the cross-process MRSW lock. Worker processes open the same segment.
//   - inmemorystore.Store keeps the slots in process memory for thread mode.
//
// # Indexing
//
// Slot i belongs to the i-th node of the graph in insertion order, so every
// access is an index computation, never a name lookup.
//
// # State Transitions
//
// Every write is a compare-and-set (node.Transition): the store applies it
// only if the slot still holds Transition.From and the edge is allowed by
// node.CanTransition. This is what lets two agents race to claim the same
// node without both succeeding.
package nodestore

import (
	"context"

	"github.com/specialistvlad/shmdag/internal/node"
)

// Store is the interface for the mutable execution state of a run.
//
// # Thread-Safety Requirements
//
// Implementations MUST be safe for concurrent use by multiple goroutines, and
// the shared-memory implementation additionally by multiple processes. Reads
// observe whole slots; a read never sees a half-applied transition.
type Store interface {
	// Len returns the number of slots, equal to the number of graph nodes.
	Len() int

	// Get returns a copy of slot i under a shared (read) lock.
	Get(ctx context.Context, i int) (node.Slot, error)

	// Snapshot returns a copy of every slot taken under a single read lock,
	// so the result is a consistent cut of the table.
	Snapshot(ctx context.Context) ([]node.Slot, error)

	// Transition applies tr to slot i under an exclusive (write) lock and
	// returns the updated slot. It fails with node.ErrStaleStatus when the
	// slot no longer holds tr.From.
	Transition(ctx context.Context, i int, tr node.Transition) (node.Slot, error)

	// RunState returns the global run state.
	RunState(ctx context.Context) (node.RunState, error)

	// SetRunState records the global run state under the write lock.
	SetRunState(ctx context.Context, state node.RunState) error
}
