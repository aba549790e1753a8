// Package graph provides a unified facade for managing the execution graph,
// combining static topology (DAG structure) and dynamic state (execution status).
//
// # Why Graph Package Exists
//
// The scheduler and the worker both need the same two things: the shape of
// the DAG and the status of every node. Instead of coordinating a dag.Graph
// and a nodestore.Store by hand, they talk to one Graph.
//
// # Architecture: The Facade Pattern
//
//	┌─────────────────────────────────────┐
//	│           Graph Facade              │
//	│  (ready-set computation and the     │
//	│   Mark* state transitions)          │
//	└──────────┬────────────┬─────────────┘
//	           │            │
//	           ▼            ▼
//	  ┌────────────┐  ┌──────────────────┐
//	  │ dag.Graph  │  │ nodestore.Store  │
//	  │ (immutable │  │ (segment or      │
//	  │  topology) │  │  in-memory)      │
//	  └────────────┘  └──────────────────┘
//
// **Topology** (dag.Graph) is written once and never locked.
//
// **Node Store** (nodestore.Store) is the only mutable state. In process mode
// it is the shared segment, guarded by the cross-process MRSW lock.
//
// # Ready Set
//
// A node is ready when it is Pending and every predecessor is Completed, or
// when an earlier pass already marked it Ready but did not dispatch it.
// Simultaneously ready nodes are returned in lexicographic id order, which
// makes dispatch order deterministic for a given graph.
//
// # Thread-Safety
//
// All Graph methods are thread-safe by delegating to the store.
package graph
