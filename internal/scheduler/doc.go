// Package scheduler provides the orchestration loop that drives a run's
// graph to completion.
//
// # How It Works
//
// The orchestrator repeats one cycle until nothing is left in flight:
//  1. Take a read-locked snapshot of the status table and compute the ready
//     set, sorted by node id.
//  2. Claim each ready node with two write-locked compare-and-sets,
//     Pending → Ready → Dispatched, and hand it to the executor.
//  3. Block until some worker ends, then reconcile its slot. A worker that
//     died without recording an outcome gets its node marked Failed.
//
// # Fail-Fast
//
// The first Failed node stops admission. Workers already in flight run to
// completion and are reaped; nothing new is dispatched and the run ends
// Aborted. Cancelling the context does the same but also stops the in-flight
// workers. A lock or segment error cancels everything at once.
//
// # Output Ordering
//
// Executors buffer each node's stdout. The orchestrator writes a node's
// output once every node dispatched before it has been written, so the
// visible order is the dispatch order even when workers overlap.
package scheduler
