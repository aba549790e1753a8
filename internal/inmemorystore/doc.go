// Package inmemorystore provides an ephemeral, thread-safe, in-memory
// implementation of the nodestore.Store interface. It backs thread mode,
// where every unit runs on a goroutine of the orchestrating process, and is
// handy in tests that exercise the scheduler without shared memory.
//
// # Concurrency Model
//
// A single sync.RWMutex guards the slot table. sync.RWMutex blocks new
// readers once a writer is waiting, which is the same writer-priority policy
// the cross-process lock implements, so both stores behave alike under the
// scheduler's read-mostly polling.
package inmemorystore
