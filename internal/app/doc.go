// Package app wires a run together: it loads and validates the graph file,
// picks the process or thread session, serves the optional status endpoint
// and drives the scheduler until the run completes or aborts.
//
// The same package backs the maintenance commands. Inspect opens a live or
// leftover segment read-only, Cleanup unlinks the objects of a crashed run
// and Validate checks a graph file without executing it. RunWorker is the
// entry point of a worker process.
package app
