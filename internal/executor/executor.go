// Package executor defines how the scheduler hands a dispatched node to
// whatever runs it: a worker process or a goroutine.
package executor

import (
	"context"
	"time"
)

// Assignment is one dispatched node.
type Assignment struct {
	// Seq is the position of the node in dispatch order, starting at 0.
	Seq    int
	Index  int
	NodeID string
}

// Result reports how a started node's worker ended.
type Result struct {
	Assignment
	PID int
	// ExitCode is the worker's exit code, or -1 if it was killed by a signal.
	ExitCode int
	// Output is the worker's buffered stdout. It is nil when output is
	// streamed.
	Output []byte
	// Err is set when the worker could not be waited for or ended abnormally.
	Err error
	// TimedOut is set when the per-node timeout expired.
	TimedOut bool
	Duration time.Duration
}

// Executor runs dispatched nodes.
//
// Start launches the worker for a and returns once it is running; a non-nil
// error means nothing was started and done will not receive a result for a.
// Otherwise exactly one Result is sent on done when the worker ends. The
// caller must keep receiving from done until every started node has reported.
//
// Cancelling ctx stops the worker: SIGTERM first, and SIGKILL after a grace
// period for worker processes.
type Executor interface {
	Start(ctx context.Context, a Assignment, done chan<- Result) error
	// Wait blocks until every started worker has been reaped.
	Wait()
}
