package scheduler

import "context"

// Scheduler drives a graph to a terminal run state.
//
// Run blocks until every dispatched worker has been reaped. It returns a
// report in every case where the run got started, together with:
//   - nil when every node Completed;
//   - an *AbortedError when a node failed or ctx was cancelled;
//   - ErrStalled when nodes remain that can never become ready;
//   - any other error when the node store itself failed.
type Scheduler interface {
	Run(ctx context.Context) (*Report, error)
}
