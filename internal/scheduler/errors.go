package scheduler

import (
	"errors"
	"fmt"
	"strings"
)

// ErrStalled means nodes remain non-terminal but none is ready and nothing
// is in flight. It indicates a broken invariant, not a user error.
var ErrStalled = errors.New("run stalled: no node is ready or running")

// NodeFailure describes one Failed node.
type NodeFailure struct {
	NodeID   string `json:"node"`
	ExitCode int    `json:"exit_code"`
	Detail   string `json:"detail"`
}

// AbortedError reports a run that ended Aborted.
type AbortedError struct {
	Failed []NodeFailure
	// Cancelled is set when the run's context was cancelled.
	Cancelled bool
	// Cause is the infrastructure or context error that aborted the run, if
	// any.
	Cause error
}

func (e *AbortedError) Error() string {
	var b strings.Builder
	b.WriteString("run aborted")
	if e.Cancelled {
		b.WriteString(": cancelled")
	}
	for _, f := range e.Failed {
		fmt.Fprintf(&b, "; node %s failed: %s", f.NodeID, f.Detail)
	}
	if e.Cause != nil && !e.Cancelled {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *AbortedError) Unwrap() error {
	return e.Cause
}
