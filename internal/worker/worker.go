// Package worker runs a single node: it claims the node's slot, executes the
// node's unit, and records the outcome.
//
// # Local Mirror
//
// A Worker keeps its own copy of the node's status. Every transition updates
// the mirror first and the shared store second, never the other way round, so
// the mirror can run ahead of the store but never behind it. The store stays
// the source of truth for everyone else.
package worker

import (
	"context"
	"fmt"
	"io"
	"runtime/debug"

	"github.com/specialistvlad/shmdag/internal/ctxlog"
	"github.com/specialistvlad/shmdag/internal/handlers"
	"github.com/specialistvlad/shmdag/internal/node"
	"github.com/specialistvlad/shmdag/internal/nodestore"
)

// NodeExecutionError reports that a node's unit failed. It is recorded in the
// node's slot; the worker's own infrastructure stayed healthy.
type NodeExecutionError struct {
	NodeID string
	Detail string
	Err    error
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node %s failed: %s", e.NodeID, e.Detail)
}

func (e *NodeExecutionError) Unwrap() error {
	return e.Err
}

// Worker drives one node through Running to Completed or Failed.
type Worker struct {
	store  nodestore.Store
	index  int
	nodeID string
	unit   handlers.Unit
	pid    int
	local  node.Status
}

// New creates a worker for the node at index, which must be Dispatched.
func New(store nodestore.Store, index int, nodeID string, unit handlers.Unit, pid int) *Worker {
	return &Worker{
		store:  store,
		index:  index,
		nodeID: nodeID,
		unit:   unit,
		pid:    pid,
		local:  node.StatusDispatched,
	}
}

// Status returns the local mirror of the node's status.
func (w *Worker) Status() node.Status {
	return w.local
}

// Run executes the unit, writing its output to out. It returns a
// *NodeExecutionError if the unit failed and any other error if the store
// could not be updated.
func (w *Worker) Run(ctx context.Context, out io.Writer) error {
	logger := ctxlog.FromContext(ctx).With("node", w.nodeID, "pid", w.pid)

	if err := w.advance(ctx, node.Transition{From: node.StatusDispatched, To: node.StatusRunning, PID: w.pid}); err != nil {
		return fmt.Errorf("mark %s running: %w", w.nodeID, err)
	}
	logger.Debug("Node running.")

	unitErr := w.execute(ctx, out)

	// The outcome must be recorded even when ctx was cancelled.
	recordCtx := context.WithoutCancel(ctx)
	if unitErr != nil {
		detail := unitErr.Error()
		if err := w.advance(recordCtx, node.Transition{From: node.StatusRunning, To: node.StatusFailed, PID: w.pid, ExitCode: 1, Detail: detail}); err != nil {
			return fmt.Errorf("mark %s failed: %w", w.nodeID, err)
		}
		logger.Warn("Node failed.", "error", unitErr)
		return &NodeExecutionError{NodeID: w.nodeID, Detail: detail, Err: unitErr}
	}

	if err := w.advance(recordCtx, node.Transition{From: node.StatusRunning, To: node.StatusCompleted, PID: w.pid}); err != nil {
		return fmt.Errorf("mark %s completed: %w", w.nodeID, err)
	}
	logger.Debug("Node completed.")
	return nil
}

// advance sets the local mirror, then writes the shared slot.
func (w *Worker) advance(ctx context.Context, tr node.Transition) error {
	w.local = tr.To
	_, err := w.store.Transition(ctx, w.index, tr)
	return err
}

func (w *Worker) execute(ctx context.Context, out io.Writer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			ctxlog.FromContext(ctx).Error("Unit panicked.", "node", w.nodeID, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("unit panicked: %v", r)
		}
	}()
	return w.unit.Execute(ctx, out)
}
