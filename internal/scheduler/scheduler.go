package scheduler

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/specialistvlad/shmdag/internal/ctxlog"
	"github.com/specialistvlad/shmdag/internal/executor"
	"github.com/specialistvlad/shmdag/internal/graph"
	"github.com/specialistvlad/shmdag/internal/metrics"
	"github.com/specialistvlad/shmdag/internal/node"
)

// Options configures an Orchestrator.
type Options struct {
	// Workers caps the number of nodes in flight. Zero means no cap.
	Workers int
	// Stdout receives node output in dispatch order. Executors that stream
	// output themselves leave nothing to write here.
	Stdout io.Writer
	// NodeTimeout is the executor's per-node limit. It is only used to word
	// failure details.
	NodeTimeout time.Duration
	// RunID is copied into the report and the logs.
	RunID string
	// Metrics may be nil.
	Metrics *metrics.Metrics
}

// Orchestrator is the reference implementation of Scheduler.
type Orchestrator struct {
	graph graph.Graph
	exec  executor.Executor
	opts  Options
}

var _ Scheduler = (*Orchestrator)(nil)

// New creates an orchestrator for one run.
func New(g graph.Graph, exec executor.Executor, opts Options) *Orchestrator {
	return &Orchestrator{graph: g, exec: exec, opts: opts}
}

// run is the mutable state of one Run call.
type run struct {
	ctx       context.Context // cancelled to stop in-flight workers
	store     context.Context // never cancelled; store writes must land
	cancel    context.CancelFunc
	done      chan executor.Result
	out       *sequencer
	order     []string
	inFlight  int
	aborted   bool
	cancelled bool
	failures  []NodeFailure
	cause     error
}

// Run implements Scheduler.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	logger := ctxlog.FromContext(ctx).With("run_id", o.opts.RunID)
	ctx = ctxlog.WithLogger(ctx, logger)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	r := &run{
		ctx:    runCtx,
		store:  context.WithoutCancel(ctx),
		cancel: cancel,
		// Buffered so a finishing worker never blocks on the orchestrator.
		done: make(chan executor.Result, max(1, o.graph.Topology().Len())),
		out:  newSequencer(o.opts.Stdout),
	}

	logger.Info("Run started.", "nodes", o.graph.Topology().Len(), "workers", o.opts.Workers)
	ctxDone := ctx.Done()
	for {
		if !r.aborted && ctx.Err() != nil {
			o.abort(r, ctx.Err(), true)
		}
		if !r.aborted {
			if err := o.admit(r); err != nil {
				logger.Error("Admission failed.", "error", err)
				o.abort(r, err, false)
			}
		}
		if r.inFlight == 0 {
			break
		}

		select {
		case res := <-r.done:
			r.inFlight--
			if err := o.reap(r, res); err != nil {
				logger.Error("Failed to reconcile worker result.", "node", res.NodeID, "error", err)
				o.abort(r, err, false)
			}
		case <-ctxDone:
			ctxDone = nil
			logger.Warn("Run cancelled, stopping in-flight workers.", "in_flight", r.inFlight)
			o.abort(r, ctx.Err(), true)
		}
	}
	o.exec.Wait()

	return o.finish(r, start)
}

// admit dispatches ready nodes until the cap is reached.
func (o *Orchestrator) admit(r *run) error {
	ready, err := o.graph.Ready(r.store)
	if err != nil {
		return fmt.Errorf("scan ready nodes: %w", err)
	}

	topo := o.graph.Topology()
	for _, i := range ready {
		if r.aborted || (o.opts.Workers > 0 && r.inFlight >= o.opts.Workers) {
			return nil
		}
		id := topo.Node(i).ID

		// A node left Ready by an earlier pass fails this step and is
		// claimed by the next one.
		if _, err := o.graph.MarkReady(r.store, i); err != nil {
			return fmt.Errorf("mark %s ready: %w", id, err)
		}
		claimed, err := o.graph.MarkDispatched(r.store, i)
		if err != nil {
			return fmt.Errorf("mark %s dispatched: %w", id, err)
		}
		if !claimed {
			continue
		}

		a := executor.Assignment{Seq: len(r.order), Index: i, NodeID: id}
		r.order = append(r.order, id)
		o.opts.Metrics.NodeDispatched()

		if err := o.exec.Start(r.ctx, a, r.done); err != nil {
			ctxlog.FromContext(r.ctx).Error("Failed to start worker.", "node", id, "error", err)
			r.out.deliver(a.Seq, nil)
			detail := fmt.Sprintf("spawn failed: %v", err)
			if _, ferr := o.graph.MarkFailed(r.store, i, -1, detail); ferr != nil {
				return fmt.Errorf("mark %s failed: %w", id, ferr)
			}
			o.opts.Metrics.NodeFinished(node.StatusFailed.String(), 0)
			r.failures = append(r.failures, NodeFailure{NodeID: id, ExitCode: -1, Detail: detail})
			r.aborted = true
			return nil
		}
		r.inFlight++
		ctxlog.FromContext(r.ctx).Debug("Node dispatched.", "node", id, "seq", a.Seq)
	}
	return nil
}

// reap reconciles the slot of a finished worker with how the worker ended.
func (o *Orchestrator) reap(r *run, res executor.Result) error {
	logger := ctxlog.FromContext(r.ctx).With("node", res.NodeID, "pid", res.PID)
	defer r.out.deliver(res.Seq, res.Output)

	slot, err := o.graph.Get(r.store, res.Index)
	if err != nil {
		return err
	}

	if !slot.Status.Terminal() {
		detail := o.deathDetail(res)
		logger.Warn("Worker ended without recording an outcome.", "status", slot.Status.String(), "detail", detail)
		if _, err := o.graph.MarkFailed(r.store, res.Index, res.ExitCode, detail); err != nil {
			return fmt.Errorf("mark %s failed: %w", res.NodeID, err)
		}
		if slot, err = o.graph.Get(r.store, res.Index); err != nil {
			return err
		}
	}

	o.opts.Metrics.NodeFinished(slot.Status.String(), res.Duration)
	if slot.Status == node.StatusCompleted {
		logger.Debug("Node completed.", "duration", res.Duration)
		return nil
	}

	detail := slot.Detail
	if res.TimedOut && o.opts.NodeTimeout > 0 {
		detail = fmt.Sprintf("timed out after %s: %s", o.opts.NodeTimeout, detail)
	}
	r.failures = append(r.failures, NodeFailure{NodeID: res.NodeID, ExitCode: slot.ExitCode, Detail: detail})
	if !r.aborted {
		logger.Warn("Node failed, no new work will be admitted.", "detail", detail, "in_flight", r.inFlight)
	}
	r.aborted = true
	return nil
}

func (o *Orchestrator) deathDetail(res executor.Result) string {
	switch {
	case res.TimedOut:
		return fmt.Sprintf("timed out after %s", o.opts.NodeTimeout)
	case res.ExitCode < 0 && res.Err != nil:
		return fmt.Sprintf("worker died: %v", res.Err)
	case res.Err != nil:
		return fmt.Sprintf("worker exited with code %d before reporting: %v", res.ExitCode, res.Err)
	}
	return fmt.Sprintf("worker exited with code %d before reporting", res.ExitCode)
}

// abort stops admission. Context and infrastructure errors also stop the
// in-flight workers; a node failure lets them finish.
func (o *Orchestrator) abort(r *run, cause error, cancelled bool) {
	r.aborted = true
	if cancelled {
		r.cancelled = true
	}
	if r.cause == nil {
		r.cause = cause
	}
	r.cancel()
}

func (o *Orchestrator) finish(r *run, start time.Time) (*Report, error) {
	logger := ctxlog.FromContext(r.ctx)

	snap, err := o.graph.Snapshot(r.store)
	if err != nil {
		return nil, fmt.Errorf("final snapshot: %w", err)
	}

	state := node.RunAborted
	var runErr error
	switch {
	case r.aborted:
		runErr = &AbortedError{Failed: r.failures, Cancelled: r.cancelled, Cause: r.cause}
	case node.Count(snap)[node.StatusCompleted] == len(snap):
		state = node.RunAllComplete
	default:
		runErr = ErrStalled
	}

	if err := o.graph.Store().SetRunState(r.store, state); err != nil {
		logger.Warn("Failed to record run state.", "error", err)
	}
	o.opts.Metrics.RunFinished(state.String())

	report := newReport(o.opts.RunID, state, o.graph.Topology(), snap, r.order, r.failures, time.Since(start))
	logger.Info("Run finished.", "state", state.String(), "dispatched", len(r.order), "failed", len(r.failures), "wall_time", report.WallTime)
	return report, runErr
}
