// Package localexecutor provides the in-process implementation of the
// executor.Executor interface: every node runs on its own goroutine against
// the run's node store.
//
// It follows the same worker protocol as a worker process, so thread mode
// and process mode differ only in where the unit runs.
package localexecutor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/specialistvlad/shmdag/internal/ctxlog"
	"github.com/specialistvlad/shmdag/internal/dag"
	"github.com/specialistvlad/shmdag/internal/executor"
	"github.com/specialistvlad/shmdag/internal/handlers"
	"github.com/specialistvlad/shmdag/internal/nodestore"
	"github.com/specialistvlad/shmdag/internal/worker"
	"golang.org/x/sync/errgroup"
)

// Options configures an Executor.
type Options struct {
	// NodeTimeout bounds each node. Zero means no limit.
	NodeTimeout time.Duration
	// Stream receives unit output directly. Nil means output is buffered
	// and returned in Result.Output. Stream must be safe for concurrent use.
	Stream io.Writer
}

// Executor implements the executor.Executor interface for local execution.
type Executor struct {
	topo  *dag.Graph
	store nodestore.Store
	reg   *handlers.Handlers
	opts  Options
	group errgroup.Group
}

var _ executor.Executor = (*Executor)(nil)

// New creates a new local executor.
func New(topo *dag.Graph, store nodestore.Store, reg *handlers.Handlers, opts Options) *Executor {
	return &Executor{topo: topo, store: store, reg: reg, opts: opts}
}

// Start runs the node on a new goroutine.
func (e *Executor) Start(ctx context.Context, a executor.Assignment, done chan<- executor.Result) error {
	logger := ctxlog.FromContext(ctx).With("node", a.NodeID, "seq", a.Seq)
	if _, ok := e.topo.Index(a.NodeID); !ok {
		return errors.New("unknown node " + a.NodeID)
	}

	e.group.Go(func() error {
		runCtx, cancel := context.WithCancel(ctx)
		if e.opts.NodeTimeout > 0 {
			runCtx, cancel = context.WithTimeout(ctx, e.opts.NodeTimeout)
		}
		defer cancel()
		runCtx = ctxlog.WithLogger(runCtx, logger)

		var (
			buf *bytes.Buffer
			out = e.opts.Stream
		)
		if out == nil {
			buf = &bytes.Buffer{}
			out = buf
		}

		start := time.Now()
		code, err := worker.RunNode(runCtx, e.store, e.topo, a.NodeID, e.reg, os.Getpid(), out)
		res := executor.Result{
			Assignment: a,
			PID:        os.Getpid(),
			ExitCode:   code,
			Duration:   time.Since(start),
			TimedOut:   errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil,
		}
		if buf != nil {
			res.Output = buf.Bytes()
		}
		if code == worker.ExitInfrastructure {
			res.Err = err
		}
		logger.Debug("Node goroutine finished.", "exit_code", code, "duration", res.Duration)
		done <- res
		return nil
	})
	return nil
}

// Wait blocks until every started goroutine has finished.
func (e *Executor) Wait() {
	e.group.Wait()
}
