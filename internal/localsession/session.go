// Package localsession provides a concrete implementation of the
// session.Session and session.Factory interfaces for thread mode: node state
// lives in process memory and every node runs on a goroutine.
package localsession

import (
	"context"
	"io"
	"time"

	"github.com/specialistvlad/shmdag/internal/ctxlog"
	"github.com/specialistvlad/shmdag/internal/dag"
	"github.com/specialistvlad/shmdag/internal/executor"
	"github.com/specialistvlad/shmdag/internal/graph"
	"github.com/specialistvlad/shmdag/internal/handlers"
	"github.com/specialistvlad/shmdag/internal/inmemorystore"
	"github.com/specialistvlad/shmdag/internal/localexecutor"
	"github.com/specialistvlad/shmdag/internal/session"
)

// Factory implements session.Factory for local runs.
type Factory struct {
	Registry    *handlers.Handlers
	NodeTimeout time.Duration
	// Stream, when set, receives unit output directly instead of buffering
	// it per node.
	Stream io.Writer
}

var _ session.Factory = (*Factory)(nil)

// NewSession creates and configures a new local session.
func (f *Factory) NewSession(ctx context.Context, g *dag.Graph) (session.Session, error) {
	ctxlog.FromContext(ctx).Debug("Creating local session.", "nodes", g.Len())

	store := inmemorystore.New(g.Len())
	mgr, err := graph.New(g, store)
	if err != nil {
		return nil, err
	}
	exec := localexecutor.New(g, store, f.Registry, localexecutor.Options{
		NodeTimeout: f.NodeTimeout,
		Stream:      f.Stream,
	})

	return &Session{graph: mgr, executor: exec}, nil
}

// Session implements session.Session for local runs.
type Session struct {
	graph    *graph.Manager
	executor *localexecutor.Executor
}

func (s *Session) Graph() graph.Graph {
	return s.graph
}

func (s *Session) Executor() executor.Executor {
	return s.executor
}

// Close waits for any goroutine still running a node. Nothing else is held.
func (s *Session) Close(ctx context.Context) error {
	s.executor.Wait()
	ctxlog.FromContext(ctx).Debug("Local session closed.")
	return nil
}
