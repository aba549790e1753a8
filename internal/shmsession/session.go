// Package shmsession provides the process-mode session: the node state lives
// in a shared-memory segment and every node runs in its own worker process.
//
// The session is the segment's owner. Close tears the run down in a fixed
// order: wait for every worker, unmap, then unlink the segment and its
// semaphores.
package shmsession

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/specialistvlad/shmdag/internal/ctxlog"
	"github.com/specialistvlad/shmdag/internal/dag"
	"github.com/specialistvlad/shmdag/internal/executor"
	"github.com/specialistvlad/shmdag/internal/graph"
	"github.com/specialistvlad/shmdag/internal/procexecutor"
	"github.com/specialistvlad/shmdag/internal/rwlock"
	"github.com/specialistvlad/shmdag/internal/segment"
	"github.com/specialistvlad/shmdag/internal/session"
	"github.com/specialistvlad/shmdag/internal/shmname"
)

// Factory implements session.Factory for process mode.
type Factory struct {
	Name shmname.Name
	// Dir holds the shared-memory objects. Empty means the system default.
	Dir   string
	RunID uuid.UUID
	// LockObserver receives the orchestrator's lock wait durations.
	LockObserver rwlock.Observer
	// Process configures the worker processes. Segment and ShmDir are filled
	// in by the factory.
	Process procexecutor.Options
}

var _ session.Factory = (*Factory)(nil)

// NewSession creates the segment for g and a process executor bound to it.
func (f *Factory) NewSession(ctx context.Context, g *dag.Graph) (session.Session, error) {
	logger := ctxlog.FromContext(ctx).With("segment", f.Name.String())

	seg, err := segment.Create(ctx, f.Name, g, segment.Options{
		Dir:          f.Dir,
		RunID:        f.RunID,
		LockObserver: f.LockObserver,
	})
	if err != nil {
		return nil, err
	}
	s := &Session{seg: seg}

	mgr, err := graph.New(seg.Graph(), seg)
	if err != nil {
		return nil, errors.Join(err, s.release(ctx))
	}
	s.graph = mgr

	opts := f.Process
	opts.Segment = f.Name.Suffix()
	opts.ShmDir = seg.Dir()
	exec, err := procexecutor.New(opts)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("create process executor: %w", err), s.release(ctx))
	}
	s.exec = exec

	logger.Debug("Process session created.", "run_id", seg.RunID().String(), "size", seg.Header().TotalSize)
	return s, nil
}

// Session implements session.Session for process mode.
type Session struct {
	seg   *segment.Segment
	graph *graph.Manager
	exec  *procexecutor.Executor
}

func (s *Session) Graph() graph.Graph {
	return s.graph
}

func (s *Session) Executor() executor.Executor {
	return s.exec
}

// Segment returns the session's segment.
func (s *Session) Segment() *segment.Segment {
	return s.seg
}

// Close waits for every worker process, then unmaps and unlinks the segment.
// The objects are unlinked even if the unmap fails.
func (s *Session) Close(ctx context.Context) error {
	if s.exec != nil {
		s.exec.Wait()
	}
	return s.release(ctx)
}

func (s *Session) release(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx).With("segment", s.seg.Name().String())
	closeErr := s.seg.Close()
	if closeErr != nil {
		logger.Warn("Failed to unmap segment.", "error", closeErr)
	}
	unlinkErr := s.seg.Unlink()
	if unlinkErr != nil {
		logger.Error("Failed to unlink segment.", "error", unlinkErr)
	} else {
		logger.Debug("Segment unlinked.")
	}
	return errors.Join(closeErr, unlinkErr)
}
