package app

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/specialistvlad/shmdag/internal/ctxlog"
	"github.com/specialistvlad/shmdag/internal/localsession"
	"github.com/specialistvlad/shmdag/internal/procexecutor"
	"github.com/specialistvlad/shmdag/internal/scheduler"
	"github.com/specialistvlad/shmdag/internal/session"
	"github.com/specialistvlad/shmdag/internal/shmname"
	"github.com/specialistvlad/shmdag/internal/shmsession"
)

// Run loads the graph, executes it and tears the run down. The report is
// returned whenever the scheduler ran, even if the run was aborted.
func (a *App) Run(ctx context.Context) (*scheduler.Report, error) {
	ctx = a.context(ctx)
	a.logger.Debug("App.Run method started.", "graph", a.config.GraphPath, "executor", a.config.Executor)

	g, err := LoadGraph(ctx, a.config.GraphPath, a.registry)
	if err != nil {
		return nil, err
	}

	runID := uuid.New()
	logger := a.logger.With("run_id", runID.String())
	ctx = ctxlog.WithLogger(ctx, logger)

	factory, stdout, err := a.sessionFactory(runID)
	if err != nil {
		return nil, err
	}
	sess, err := factory.NewSession(ctx, g)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	cleanupCtx := context.WithoutCancel(ctx)
	if a.config.StatusAddr != "" {
		h := newStatusHandler(ctx, sess.Graph(), runID.String(), a.config.Suffix, a.metrics)
		if err := a.startStatusServer(ctx, a.config.StatusAddr, h); err != nil {
			sess.Close(cleanupCtx)
			return nil, err
		}
	}

	sched := scheduler.New(sess.Graph(), sess.Executor(), scheduler.Options{
		Workers:     a.config.Workers,
		Stdout:      stdout,
		NodeTimeout: a.config.NodeTimeout,
		RunID:       runID.String(),
		Metrics:     a.metrics,
	})
	report, runErr := sched.Run(ctx)

	// Handlers read the store, so the server goes down before the session.
	a.stopStatusServer(cleanupCtx)
	if err := sess.Close(cleanupCtx); err != nil {
		logger.Error("Failed to release run resources.", "error", err)
		if runErr == nil {
			runErr = fmt.Errorf("close session: %w", err)
		}
	}

	a.logger.Debug("App.Run method finished.")
	return report, runErr
}

// sessionFactory picks the backend. Output is written by the scheduler in
// dispatch order, or streamed by the executor when ordering is off; the
// returned writer is the scheduler's.
func (a *App) sessionFactory(runID uuid.UUID) (session.Factory, io.Writer, error) {
	stdout := a.outW
	var stream io.Writer
	if !a.config.OrderedOutput {
		stream = &lockedWriter{w: a.outW}
		stdout = nil
	}

	if a.config.Executor == ExecutorThread {
		return &localsession.Factory{
			Registry:    a.registry,
			NodeTimeout: a.config.NodeTimeout,
			Stream:      stream,
		}, stdout, nil
	}

	name, err := shmname.Parse(a.config.Suffix)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return &shmsession.Factory{
		Name:         name,
		Dir:          a.config.ShmDir,
		RunID:        runID,
		LockObserver: a.metrics,
		Process: procexecutor.Options{
			Executable:  a.config.WorkerExecutable,
			LogLevel:    a.config.LogLevel,
			NodeTimeout: a.config.NodeTimeout,
			KillGrace:   a.config.KillGrace,
			Stream:      stream,
			Stderr:      a.errW,
		},
	}, stdout, nil
}
