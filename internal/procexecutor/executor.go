// Package procexecutor runs every node in its own worker process.
//
// A worker process is this same binary re-executed with the hidden "worker"
// command. Its assignment travels in the environment (see worker.Config), so
// nothing but the segment name and the node id cross the process boundary.
package procexecutor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/specialistvlad/shmdag/internal/ctxlog"
	"github.com/specialistvlad/shmdag/internal/executor"
	"github.com/specialistvlad/shmdag/internal/worker"
)

// DefaultKillGrace is the time between SIGTERM and SIGKILL.
const DefaultKillGrace = 5 * time.Second

// Options configures an Executor.
type Options struct {
	// Executable is the worker binary. Empty means os.Executable().
	Executable string
	// Args are passed to the worker binary. Nil means ["worker"].
	Args []string
	// Segment is the shared-memory suffix of the run.
	Segment  string
	ShmDir   string
	LogLevel string
	// NodeTimeout bounds each worker. Zero means no limit.
	NodeTimeout time.Duration
	// KillGrace is the time between SIGTERM and SIGKILL. It also bounds how
	// long stdout is drained after the worker exits, when a process the unit
	// left behind still holds the pipe. Zero means DefaultKillGrace.
	KillGrace time.Duration
	// Stream receives worker stdout directly. Nil means stdout is buffered
	// and returned in Result.Output.
	Stream io.Writer
	// Stderr receives worker stderr. Nil means os.Stderr.
	Stderr io.Writer
	// Env is appended to the worker environment.
	Env []string
}

// Executor spawns worker processes.
type Executor struct {
	opts Options
	wg   sync.WaitGroup
}

var _ executor.Executor = (*Executor)(nil)

// New creates a process executor.
func New(opts Options) (*Executor, error) {
	if opts.Executable == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate worker executable: %w", err)
		}
		opts.Executable = exe
	}
	if opts.Args == nil {
		opts.Args = []string{"worker"}
	}
	if opts.KillGrace <= 0 {
		opts.KillGrace = DefaultKillGrace
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	return &Executor{opts: opts}, nil
}

// Start spawns the worker process for a.
func (e *Executor) Start(ctx context.Context, a executor.Assignment, done chan<- executor.Result) error {
	logger := ctxlog.FromContext(ctx).With("node", a.NodeID, "seq", a.Seq)

	runCtx, cancel := context.WithCancel(ctx)
	if e.opts.NodeTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, e.opts.NodeTimeout)
	}

	cmd := exec.CommandContext(runCtx, e.opts.Executable, e.opts.Args...)
	cfg := worker.Config{
		Segment:  e.opts.Segment,
		NodeID:   a.NodeID,
		ShmDir:   e.opts.ShmDir,
		LogLevel: e.opts.LogLevel,
	}
	cmd.Env = append(append(os.Environ(), e.opts.Env...), cfg.Environ()...)
	cmd.Stderr = e.opts.Stderr
	var buf *bytes.Buffer
	if e.opts.Stream != nil {
		cmd.Stdout = e.opts.Stream
	} else {
		buf = &bytes.Buffer{}
		cmd.Stdout = buf
	}
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = e.opts.KillGrace

	start := time.Now()
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("spawn worker for %s: %w", a.NodeID, err)
	}
	pid := cmd.Process.Pid
	logger.Debug("Worker spawned.", "pid", pid)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer cancel()

		waitErr := cmd.Wait()
		res := executor.Result{
			Assignment: a,
			PID:        pid,
			ExitCode:   -1,
			Duration:   time.Since(start),
			TimedOut:   errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil,
		}
		if cmd.ProcessState != nil {
			res.ExitCode = cmd.ProcessState.ExitCode()
		}
		if buf != nil {
			res.Output = buf.Bytes()
		}
		if errors.Is(waitErr, exec.ErrWaitDelay) && res.ExitCode >= 0 {
			logger.Warn("Worker exited but its stdout was held open; output was cut off.", "pid", pid, "grace", e.opts.KillGrace)
			waitErr = nil
		}
		// A plain non-zero exit is reported through ExitCode alone.
		var exitErr *exec.ExitError
		if waitErr != nil && (!errors.As(waitErr, &exitErr) || res.ExitCode < 0) {
			res.Err = waitErr
		}
		logger.Debug("Worker exited.", "pid", pid, "exit_code", res.ExitCode, "duration", res.Duration)
		done <- res
	}()
	return nil
}

// Wait blocks until every spawned worker has been reaped.
func (e *Executor) Wait() {
	e.wg.Wait()
}
