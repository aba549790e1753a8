package cli

import (
	"context"
	"errors"
	"io"

	"github.com/specialistvlad/shmdag/internal/app"
	"github.com/specialistvlad/shmdag/internal/rwlock"
	"github.com/specialistvlad/shmdag/internal/segment"
	"github.com/specialistvlad/shmdag/internal/semaphore"
	"github.com/specialistvlad/shmdag/internal/topologystore"
)

// Exit codes.
const (
	ExitOK      = 0
	ExitAborted = 1
	ExitUsage   = 2
	ExitGraph   = 3
	ExitInfra   = 4
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(err error) error {
	return &ExitError{Code: ExitUsage, Message: err.Error()}
}

// Execute runs the command line args. Any error it returns is an *ExitError.
func Execute(ctx context.Context, outW, errW io.Writer, args []string) error {
	cmd := NewRootCommand(outW, errW)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		return toExitError(err)
	}
	return nil
}

func toExitError(err error) *ExitError {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	return &ExitError{Code: ExitCode(err), Message: err.Error()}
}

// ExitCode maps an error returned by the app package to a process exit code.
// Infrastructure causes win over the abort that they triggered.
func ExitCode(err error) int {
	var (
		exitErr *ExitError
		segErr  *segment.Error
	)
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &exitErr):
		return exitErr.Code
	case errors.Is(err, app.ErrInvalidConfig):
		return ExitUsage
	case errors.Is(err, app.ErrGraph):
		return ExitGraph
	case errors.As(err, &segErr),
		errors.Is(err, rwlock.ErrSemaphoreUnavailable),
		errors.Is(err, rwlock.ErrProtocolViolation),
		errors.Is(err, semaphore.ErrUnsupported),
		errors.Is(err, semaphore.ErrOverflow),
		errors.Is(err, semaphore.ErrCorrupt),
		errors.Is(err, topologystore.ErrCorrupt):
		return ExitInfra
	}
	return ExitAborted
}
