package app

import (
	"context"
	"fmt"
	"io"

	"github.com/specialistvlad/shmdag/internal/ctxlog"
	"github.com/specialistvlad/shmdag/internal/handlers"
	"github.com/specialistvlad/shmdag/internal/worker"
)

// RunWorker is the body of a worker process: it reads the assignment from
// getenv, logs to stderr and runs the node. It returns the process exit code.
func RunWorker(ctx context.Context, getenv func(string) string, stdout, stderr io.Writer, modules ...handlers.Module) int {
	cfg, err := worker.ConfigFromEnv(getenv)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return worker.ExitInfrastructure
	}

	logger := NewLogger(cfg.LogLevel, "auto", stderr)
	ctx = ctxlog.WithLogger(ctx, logger)
	return worker.Main(ctx, cfg, newRegistry(modules), stdout)
}
