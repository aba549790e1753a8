// Package testutil holds helpers shared by tests that spawn worker processes
// or build graphs.
package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/specialistvlad/shmdag/internal/worker"
	"github.com/specialistvlad/shmdag/modules"
)

// MaybeRunWorker turns the test binary into a worker process when the
// environment carries a worker assignment. Call it first thing in TestMain;
// it does not return in that case.
//
//	func TestMain(m *testing.M) {
//		testutil.MaybeRunWorker()
//		os.Exit(m.Run())
//	}
func MaybeRunWorker() {
	if !worker.IsWorkerEnv(os.Getenv) {
		return
	}
	cfg, err := worker.ConfigFromEnv(os.Getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(worker.ExitInfrastructure)
	}

	level := slog.LevelInfo
	if cfg.LogLevel == "debug" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := worker.Main(ctx, cfg, modules.Registry(), os.Stdout)
	stop()
	os.Exit(code)
}

// WorkerArgs are the arguments that start the test binary without running
// any test, should the worker environment be missing.
var WorkerArgs = []string{"-test.run=^$"}
