package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/specialistvlad/shmdag/internal/ctxlog"
	"github.com/specialistvlad/shmdag/internal/handlers"
	"github.com/specialistvlad/shmdag/internal/metrics"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	errW     io.Writer
	logger   *slog.Logger
	config   *Config
	registry *handlers.Handlers
	metrics  *metrics.Metrics

	httpServer *http.Server
	statusAddr string
}

// NewApp is the constructor for the main application. Node output goes to
// outW; logs and worker stderr go to errW. With no modules the core modules
// are registered.
func NewApp(outW, errW io.Writer, cfg *Config, modules ...handlers.Module) *App {
	errW = &lockedWriter{w: errW}
	logger := NewLogger(cfg.LogLevel, cfg.LogFormat, errW)
	logger.Debug("Logger configured successfully.")

	reg := newRegistry(modules)
	logger.Debug("All Go modules registered.", "kinds", reg.Kinds())

	return &App{
		outW:     outW,
		errW:     errW,
		logger:   logger,
		config:   cfg,
		registry: reg,
		metrics:  metrics.New(),
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *handlers.Handlers {
	return a.registry
}

// Metrics returns the run's metrics.
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}

// StatusAddr returns the bound address of the status server, or "" when it
// is not running.
func (a *App) StatusAddr() string {
	return a.statusAddr
}

func (a *App) context(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}

// lockedWriter serializes writes from goroutines and child-process pipes.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
