package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/specialistvlad/shmdag/internal/ctxlog"
	"github.com/specialistvlad/shmdag/internal/graph"
	"github.com/specialistvlad/shmdag/internal/metrics"
	"github.com/specialistvlad/shmdag/internal/node"
)

// StatusSnapshot is the JSON document served on /status and printed by
// `inspect --json`.
type StatusSnapshot struct {
	RunID    string        `json:"run_id"`
	Segment  string        `json:"segment,omitempty"`
	RunState node.RunState `json:"run_state"`
	Counts   node.Counts   `json:"counts"`
	Nodes    []NodeStatus  `json:"nodes"`
}

// NodeStatus is one row of the status table.
type NodeStatus struct {
	ID string `json:"id"`
	node.Slot
}

// TakeSnapshot reads the run state and every slot of g.
func TakeSnapshot(ctx context.Context, g graph.Graph, runID, segment string) (*StatusSnapshot, error) {
	state, err := g.Store().RunState(ctx)
	if err != nil {
		return nil, err
	}
	slots, err := g.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	snap := &StatusSnapshot{
		RunID:    runID,
		Segment:  segment,
		RunState: state,
		Counts:   node.Count(slots),
		Nodes:    make([]NodeStatus, len(slots)),
	}
	for i, slot := range slots {
		snap.Nodes[i] = NodeStatus{ID: g.Topology().Node(i).ID, Slot: slot}
	}
	return snap, nil
}

// newStatusHandler builds the status server routes.
func newStatusHandler(ctx context.Context, g graph.Graph, runID, segment string, m *metrics.Metrics) http.Handler {
	logger := ctxlog.FromContext(ctx)
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		logger.Debug("Health check endpoint hit.", "remote_addr", req.RemoteAddr, "path", req.URL.Path)
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "OK")
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		snap, err := TakeSnapshot(req.Context(), g, runID, segment)
		if err != nil {
			http.Error(w, "status unavailable", http.StatusServiceUnavailable)
			logger.Warn("Failed to take status snapshot.", "error", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snap); err != nil {
			logger.Debug("Failed to write status response.", "error", err)
		}
	})
	return r
}

// startStatusServer binds addr and serves h in the background. Binding
// happens synchronously so a bad address fails the run before any spawn.
func (a *App) startStatusServer(ctx context.Context, addr string, h http.Handler) error {
	logger := ctxlog.FromContext(ctx)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("status server: %w", err)
	}

	a.httpServer = &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}
	a.statusAddr = ln.Addr().String()
	go func() {
		logger.Info("Status server starting.", "address", "http://"+a.statusAddr)
		// Serve returns http.ErrServerClosed on graceful shutdown.
		if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Status server failed unexpectedly.", "error", err)
		}
	}()
	return nil
}

func (a *App) stopStatusServer(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	if a.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(ctx); err != nil {
		logger.Error("Status server shutdown failed.", "error", err)
		return err
	}
	a.httpServer = nil
	logger.Debug("Status server shut down gracefully.")
	return nil
}
