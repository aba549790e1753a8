package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/specialistvlad/shmdag/internal/ctxlog"
	"github.com/specialistvlad/shmdag/internal/dag"
	"github.com/specialistvlad/shmdag/internal/handlers"
	"github.com/specialistvlad/shmdag/internal/model"
)

// ErrGraph is matched by every failure to read or build the graph.
var ErrGraph = errors.New("graph build failed")

// LoadGraph reads the graph file at path, builds the topology and checks
// that every node's kind has a registered unit.
func LoadGraph(ctx context.Context, path string, reg *handlers.Handlers) (*dag.Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading graph...", "path", path)

	def, err := model.Load(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGraph, err)
	}
	g, err := def.Build()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGraph, err)
	}
	if err := reg.Validate(g); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGraph, err)
	}

	logger.Info("Graph loaded successfully.", "nodes", g.Len(), "edges", len(g.Edges()))
	return g, nil
}
