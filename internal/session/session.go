// Package session defines the core interfaces for creating and managing an
// execution session. It abstracts away where the node state lives and where
// the nodes run: a shared-memory segment with worker processes, or process
// memory with goroutines.
package session

import (
	"context"

	"github.com/specialistvlad/shmdag/internal/dag"
	"github.com/specialistvlad/shmdag/internal/executor"
	"github.com/specialistvlad/shmdag/internal/graph"
)

// Factory creates an execution Session for one graph.
type Factory interface {
	NewSession(ctx context.Context, g *dag.Graph) (Session, error)
}

// Session is the run context: it owns every resource of a single run and
// releases them in Close.
type Session interface {
	// Graph returns the topology and node state of the run.
	Graph() graph.Graph
	// Executor returns the executor that runs the nodes.
	Executor() executor.Executor
	// Close waits for the executor and releases the session's resources. It
	// accepts a context to allow for graceful cleanup operations.
	Close(ctx context.Context) error
}
