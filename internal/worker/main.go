package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/specialistvlad/shmdag/internal/ctxlog"
	"github.com/specialistvlad/shmdag/internal/dag"
	"github.com/specialistvlad/shmdag/internal/handlers"
	"github.com/specialistvlad/shmdag/internal/nodestore"
	"github.com/specialistvlad/shmdag/internal/segment"
	"github.com/specialistvlad/shmdag/internal/shmname"
)

// Environment variables that carry a worker's assignment.
const (
	EnvSegment  = "SHMDAG_SEGMENT"
	EnvNode     = "SHMDAG_NODE"
	EnvShmDir   = "SHMDAG_SHM_DIR"
	EnvLogLevel = "SHMDAG_LOG_LEVEL"
)

// Exit codes of a worker process.
const (
	ExitCompleted = 0
	ExitFailed    = 1
	// ExitInfrastructure means the worker could not run the protocol at all,
	// e.g. the segment could not be opened.
	ExitInfrastructure = 2
)

// Config is a worker process's assignment.
type Config struct {
	// Segment is the shared-memory suffix of the run.
	Segment  string
	NodeID   string
	ShmDir   string
	LogLevel string
}

// ConfigFromEnv reads the assignment from the environment.
func ConfigFromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		Segment:  getenv(EnvSegment),
		NodeID:   getenv(EnvNode),
		ShmDir:   getenv(EnvShmDir),
		LogLevel: getenv(EnvLogLevel),
	}
	if cfg.Segment == "" || cfg.NodeID == "" {
		return cfg, fmt.Errorf("worker needs %s and %s", EnvSegment, EnvNode)
	}
	return cfg, nil
}

// IsWorkerEnv reports whether the environment carries a worker assignment.
func IsWorkerEnv(getenv func(string) string) bool {
	return getenv(EnvSegment) != "" && getenv(EnvNode) != ""
}

// Environ returns the variables that hand cfg to a child process.
func (c Config) Environ() []string {
	env := []string{
		EnvSegment + "=" + c.Segment,
		EnvNode + "=" + c.NodeID,
	}
	if c.ShmDir != "" {
		env = append(env, EnvShmDir+"="+c.ShmDir)
	}
	if c.LogLevel != "" {
		env = append(env, EnvLogLevel+"="+c.LogLevel)
	}
	return env
}

// Main is the body of a worker process. It opens the segment, runs the node
// and unmaps the segment again. It never unlinks anything.
func Main(ctx context.Context, cfg Config, reg *handlers.Handlers, stdout io.Writer) int {
	pid := os.Getpid()
	logger := ctxlog.FromContext(ctx).With("segment", cfg.Segment, "node", cfg.NodeID, "pid", pid)
	ctx = ctxlog.WithLogger(ctx, logger)

	name, err := shmname.Parse(cfg.Segment)
	if err != nil {
		logger.Error("Invalid segment name.", "error", err)
		return ExitInfrastructure
	}

	seg, err := segment.Open(ctx, name, segment.Options{Dir: cfg.ShmDir})
	if err != nil {
		logger.Error("Failed to open segment.", "error", err)
		return ExitInfrastructure
	}
	defer func() {
		if err := seg.Close(); err != nil {
			logger.Warn("Failed to unmap segment.", "error", err)
		}
	}()
	logger = logger.With("run_id", seg.RunID().String())
	ctx = ctxlog.WithLogger(ctx, logger)

	code, err := RunNode(ctx, seg, seg.Graph(), cfg.NodeID, reg, pid, stdout)
	if code == ExitInfrastructure {
		logger.Error("Worker protocol failed.", "error", err)
	}
	return code
}

// RunNode resolves the unit of nodeID and runs it against store. A payload
// that does not resolve fails the node like any other unit error. It returns
// the worker exit code together with the error behind it.
func RunNode(ctx context.Context, store nodestore.Store, topo *dag.Graph, nodeID string, reg *handlers.Handlers, pid int, out io.Writer) (int, error) {
	index, ok := topo.Index(nodeID)
	if !ok {
		return ExitInfrastructure, fmt.Errorf("node %q is not part of the graph", nodeID)
	}

	unit, err := reg.Resolve(topo.Node(index).Payload)
	if err != nil {
		unit = failingUnit{err}
	}

	err = New(store, index, nodeID, unit, pid).Run(ctx, out)
	switch {
	case err == nil:
		return ExitCompleted, nil
	case isNodeError(err):
		return ExitFailed, err
	default:
		return ExitInfrastructure, err
	}
}

func isNodeError(err error) bool {
	var nodeErr *NodeExecutionError
	return errors.As(err, &nodeErr)
}

type failingUnit struct{ err error }

func (u failingUnit) Execute(context.Context, io.Writer) error {
	return u.err
}
