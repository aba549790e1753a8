// Package command provides the "command" unit: it prints the node's label,
// then runs an external program whose stdout becomes part of the node's
// output.
package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/exec"
	"slices"
	"syscall"
	"time"

	"github.com/specialistvlad/shmdag/internal/ctxlog"
	"github.com/specialistvlad/shmdag/internal/dag"
	"github.com/specialistvlad/shmdag/internal/handlers"
)

// killGrace is how long a cancelled command gets between SIGTERM and SIGKILL.
const killGrace = 2 * time.Second

// Module implements the handlers.Module interface for this package.
type Module struct{}

// Unit runs one command.
type Unit struct {
	Label string
	Argv  []string
	Env   map[string]string
	// Stderr receives the command's stderr. Nil means os.Stderr.
	Stderr io.Writer
}

// Execute prints the label line and runs the command to completion. A
// non-zero exit is an error.
func (u *Unit) Execute(ctx context.Context, out io.Writer) error {
	logger := ctxlog.FromContext(ctx)
	if u.Label != "" {
		if _, err := fmt.Fprintln(out, u.Label); err != nil {
			return err
		}
	}

	cmd := exec.CommandContext(ctx, u.Argv[0], u.Argv[1:]...)
	cmd.Stdout = out
	cmd.Stderr = u.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	cmd.Env = os.Environ()
	for _, k := range slices.Sorted(maps.Keys(u.Env)) {
		cmd.Env = append(cmd.Env, k+"="+u.Env[k])
	}
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = killGrace

	logger.Debug("Running command.", "argv", u.Argv)
	err := cmd.Run()
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ctx.Err() != nil {
			return fmt.Errorf("command %s: %w", u.Argv[0], ctx.Err())
		}
		return fmt.Errorf("command %s: %s", u.Argv[0], exitErr.ProcessState.String())
	}
	return fmt.Errorf("command %s: %w", u.Argv[0], err)
}

// New is the factory for the command kind.
func New(p dag.Payload) (handlers.Unit, error) {
	if len(p.Command) == 0 || p.Command[0] == "" {
		return nil, errors.New("command node needs a non-empty command")
	}
	return &Unit{Label: p.Label, Argv: p.Command, Env: p.Env}, nil
}

// Register registers the unit with the handler registry.
func (m *Module) Register(h *handlers.Handlers) {
	h.Register(dag.KindCommand, New)
}
