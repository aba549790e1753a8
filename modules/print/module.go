// Package print provides the "print" unit: it writes the node's label and a
// newline to the node's output.
package print

import (
	"context"
	"fmt"
	"io"

	"github.com/specialistvlad/shmdag/internal/ctxlog"
	"github.com/specialistvlad/shmdag/internal/dag"
	"github.com/specialistvlad/shmdag/internal/handlers"
)

// Module implements the handlers.Module interface for this package.
type Module struct{}

// Unit prints a label.
type Unit struct {
	Label string
}

// Execute writes the label line.
func (u *Unit) Execute(ctx context.Context, out io.Writer) error {
	ctxlog.FromContext(ctx).Debug("Printing label.", "label", u.Label)
	_, err := fmt.Fprintln(out, u.Label)
	return err
}

// New is the factory for the print kind.
func New(p dag.Payload) (handlers.Unit, error) {
	if len(p.Command) > 0 || p.URL != "" {
		return nil, fmt.Errorf("print node must not carry a command or url")
	}
	return &Unit{Label: p.Label}, nil
}

// Register registers the unit with the handler registry.
func (m *Module) Register(h *handlers.Handlers) {
	h.Register(dag.KindPrint, New)
}
