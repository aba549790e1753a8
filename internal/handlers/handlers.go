// Package handlers maps payload kinds to the executable units that run them.
//
// A unit is whatever a worker does for one node. Modules contribute unit
// factories by kind ("print", "command"); the worker resolves a node's payload
// through the registry and executes the unit it gets back.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/specialistvlad/shmdag/internal/dag"
)

// ErrUnknownKind is returned by Resolve for a payload kind nobody registered.
var ErrUnknownKind = errors.New("unknown unit kind")

// Unit is one node's computation. Execute writes the node's visible output to
// out and returns a non-nil error if the node failed.
type Unit interface {
	Execute(ctx context.Context, out io.Writer) error
}

// UnitFunc adapts a function to Unit.
type UnitFunc func(ctx context.Context, out io.Writer) error

func (f UnitFunc) Execute(ctx context.Context, out io.Writer) error {
	return f(ctx, out)
}

// Factory builds the unit for a payload. It rejects payloads it cannot run.
type Factory func(p dag.Payload) (Unit, error)

// Module is the interface that every unit module implements to be registered.
type Module interface {
	Register(h *Handlers)
}

// Handlers holds all the registered unit factories.
type Handlers struct {
	all map[string]Factory
}

// New creates and initializes an empty registry.
func New() *Handlers {
	return &Handlers{
		all: make(map[string]Factory),
	}
}

// NewWithModules creates a registry and registers every module in order.
func NewWithModules(mods ...Module) *Handlers {
	h := New()
	for _, m := range mods {
		m.Register(h)
	}
	return h
}

// Register registers the factory for a payload kind.
func (h *Handlers) Register(kind string, f Factory) {
	if _, exists := h.all[kind]; exists {
		panic(fmt.Sprintf("unit handler for kind '%s' already registered", kind))
	}
	slog.Debug("Registering unit handler.", "kind", kind)
	h.all[kind] = f
}

// Resolve builds the unit for p.
func (h *Handlers) Resolve(p dag.Payload) (Unit, error) {
	kind := p.UnitKind()
	f, ok := h.all[kind]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownKind, kind)
	}
	u, err := f(p)
	if err != nil {
		return nil, fmt.Errorf("unit %q: %w", kind, err)
	}
	return u, nil
}

// Kinds returns the registered kinds, sorted.
func (h *Handlers) Kinds() []string {
	kinds := make([]string, 0, len(h.all))
	for k := range h.all {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// Validate checks that every node of g resolves to a unit, so a bad payload is
// reported before anything is spawned.
func (h *Handlers) Validate(g *dag.Graph) error {
	var errs []error
	for _, n := range g.Nodes() {
		if _, err := h.Resolve(n.Payload); err != nil {
			errs = append(errs, fmt.Errorf("node %q: %w", n.ID, err))
		}
	}
	return errors.Join(errs...)
}
