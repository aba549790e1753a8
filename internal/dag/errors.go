package dag

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidGraph is matched by every graph build failure.
	ErrInvalidGraph = errors.New("invalid graph")

	ErrInvalidID     = errors.New("invalid node id")
	ErrDuplicateID   = errors.New("duplicate node id")
	ErrDanglingEdge  = errors.New("dangling edge")
	ErrCycleDetected = errors.New("cycle detected")
)

// GraphError is returned by Build. Kind is one of the sentinel errors above
// and IDs names the offending nodes; for a cycle they are in path order with
// the first node repeated at the end.
type GraphError struct {
	Kind error
	IDs  []string
	Msg  string
}

func (e *GraphError) Error() string {
	return fmt.Sprintf("%v: %s", e.Kind, e.Msg)
}

// Unwrap lets errors.Is match both ErrInvalidGraph and the specific kind.
func (e *GraphError) Unwrap() []error {
	return []error{ErrInvalidGraph, e.Kind}
}

func duplicateError(id string) error {
	return &GraphError{Kind: ErrDuplicateID, IDs: []string{id}, Msg: fmt.Sprintf("%q is declared more than once", id)}
}

func danglingError(e Edge, missing string) error {
	return &GraphError{
		Kind: ErrDanglingEdge,
		IDs:  []string{e.From, e.To},
		Msg:  fmt.Sprintf("edge %s -> %s references unknown node %q", e.From, e.To, missing),
	}
}

func cycleError(path []string) error {
	return &GraphError{Kind: ErrCycleDetected, IDs: path, Msg: strings.Join(path, " -> ")}
}
