// Package node defines the execution state of a single node: its status, the
// allowed transitions between statuses, and the status slot record that is
// stored per node in a nodestore.
package node

import (
	"errors"
	"fmt"
	"time"
)

// Status is the execution status of a node. The numeric values are part of
// the shared-memory layout and must not be reordered.
type Status uint32

const (
	// StatusPending indicates the node is waiting for its predecessors.
	StatusPending Status = iota
	// StatusReady indicates every predecessor completed and the node is
	// waiting to be dispatched.
	StatusReady
	// StatusDispatched indicates a worker has been spawned for the node.
	StatusDispatched
	// StatusRunning indicates the worker confirmed it started the unit.
	StatusRunning
	// StatusCompleted indicates the unit finished successfully.
	StatusCompleted
	// StatusFailed indicates the unit, or its worker, failed.
	StatusFailed
)

var statusNames = [...]string{"pending", "ready", "dispatched", "running", "completed", "failed"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", uint32(s))
}

// MarshalText renders the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return int(s) < len(statusNames)
}

// Terminal reports whether s is Completed or Failed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether a node may move from one status to another.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusReady
	case StatusReady:
		return to == StatusDispatched
	case StatusDispatched:
		return to == StatusRunning || to == StatusFailed
	case StatusRunning:
		return to == StatusCompleted || to == StatusFailed
	}
	return false
}

// RunState is the global state of a run.
type RunState uint32

const (
	RunActive RunState = iota
	RunAllComplete
	RunAborted
)

func (r RunState) String() string {
	switch r {
	case RunActive:
		return "active"
	case RunAllComplete:
		return "all_complete"
	case RunAborted:
		return "aborted"
	}
	return fmt.Sprintf("run_state(%d)", uint32(r))
}

// MarshalText renders the run state by name.
func (r RunState) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Slot is the record kept for every node in a nodestore.
type Slot struct {
	Status Status `json:"status"`
	// Seq counts the writes applied to the slot.
	Seq        uint32    `json:"seq"`
	PID        int       `json:"pid,omitempty"`
	ExitCode   int       `json:"exit_code"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	// Detail carries the error detail of a failed node.
	Detail string `json:"detail,omitempty"`
}

// Transition is a compare-and-set request against a Slot.
type Transition struct {
	From     Status
	To       Status
	PID      int
	ExitCode int
	Detail   string
}

var (
	// ErrStaleStatus means the slot no longer holds Transition.From.
	ErrStaleStatus = errors.New("stale status")
	// ErrInvalidTransition means the requested edge of the state machine does not exist.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Apply checks tr against s and, if allowed, mutates s in place.
func (s *Slot) Apply(tr Transition, now time.Time) error {
	if s.Status != tr.From {
		return fmt.Errorf("%w: want %s, have %s", ErrStaleStatus, tr.From, s.Status)
	}
	if !CanTransition(tr.From, tr.To) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, tr.From, tr.To)
	}

	s.Status = tr.To
	s.Seq++
	switch tr.To {
	case StatusRunning:
		s.PID = tr.PID
		s.StartedAt = now
	case StatusCompleted, StatusFailed:
		if tr.PID != 0 {
			s.PID = tr.PID
		}
		s.ExitCode = tr.ExitCode
		s.Detail = tr.Detail
		s.FinishedAt = now
	}
	return nil
}

// Counts tallies slots by status.
type Counts map[Status]int

// Count tallies a snapshot of slots.
func Count(slots []Slot) Counts {
	c := make(Counts, len(statusNames))
	for _, s := range slots {
		c[s.Status]++
	}
	return c
}
