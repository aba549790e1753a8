package inmemorystore

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/specialistvlad/shmdag/internal/node"
	"github.com/specialistvlad/shmdag/internal/nodestore"
)

// Store is an in-memory implementation of nodestore.Store.
type Store struct {
	mu       sync.RWMutex
	slots    []node.Slot
	runState node.RunState
	now      func() time.Time
}

var _ nodestore.Store = (*Store)(nil)

// New creates a store with n Pending slots.
func New(n int) *Store {
	return &Store{
		slots: make([]node.Slot, n),
		now:   time.Now,
	}
}

// Len returns the number of slots.
func (s *Store) Len() int {
	return len(s.slots)
}

// Get returns a copy of slot i.
func (s *Store) Get(ctx context.Context, i int) (node.Slot, error) {
	if err := s.check(ctx, i); err != nil {
		return node.Slot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slots[i], nil
}

// Snapshot returns a copy of every slot.
func (s *Store) Snapshot(ctx context.Context) ([]node.Slot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.slots), nil
}

// Transition applies tr to slot i.
func (s *Store) Transition(ctx context.Context, i int, tr node.Transition) (node.Slot, error) {
	if err := s.check(ctx, i); err != nil {
		return node.Slot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	slot := s.slots[i]
	if err := slot.Apply(tr, s.now()); err != nil {
		return s.slots[i], fmt.Errorf("slot %d: %w", i, err)
	}
	s.slots[i] = slot
	return slot, nil
}

// RunState returns the global run state.
func (s *Store) RunState(ctx context.Context) (node.RunState, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runState, nil
}

// SetRunState records the global run state.
func (s *Store) SetRunState(ctx context.Context, state node.RunState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runState = state
	return nil
}

func (s *Store) check(ctx context.Context, i int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if i < 0 || i >= len(s.slots) {
		return fmt.Errorf("slot %d out of range [0,%d)", i, len(s.slots))
	}
	return nil
}
