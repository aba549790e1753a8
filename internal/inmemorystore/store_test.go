package inmemorystore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/specialistvlad/shmdag/internal/node"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAndTransition(t *testing.T) {
	s := New(2)
	ctx := context.Background()

	slot, err := s.Get(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, node.StatusPending, slot.Status)

	slot, err = s.Transition(ctx, 0, node.Transition{From: node.StatusPending, To: node.StatusReady})
	require.NoError(t, err)
	assert.Equal(t, node.StatusReady, slot.Status)

	_, err = s.Transition(ctx, 0, node.Transition{From: node.StatusPending, To: node.StatusReady})
	assert.ErrorIs(t, err, node.ErrStaleStatus)

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, node.StatusReady, snap[0].Status)
	assert.Equal(t, node.StatusPending, snap[1].Status)
}

func TestOutOfRange(t *testing.T) {
	s := New(1)
	_, err := s.Get(context.Background(), 1)
	assert.ErrorContains(t, err, "out of range")
	_, err = s.Transition(context.Background(), -1, node.Transition{})
	assert.ErrorContains(t, err, "out of range")
}

func TestRunState(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	state, err := s.RunState(ctx)
	require.NoError(t, err)
	assert.Equal(t, node.RunActive, state)

	require.NoError(t, s.SetRunState(ctx, node.RunAborted))
	state, err = s.RunState(ctx)
	require.NoError(t, err)
	assert.Equal(t, node.RunAborted, state)
}

func TestCancelledContext(t *testing.T) {
	s := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Snapshot(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

// TestStore_ConcurrentClaims verifies that exactly one of many goroutines
// racing on the same compare-and-set wins.
func TestStore_ConcurrentClaims(t *testing.T) {
	s := New(1)
	ctx := context.Background()
	numGoroutines := 100
	var wins atomic.Int32
	var wg sync.WaitGroup

	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			if _, err := s.Transition(ctx, 0, node.Transition{From: node.StatusPending, To: node.StatusReady}); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	slot, err := s.Get(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), slot.Seq)
}
