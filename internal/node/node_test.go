package node

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	allowed := map[[2]Status]bool{
		{StatusPending, StatusReady}:       true,
		{StatusReady, StatusDispatched}:    true,
		{StatusDispatched, StatusRunning}:  true,
		{StatusDispatched, StatusFailed}:   true,
		{StatusRunning, StatusCompleted}:   true,
		{StatusRunning, StatusFailed}:      true,
	}

	for from := StatusPending; from <= StatusFailed; from++ {
		for to := StatusPending; to <= StatusFailed; to++ {
			assert.Equal(t, allowed[[2]Status{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestSlotApply(t *testing.T) {
	now := time.Unix(1700000000, 0)

	t.Run("walks the happy path", func(t *testing.T) {
		var s Slot
		require.NoError(t, s.Apply(Transition{From: StatusPending, To: StatusReady}, now))
		require.NoError(t, s.Apply(Transition{From: StatusReady, To: StatusDispatched}, now))
		require.NoError(t, s.Apply(Transition{From: StatusDispatched, To: StatusRunning, PID: 42}, now))
		require.NoError(t, s.Apply(Transition{From: StatusRunning, To: StatusCompleted}, now.Add(time.Second)))

		assert.Equal(t, StatusCompleted, s.Status)
		assert.Equal(t, uint32(4), s.Seq)
		assert.Equal(t, 42, s.PID)
		assert.Equal(t, now, s.StartedAt)
		assert.Equal(t, now.Add(time.Second), s.FinishedAt)
	})

	t.Run("records failure detail", func(t *testing.T) {
		s := Slot{Status: StatusRunning}
		require.NoError(t, s.Apply(Transition{From: StatusRunning, To: StatusFailed, ExitCode: 3, Detail: "boom"}, now))
		assert.Equal(t, StatusFailed, s.Status)
		assert.Equal(t, 3, s.ExitCode)
		assert.Equal(t, "boom", s.Detail)
	})

	t.Run("rejects stale from", func(t *testing.T) {
		s := Slot{Status: StatusDispatched}
		err := s.Apply(Transition{From: StatusPending, To: StatusReady}, now)
		assert.ErrorIs(t, err, ErrStaleStatus)
		assert.Equal(t, StatusDispatched, s.Status)
	})

	t.Run("rejects invalid edge", func(t *testing.T) {
		s := Slot{Status: StatusCompleted}
		err := s.Apply(Transition{From: StatusCompleted, To: StatusRunning}, now)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestStrings(t *testing.T) {
	assert.Equal(t, "dispatched", StatusDispatched.String())
	assert.Equal(t, "status(99)", Status(99).String())
	assert.False(t, Status(99).Valid())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.Equal(t, "aborted", RunAborted.String())
}

func TestCount(t *testing.T) {
	c := Count([]Slot{{Status: StatusCompleted}, {Status: StatusCompleted}, {Status: StatusFailed}})
	assert.Equal(t, 2, c[StatusCompleted])
	assert.Equal(t, 1, c[StatusFailed])
	assert.Equal(t, 0, c[StatusPending])
}
