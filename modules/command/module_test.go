package command

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/specialistvlad/shmdag/internal/dag"
	"github.com/specialistvlad/shmdag/internal/handlers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommand(t *testing.T) {
	h := handlers.NewWithModules(&Module{})

	t.Run("label then stdout", func(t *testing.T) {
		u, err := h.Resolve(dag.Payload{
			Kind:    dag.KindCommand,
			Label:   "greet",
			Command: []string{"sh", "-c", "echo $GREETING"},
			Env:     map[string]string{"GREETING": "hello"},
		})
		require.NoError(t, err)

		var buf bytes.Buffer
		require.NoError(t, u.Execute(context.Background(), &buf))
		assert.Equal(t, "greet\nhello\n", buf.String())
	})

	t.Run("non-zero exit fails", func(t *testing.T) {
		u, err := New(dag.Payload{Kind: dag.KindCommand, Command: []string{"sh", "-c", "exit 3"}})
		require.NoError(t, err)

		err = u.Execute(context.Background(), &bytes.Buffer{})
		assert.ErrorContains(t, err, "exit status 3")
	})

	t.Run("missing binary fails", func(t *testing.T) {
		u, err := New(dag.Payload{Kind: dag.KindCommand, Command: []string{"/nonexistent/shmdag-test"}})
		require.NoError(t, err)
		assert.Error(t, u.Execute(context.Background(), &bytes.Buffer{}))
	})

	t.Run("cancellation stops the command", func(t *testing.T) {
		u, err := New(dag.Payload{Kind: dag.KindCommand, Command: []string{"sleep", "30"}})
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		start := time.Now()
		err = u.Execute(ctx, &bytes.Buffer{})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), 10*time.Second)
	})

	t.Run("empty command is rejected", func(t *testing.T) {
		_, err := h.Resolve(dag.Payload{Kind: dag.KindCommand})
		assert.ErrorContains(t, err, "non-empty command")
	})
}
