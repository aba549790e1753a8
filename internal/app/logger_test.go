package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("info"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestNewLogger(t *testing.T) {
	t.Run("json renames the error key", func(t *testing.T) {
		var buf bytes.Buffer
		NewLogger("info", "json", &buf).Error("Node failed.", "error", errors.New("boom"))

		var rec map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
		assert.Equal(t, "boom", rec["err"])
		assert.NotContains(t, rec, "error")
		assert.Equal(t, "Node failed.", rec["msg"])
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		NewLogger("info", "text", &buf).Info("Run started.", "nodes", 4)
		assert.Contains(t, buf.String(), `msg="Run started."`)
		assert.Contains(t, buf.String(), "nodes=4")
	})

	t.Run("auto is json off a terminal", func(t *testing.T) {
		var buf bytes.Buffer
		NewLogger("info", "auto", &buf).Info("hello")
		assert.True(t, json.Valid(bytes.TrimSpace(buf.Bytes())), buf.String())
	})

	t.Run("level filters", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger("warn", "text", &buf)
		logger.Info("hidden")
		logger.Warn("shown")
		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})
}
