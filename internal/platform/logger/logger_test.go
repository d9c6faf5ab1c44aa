package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_WritesJSONAtConfiguredLevel(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	l, err := Setup(LoggerConfig{Level: "warn", Output: &buf})
	require.NoError(t, err)
	require.NotNil(t, l)

	l.Info("dropped")
	l.Warn("kept", "component", "test")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "test", entry["component"])
}

func TestSetup_InvalidLevelFallsBackToInfo(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	l, err := Setup(LoggerConfig{Level: "chatty", Output: &buf})
	require.NoError(t, err)

	l.Debug("hidden")
	assert.Empty(t, buf.String())
	l.Info("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestFromContext(t *testing.T) {
	t.Parallel()
	custom := slog.New(slog.NewTextHandler(io.Discard, nil))
	fallback := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx := WithLogger(context.Background(), custom)
	assert.Same(t, custom, FromContext(ctx))
	assert.Same(t, custom, FromContextOrDefault(ctx, fallback))
	assert.Same(t, fallback, FromContextOrDefault(context.Background(), fallback))
	assert.NotNil(t, FromContext(context.Background()))
}

func TestTestLogBuffer_ParsesEntries(t *testing.T) {
	l, buf := NewTestLogger()
	l.Debug("first", "n", 1)
	l.Error("second", "component", "cache")

	require.Len(t, buf.Entries(), 2)
	entry, ok := buf.Find("second")
	require.True(t, ok)
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "cache", entry["component"])

	_, ok = buf.Find("missing")
	assert.False(t, ok)
}
