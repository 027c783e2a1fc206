package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultLoggerConfig()
	cfg.Output = &buf
	cfg.AddSource = false

	logger := NewLogger(cfg)
	logger.Info("hello", "key", "value")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "hello", decoded["msg"])
	assert.Equal(t, "value", decoded["key"])
}

func TestWithContextAddsTraceID(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultLoggerConfig()
	cfg.Output = &buf
	cfg.AddSource = false

	logger := NewLogger(cfg)
	ctx := context.WithValue(context.Background(), TraceIDKey, "trace-123")
	logger.InfoContext(ctx, "traced")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "trace-123", decoded["trace_id"])
}

func TestLogAgentStep(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultLoggerConfig()
	cfg.Output = &buf
	cfg.AddSource = false

	logger := NewLogger(cfg)
	logger.LogAgentStep(context.Background(), "exploration", 3, "tool-call")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "agent_step", decoded["msg"])
	assert.Equal(t, float64(3), decoded["step"])
}
