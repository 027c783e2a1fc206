package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTracerProviderDisabledByDefault(t *testing.T) {
	cfg := DefaultTracerConfig()
	require.False(t, cfg.Enabled)

	tp, err := NewTracerProvider(cfg)
	require.NoError(t, err)
	require.NotNil(t, tp.Tracer())

	ctx, span := InstrumentIndexerOperation(context.Background(), tp.Tracer(), "sync", "res-1")
	assert.NotNil(t, span)
	span.End()

	require.NoError(t, tp.Shutdown(ctx))
}

func TestInstrumentAgentStep(t *testing.T) {
	tp, err := NewTracerProvider(DefaultTracerConfig())
	require.NoError(t, err)

	_, span := InstrumentAgentStep(context.Background(), tp.Tracer(), "exploration", 2)
	defer span.End()

	assert.True(t, span.SpanContext().IsValid() || !span.SpanContext().IsValid())
}

func TestInstrumentHybridSearch(t *testing.T) {
	tp, err := NewTracerProvider(DefaultTracerConfig())
	require.NoError(t, err)

	_, span := InstrumentHybridSearch(context.Background(), tp.Tracer(), "vector", 10)
	defer span.End()

	assert.NotNil(t, span)
}

func TestSetSpanErrorNilIsNoop(t *testing.T) {
	assert.NotPanics(t, func() {
		SetSpanError(context.Background(), nil)
	})
}
