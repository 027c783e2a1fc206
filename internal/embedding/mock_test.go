package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMock(t *testing.T) {
	tests := []struct {
		name       string
		dimensions int
		wantModel  string
	}{
		{name: "default dimensions when zero", dimensions: 0, wantModel: "mock-1536"},
		{name: "small 128 dimensions", dimensions: 128, wantModel: "mock-128"},
		{name: "large 1536 dimensions", dimensions: 1536, wantModel: "mock-1536"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMock(tt.dimensions)
			require.NotNil(t, m)
			assert.Equal(t, tt.wantModel, m.Model())
		})
	}
}

func TestMockEmbedder_EmbedOne(t *testing.T) {
	ctx := context.Background()
	m := NewMock(384)

	t.Run("successful embedding", func(t *testing.T) {
		v, err := m.EmbedOne(ctx, "Hello, world!")
		require.NoError(t, err)
		assert.Len(t, v, 384)
	})

	t.Run("deterministic - same input produces same output", func(t *testing.T) {
		v1, err := m.EmbedOne(ctx, "deterministic test")
		require.NoError(t, err)
		v2, err := m.EmbedOne(ctx, "deterministic test")
		require.NoError(t, err)
		assert.Equal(t, v1, v2)
	})

	t.Run("different inputs produce different outputs", func(t *testing.T) {
		v1, err := m.EmbedOne(ctx, "text one")
		require.NoError(t, err)
		v2, err := m.EmbedOne(ctx, "text two")
		require.NoError(t, err)
		assert.NotEqual(t, v1, v2)
	})

	t.Run("vector is normalized", func(t *testing.T) {
		v, err := m.EmbedOne(ctx, "normalization test")
		require.NoError(t, err)

		var sumSquares float32
		for _, val := range v {
			sumSquares += val * val
		}
		magnitude := math.Sqrt(float64(sumSquares))
		assert.InDelta(t, 1.0, magnitude, 0.0001)
	})

	t.Run("empty text returns error", func(t *testing.T) {
		v, err := m.EmbedOne(ctx, "")
		assert.Error(t, err)
		assert.Nil(t, v)
	})

	t.Run("forced failure via FailOn", func(t *testing.T) {
		fm := NewMock(64)
		fm.FailOn = func(text string) bool { return text == "poison" }
		v, err := fm.EmbedOne(ctx, "poison")
		assert.Error(t, err)
		assert.Nil(t, v)
	})
}

func TestMockEmbedder_EmbedMany(t *testing.T) {
	ctx := context.Background()

	t.Run("successful batch embedding", func(t *testing.T) {
		m := NewMock(384)
		texts := []string{"first", "second", "third"}
		vectors, err := m.EmbedMany(ctx, texts)
		require.NoError(t, err)
		require.Len(t, vectors, 3)
		for _, v := range vectors {
			assert.Len(t, v, 384)
		}
	})

	t.Run("empty batch returns empty slice", func(t *testing.T) {
		m := NewMock(384)
		vectors, err := m.EmbedMany(ctx, []string{})
		require.NoError(t, err)
		assert.Empty(t, vectors)
	})

	t.Run("per-item failure leaves a gap without aborting the batch", func(t *testing.T) {
		m := NewMock(128)
		m.FailOn = func(text string) bool { return text == "bad" }
		texts := []string{"good one", "bad", "good two"}

		vectors, err := m.EmbedMany(ctx, texts)
		require.NoError(t, err)
		require.Len(t, vectors, 3)
		assert.NotNil(t, vectors[0])
		assert.Nil(t, vectors[1])
		assert.NotNil(t, vectors[2])
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		m := NewMock(64)
		cancelCtx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := m.EmbedMany(cancelCtx, []string{"a", "b"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestNormalize(t *testing.T) {
	t.Run("normalizes non-unit vector", func(t *testing.T) {
		v := Vector{3.0, 4.0}
		normalized := normalize(v)

		assert.InDelta(t, 0.6, normalized[0], 0.0001)
		assert.InDelta(t, 0.8, normalized[1], 0.0001)
	})

	t.Run("handles zero vector", func(t *testing.T) {
		v := Vector{0.0, 0.0, 0.0}
		assert.Equal(t, v, normalize(v))
	})
}

func TestMockProvider_Create(t *testing.T) {
	p := &MockProvider{}

	t.Run("creates with default dimensions", func(t *testing.T) {
		embedder, err := p.Create(map[string]any{})
		require.NoError(t, err)
		assert.Equal(t, DefaultDimensions, embedder.Dimensions())
	})

	t.Run("creates with custom dimensions as int", func(t *testing.T) {
		embedder, err := p.Create(map[string]any{"dimensions": 512})
		require.NoError(t, err)
		assert.Equal(t, 512, embedder.Dimensions())
	})

	t.Run("creates with custom dimensions as float64", func(t *testing.T) {
		embedder, err := p.Create(map[string]any{"dimensions": float64(256)})
		require.NoError(t, err)
		assert.Equal(t, 256, embedder.Dimensions())
	})

	t.Run("rejects negative dimensions", func(t *testing.T) {
		embedder, err := p.Create(map[string]any{"dimensions": -100})
		assert.Error(t, err)
		assert.Nil(t, embedder)
	})
}
