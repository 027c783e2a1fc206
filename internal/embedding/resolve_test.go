package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&MockProvider{}))
	defaultEmbedder := NewMock(1536)

	t.Run("no override returns the process default", func(t *testing.T) {
		e, err := Resolve(reg, "", defaultEmbedder, nil)
		require.NoError(t, err)
		assert.True(t, e == Embedder(defaultEmbedder))
	})

	t.Run("override builds a fresh embedder from the named provider", func(t *testing.T) {
		e, err := Resolve(reg, "mock", defaultEmbedder, map[string]any{"dimensions": 64})
		require.NoError(t, err)
		assert.Equal(t, 64, e.Dimensions())
	})

	t.Run("unknown override errors", func(t *testing.T) {
		_, err := Resolve(reg, "nonexistent", defaultEmbedder, nil)
		assert.Error(t, err)
	})
}
