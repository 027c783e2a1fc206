package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, s.Close())
	})
	return s
}

func TestOpen(t *testing.T) {
	t.Run("in-memory database", func(t *testing.T) {
		s, err := Open(":memory:")
		require.NoError(t, err)
		defer s.Close()
		assert.NotNil(t, s.db)
	})

	t.Run("file-based database", func(t *testing.T) {
		path := t.TempDir() + "/ctxpack.db"
		s, err := Open(path)
		require.NoError(t, err)
		defer s.Close()
		assert.NotNil(t, s.db)
	})
}

func TestDeriveLegacyStatus(t *testing.T) {
	cases := []struct {
		content ContentStatus
		vector  VectorStatus
		want    LegacyStatus
	}{
		{ContentMissing, VectorMissing, LegacyPending},
		{ContentSyncing, VectorMissing, LegacyIndexing},
		{ContentReady, VectorIndexing, LegacyIndexing},
		{ContentReady, VectorReady, LegacyReady},
		{ContentFailed, VectorMissing, LegacyFailed},
		{ContentReady, VectorFailed, LegacyFailed},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, DeriveLegacyStatus(c.content, c.vector))
	}
}
