package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctxpack/ctxpack/internal/chunker"
	"github.com/ctxpack/ctxpack/internal/embedding"
	"github.com/ctxpack/ctxpack/internal/materializer"
	"github.com/ctxpack/ctxpack/internal/store"
)

func newTestPipeline(t *testing.T, embedder embedding.Embedder) (*Pipeline, *store.Store) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	mat := materializer.New(materializer.Config{ReposRoot: t.TempDir()})
	ck := chunker.New(chunker.Config{})

	return &Pipeline{
		Store:        st,
		Materializer: mat,
		Chunker:      ck,
		Embedder:     embedder,
	}, st
}

func writeLocalRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		full := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return root
}

func createLocalResource(t *testing.T, st *store.Store, path string) *store.Resource {
	t.Helper()
	r := &store.Resource{
		Name:      "local-resource",
		Scope:     store.ScopeGlobal,
		Kind:      store.KindLocal,
		LocalPath: &path,
	}
	id, err := st.CreateResource(context.Background(), r)
	require.NoError(t, err)
	r.ID = id
	return r
}

func TestPipeline_RunSync_Local(t *testing.T) {
	root := writeLocalRepo(t, map[string]string{
		"main.go": "package main\n\nfunc main() {}\n",
	})
	p, st := newTestPipeline(t, embedding.NewMock(8))
	r := createLocalResource(t, st, root)

	jobID, err := st.EnqueueIndexJob(context.Background(), r.ID, store.JobSync)
	require.NoError(t, err)
	require.NoError(t, st.StartJob(context.Background(), jobID))

	require.NoError(t, p.RunSync(context.Background(), r.ID, jobID))

	job, err := st.GetIndexJob(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, store.JobCompleted, job.Status)

	updated, err := st.GetResource(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ContentReady, updated.ContentStatus)
	assert.Nil(t, updated.ContentError)
}

func TestPipeline_RunIndex_ZeroFiles(t *testing.T) {
	root := t.TempDir()
	p, st := newTestPipeline(t, embedding.NewMock(8))
	r := createLocalResource(t, st, root)

	jobID, err := st.EnqueueIndexJob(context.Background(), r.ID, store.JobIndex)
	require.NoError(t, err)
	require.NoError(t, st.StartJob(context.Background(), jobID))

	require.NoError(t, p.RunIndex(context.Background(), r.ID, jobID))

	job, err := st.GetIndexJob(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, store.JobCompleted, job.Status)
	assert.Equal(t, progressDone, job.Progress)

	updated, err := st.GetResource(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, store.VectorReady, updated.VectorStatus)
	assert.Equal(t, 0, updated.ChunkCount)
}

func TestPipeline_RunIndex_Success(t *testing.T) {
	root := writeLocalRepo(t, map[string]string{
		"a.go": "package a\n\nfunc Foo() int {\n\treturn 1\n}\n",
		"b.go": "package a\n\nfunc Bar() int {\n\treturn 2\n}\n",
	})
	p, st := newTestPipeline(t, embedding.NewMock(8))
	r := createLocalResource(t, st, root)

	jobID, err := st.EnqueueIndexJob(context.Background(), r.ID, store.JobIndex)
	require.NoError(t, err)
	require.NoError(t, st.StartJob(context.Background(), jobID))

	require.NoError(t, p.RunIndex(context.Background(), r.ID, jobID))

	job, err := st.GetIndexJob(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, store.JobCompleted, job.Status)
	assert.Empty(t, job.Warnings)

	updated, err := st.GetResource(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, store.VectorReady, updated.VectorStatus)
	assert.Greater(t, updated.ChunkCount, 0)

	count, err := st.CountChunks(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.ChunkCount, count)
}

// batchFailEmbedder fails EmbedMany entirely for one designated 0-indexed
// batch, simulating a whole-call provider error, and otherwise embeds
// normally via an underlying mock.
type batchFailEmbedder struct {
	*embedding.MockEmbedder
	failBatch   int
	batchSize   int
	seenBatches int
}

func (e *batchFailEmbedder) EmbedMany(ctx context.Context, texts []string) ([]embedding.Vector, error) {
	idx := e.seenBatches
	e.seenBatches++
	if idx == e.failBatch {
		return nil, fmt.Errorf("provider unavailable")
	}
	return e.MockEmbedder.EmbedMany(ctx, texts)
}

func TestPipeline_RunIndex_EmbedderBatchFailure(t *testing.T) {
	files := map[string]string{}
	// 250 chunks: each file holds one distinct top-level function, which the
	// Go chunker turns into exactly one chunk, one file per chunk for a
	// predictable count.
	for i := 0; i < 250; i++ {
		files[fmt.Sprintf("pkg/file%03d.go", i)] = fmt.Sprintf("package pkg\n\nfunc F%03d() int {\n\treturn %d\n}\n", i, i)
	}
	root := writeLocalRepo(t, files)

	embedder := &batchFailEmbedder{MockEmbedder: embedding.NewMock(8), failBatch: 1}
	p, st := newTestPipeline(t, embedder)
	r := createLocalResource(t, st, root)

	jobID, err := st.EnqueueIndexJob(context.Background(), r.ID, store.JobIndex)
	require.NoError(t, err)
	require.NoError(t, st.StartJob(context.Background(), jobID))

	require.NoError(t, p.RunIndex(context.Background(), r.ID, jobID))

	job, err := st.GetIndexJob(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, store.JobCompleted, job.Status)

	embedWarnings := 0
	for _, w := range job.Warnings {
		if w.Stage == store.StageEmbed && w.Filepath == "" {
			embedWarnings++
		}
	}
	assert.Equal(t, 1, embedWarnings, "expected exactly one batch-level embed warning")

	updated, err := st.GetResource(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, store.VectorReady, updated.VectorStatus)
	assert.Equal(t, 250, updated.ChunkCount)

	nullCount := countNullEmbeddings(t, st, r.ID)
	assert.Equal(t, 100, nullCount)
}

func countNullEmbeddings(t *testing.T, st *store.Store, resourceID string) int {
	t.Helper()
	total, err := st.CountChunks(context.Background(), resourceID)
	require.NoError(t, err)

	query := []float32{1, 0, 0, 0, 0, 0, 0, 0}
	candidates, err := st.SearchVector(context.Background(), query, []string{resourceID}, total)
	require.NoError(t, err)
	return total - len(candidates)
}
