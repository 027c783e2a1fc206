package agent

import (
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctxpack/ctxpack/internal/observability"
	"github.com/ctxpack/ctxpack/internal/store"
)

func newTestLogger() *observability.Logger {
	cfg := observability.DefaultLoggerConfig()
	cfg.Output = io.Discard
	return observability.NewLogger(cfg)
}

func TestRunResearchJob_Completes(t *testing.T) {
	ctx := context.Background()
	engine, st, embedder := newTestEngine(t)

	path := t.TempDir()
	r := &store.Resource{Name: "demo", Scope: store.ScopeGlobal, Kind: store.KindLocal, LocalPath: &path}
	id, err := st.CreateResource(ctx, r)
	require.NoError(t, err)
	r.ID = id
	r.VectorStatus = store.VectorReady
	require.NoError(t, st.UpdateResource(ctx, r))

	vec, err := embedder.EmbedOne(ctx, "gamma")
	require.NoError(t, err)
	_, err = st.ReplaceChunks(ctx, id, []*store.Chunk{
		{Filepath: "g.txt", LineStart: 1, LineEnd: 1, Text: "gamma", ContextualizedText: "gamma", Hash: "h1", Embedding: vec},
	})
	require.NoError(t, err)

	mock := NewMock("test-model", []ModelEvent{
		{Kind: EventToolCall, ToolName: "search", ToolCallID: "1", ToolInput: json.RawMessage(`{"query":"gamma"}`)},
		{Kind: EventFinish, FinishReason: "stop"},
	})
	d := New(mock, engine, nil)

	jobID, err := st.CreateResearchJob(ctx, &store.ResearchJob{Query: "gamma", ResourceIDs: []string{id}})
	require.NoError(t, err)

	d.RunResearchJob(ctx, st, jobID, newTestLogger())

	job, err := st.GetResearchJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, store.ResearchCompleted, job.Status)
	require.NotNil(t, job.Result)

	var payload researchResult
	require.NoError(t, json.Unmarshal([]byte(*job.Result), &payload))
	assert.Equal(t, "test-model", payload.Model)
	require.Len(t, payload.Sources, 1)
	assert.Equal(t, "g.txt", payload.Sources[0].Filepath)
}

func TestRunResearchJob_PersistsFailure(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer st.Close()

	mock := NewMock("test-model", []ModelEvent{
		{Kind: EventError, Err: assertErr{"model exploded"}},
	})
	d := New(mock, nil, nil)

	jobID, err := st.CreateResearchJob(ctx, &store.ResearchJob{Query: "q", ResourceIDs: nil})
	require.NoError(t, err)

	d.RunResearchJob(ctx, st, jobID, newTestLogger())

	job, err := st.GetResearchJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, store.ResearchFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Contains(t, *job.Error, "model exploded")
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }
