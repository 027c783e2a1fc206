package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexJobQueueOrdering(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	resourceID := createTestResource(t, s)

	id1, err := s.EnqueueIndexJob(ctx, resourceID, JobSync)
	require.NoError(t, err)
	id2, err := s.EnqueueIndexJob(ctx, resourceID, JobIndex)
	require.NoError(t, err)

	next, err := s.NextQueuedJob(ctx, resourceID)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, id1, next.ID)

	require.NoError(t, s.StartJob(ctx, id1))
	require.NoError(t, s.CompleteJob(ctx, id1))

	next, err = s.NextQueuedJob(ctx, resourceID)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, id2, next.ID)
}

func TestIndexJobLifecycleAndTerminalImmutability(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	resourceID := createTestResource(t, s)

	id, err := s.EnqueueIndexJob(ctx, resourceID, JobIndex)
	require.NoError(t, err)

	require.NoError(t, s.StartJob(ctx, id))
	require.NoError(t, s.UpdateProgress(ctx, id, 40, 10, 20))
	require.NoError(t, s.AppendWarning(ctx, id, Warning{Filepath: "a.go", Stage: StageEmbed, Message: "batch 1 failed"}))
	require.NoError(t, s.CompleteJob(ctx, id))

	job, err := s.GetIndexJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, JobCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	require.Len(t, job.Warnings, 1)
	assert.Equal(t, StageEmbed, job.Warnings[0].Stage)

	// Completing an already-terminal job is rejected, not silently re-applied.
	err = s.CompleteJob(ctx, id)
	assert.Error(t, err)
}

func TestFailJob(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	resourceID := createTestResource(t, s)

	id, err := s.EnqueueIndexJob(ctx, resourceID, JobSync)
	require.NoError(t, err)
	require.NoError(t, s.StartJob(ctx, id))
	require.NoError(t, s.FailJob(ctx, id, "materialize path missing"))

	job, err := s.GetIndexJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, JobFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Equal(t, "materialize path missing", *job.Error)
	assert.Equal(t, 100, job.Progress)
}
