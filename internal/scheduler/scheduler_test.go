package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ctxpack/ctxpack/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func createResource(t *testing.T, st *store.Store) *store.Resource {
	t.Helper()
	path := t.TempDir()
	r := &store.Resource{
		Name:      "r",
		Scope:     store.ScopeGlobal,
		Kind:      store.KindLocal,
		LocalPath: &path,
	}
	id, err := st.CreateResource(context.Background(), r)
	require.NoError(t, err)
	r.ID = id
	return r
}

// recordingRunner records each job it runs, blocking on a barrier channel
// keyed by job id when one is registered, to let tests pause a job mid-run.
type recordingRunner struct {
	mu      sync.Mutex
	order   []string
	gates   map[string]chan struct{}
	waiting map[string]chan struct{}
}

func newRecordingRunner() *recordingRunner {
	return &recordingRunner{
		gates:   make(map[string]chan struct{}),
		waiting: make(map[string]chan struct{}),
	}
}

func (r *recordingRunner) gate(jobID string) {
	r.mu.Lock()
	r.gates[jobID] = make(chan struct{})
	r.waiting[jobID] = make(chan struct{})
	r.mu.Unlock()
}

func (r *recordingRunner) waitUntilRunning(t *testing.T, jobID string) {
	t.Helper()
	r.mu.Lock()
	ch := r.waiting[jobID]
	r.mu.Unlock()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("job %s never started", jobID)
	}
}

func (r *recordingRunner) release(jobID string) {
	r.mu.Lock()
	ch, ok := r.gates[jobID]
	r.mu.Unlock()
	if ok {
		close(ch)
	}
}

func (r *recordingRunner) run(ctx context.Context, resourceID, jobID string) error {
	r.mu.Lock()
	r.order = append(r.order, jobID)
	waiting, hasWaiting := r.waiting[jobID]
	gate, hasGate := r.gates[jobID]
	r.mu.Unlock()

	if hasWaiting {
		close(waiting)
	}
	if hasGate {
		<-gate
	}
	return nil
}

func (r *recordingRunner) Order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func TestScheduler_QueueOrdering(t *testing.T) {
	st := newTestStore(t)
	r := createResource(t, st)
	runner := newRecordingRunner()

	sched := New(st, runner.run, runner.run, nil, nil)

	s1, err := st.EnqueueIndexJob(context.Background(), r.ID, store.JobSync)
	require.NoError(t, err)
	i1, err := st.EnqueueIndexJob(context.Background(), r.ID, store.JobIndex)
	require.NoError(t, err)
	s2, err := st.EnqueueIndexJob(context.Background(), r.ID, store.JobSync)
	require.NoError(t, err)

	// Gate i1 so the test can assert I2 is enqueued while I1 is still running
	// and only starts after S2 completes.
	runner.gate(i1)

	sched.Ensure(context.Background(), r.ID, nil)

	runner.waitUntilRunning(t, i1)

	i2, err := st.EnqueueIndexJob(context.Background(), r.ID, store.JobIndex)
	require.NoError(t, err)
	sched.Ensure(context.Background(), r.ID, nil)

	// i2 must not have started while i1 is blocked.
	time.Sleep(50 * time.Millisecond)
	require.NotContains(t, runner.Order(), i2)

	runner.release(i1)

	require.Eventually(t, func() bool {
		return !sched.Active(r.ID)
	}, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, []string{s1, i1, s2, i2}, runner.Order())
}

func TestScheduler_IndependentResourcesRunInParallel(t *testing.T) {
	st := newTestStore(t)
	r1 := createResource(t, st)
	r2 := createResource(t, st)
	runner := newRecordingRunner()
	sched := New(st, runner.run, runner.run, nil, nil)

	j1, err := st.EnqueueIndexJob(context.Background(), r1.ID, store.JobSync)
	require.NoError(t, err)
	j2, err := st.EnqueueIndexJob(context.Background(), r2.ID, store.JobSync)
	require.NoError(t, err)

	runner.gate(j1)
	runner.gate(j2)

	sched.Ensure(context.Background(), r1.ID, nil)
	sched.Ensure(context.Background(), r2.ID, nil)

	runner.waitUntilRunning(t, j1)
	runner.waitUntilRunning(t, j2)

	runner.release(j1)
	runner.release(j2)

	require.Eventually(t, func() bool {
		return !sched.Active(r1.ID) && !sched.Active(r2.ID)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestScheduler_EnsureIsIdempotentWhileDraining(t *testing.T) {
	st := newTestStore(t)
	r := createResource(t, st)
	runner := newRecordingRunner()
	sched := New(st, runner.run, runner.run, nil, nil)

	j1, err := st.EnqueueIndexJob(context.Background(), r.ID, store.JobSync)
	require.NoError(t, err)
	runner.gate(j1)

	sched.Ensure(context.Background(), r.ID, Overrides{"provider": "a"})
	runner.waitUntilRunning(t, j1)

	// A second Ensure call while the worker drains must not spawn another
	// worker for the same resource.
	sched.Ensure(context.Background(), r.ID, Overrides{"provider": "b"})

	runner.release(j1)

	require.Eventually(t, func() bool {
		return !sched.Active(r.ID)
	}, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, []string{j1}, runner.Order())
}

// TestScheduler_ReleaseDoesNotStrandRacingEnqueue exercises the gap between
// drain's empty-queue check and the worker-map delete directly: a job is
// enqueued after the worker would have observed an empty queue but before
// release retires it. release must find that job in its own re-check and
// keep the worker registered rather than deleting it out from under a
// queued-but-unprocessed job.
func TestScheduler_ReleaseDoesNotStrandRacingEnqueue(t *testing.T) {
	st := newTestStore(t)
	r := createResource(t, st)
	runner := newRecordingRunner()
	sched := New(st, runner.run, runner.run, nil, nil)

	w := &worker{}
	sched.mu.Lock()
	sched.workers[r.ID] = w
	sched.mu.Unlock()

	// Simulate a job landing in the queue in the window between drain's
	// own NextQueuedJob()==nil observation and the call to release.
	jobID, err := st.EnqueueIndexJob(context.Background(), r.ID, store.JobSync)
	require.NoError(t, err)

	stopped := sched.release(r.ID, w)
	require.False(t, stopped, "release must not report stop when a job raced in")
	require.True(t, sched.Active(r.ID), "worker must remain registered so the racing job gets drained")

	job, err := st.NextQueuedJob(context.Background(), r.ID)
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, jobID, job.ID)
}
