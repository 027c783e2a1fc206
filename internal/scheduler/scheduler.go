// Package scheduler runs at most one job at a time per resource, draining
// its queue strictly in arrival order while different resources proceed in
// parallel.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/ctxpack/ctxpack/internal/observability"
	"github.com/ctxpack/ctxpack/internal/store"
)

// Runner executes one job body for a resource; RunSync/RunIndex of
// internal/indexer.Pipeline satisfy this shape.
type Runner func(ctx context.Context, resourceID, jobID string) error

// Overrides carries the volatile per-request knobs a caller hands to Ensure
// (provider capabilities, model selection). The resource's worker holds the
// latest set while it is active; the Runner signature carries no overrides,
// so job bodies do not receive them. They are discarded the moment the
// worker releases the resource's slot.
type Overrides map[string]any

// Scheduler owns the process-local {resourceId -> worker} registry.
type Scheduler struct {
	store   *store.Store
	runSync Runner
	runIdx  Runner
	logger  *observability.Logger
	metrics *observability.MetricsCollector

	mu      sync.Mutex
	workers map[string]*worker
}

type worker struct {
	overrides Overrides
}

// New creates a Scheduler that dispatches sync jobs to runSync and index
// jobs to runIndex. metrics may be nil.
func New(st *store.Store, runSync, runIndex Runner, logger *observability.Logger, metrics *observability.MetricsCollector) *Scheduler {
	return &Scheduler{
		store:   st,
		runSync: runSync,
		runIdx:  runIndex,
		logger:  logger,
		metrics: metrics,
		workers: make(map[string]*worker),
	}
}

// Ensure records the latest overrides for resourceId and, if no worker is
// currently active for it, spawns one. Spawning is idempotent: calling
// Ensure repeatedly while a worker drains the queue only re-primes its
// overrides, it never starts a second worker for the same resource.
func (s *Scheduler) Ensure(ctx context.Context, resourceID string, overrides Overrides) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w, active := s.workers[resourceID]; active {
		w.overrides = overrides
		return
	}

	w := &worker{overrides: overrides}
	s.workers[resourceID] = w
	go s.drain(resourceID, w)
}

// drain runs the oldest queued job for resourceId repeatedly until the
// queue is empty, then releases the resource's slot. Overrides live only
// for the duration of this loop.
func (s *Scheduler) drain(resourceID string, w *worker) {
	if s.metrics != nil {
		s.metrics.SetSchedulerRunning(resourceID, true)
	}
	for {
		job, err := s.store.NextQueuedJob(context.Background(), resourceID)
		if err != nil {
			if s.logger != nil {
				s.logger.ErrorContext(context.Background(), "scheduler: fetch next queued job failed", "resourceId", resourceID, "error", err)
			}
			s.release(resourceID, w)
			if s.metrics != nil {
				s.metrics.SetSchedulerRunning(resourceID, false)
			}
			return
		}
		if job == nil {
			if s.release(resourceID, w) {
				if s.metrics != nil {
					s.metrics.SetSchedulerRunning(resourceID, false)
				}
				return
			}
			// release found a job had been queued in the gap between this
			// nil check and the lock it took to retire the worker; keep
			// draining instead of stranding it.
			continue
		}

		if err := s.store.StartJob(context.Background(), job.ID); err != nil {
			if s.logger != nil {
				s.logger.ErrorContext(context.Background(), "scheduler: start job failed", "jobId", job.ID, "error", err)
			}
			continue
		}
		if s.metrics != nil {
			if depth, err := s.store.CountQueuedJobs(context.Background(), resourceID); err == nil {
				s.metrics.SetSchedulerQueueDepth(resourceID, depth)
			}
		}

		s.runJob(resourceID, job)
	}
}

func (s *Scheduler) runJob(resourceID string, job *store.IndexJob) {
	run := s.runIdx
	if job.Kind == store.JobSync {
		run = s.runSync
	}
	if run == nil {
		_ = s.store.FailJob(context.Background(), job.ID, "no runner registered for job kind "+string(job.Kind))
		return
	}

	start := time.Now()
	err := run(context.Background(), resourceID, job.ID)
	if s.logger != nil {
		s.logger.InfoContext(context.Background(), "scheduler: job finished",
			"resourceId", resourceID, "jobId", job.ID, "kind", string(job.Kind),
			"duration", time.Since(start).String(), "error", errString(err))
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// release retires the worker for resourceId, reporting whether drain
// should stop. The nil-queue check and the map delete must happen under
// the same lock Ensure takes: re-polling NextQueuedJob here, after
// acquiring s.mu, closes the gap between drain's own (unguarded) empty
// check and this delete, where a job could be enqueued and Ensure called
// for it — Ensure would find the worker entry still present and only
// re-prime overrides, spawning nothing, leaving the job stranded once
// this delete lands. If a job turns up in that recheck, the worker is
// left registered and release reports false so drain loops instead of
// stopping.
func (s *Scheduler) release(resourceID string, w *worker) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job, err := s.store.NextQueuedJob(context.Background(), resourceID); err == nil && job != nil {
		return false
	}

	if s.workers[resourceID] == w {
		delete(s.workers, resourceID)
	}
	return true
}

// Active reports whether a worker is currently draining resourceId's queue.
func (s *Scheduler) Active(resourceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.workers[resourceID]
	return ok
}
