package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ctxpack/ctxpack/internal/ctxerrors"
)

// EnqueueIndexJob inserts a new job in queued status and returns its id.
// Queue order is (created_at, id) ascending, set at insertion time.
// created_at is stored with nanosecond resolution so that jobs enqueued
// milliseconds apart still order strictly by arrival rather than falling
// back to the (unordered) id tie-break.
func (s *Store) EnqueueIndexJob(ctx context.Context, resourceID string, kind IndexJobKind) (string, error) {
	id := uuid.NewString()
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO index_jobs (id, resource_id, kind, status, progress, warnings, total_files, processed_files, created_at)
		VALUES (?,?,?,?,0,?,0,0,?)`,
		id, resourceID, string(kind), string(JobQueued), "[]", now.UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("enqueue index job: %w", err)
	}
	return id, nil
}

// NextQueuedJob returns the oldest queued job for a resource, or nil if none.
func (s *Store) NextQueuedJob(ctx context.Context, resourceID string) (*IndexJob, error) {
	row := s.db.QueryRowContext(ctx, jobSelectCols+`
		WHERE resource_id = ? AND status = ?
		ORDER BY created_at ASC, id ASC
		LIMIT 1`, resourceID, string(JobQueued))
	job, err := scanIndexJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query next queued job: %w", err)
	}
	return job, nil
}

// CountQueuedJobs returns the number of jobs still waiting to run for a
// resource, for queue-depth reporting.
func (s *Store) CountQueuedJobs(ctx context.Context, resourceID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM index_jobs WHERE resource_id = ? AND status = ?`,
		resourceID, string(JobQueued),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count queued jobs: %w", err)
	}
	return n, nil
}

// StartJob transitions a queued job to running; rejects jobs not currently queued.
func (s *Store) StartJob(ctx context.Context, id string) error {
	now := time.Now()
	result, err := s.db.ExecContext(ctx, `
		UPDATE index_jobs SET status = ?, started_at = ?, progress = 0, processed_files = 0, error = NULL
		WHERE id = ? AND status = ?`,
		string(JobRunning), now.Unix(), id, string(JobQueued),
	)
	if err != nil {
		return fmt.Errorf("start job: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ctxerrors.Conflictf("job %s is not in queued status", id)
	}
	return nil
}

// UpdateProgress sets progress and processed-files on a running job. Progress
// must be monotonically non-decreasing while running; callers are expected
// to enforce this (the pipeline computes it deterministically).
func (s *Store) UpdateProgress(ctx context.Context, id string, progress, processedFiles, totalFiles int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE index_jobs SET progress = ?, processed_files = ?, total_files = ?
		WHERE id = ? AND status = ?`,
		progress, processedFiles, totalFiles, id, string(JobRunning),
	)
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	return nil
}

// AppendWarning appends one warning to the job's ordered warning list.
func (s *Store) AppendWarning(ctx context.Context, id string, w Warning) error {
	job, err := s.GetIndexJob(ctx, id)
	if err != nil {
		return err
	}
	job.Warnings = append(job.Warnings, w)
	warningsJSON, err := json.Marshal(job.Warnings)
	if err != nil {
		return fmt.Errorf("marshal warnings: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `UPDATE index_jobs SET warnings = ? WHERE id = ?`, string(warningsJSON), id)
	if err != nil {
		return fmt.Errorf("append warning: %w", err)
	}
	return nil
}

// CompleteJob transitions a running job to completed, progress=100.
func (s *Store) CompleteJob(ctx context.Context, id string) error {
	return s.finishJob(ctx, id, JobCompleted, nil)
}

// FailJob transitions a running job to failed with the given message,
// progress=100. Terminal states are immutable once reached.
func (s *Store) FailJob(ctx context.Context, id string, message string) error {
	return s.finishJob(ctx, id, JobFailed, &message)
}

func (s *Store) finishJob(ctx context.Context, id string, status IndexJobStatus, errMsg *string) error {
	now := time.Now()
	result, err := s.db.ExecContext(ctx, `
		UPDATE index_jobs SET status = ?, progress = 100, error = ?, completed_at = ?
		WHERE id = ? AND status = ?`,
		string(status), errMsg, now.Unix(), id, string(JobRunning),
	)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ctxerrors.Conflictf("job %s is not running", id)
	}
	return nil
}

// GetIndexJob loads a job by id.
func (s *Store) GetIndexJob(ctx context.Context, id string) (*IndexJob, error) {
	row := s.db.QueryRowContext(ctx, jobSelectCols+` WHERE id = ?`, id)
	job, err := scanIndexJob(row)
	if err != nil {
		return nil, wrapNotFound(err, "job", id)
	}
	return job, nil
}

// ListIndexJobs returns jobs for a resource in queue order.
func (s *Store) ListIndexJobs(ctx context.Context, resourceID string) ([]*IndexJob, error) {
	rows, err := s.db.QueryContext(ctx, jobSelectCols+`
		WHERE resource_id = ? ORDER BY created_at ASC, id ASC`, resourceID)
	if err != nil {
		return nil, fmt.Errorf("query index jobs: %w", err)
	}
	defer rows.Close()

	var out []*IndexJob
	for rows.Next() {
		job, err := scanIndexJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan index job: %w", err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

const jobSelectCols = `
	SELECT id, resource_id, kind, status, progress, error, warnings, total_files,
		processed_files, started_at, completed_at, created_at
	FROM index_jobs`

func scanIndexJob(row rowScanner) (*IndexJob, error) {
	var j IndexJob
	var kind, status string
	var warningsJSON sql.NullString
	var startedAt, completedAt sql.NullInt64
	var createdAt int64

	err := row.Scan(
		&j.ID, &j.ResourceID, &kind, &status, &j.Progress, &j.Error, &warningsJSON,
		&j.TotalFiles, &j.ProcessedFiles, &startedAt, &completedAt, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	j.Kind = IndexJobKind(kind)
	j.Status = IndexJobStatus(status)
	j.CreatedAt = time.Unix(0, createdAt)
	j.StartedAt = intToTimePtr(startedAt)
	j.CompletedAt = intToTimePtr(completedAt)

	if warningsJSON.Valid && warningsJSON.String != "" {
		if err := json.Unmarshal([]byte(warningsJSON.String), &j.Warnings); err != nil {
			return nil, fmt.Errorf("unmarshal warnings: %w", err)
		}
	}

	return &j, nil
}
