package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateResearchJob inserts a new research job in queued status.
func (s *Store) CreateResearchJob(ctx context.Context, j *ResearchJob) (string, error) {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.Status == "" {
		j.Status = ResearchQueued
	}
	now := time.Now()

	resourceIDsJSON, err := json.Marshal(j.ResourceIDs)
	if err != nil {
		return "", fmt.Errorf("marshal resource ids: %w", err)
	}
	optionsJSON, err := json.Marshal(j.Options)
	if err != nil {
		return "", fmt.Errorf("marshal options: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO research_jobs (id, owner_id, query, resource_ids, options, status, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		j.ID, j.OwnerID, j.Query, string(resourceIDsJSON), string(optionsJSON), string(j.Status), now.Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("insert research job: %w", err)
	}
	j.CreatedAt = now
	return j.ID, nil
}

// StartResearchJob transitions a queued research job to running.
func (s *Store) StartResearchJob(ctx context.Context, id string) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		UPDATE research_jobs SET status = ?, started_at = ? WHERE id = ? AND status = ?`,
		string(ResearchRunning), now.Unix(), id, string(ResearchQueued),
	)
	if err != nil {
		return fmt.Errorf("start research job: %w", err)
	}
	return nil
}

// CompleteResearchJob persists the final agent result and marks the job
// completed. Never retried by the core once terminal.
func (s *Store) CompleteResearchJob(ctx context.Context, id string, resultJSON string) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		UPDATE research_jobs SET status = ?, result = ?, completed_at = ? WHERE id = ? AND status = ?`,
		string(ResearchCompleted), resultJSON, now.Unix(), id, string(ResearchRunning),
	)
	if err != nil {
		return fmt.Errorf("complete research job: %w", err)
	}
	return nil
}

// FailResearchJob persists the failure message and marks the job failed.
func (s *Store) FailResearchJob(ctx context.Context, id string, message string) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		UPDATE research_jobs SET status = ?, error = ?, completed_at = ? WHERE id = ? AND status = ?`,
		string(ResearchFailed), message, now.Unix(), id, string(ResearchRunning),
	)
	if err != nil {
		return fmt.Errorf("fail research job: %w", err)
	}
	return nil
}

// GetResearchJob loads a research job by id.
func (s *Store) GetResearchJob(ctx context.Context, id string) (*ResearchJob, error) {
	row := s.db.QueryRowContext(ctx, researchJobSelectCols+` WHERE id = ?`, id)
	j, err := scanResearchJob(row)
	if err != nil {
		return nil, wrapNotFound(err, "research job", id)
	}
	return j, nil
}

const researchJobSelectCols = `
	SELECT id, owner_id, query, resource_ids, options, status, result, error,
		created_at, started_at, completed_at
	FROM research_jobs`

func scanResearchJob(row rowScanner) (*ResearchJob, error) {
	var j ResearchJob
	var status string
	var resourceIDsJSON, optionsJSON sql.NullString
	var createdAt int64
	var startedAt, completedAt sql.NullInt64

	err := row.Scan(
		&j.ID, &j.OwnerID, &j.Query, &resourceIDsJSON, &optionsJSON, &status, &j.Result, &j.Error,
		&createdAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	j.Status = ResearchJobStatus(status)
	j.CreatedAt = time.Unix(createdAt, 0)
	j.StartedAt = intToTimePtr(startedAt)
	j.CompletedAt = intToTimePtr(completedAt)

	if resourceIDsJSON.Valid && resourceIDsJSON.String != "" {
		if err := json.Unmarshal([]byte(resourceIDsJSON.String), &j.ResourceIDs); err != nil {
			return nil, fmt.Errorf("unmarshal resource ids: %w", err)
		}
	}
	if optionsJSON.Valid && optionsJSON.String != "" {
		if err := json.Unmarshal([]byte(optionsJSON.String), &j.Options); err != nil {
			return nil, fmt.Errorf("unmarshal options: %w", err)
		}
	}

	return &j, nil
}
