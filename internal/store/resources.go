package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ctxpack/ctxpack/internal/ctxerrors"
)

// CreateResource validates and inserts a new resource, returning its
// generated identifier. Enforces the kind/url/path invariant and relies on
// the unique(owner,scope,projectKey,name) index for duplicate detection.
func (s *Store) CreateResource(ctx context.Context, r *Resource) (string, error) {
	if r.Scope == ScopeProject && r.ProjectKey == "" {
		return "", ctxerrors.Validationf("projectKey is required for project-scoped resources")
	}
	if r.Kind == KindGit && (r.RemoteURL == nil || *r.RemoteURL == "") {
		return "", ctxerrors.Validationf("remote URL is required for git resources")
	}
	if r.Kind == KindLocal && (r.LocalPath == nil || *r.LocalPath == "") {
		return "", ctxerrors.Validationf("local path is required for local resources")
	}

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now()
	if r.ContentStatus == "" {
		r.ContentStatus = ContentMissing
	}
	if r.VectorStatus == "" {
		r.VectorStatus = VectorMissing
	}

	scopedPaths, err := json.Marshal(r.ScopedPaths)
	if err != nil {
		return "", fmt.Errorf("marshal scoped paths: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO resources (
			id, owner_id, name, scope, project_key, kind, remote_url, local_path,
			branch, commit_sha, scoped_paths, notes, content_status, vector_status,
			content_error, vector_error, chunk_count, last_synced_at, last_indexed_at,
			last_local_commit, last_remote_commit, update_available, last_update_check_at,
			created_at, updated_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	`,
		r.ID, r.OwnerID, r.Name, string(r.Scope), r.ProjectKey, string(r.Kind),
		r.RemoteURL, r.LocalPath, r.Branch, r.Commit, string(scopedPaths), r.Notes,
		string(r.ContentStatus), string(r.VectorStatus), r.ContentError, r.VectorError,
		r.ChunkCount, unixPtr(r.LastSyncedAt), unixPtr(r.LastIndexedAt),
		r.LastLocalCommit, r.LastRemoteCommit, boolToInt(r.UpdateAvailable), unixPtr(r.LastUpdateCheckAt),
		now.Unix(), now.Unix(),
	)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return "", ctxerrors.Conflictf("resource %s already exists in this owner/scope/projectKey", r.Name)
		}
		return "", fmt.Errorf("insert resource: %w", err)
	}

	r.CreatedAt = now
	r.UpdatedAt = now
	return r.ID, nil
}

// GetResource loads a resource by id.
func (s *Store) GetResource(ctx context.Context, id string) (*Resource, error) {
	row := s.db.QueryRowContext(ctx, resourceSelectCols+` WHERE id = ?`, id)
	r, err := scanResource(row)
	if err != nil {
		return nil, wrapNotFound(err, "resource", id)
	}
	return r, nil
}

// UpdateResource persists the full resource row (used by the Materializer,
// indexer pipeline and update checker after mutating status fields).
func (s *Store) UpdateResource(ctx context.Context, r *Resource) error {
	scopedPaths, err := json.Marshal(r.ScopedPaths)
	if err != nil {
		return fmt.Errorf("marshal scoped paths: %w", err)
	}
	r.UpdatedAt = time.Now()

	result, err := s.db.ExecContext(ctx, `
		UPDATE resources SET
			owner_id=?, name=?, scope=?, project_key=?, kind=?, remote_url=?, local_path=?,
			branch=?, commit_sha=?, scoped_paths=?, notes=?, content_status=?, vector_status=?,
			content_error=?, vector_error=?, chunk_count=?, last_synced_at=?, last_indexed_at=?,
			last_local_commit=?, last_remote_commit=?, update_available=?, last_update_check_at=?,
			updated_at=?
		WHERE id=?`,
		r.OwnerID, r.Name, string(r.Scope), r.ProjectKey, string(r.Kind), r.RemoteURL, r.LocalPath,
		r.Branch, r.Commit, string(scopedPaths), r.Notes, string(r.ContentStatus), string(r.VectorStatus),
		r.ContentError, r.VectorError, r.ChunkCount, unixPtr(r.LastSyncedAt), unixPtr(r.LastIndexedAt),
		r.LastLocalCommit, r.LastRemoteCommit, boolToInt(r.UpdateAvailable), unixPtr(r.LastUpdateCheckAt),
		r.UpdatedAt.Unix(), r.ID,
	)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return ctxerrors.Conflictf("resource %s already exists in this owner/scope/projectKey", r.Name)
		}
		return fmt.Errorf("update resource: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return ctxerrors.NotFoundf("resource %s not found", r.ID)
	}
	return nil
}

// DeleteResource removes a resource and cascades to its chunks and jobs.
func (s *Store) DeleteResource(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM resources WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete resource: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return ctxerrors.NotFoundf("resource %s not found", id)
	}
	return nil
}

// ListResourcesOptions filters ListResources.
type ListResourcesOptions struct {
	OwnerID *string
	IDs     []string // when non-empty, restrict to these ids
}

// ListResources returns resources visible to an owner, optionally restricted
// to a specific id set (used to resolve hybrid search's resource scope).
func (s *Store) ListResources(ctx context.Context, opts ListResourcesOptions) ([]*Resource, error) {
	query := resourceSelectCols + ` WHERE 1=1`
	var args []any

	if opts.OwnerID != nil {
		query += ` AND (owner_id = ? OR owner_id IS NULL)`
		args = append(args, *opts.OwnerID)
	}
	if len(opts.IDs) > 0 {
		placeholders := ""
		for i, id := range opts.IDs {
			if i > 0 {
				placeholders += ","
			}
			placeholders += "?"
			args = append(args, id)
		}
		query += fmt.Sprintf(` AND id IN (%s)`, placeholders)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query resources: %w", err)
	}
	defer rows.Close()

	var out []*Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const resourceSelectCols = `
	SELECT id, owner_id, name, scope, project_key, kind, remote_url, local_path,
		branch, commit_sha, scoped_paths, notes, content_status, vector_status,
		content_error, vector_error, chunk_count, last_synced_at, last_indexed_at,
		last_local_commit, last_remote_commit, update_available, last_update_check_at,
		created_at, updated_at
	FROM resources`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResource(row rowScanner) (*Resource, error) {
	var r Resource
	var scope, kind, contentStatus, vectorStatus string
	var scopedPathsJSON sql.NullString
	var lastSyncedAt, lastIndexedAt, lastUpdateCheckAt sql.NullInt64
	var updateAvailable int
	var createdAt, updatedAt int64

	err := row.Scan(
		&r.ID, &r.OwnerID, &r.Name, &scope, &r.ProjectKey, &kind, &r.RemoteURL, &r.LocalPath,
		&r.Branch, &r.Commit, &scopedPathsJSON, &r.Notes, &contentStatus, &vectorStatus,
		&r.ContentError, &r.VectorError, &r.ChunkCount, &lastSyncedAt, &lastIndexedAt,
		&r.LastLocalCommit, &r.LastRemoteCommit, &updateAvailable, &lastUpdateCheckAt,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Scope = ResourceScope(scope)
	r.Kind = ResourceKind(kind)
	r.ContentStatus = ContentStatus(contentStatus)
	r.VectorStatus = VectorStatus(vectorStatus)
	r.UpdateAvailable = updateAvailable != 0
	r.CreatedAt = time.Unix(createdAt, 0)
	r.UpdatedAt = time.Unix(updatedAt, 0)
	r.LastSyncedAt = intToTimePtr(lastSyncedAt)
	r.LastIndexedAt = intToTimePtr(lastIndexedAt)
	r.LastUpdateCheckAt = intToTimePtr(lastUpdateCheckAt)

	if scopedPathsJSON.Valid && scopedPathsJSON.String != "" && scopedPathsJSON.String != "null" {
		if err := json.Unmarshal([]byte(scopedPathsJSON.String), &r.ScopedPaths); err != nil {
			return nil, fmt.Errorf("unmarshal scoped paths: %w", err)
		}
	}

	return &r, nil
}

func unixPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func intToTimePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(n.Int64, 0)
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
