package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/ctxpack/ctxpack/internal/ctxerrors"
)

// Store is the SQLite-backed persistence layer for resources, chunks,
// index jobs and research jobs.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path. Pass
// ":memory:" for an ephemeral in-process store; in that mode the
// connection pool is capped at one connection so all callers share the
// same in-memory database instead of each getting their own.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS resources (
	id TEXT PRIMARY KEY,
	owner_id TEXT,
	name TEXT NOT NULL,
	scope TEXT NOT NULL,
	project_key TEXT NOT NULL DEFAULT '',
	kind TEXT NOT NULL,
	remote_url TEXT,
	local_path TEXT,
	branch TEXT,
	commit_sha TEXT,
	scoped_paths TEXT,
	notes TEXT,
	content_status TEXT NOT NULL,
	vector_status TEXT NOT NULL,
	content_error TEXT,
	vector_error TEXT,
	chunk_count INTEGER NOT NULL DEFAULT 0,
	last_synced_at INTEGER,
	last_indexed_at INTEGER,
	last_local_commit TEXT,
	last_remote_commit TEXT,
	update_available INTEGER NOT NULL DEFAULT 0,
	last_update_check_at INTEGER,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE(owner_id, scope, project_key, name)
);

CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	resource_id TEXT NOT NULL REFERENCES resources(id) ON DELETE CASCADE,
	filepath TEXT NOT NULL,
	line_start INTEGER NOT NULL,
	line_end INTEGER NOT NULL,
	text TEXT NOT NULL,
	contextualized_text TEXT NOT NULL,
	scope TEXT,
	entities TEXT,
	language TEXT,
	hash TEXT NOT NULL,
	embedding TEXT
);

CREATE INDEX IF NOT EXISTS idx_chunks_resource_id ON chunks(resource_id);
CREATE INDEX IF NOT EXISTS idx_chunks_resource_filepath ON chunks(resource_id, filepath);

CREATE TABLE IF NOT EXISTS index_jobs (
	id TEXT PRIMARY KEY,
	resource_id TEXT NOT NULL REFERENCES resources(id) ON DELETE CASCADE,
	kind TEXT NOT NULL,
	status TEXT NOT NULL,
	progress INTEGER NOT NULL DEFAULT 0,
	error TEXT,
	warnings TEXT,
	total_files INTEGER NOT NULL DEFAULT 0,
	processed_files INTEGER NOT NULL DEFAULT 0,
	started_at INTEGER,
	completed_at INTEGER,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_index_jobs_resource_created ON index_jobs(resource_id, created_at, id);

CREATE TABLE IF NOT EXISTS research_jobs (
	id TEXT PRIMARY KEY,
	owner_id TEXT,
	query TEXT NOT NULL,
	resource_ids TEXT,
	options TEXT,
	status TEXT NOT NULL,
	result TEXT,
	error TEXT,
	created_at INTEGER NOT NULL,
	started_at INTEGER,
	completed_at INTEGER
);
`

func (s *Store) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// wrapNotFound converts sql.ErrNoRows into a typed NotFound error.
func wrapNotFound(err error, kind, id string) error {
	if err == sql.ErrNoRows {
		return ctxerrors.NotFoundf("%s %s not found", kind, id)
	}
	return err
}
