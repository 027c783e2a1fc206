package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/ctxpack/ctxpack/internal/ctxerrors"
)

// ReplaceChunks atomically replaces the full chunk set of a resource: all
// prior chunks are deleted and the new rows inserted within a single
// transaction, so readers always observe either the old or the new set.
// Returns the number of rows inserted (the resource's new chunk count).
func (s *Store) ReplaceChunks(ctx context.Context, resourceID string, chunks []*Chunk) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE resource_id = ?`, resourceID); err != nil {
		return 0, fmt.Errorf("delete prior chunks: %w", err)
	}

	for _, c := range chunks {
		if c.LineStart < 1 || c.LineEnd < c.LineStart {
			return 0, ctxerrors.Validationf("chunk %s has invalid line range [%d,%d]", c.Filepath, c.LineStart, c.LineEnd)
		}
		if c.ID == "" {
			c.ID = uuid.NewString()
		}

		scopeJSON, err := json.Marshal(c.Scope)
		if err != nil {
			return 0, fmt.Errorf("marshal chunk scope: %w", err)
		}
		entitiesJSON, err := json.Marshal(c.Entities)
		if err != nil {
			return 0, fmt.Errorf("marshal chunk entities: %w", err)
		}

		var embeddingJSON any
		if c.Embedding != nil {
			b, err := json.Marshal(c.Embedding)
			if err != nil {
				return 0, fmt.Errorf("marshal chunk embedding: %w", err)
			}
			embeddingJSON = string(b)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO chunks (
				id, resource_id, filepath, line_start, line_end, text, contextualized_text,
				scope, entities, language, hash, embedding
			) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
			c.ID, resourceID, c.Filepath, c.LineStart, c.LineEnd, c.Text, c.ContextualizedText,
			string(scopeJSON), string(entitiesJSON), c.Language, c.Hash, embeddingJSON,
		)
		if err != nil {
			return 0, fmt.Errorf("insert chunk %s: %w", c.Filepath, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit chunk replacement: %w", err)
	}
	return len(chunks), nil
}

// DeleteChunksForPaths removes chunks for specific filepaths of a resource
// (used for incremental re-chunking of a subset of files).
func (s *Store) DeleteChunksForPaths(ctx context.Context, resourceID string, filepaths []string) error {
	if len(filepaths) == 0 {
		return nil
	}
	placeholders := ""
	args := []any{resourceID}
	for i, p := range filepaths {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args = append(args, p)
	}
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM chunks WHERE resource_id = ? AND filepath IN (%s)`, placeholders),
		args...,
	)
	if err != nil {
		return fmt.Errorf("delete chunks for paths: %w", err)
	}
	return nil
}

func scanChunk(row rowScanner) (*Chunk, error) {
	var c Chunk
	var scopeJSON, entitiesJSON sql.NullString
	var embeddingJSON sql.NullString

	err := row.Scan(
		&c.ID, &c.ResourceID, &c.Filepath, &c.LineStart, &c.LineEnd, &c.Text, &c.ContextualizedText,
		&scopeJSON, &entitiesJSON, &c.Language, &c.Hash, &embeddingJSON,
	)
	if err != nil {
		return nil, err
	}

	if scopeJSON.Valid && scopeJSON.String != "" && scopeJSON.String != "null" {
		if err := json.Unmarshal([]byte(scopeJSON.String), &c.Scope); err != nil {
			return nil, fmt.Errorf("unmarshal chunk scope: %w", err)
		}
	}
	if entitiesJSON.Valid && entitiesJSON.String != "" && entitiesJSON.String != "null" {
		if err := json.Unmarshal([]byte(entitiesJSON.String), &c.Entities); err != nil {
			return nil, fmt.Errorf("unmarshal chunk entities: %w", err)
		}
	}
	if embeddingJSON.Valid && embeddingJSON.String != "" {
		if err := json.Unmarshal([]byte(embeddingJSON.String), &c.Embedding); err != nil {
			return nil, fmt.Errorf("unmarshal chunk embedding: %w", err)
		}
	}

	return &c, nil
}

const chunkSelectCols = `
	SELECT id, resource_id, filepath, line_start, line_end, text, contextualized_text,
		scope, entities, language, hash, embedding
	FROM chunks`

// GetChunk loads a single chunk by id.
func (s *Store) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	row := s.db.QueryRowContext(ctx, chunkSelectCols+` WHERE id = ?`, id)
	c, err := scanChunk(row)
	if err != nil {
		return nil, wrapNotFound(err, "chunk", id)
	}
	return c, nil
}

// CountChunks returns the number of chunks for a resource.
func (s *Store) CountChunks(ctx context.Context, resourceID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE resource_id = ?`, resourceID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

// VectorCandidate is one nearest-neighbour search hit.
type VectorCandidate struct {
	Chunk    *Chunk
	Score    float32 // 1 - cosine distance
	Distance float32
}

// SearchVector performs a brute-force cosine nearest-neighbour search over
// chunks with a non-null embedding, restricted to the allowed resource set
// (empty = no restriction). Returns up to limit candidates ordered by
// ascending distance (descending score).
func (s *Store) SearchVector(ctx context.Context, query []float32, allowedResourceIDs []string, limit int) ([]VectorCandidate, error) {
	if len(query) == 0 {
		return nil, ctxerrors.Validationf("query vector cannot be empty")
	}
	queryNorm := vectorNorm(query)
	if queryNorm == 0 {
		return nil, ctxerrors.Validationf("query vector has zero magnitude")
	}

	sqlQuery := `
		SELECT id, resource_id, filepath, line_start, line_end, text, contextualized_text,
			scope, entities, language, hash, embedding
		FROM chunks
		WHERE embedding IS NOT NULL`
	var args []any
	if len(allowedResourceIDs) > 0 {
		placeholders := ""
		for i, id := range allowedResourceIDs {
			if i > 0 {
				placeholders += ","
			}
			placeholders += "?"
			args = append(args, id)
		}
		sqlQuery += fmt.Sprintf(` AND resource_id IN (%s)`, placeholders)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("query chunks for vector search: %w", err)
	}
	defer rows.Close()

	var candidates []VectorCandidate
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if len(c.Embedding) == 0 {
			continue
		}
		dist := cosineDistance(query, queryNorm, c.Embedding)
		candidates = append(candidates, VectorCandidate{Chunk: c, Distance: dist, Score: 1 - dist})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Distance < candidates[j].Distance
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// cosineDistance computes 1 - cosine_similarity(a, b), given a's precomputed norm.
func cosineDistance(a []float32, aNorm float64, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, bSq float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		bSq += float64(b[i]) * float64(b[i])
	}
	bNorm := math.Sqrt(bSq)
	if aNorm == 0 || bNorm == 0 {
		return 1
	}
	cosine := dot / (aNorm * bNorm)
	return float32(1 - cosine)
}
