// Package indexer drives the two per-resource pipeline jobs — sync and
// index — end to end: materializing content, chunking, embedding, and
// writing progress and chunk rows back to the store.
package indexer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/ctxpack/ctxpack/internal/chunker"
	"github.com/ctxpack/ctxpack/internal/ctxerrors"
	"github.com/ctxpack/ctxpack/internal/embedding"
	"github.com/ctxpack/ctxpack/internal/materializer"
	"github.com/ctxpack/ctxpack/internal/observability"
	"github.com/ctxpack/ctxpack/internal/store"
)

var tracer = otel.Tracer("ctxpack/indexer")

const (
	maxFileSize       = 1 << 20 // 1 MiB
	embedBatchSize    = 100
	progressScanned   = 10
	progressEmptyScan = 95 // scan progress when total-files is zero
	progressChunked   = 40
	progressEmbedSpan = 55 // spread of the 40..95 range across embedding batches
	progressEmbedCap  = 95
	progressDone      = 100
)

// Pipeline drives Sync and Index jobs for a single resource against the
// shared store, materializer, chunker, and embedder.
type Pipeline struct {
	Store        *store.Store
	Materializer *materializer.Materializer
	Chunker      *chunker.Chunker
	Embedder     embedding.Embedder
	Logger       *observability.Logger
	Metrics      *observability.MetricsCollector
}

// RunSync executes a sync job: materialize content (clone/fetch for git,
// validate+walk for local), record commit/update-available state, and
// transition content-status to ready or failed.
func (p *Pipeline) RunSync(ctx context.Context, resourceID, jobID string) error {
	start := time.Now()
	r, err := p.Store.GetResource(ctx, resourceID)
	if err != nil {
		return p.failSync(ctx, jobID, nil, err)
	}

	switch r.Kind {
	case store.KindGit:
		err = p.syncGit(ctx, r)
	case store.KindLocal:
		err = p.syncLocal(ctx, r)
	default:
		err = ctxerrors.Validationf("unknown resource kind %q", r.Kind)
	}
	if err != nil {
		return p.failSync(ctx, jobID, r, err)
	}

	now := time.Now()
	r.ContentStatus = store.ContentReady
	r.ContentError = nil
	r.LastSyncedAt = &now
	if err := p.Store.UpdateResource(ctx, r); err != nil {
		return err
	}
	if err := p.Store.CompleteJob(ctx, jobID); err != nil {
		return err
	}
	if p.Logger != nil {
		p.Logger.LogIndexStage(ctx, resourceID, string(store.JobSync), "complete", time.Since(start))
	}
	if p.Metrics != nil {
		p.Metrics.RecordIndexerOperation("sync", "success", time.Since(start))
	}
	return nil
}

func (p *Pipeline) failSync(ctx context.Context, jobID string, r *store.Resource, cause error) error {
	msg := cause.Error()
	if r != nil {
		r.ContentStatus = store.ContentFailed
		r.ContentError = &msg
		_ = p.Store.UpdateResource(ctx, r)
	}
	if p.Metrics != nil {
		p.Metrics.RecordIndexerError("sync")
	}
	_ = p.Store.FailJob(ctx, jobID, msg)
	return cause
}

func (p *Pipeline) syncGit(ctx context.Context, r *store.Resource) error {
	if r.RemoteURL == nil {
		return ctxerrors.Validationf("git resource %s has no remote url", r.ID)
	}
	branch := ""
	if r.Branch != nil {
		branch = *r.Branch
	}
	commit := ""
	if r.Commit != nil {
		commit = *r.Commit
	}

	dir, err := p.Materializer.Prepare(ctx, materializer.GitResource{
		ID:     r.ID,
		URL:    *r.RemoteURL,
		Branch: branch,
		Commit: commit,
	})
	if err != nil {
		return err
	}
	if _, err := p.Materializer.ListTracked(ctx, dir); err != nil {
		return err
	}

	local := p.Materializer.HeadCommit(ctx, dir)
	remote := p.Materializer.RemoteHead(ctx, *r.RemoteURL, branch)
	r.LastLocalCommit = local
	r.LastRemoteCommit = remote
	r.UpdateAvailable = local != nil && remote != nil && *local != *remote
	now := time.Now()
	r.LastUpdateCheckAt = &now
	return nil
}

func (p *Pipeline) syncLocal(ctx context.Context, r *store.Resource) error {
	if r.LocalPath == nil {
		return ctxerrors.Validationf("local resource %s has no path", r.ID)
	}
	if err := materializer.ValidateLocalPath(*r.LocalPath); err != nil {
		return err
	}
	if _, err := materializer.WalkLocal(ctx, *r.LocalPath); err != nil {
		return err
	}
	r.LastLocalCommit = materializer.LocalHeadCommit(ctx, *r.LocalPath)
	r.LastRemoteCommit = nil
	r.UpdateAvailable = false
	now := time.Now()
	r.LastUpdateCheckAt = &now
	return nil
}

// fileRead is a file handed down from discovery to chunking.
type fileRead struct {
	path string
	code string
}

// RunIndex executes an index job: discover files, chunk, embed in
// batches, and atomically replace the resource's chunks once every
// embedding batch has been attempted.
func (p *Pipeline) RunIndex(ctx context.Context, resourceID, jobID string) error {
	start := time.Now()
	r, err := p.Store.GetResource(ctx, resourceID)
	if err != nil {
		return p.failIndex(ctx, jobID, nil, err)
	}

	if err := p.Store.UpdateProgress(ctx, jobID, 0, 0, 0); err != nil {
		return err
	}

	paths, root, err := p.discoverPaths(ctx, r)
	if err != nil {
		return p.failIndex(ctx, jobID, r, err)
	}

	if len(paths) == 0 {
		if err := p.Store.UpdateProgress(ctx, jobID, progressEmptyScan, 0, 0); err != nil {
			return err
		}
	} else if err := p.Store.UpdateProgress(ctx, jobID, progressScanned, 0, len(paths)); err != nil {
		return err
	}

	files := p.readFiles(ctx, jobID, root, paths)

	fileInputs := make([]chunker.FileInput, 0, len(files))
	for _, f := range files {
		fileInputs = append(fileInputs, chunker.FileInput{Filepath: f.path, Code: f.code})
	}
	chunkResults := p.Chunker.ChunkFiles(ctx, fileInputs)

	var allChunks []chunker.Chunk
	for _, res := range chunkResults {
		if res.Err != nil {
			_ = p.Store.AppendWarning(ctx, jobID, store.Warning{
				Filepath: res.Filepath,
				Stage:    store.StageChunk,
				Message:  res.Err.Error(),
			})
			continue
		}
		allChunks = append(allChunks, res.Chunks...)
	}

	if err := p.Store.UpdateProgress(ctx, jobID, progressChunked, len(files), len(paths)); err != nil {
		return err
	}

	insertedCount, err := p.embedAndReplace(ctx, jobID, r.ID, allChunks)
	if err != nil {
		return p.failIndex(ctx, jobID, r, err)
	}

	now := time.Now()
	r.VectorStatus = store.VectorReady
	r.VectorError = nil
	r.ChunkCount = insertedCount
	r.LastIndexedAt = &now
	if err := p.Store.UpdateResource(ctx, r); err != nil {
		return err
	}

	if err := p.Store.UpdateProgress(ctx, jobID, progressDone, len(files), len(paths)); err != nil {
		return err
	}
	if err := p.Store.CompleteJob(ctx, jobID); err != nil {
		return err
	}

	if p.Logger != nil {
		p.Logger.LogIndexStage(ctx, resourceID, string(store.JobIndex), "complete", time.Since(start))
	}
	if p.Metrics != nil {
		p.Metrics.RecordIndexerOperation("index", "success", time.Since(start))
		p.Metrics.RecordIndexedFiles(len(files))
		p.Metrics.RecordIndexedChunks(insertedCount)
	}
	return nil
}

func (p *Pipeline) failIndex(ctx context.Context, jobID string, r *store.Resource, cause error) error {
	msg := cause.Error()
	if r != nil {
		r.VectorStatus = store.VectorFailed
		r.VectorError = &msg
		_ = p.Store.UpdateResource(ctx, r)
	}
	if p.Metrics != nil {
		p.Metrics.RecordIndexerError("index")
	}
	_ = p.Store.FailJob(ctx, jobID, msg)
	return cause
}

// discoverPaths resolves the file list by resource kind: tracked paths for
// git (intersected with scoped sub-paths when set), a directory walk for
// local.
func (p *Pipeline) discoverPaths(ctx context.Context, r *store.Resource) (paths []string, root string, err error) {
	switch r.Kind {
	case store.KindGit:
		root = p.Materializer.Dir(r.ID)
		tracked, err := p.Materializer.ListTracked(ctx, root)
		if err != nil {
			return nil, "", err
		}
		if len(r.ScopedPaths) == 0 {
			return tracked, root, nil
		}
		return intersectScoped(tracked, r.ScopedPaths), root, nil
	case store.KindLocal:
		if r.LocalPath == nil {
			return nil, "", ctxerrors.Validationf("local resource %s has no path", r.ID)
		}
		root = *r.LocalPath
		walked, err := materializer.WalkLocal(ctx, root)
		if err != nil {
			return nil, "", err
		}
		return walked, root, nil
	default:
		return nil, "", ctxerrors.Validationf("unknown resource kind %q", r.Kind)
	}
}

func intersectScoped(paths, scoped []string) []string {
	var out []string
	for _, path := range paths {
		for _, prefix := range scoped {
			if path == prefix || (len(path) > len(prefix) && path[:len(prefix)+1] == prefix+"/") {
				out = append(out, path)
				break
			}
		}
	}
	return out
}

// readFiles reads each discovered path, skipping oversized or binary
// files with a recorded warning, and returns the survivors.
func (p *Pipeline) readFiles(ctx context.Context, jobID, root string, paths []string) []fileRead {
	files := make([]fileRead, 0, len(paths))
	for _, rel := range paths {
		full := filepath.Join(root, filepath.FromSlash(rel))
		info, err := os.Stat(full)
		if err != nil {
			_ = p.Store.AppendWarning(ctx, jobID, store.Warning{Filepath: rel, Stage: store.StageScan, Message: err.Error()})
			continue
		}
		if info.Size() > maxFileSize {
			_ = p.Store.AppendWarning(ctx, jobID, store.Warning{Filepath: rel, Stage: store.StageRead, Message: "file exceeds 1 MiB, skipped"})
			continue
		}
		content, err := os.ReadFile(full)
		if err != nil {
			_ = p.Store.AppendWarning(ctx, jobID, store.Warning{Filepath: rel, Stage: store.StageRead, Message: err.Error()})
			continue
		}
		if bytes.IndexByte(content, 0) >= 0 {
			_ = p.Store.AppendWarning(ctx, jobID, store.Warning{Filepath: rel, Stage: store.StageRead, Message: "binary file, skipped"})
			continue
		}
		files = append(files, fileRead{path: rel, code: string(content)})
	}
	return files
}

// embedAndReplace embeds chunk texts in fixed-size batches, writing
// progress between batches. A whole-batch embedding failure never aborts
// the job: that batch's chunks are recorded with null embeddings and a
// single embed-stage warning for the batch, and the remaining batches
// still run. Once every batch has been attempted, the resource's entire
// chunk set is replaced in one delete-then-insert write carrying
// embedding = vector ∪ null per row.
func (p *Pipeline) embedAndReplace(ctx context.Context, jobID, resourceID string, chunks []chunker.Chunk) (int, error) {
	if len(chunks) == 0 {
		if _, err := p.Store.ReplaceChunks(ctx, resourceID, nil); err != nil {
			return 0, err
		}
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.ContextualizedText
	}

	totalBatches := (len(texts) + embedBatchSize - 1) / embedBatchSize
	vectors := make([]embedding.Vector, len(texts))

	for batchIndex := 0; batchIndex < totalBatches; batchIndex++ {
		lo := batchIndex * embedBatchSize
		hi := lo + embedBatchSize
		if hi > len(texts) {
			hi = len(texts)
		}

		batchCtx, span := observability.InstrumentIndexerOperation(ctx, tracer, "embed_batch", resourceID)
		batchStart := time.Now()
		batch, err := p.Embedder.EmbedMany(batchCtx, texts[lo:hi])
		if err != nil {
			observability.SetSpanError(batchCtx, err)
			_ = p.Store.AppendWarning(ctx, jobID, store.Warning{
				Stage:   store.StageEmbed,
				Message: fmt.Sprintf("embedding batch %d failed: %v", batchIndex, err),
			})
		} else {
			for i, v := range batch {
				vectors[lo+i] = v
				if v == nil {
					_ = p.Store.AppendWarning(ctx, jobID, store.Warning{
						Filepath: chunks[lo+i].Filepath,
						Stage:    store.StageEmbed,
						Message:  "embedding failed for chunk, stored without vector",
					})
				}
			}
		}
		if p.Metrics != nil {
			status := "success"
			if err != nil {
				status = "error"
				p.Metrics.RecordEmbeddingError(p.Embedder.Model(), "embed_batch")
			}
			p.Metrics.RecordEmbedding(p.Embedder.Model(), status, time.Since(batchStart))
		}
		span.End()

		progress := progressChunked + (batchIndex+1)*progressEmbedSpan/totalBatches
		if progress > progressEmbedCap {
			progress = progressEmbedCap
		}
		if err := p.Store.UpdateProgress(ctx, jobID, progress, hi, len(texts)); err != nil {
			return 0, err
		}
	}

	count, err := p.Store.ReplaceChunks(ctx, resourceID, toStoreChunks(chunks, vectors))
	if err != nil {
		return 0, err
	}
	return count, nil
}

func toStoreChunks(chunks []chunker.Chunk, vectors []embedding.Vector) []*store.Chunk {
	out := make([]*store.Chunk, len(chunks))
	for i, c := range chunks {
		var emb []float32
		if i < len(vectors) && vectors[i] != nil {
			emb = []float32(vectors[i])
		}
		out[i] = &store.Chunk{
			Filepath:           c.Filepath,
			LineStart:          c.LineStart,
			LineEnd:            c.LineEnd,
			Text:               c.Text,
			ContextualizedText: c.ContextualizedText,
			Scope:              c.Scope,
			Entities:           c.Entities,
			Language:           c.Language,
			Hash:               c.Hash,
			Embedding:          emb,
		}
	}
	return out
}
