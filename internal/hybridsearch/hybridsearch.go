// Package hybridsearch combines the keyword (text) and dense-vector
// subtracks into a single ranked result list using reciprocal rank
// fusion, or serves either channel alone.
package hybridsearch

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/ctxpack/ctxpack/internal/ctxerrors"
	"github.com/ctxpack/ctxpack/internal/embedding"
	"github.com/ctxpack/ctxpack/internal/materializer"
	"github.com/ctxpack/ctxpack/internal/observability"
	"github.com/ctxpack/ctxpack/internal/store"
	"github.com/ctxpack/ctxpack/internal/textsearch"
)

var tracer = otel.Tracer("ctxpack/hybridsearch")

const (
	rrfK           = 60
	defaultAlpha   = 0.5
	defaultTopK    = 10
	minTopK        = 1
	maxTopK        = 50
	subtrackBudget = 10 * time.Second
)

// Mode selects which channel(s) contribute to the result set.
type Mode string

const (
	ModeHybrid Mode = "hybrid"
	ModeText   Mode = "text"
	ModeVector Mode = "vector"
)

// MatchType labels which channel(s) produced a fused result.
type MatchType string

const (
	MatchHybrid MatchType = "hybrid"
	MatchText   MatchType = "text"
	MatchVector MatchType = "vector"
)

// Query is one hybrid search request.
type Query struct {
	Text        string
	ResourceIDs []string // empty = all resources visible to the caller
	Mode        Mode
	Alpha       float64
	TopK        int
}

// Result is one ranked hit, fused or single-channel.
type Result struct {
	ChunkID      *string
	ResourceID   string
	ResourceName string
	Filepath     string
	LineStart    int
	LineEnd      int
	Text         string
	Score        float64
	MatchType    MatchType
	MatchSources []string
}

// Engine executes hybrid search queries against the shared store.
type Engine struct {
	Store        *store.Store
	Materializer *materializer.Materializer
	Embedder     embedding.Embedder
	TextSearcher *textsearch.Searcher
	Metrics      *observability.MetricsCollector
}

// New creates an Engine with a default-configured text searcher.
func New(st *store.Store, mat *materializer.Materializer, embedder embedding.Embedder) *Engine {
	return &Engine{Store: st, Materializer: mat, Embedder: embedder, TextSearcher: textsearch.New()}
}

func normalize(q Query) (Query, error) {
	if strings.TrimSpace(q.Text) == "" {
		return q, ctxerrors.Validationf("query text cannot be empty")
	}
	if q.Mode == "" {
		q.Mode = ModeHybrid
	}
	if math.IsNaN(q.Alpha) {
		q.Alpha = defaultAlpha
	}
	if q.Alpha < 0 {
		q.Alpha = 0
	}
	if q.Alpha > 1 {
		q.Alpha = 1
	}
	if q.TopK == 0 {
		q.TopK = defaultTopK
	}
	if q.TopK < minTopK {
		q.TopK = minTopK
	}
	if q.TopK > maxTopK {
		q.TopK = maxTopK
	}
	return q, nil
}

// Search runs the requested channel(s) and returns up to topK results.
func (e *Engine) Search(ctx context.Context, q Query) (results []Result, err error) {
	start := time.Now()
	mode := string(q.Mode)
	defer func() {
		if e.Metrics == nil {
			return
		}
		status := "success"
		if err != nil {
			status = "error"
		}
		if mode == "" {
			mode = string(ModeHybrid)
		}
		e.Metrics.RecordSearch(mode, status, time.Since(start), len(results))
	}()

	q, err = normalize(q)
	if err != nil {
		return nil, err
	}
	mode = string(q.Mode)

	resources, err := e.Store.ListResources(ctx, store.ListResourcesOptions{IDs: q.ResourceIDs})
	if err != nil {
		return nil, err
	}

	var textResults, vectorResults []Result
	var textErr, vectorErr error

	runText := q.Mode == ModeHybrid || q.Mode == ModeText
	runVector := q.Mode == ModeHybrid || q.Mode == ModeVector

	group, gctx := errgroup.WithContext(ctx)
	if runText {
		group.Go(func() error {
			spanCtx, span := observability.InstrumentHybridSearch(gctx, tracer, "text", q.TopK)
			textResults, textErr = e.runText(spanCtx, q.Text, resources)
			if textErr != nil {
				observability.SetSpanError(spanCtx, textErr)
			}
			span.End()
			if q.Mode == ModeText {
				return textErr
			}
			return nil
		})
	}
	if runVector {
		group.Go(func() error {
			spanCtx, span := observability.InstrumentHybridSearch(gctx, tracer, "vector", q.TopK)
			vectorResults, vectorErr = e.runVector(spanCtx, q.Text, q.TopK, resources)
			if vectorErr != nil {
				observability.SetSpanError(spanCtx, vectorErr)
			}
			span.End()
			if q.Mode == ModeVector {
				return vectorErr
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	switch q.Mode {
	case ModeText:
		return topN(setMatchType(textResults, MatchText), q.TopK), nil
	case ModeVector:
		return topN(setMatchType(vectorResults, MatchVector), q.TopK), nil
	default:
		return fuse(textResults, vectorResults, q.Alpha, q.TopK), nil
	}
}

func setMatchType(results []Result, mt MatchType) []Result {
	for i := range results {
		results[i].MatchType = mt
		results[i].MatchSources = []string{string(mt)}
	}
	return results
}

func topN(results []Result, n int) []Result {
	if len(results) > n {
		return results[:n]
	}
	return results
}

// runText grep-searches every content-ready resource in scope and returns
// the merged, per-resource-ranked hit list sorted descending by the text
// subtrack's own score (hit density + per-resource rank).
func (e *Engine) runText(ctx context.Context, query string, resources []*store.Resource) ([]Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, subtrackBudget)
	defer cancel()

	var out []Result
	for _, r := range resources {
		if r.ContentStatus != store.ContentReady {
			continue
		}
		root := e.resourceRoot(r)
		if root == "" {
			continue
		}
		hits, err := e.TextSearcher.Search(runCtx, root, query)
		if err != nil {
			if runCtx.Err() != nil {
				return out, runCtx.Err()
			}
			continue
		}
		for _, h := range hits {
			out = append(out, Result{
				ResourceID:   r.ID,
				ResourceName: r.Name,
				Filepath:     h.Filepath,
				LineStart:    h.LineStart,
				LineEnd:      h.LineEnd,
				Text:         h.Text,
				Score:        h.Score,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func (e *Engine) resourceRoot(r *store.Resource) string {
	switch r.Kind {
	case store.KindGit:
		if e.Materializer == nil {
			return ""
		}
		return e.Materializer.Dir(r.ID)
	case store.KindLocal:
		if r.LocalPath == nil {
			return ""
		}
		return *r.LocalPath
	default:
		return ""
	}
}

// runVector embeds the query once and queries the chunk store for nearest
// neighbours among vector-ready resources in scope.
func (e *Engine) runVector(ctx context.Context, query string, topK int, resources []*store.Resource) ([]Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, subtrackBudget)
	defer cancel()

	var allowed []string
	byID := make(map[string]*store.Resource)
	for _, r := range resources {
		if r.VectorStatus != store.VectorReady {
			continue
		}
		allowed = append(allowed, r.ID)
		byID[r.ID] = r
	}
	if len(allowed) == 0 {
		return nil, nil
	}

	vec, err := e.Embedder.EmbedOne(runCtx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if vec == nil {
		return nil, fmt.Errorf("embed query: provider returned no vector")
	}

	candidates, err := e.Store.SearchVector(runCtx, []float32(vec), allowed, topK*4)
	if err != nil {
		return nil, err
	}

	out := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		r := byID[c.Chunk.ResourceID]
		name := ""
		if r != nil {
			name = r.Name
		}
		id := c.Chunk.ID
		out = append(out, Result{
			ChunkID:      &id,
			ResourceID:   c.Chunk.ResourceID,
			ResourceName: name,
			Filepath:     c.Chunk.Filepath,
			LineStart:    c.Chunk.LineStart,
			LineEnd:      c.Chunk.LineEnd,
			Text:         c.Chunk.Text,
			Score:        float64(c.Score),
		})
	}
	return out, nil
}

// fuse keys text and vector results by chunkId (falling back to
// resourceId:filepath:lineStart), combines per-channel RRF contributions
// weighted by alpha, and returns the top-K descending by fused score.
func fuse(textResults, vectorResults []Result, alpha float64, topK int) []Result {
	type entry struct {
		result  Result
		inText  bool
		inVec   bool
		score   float64
	}
	byKey := make(map[string]*entry)
	var order []string

	keyOf := func(r Result) string {
		if r.ChunkID != nil {
			return "chunk:" + *r.ChunkID
		}
		return fmt.Sprintf("loc:%s:%s:%d", r.ResourceID, r.Filepath, r.LineStart)
	}

	for rank, r := range textResults {
		k := keyOf(r)
		e, ok := byKey[k]
		if !ok {
			e = &entry{result: r}
			byKey[k] = e
			order = append(order, k)
		}
		e.inText = true
		e.score += (1 - alpha) * (1.0 / float64(rrfK+rank+1))
	}
	for rank, r := range vectorResults {
		k := keyOf(r)
		e, ok := byKey[k]
		if !ok {
			e = &entry{result: r}
			byKey[k] = e
			order = append(order, k)
		} else if r.ChunkID != nil {
			// prefer the vector-channel copy's chunkId when the same
			// location was independently found by both channels; the
			// first-seen copy's text is kept.
			e.result.ChunkID = r.ChunkID
		}
		e.inVec = true
		e.score += alpha * (1.0 / float64(rrfK+rank+1))
	}

	results := make([]Result, 0, len(order))
	for _, k := range order {
		e := byKey[k]
		res := e.result
		res.Score = e.score
		switch {
		case e.inText && e.inVec:
			res.MatchType = MatchHybrid
			res.MatchSources = []string{"text", "vector"}
		case e.inVec:
			res.MatchType = MatchVector
			res.MatchSources = []string{"vector"}
		default:
			res.MatchType = MatchText
			res.MatchSources = []string{"text"}
		}
		results = append(results, res)
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return topN(results, topK)
}
