// Package tool exposes the same read/grep/list/glob primitives the agent
// driver uses internally as a standalone, resource-scoped surface: inputs
// are capped (grep 100 matches, list/glob 500 files) and every call must
// name a resource to search within.
package tool

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ctxpack/ctxpack/internal/ctxerrors"
	"github.com/ctxpack/ctxpack/internal/materializer"
	"github.com/ctxpack/ctxpack/internal/store"
	"github.com/ctxpack/ctxpack/internal/textsearch"
)

const (
	maxReadLines   = 500
	maxGrepMatches = 100
	maxListFiles   = 500
	maxGlobFiles   = 500
)

// Params carries the inputs for any tool call. Path is relative to the
// scoped resource's root; ResourceID is mandatory on every call.
type Params struct {
	ResourceID      string
	Path            string
	Pattern         string
	Offset          int
	Limit           int
	CaseInsensitive bool
}

// ReadResult is the output of the read tool.
type ReadResult struct {
	Path      string
	Lines     []string
	Truncated bool
}

// GrepMatch is one matched line from the grep tool.
type GrepMatch struct {
	Filepath string
	Line     int
}

// Surface resolves a resource to its materialized root and runs the four
// tools against it.
type Surface struct {
	Store        *store.Store
	Materializer *materializer.Materializer
	Searcher     *textsearch.Searcher
}

// New builds a Surface with a default-configured text searcher.
func New(st *store.Store, mat *materializer.Materializer) *Surface {
	return &Surface{Store: st, Materializer: mat, Searcher: textsearch.New()}
}

func (s *Surface) resolveRoot(ctx context.Context, resourceID string) (string, error) {
	if strings.TrimSpace(resourceID) == "" {
		return "", ctxerrors.Validationf("resourceId is required")
	}
	r, err := s.Store.GetResource(ctx, resourceID)
	if err != nil {
		return "", err
	}

	var root string
	switch r.Kind {
	case store.KindGit:
		if s.Materializer == nil {
			return "", ctxerrors.Validationf("resource %s has no materializer configured", resourceID)
		}
		root = s.Materializer.Dir(r.ID)
	case store.KindLocal:
		if r.LocalPath == nil {
			return "", ctxerrors.Validationf("local resource %s has no path", resourceID)
		}
		root = *r.LocalPath
	default:
		return "", ctxerrors.Validationf("resource %s has unknown kind %q", resourceID, r.Kind)
	}
	if root == "" {
		return "", ctxerrors.NotFoundf("resource %s has no materialized content", resourceID)
	}
	return root, nil
}

// resolvePath joins root with a caller-supplied relative path, rejecting
// any path that would escape root via ".." segments or an absolute override.
func resolvePath(root, rel string) (string, error) {
	if rel == "" {
		return root, nil
	}
	full := filepath.Join(root, filepath.FromSlash(rel))
	if full != root && !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", ctxerrors.Validationf("path %q escapes resource root", rel)
	}
	return full, nil
}

// Read returns up to maxReadLines lines of a file within the scoped
// resource, honoring Offset/Limit.
func (s *Surface) Read(ctx context.Context, p Params) (ReadResult, error) {
	if strings.TrimSpace(p.Path) == "" {
		return ReadResult{}, ctxerrors.Validationf("path is required")
	}
	root, err := s.resolveRoot(ctx, p.ResourceID)
	if err != nil {
		return ReadResult{}, err
	}
	full, err := resolvePath(root, p.Path)
	if err != nil {
		return ReadResult{}, err
	}

	content, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ReadResult{}, ctxerrors.NotFoundf("file %s not found", p.Path)
		}
		return ReadResult{}, ctxerrors.Wrap(ctxerrors.KindTool, "read file", err)
	}

	lines := strings.Split(string(content), "\n")
	if p.Offset > 0 {
		if p.Offset >= len(lines) {
			lines = nil
		} else {
			lines = lines[p.Offset:]
		}
	}

	limit := p.Limit
	if limit <= 0 || limit > maxReadLines {
		limit = maxReadLines
	}
	truncated := false
	if len(lines) > limit {
		lines = lines[:limit]
		truncated = true
	}

	return ReadResult{Path: p.Path, Lines: lines, Truncated: truncated}, nil
}

// Grep runs pattern as a regular expression against the scoped resource,
// capping the result at maxGrepMatches.
func (s *Surface) Grep(ctx context.Context, p Params) ([]GrepMatch, error) {
	if strings.TrimSpace(p.Pattern) == "" {
		return nil, ctxerrors.Validationf("pattern is required")
	}
	root, err := s.resolveRoot(ctx, p.ResourceID)
	if err != nil {
		return nil, err
	}

	hits, err := s.Searcher.RawMatches(ctx, root, p.Pattern, p.CaseInsensitive)
	if err != nil {
		return nil, err
	}
	if len(hits) > maxGrepMatches {
		hits = hits[:maxGrepMatches]
	}

	matches := make([]GrepMatch, 0, len(hits))
	for _, h := range hits {
		matches = append(matches, GrepMatch{Filepath: h.Filepath, Line: h.Line})
	}
	return matches, nil
}

// List returns the names of entries in a directory within the scoped
// resource, capped at maxListFiles. Path defaults to the resource root.
func (s *Surface) List(ctx context.Context, p Params) ([]string, error) {
	root, err := s.resolveRoot(ctx, p.ResourceID)
	if err != nil {
		return nil, err
	}
	dir := root
	if p.Path != "" {
		dir, err = resolvePath(root, p.Path)
		if err != nil {
			return nil, err
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ctxerrors.NotFoundf("directory %s not found", p.Path)
		}
		return nil, ctxerrors.Wrap(ctxerrors.KindTool, "list directory", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && materializer.SkipDirs[e.Name()] {
			continue
		}
		names = append(names, e.Name())
		if len(names) >= maxListFiles {
			break
		}
	}
	return names, nil
}

var errGlobCap = errors.New("glob cap reached")

// Glob matches files under the scoped resource by name pattern, capped at
// maxGlobFiles and skipping the same directories the materializer skips.
func (s *Surface) Glob(ctx context.Context, p Params) ([]string, error) {
	if strings.TrimSpace(p.Pattern) == "" {
		return nil, ctxerrors.Validationf("pattern is required")
	}
	root, err := s.resolveRoot(ctx, p.ResourceID)
	if err != nil {
		return nil, err
	}

	var matches []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && materializer.SkipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		matched, matchErr := filepath.Match(p.Pattern, rel)
		if matchErr == nil && !matched {
			matched, matchErr = filepath.Match(p.Pattern, d.Name())
		}
		if matchErr != nil || !matched {
			return nil
		}

		matches = append(matches, rel)
		if len(matches) >= maxGlobFiles {
			return errGlobCap
		}
		return nil
	})
	if walkErr != nil && !errors.Is(walkErr, errGlobCap) {
		return nil, ctxerrors.Wrap(ctxerrors.KindTool, "glob walk", walkErr)
	}
	return matches, nil
}
