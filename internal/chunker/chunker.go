// Package chunker splits source files into bounded, line-ranged,
// contextualized chunks. Chunking is AST-aware where possible and pure:
// output is deterministic given input and settings.
package chunker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
)

// FileInput is one file handed to the Chunker.
type FileInput struct {
	Filepath string
	Code     string
}

// Chunk is one bounded, line-ranged slice of a file.
type Chunk struct {
	Filepath           string
	LineStart          int
	LineEnd            int
	Text               string
	ContextualizedText string
	Scope              map[string]string
	Entities           []string
	Language           string
	Hash               string
}

// FileResult is either a chunk list or a per-file error (the caller
// converts the error into a non-fatal warning).
type FileResult struct {
	Filepath string
	Chunks   []Chunk
	Err      error
}

// Config bounds chunk size.
type Config struct {
	MaxChunkSize int // characters; default 1500
	OverlapSize  int // characters; default 150
}

// Chunker packs AST/boundary-discovered units into bounded chunks.
type Chunker struct {
	cfg Config
}

// New creates a Chunker with the given bounds, applying spec defaults for
// zero values.
func New(cfg Config) *Chunker {
	if cfg.MaxChunkSize <= 0 {
		cfg.MaxChunkSize = 1500
	}
	if cfg.OverlapSize <= 0 {
		cfg.OverlapSize = 150
	}
	return &Chunker{cfg: cfg}
}

// ChunkFiles chunks every input independently, never letting one file's
// error abort the batch.
func (c *Chunker) ChunkFiles(ctx context.Context, files []FileInput) []FileResult {
	results := make([]FileResult, 0, len(files))
	for _, f := range files {
		select {
		case <-ctx.Done():
			results = append(results, FileResult{Filepath: f.Filepath, Err: ctx.Err()})
			continue
		default:
		}
		chunks, err := c.chunkFile(f)
		results = append(results, FileResult{Filepath: f.Filepath, Chunks: chunks, Err: err})
	}
	return results
}

func (c *Chunker) chunkFile(f FileInput) ([]Chunk, error) {
	lang := detectLanguage(f.Filepath)

	var units []boundaryUnit
	switch lang {
	case "go":
		units = chunkGo(f.Code, f.Filepath)
	case "javascript", "typescript", "python", "java":
		var ok bool
		units, ok = chunkByEntities(f.Code, lang)
		if !ok {
			units = chunkByBoundary(f.Code, lang)
		}
	default:
		units = nil
	}

	if len(units) == 0 {
		units = slidingWindow(f.Code, c.cfg.MaxChunkSize, c.cfg.OverlapSize)
	}

	units = packUnits(units, c.cfg.MaxChunkSize)

	entities := extractEntities(f.Code, lang)

	chunks := make([]Chunk, 0, len(units))
	for _, u := range units {
		scope := map[string]string{"file": f.Filepath}
		if u.scopeName != "" {
			scope["enclosing"] = u.scopeName
		}
		unitEntities := entitiesInRange(entities, u.startLine, u.endLine)

		contextualized := contextualize(f.Filepath, scope, unitEntities, u.text)
		hash := chunkHash(f.Filepath, u.startLine, u.endLine, contextualized)

		chunks = append(chunks, Chunk{
			Filepath:           f.Filepath,
			LineStart:          u.startLine,
			LineEnd:            u.endLine,
			Text:               u.text,
			ContextualizedText: contextualized,
			Scope:              scope,
			Entities:           unitEntities,
			Language:           lang,
			Hash:               hash,
		})
	}
	return chunks, nil
}

// contextualize prepends scope/entity hints to the raw text; this is the
// form that MUST be embedded (context mode "full").
func contextualize(filepath string, scope map[string]string, entities []string, text string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "// file: %s\n", filepath)
	if enclosing, ok := scope["enclosing"]; ok && enclosing != "" {
		fmt.Fprintf(&b, "// scope: %s\n", enclosing)
	}
	if len(entities) > 0 {
		fmt.Fprintf(&b, "// entities: %s\n", strings.Join(entities, ", "))
	}
	b.WriteString(text)
	return b.String()
}

func chunkHash(filepath string, start, end int, contextualized string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%d:%s", filepath, start, end, contextualized)))
	return hex.EncodeToString(sum[:])
}

func detectLanguage(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		return "go"
	case ".py":
		return "python"
	case ".js", ".jsx", ".mjs", ".cjs":
		return "javascript"
	case ".ts", ".tsx":
		return "typescript"
	case ".java":
		return "java"
	case ".rs":
		return "rust"
	case ".rb":
		return "ruby"
	case ".c", ".h":
		return "c"
	case ".cpp", ".cc", ".cxx", ".hpp":
		return "cpp"
	default:
		return "text"
	}
}

// boundaryUnit is one natural-boundary unit (function, class, statement
// block, or a sliding window) before packing.
type boundaryUnit struct {
	text      string
	startLine int
	endLine   int
	scopeName string
}

// packUnits merges adjacent small units until maxChunkSize, never splitting
// a unit that already exceeds it.
func packUnits(units []boundaryUnit, maxChunkSize int) []boundaryUnit {
	if len(units) == 0 {
		return units
	}
	var packed []boundaryUnit
	current := units[0]
	for _, u := range units[1:] {
		if len(current.text)+len(u.text) <= maxChunkSize {
			current.text += "\n" + u.text
			current.endLine = u.endLine
			if current.scopeName == "" {
				current.scopeName = u.scopeName
			}
			continue
		}
		packed = append(packed, current)
		current = u
	}
	packed = append(packed, current)
	return packed
}
