// Package textsearch implements the keyword/grep subtrack of hybrid
// search: extract keywords, shell out to ripgrep, merge nearby hits into
// ranges, and expand each range into a bounded context window.
package textsearch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ctxpack/ctxpack/internal/ctxerrors"
	"github.com/ctxpack/ctxpack/internal/materializer"
)

const (
	rrfK            = 60
	maxHitsPerRun   = 400
	mergeWithinLine = 10
	contextRadius   = 15
	maxWindowLines  = 60
	defaultTimeout  = 10 * time.Second
)

// excludeGlobs keeps lock files, minified assets, source maps, and
// snapshot fixtures out of text search — none carry meaningful keyword
// matches and lock files in particular can dwarf genuine hits.
var excludeGlobs = []string{
	"*.lock", "*-lock.json", "go.sum", "*.min.js", "*.min.css", "*.map", "*.snap",
	"__snapshots__/**",
}

// Hit is a single matched line.
type Hit struct {
	Filepath string
	Line     int
}

// Result is a context window built around one or more merged hits.
type Result struct {
	Filepath  string
	LineStart int
	LineEnd   int
	Text      string
	HitCount  int
	Score     float64
}

// Searcher runs ripgrep against a materialized resource root.
type Searcher struct {
	Timeout time.Duration
}

// New creates a Searcher with the default 10-second per-run timeout.
func New() *Searcher {
	return &Searcher{Timeout: defaultTimeout}
}

// Search extracts keywords from query, greps root for them, and returns
// scored context-window results ordered by descending hit count / score.
func (s *Searcher) Search(ctx context.Context, root, query string) ([]Result, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	keywords := ExtractKeywords(query)
	pattern, fixedString := buildPattern(query, keywords)

	hits, err := s.run(runCtx, root, pattern, fixedString)
	if err != nil {
		return nil, err
	}
	if len(hits) > maxHitsPerRun {
		hits = hits[:maxHitsPerRun]
	}

	ranges := mergeHits(hits)
	sort.SliceStable(ranges, func(i, j int) bool {
		return ranges[i].HitCount > ranges[j].HitCount
	})

	results := make([]Result, 0, len(ranges))
	for i, rg := range ranges {
		rank := i + 1
		res, err := buildWindow(root, rg, rank)
		if err != nil {
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

// RawMatches runs root's content through ripgrep with pattern taken
// verbatim as a regular expression (the caller's own pattern, not a
// natural-language query run through keyword extraction), returning every
// matched line unranked and unmerged. Used by the tool surface's grep tool.
func (s *Searcher) RawMatches(ctx context.Context, root, pattern string, caseInsensitive bool) ([]Hit, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{"--json"}
	if caseInsensitive {
		args = append(args, "--ignore-case")
	}
	for _, g := range excludeGlobs {
		args = append(args, "--glob", "!"+g)
	}
	for dir := range materializer.SkipDirs {
		args = append(args, "--glob", "!"+dir+"/**")
	}
	args = append(args, "--", pattern, ".")

	return s.runArgs(runCtx, root, args)
}

// buildPattern decides between a fixed-string search (zero or one
// keyword) and a case-insensitive regex alternation of escaped keywords.
func buildPattern(query string, keywords []string) (pattern string, fixedString bool) {
	switch len(keywords) {
	case 0:
		return strings.TrimSpace(query), true
	case 1:
		return keywords[0], true
	default:
		escaped := make([]string, len(keywords))
		for i, k := range keywords {
			escaped[i] = regexp.QuoteMeta(k)
		}
		return strings.Join(escaped, "|"), false
	}
}

type rgMatchData struct {
	Path struct {
		Text string `json:"text"`
	} `json:"path"`
	LineNumber int `json:"line_number"`
}

type rgLine struct {
	Type string       `json:"type"`
	Data rgMatchData `json:"data"`
}

// run invokes ripgrep over root and parses its --json match lines.
func (s *Searcher) run(ctx context.Context, root, pattern string, fixedString bool) ([]Hit, error) {
	args := []string{"--json", "--smart-case"}
	if fixedString {
		args = append(args, "--fixed-strings")
	} else {
		args = append(args, "--ignore-case")
	}
	for _, g := range excludeGlobs {
		args = append(args, "--glob", "!"+g)
	}
	for dir := range materializer.SkipDirs {
		args = append(args, "--glob", "!"+dir+"/**")
	}
	args = append(args, "--", pattern, ".")

	return s.runArgs(ctx, root, args)
}

// runArgs executes rg with a fully-assembled argument list and parses its
// --json match lines.
func (s *Searcher) runArgs(ctx context.Context, root string, args []string) ([]Hit, error) {
	cmd := exec.CommandContext(ctx, "rg", args...)
	cmd.Dir = root

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		// ripgrep exits 1 when there are simply no matches; that is not
		// an error condition for a search.
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return nil, nil
		}
		return nil, ctxerrors.Wrap(ctxerrors.KindTool,
			fmt.Sprintf("rg %s: %s", strings.Join(args, " "), strings.TrimSpace(stderr.String())), err)
	}

	var hits []Hit
	scanner := bufio.NewScanner(&stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var line rgLine
		if jsonErr := json.Unmarshal(scanner.Bytes(), &line); jsonErr != nil {
			continue
		}
		if line.Type != "match" {
			continue
		}
		hits = append(hits, Hit{
			Filepath: filepath.ToSlash(line.Data.Path.Text),
			Line:     line.Data.LineNumber,
		})
	}
	return hits, nil
}

// hitRange is a merged run of nearby hits within one file.
type hitRange struct {
	Filepath  string
	LineStart int
	LineEnd   int
	HitCount  int
}

// mergeHits groups hits by filepath, sorts each file's hits by line, and
// merges consecutive hits within mergeWithinLine lines of each other.
func mergeHits(hits []Hit) []hitRange {
	byFile := make(map[string][]int)
	for _, h := range hits {
		byFile[h.Filepath] = append(byFile[h.Filepath], h.Line)
	}

	var ranges []hitRange
	for file, lines := range byFile {
		sort.Ints(lines)
		start, end, count := lines[0], lines[0], 1
		for _, ln := range lines[1:] {
			if ln-end <= mergeWithinLine {
				end = ln
				count++
				continue
			}
			ranges = append(ranges, hitRange{Filepath: file, LineStart: start, LineEnd: end, HitCount: count})
			start, end, count = ln, ln, 1
		}
		ranges = append(ranges, hitRange{Filepath: file, LineStart: start, LineEnd: end, HitCount: count})
	}
	return ranges
}

// buildWindow reads the file for a merged range and expands it into a
// bounded, ±contextRadius context window, scoring it by rank and hit
// density.
func buildWindow(root string, rg hitRange, rank int) (Result, error) {
	full := filepath.Join(root, filepath.FromSlash(rg.Filepath))
	content, err := os.ReadFile(full)
	if err != nil {
		return Result{}, err
	}
	lines := strings.Split(string(content), "\n")
	total := len(lines)

	start0 := rg.LineStart - 1 - contextRadius
	if start0 < 0 {
		start0 = 0
	}
	end1 := rg.LineEnd + contextRadius
	if end1 > total {
		end1 = total
	}
	if end1-start0 > maxWindowLines {
		end1 = start0 + maxWindowLines
		if end1 > total {
			end1 = total
		}
	}
	if start0 > end1 {
		start0 = end1
	}

	text := strings.Join(lines[start0:end1], "\n")
	hits := rg.HitCount
	if hits > 5 {
		hits = 5
	}
	score := 1.0/float64(rrfK+rank) + float64(hits)*0.0005

	return Result{
		Filepath:  rg.Filepath,
		LineStart: start0 + 1,
		LineEnd:   end1,
		Text:      text,
		HitCount:  rg.HitCount,
		Score:     score,
	}, nil
}
