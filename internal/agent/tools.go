package agent

import (
	"context"
	"encoding/json"

	"github.com/ctxpack/ctxpack/internal/ctxerrors"
	"github.com/ctxpack/ctxpack/internal/hybridsearch"
	"github.com/ctxpack/ctxpack/internal/tool"
)

// resourceScope resolves the resource id a tool call should act on: the
// input's explicit value if given, or the sole resource in scope when
// exactly one was passed to the driver. Any other case is an error.
func resourceScope(resourceIDs []string, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if len(resourceIDs) == 1 {
		return resourceIDs[0], nil
	}
	return "", ctxerrors.Validationf("resourceId is required when more than one resource is in scope")
}

type searchInput struct {
	Query      string `json:"query"`
	ResourceID string `json:"resourceId,omitempty"`
}

type searchHit struct {
	ChunkID      *string  `json:"chunkId,omitempty"`
	ResourceID   string   `json:"resourceId"`
	ResourceName string   `json:"resourceName"`
	Filepath     string   `json:"filepath"`
	LineStart    int      `json:"lineStart"`
	LineEnd      int      `json:"lineEnd"`
	Text         string   `json:"text"`
	Score        float64  `json:"score"`
	MatchType    string   `json:"matchType"`
	MatchSources []string `json:"matchSources"`
}

type readInput struct {
	ResourceID string `json:"resourceId,omitempty"`
	Path       string `json:"path"`
	Offset     int    `json:"offset,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

type readOutput struct {
	Path      string   `json:"path"`
	Lines     []string `json:"lines"`
	Truncated bool     `json:"truncated"`
}

type grepInput struct {
	ResourceID      string `json:"resourceId,omitempty"`
	Pattern         string `json:"pattern"`
	CaseInsensitive bool   `json:"caseInsensitive,omitempty"`
}

type grepMatch struct {
	Filepath string `json:"filepath"`
	Line     int    `json:"line"`
}

type listInput struct {
	ResourceID string `json:"resourceId,omitempty"`
	Path       string `json:"path,omitempty"`
}

type globInput struct {
	ResourceID string `json:"resourceId,omitempty"`
	Pattern    string `json:"pattern"`
}

// toolSpecs builds the search/grep/read/list/glob tool surface for one
// driver turn, recording every search-tool hit into sources.
func (d *Driver) toolSpecs(resourceIDs []string, sources *sourceSet) []ToolSpec {
	return []ToolSpec{
		{
			Name:        "search",
			Description: "Hybrid keyword + semantic search over the resources in scope. Returns truncated previews.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"},"resourceId":{"type":"string"}},"required":["query"]}`),
			Handler: func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
				var in searchInput
				if err := json.Unmarshal(input, &in); err != nil {
					return nil, ctxerrors.Validationf("invalid search input: %v", err)
				}
				scope := resourceIDs
				if in.ResourceID != "" {
					scope = []string{in.ResourceID}
				}
				results, err := d.Search.Search(ctx, hybridsearch.Query{Text: in.Query, ResourceIDs: scope, Mode: hybridsearch.ModeHybrid})
				if err != nil {
					return nil, err
				}
				hits := make([]searchHit, 0, len(results))
				for _, r := range results {
					sources.add(Source{ChunkID: r.ChunkID, ResourceID: r.ResourceID, Filepath: r.Filepath, LineStart: r.LineStart, LineEnd: r.LineEnd})
					hits = append(hits, searchHit{
						ChunkID: r.ChunkID, ResourceID: r.ResourceID, ResourceName: r.ResourceName,
						Filepath: r.Filepath, LineStart: r.LineStart, LineEnd: r.LineEnd,
						Text: truncatePreview(r.Text), Score: r.Score,
						MatchType: string(r.MatchType), MatchSources: r.MatchSources,
					})
				}
				return json.Marshal(hits)
			},
		},
		{
			Name:        "read",
			Description: "Read a file from a resource, capped at 500 lines.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"},"offset":{"type":"integer"},"limit":{"type":"integer"},"resourceId":{"type":"string"}},"required":["path"]}`),
			Handler: func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
				var in readInput
				if err := json.Unmarshal(input, &in); err != nil {
					return nil, ctxerrors.Validationf("invalid read input: %v", err)
				}
				rid, err := resourceScope(resourceIDs, in.ResourceID)
				if err != nil {
					return nil, err
				}
				res, err := d.Tools.Read(ctx, tool.Params{ResourceID: rid, Path: in.Path, Offset: in.Offset, Limit: in.Limit})
				if err != nil {
					return nil, err
				}
				return json.Marshal(readOutput{Path: res.Path, Lines: res.Lines, Truncated: res.Truncated})
			},
		},
		{
			Name:        "grep",
			Description: "Search file contents by regular expression within a resource, capped at 100 matches.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"pattern":{"type":"string"},"caseInsensitive":{"type":"boolean"},"resourceId":{"type":"string"}},"required":["pattern"]}`),
			Handler: func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
				var in grepInput
				if err := json.Unmarshal(input, &in); err != nil {
					return nil, ctxerrors.Validationf("invalid grep input: %v", err)
				}
				rid, err := resourceScope(resourceIDs, in.ResourceID)
				if err != nil {
					return nil, err
				}
				hits, err := d.Tools.Grep(ctx, tool.Params{ResourceID: rid, Pattern: in.Pattern, CaseInsensitive: in.CaseInsensitive})
				if err != nil {
					return nil, err
				}
				matches := make([]grepMatch, 0, len(hits))
				for _, h := range hits {
					matches = append(matches, grepMatch{Filepath: h.Filepath, Line: h.Line})
				}
				return json.Marshal(matches)
			},
		},
		{
			Name:        "list",
			Description: "List a directory within a resource, capped at 500 entries.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"},"resourceId":{"type":"string"}}}`),
			Handler: func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
				var in listInput
				if err := json.Unmarshal(input, &in); err != nil {
					return nil, ctxerrors.Validationf("invalid list input: %v", err)
				}
				rid, err := resourceScope(resourceIDs, in.ResourceID)
				if err != nil {
					return nil, err
				}
				names, err := d.Tools.List(ctx, tool.Params{ResourceID: rid, Path: in.Path})
				if err != nil {
					return nil, err
				}
				return json.Marshal(names)
			},
		},
		{
			Name:        "glob",
			Description: "Match files by name pattern within a resource, excluding node_modules/ and .git/, capped at 500 files.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"pattern":{"type":"string"},"resourceId":{"type":"string"}},"required":["pattern"]}`),
			Handler: func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
				var in globInput
				if err := json.Unmarshal(input, &in); err != nil {
					return nil, ctxerrors.Validationf("invalid glob input: %v", err)
				}
				rid, err := resourceScope(resourceIDs, in.ResourceID)
				if err != nil {
					return nil, err
				}
				matches, err := d.Tools.Glob(ctx, tool.Params{ResourceID: rid, Pattern: in.Pattern})
				if err != nil {
					return nil, err
				}
				return json.Marshal(matches)
			},
		},
	}
}
