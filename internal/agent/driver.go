package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ctxpack/ctxpack/internal/ctxerrors"
	"github.com/ctxpack/ctxpack/internal/hybridsearch"
	"github.com/ctxpack/ctxpack/internal/observability"
	"github.com/ctxpack/ctxpack/internal/tool"
)

const (
	stepBudgetQuickAnswer  = 1
	stepBudgetExploration  = 20
	stepBudgetDeepResearch = 50

	searchPreviewLines = 12
	searchPreviewChars = 600

	heartbeatInterval = 5 * time.Second
)

// Mode selects one of the three entry-point shapes.
type Mode string

const (
	ModeQuickAnswer  Mode = "quick-answer"
	ModeExploration  Mode = "exploration"
	ModeDeepResearch Mode = "deep-research"
)

// Source is one de-duplicated search hit backing an answer.
type Source struct {
	ChunkID    *string `json:"chunkId,omitempty"`
	ResourceID string  `json:"resourceId"`
	Filepath   string  `json:"filepath"`
	LineStart  int     `json:"lineStart"`
	LineEnd    int     `json:"lineEnd"`
}

func sourceKey(s Source) string {
	if s.ChunkID != nil {
		return "chunk:" + *s.ChunkID
	}
	return fmt.Sprintf("loc:%s:%s:%d", s.ResourceID, s.Filepath, s.LineStart)
}

// ToolCallRecord is one tool invocation recorded against an exploration
// or deep-research step.
type ToolCallRecord struct {
	Name  string
	Input json.RawMessage
}

// ToolResultRecord is the matching output for a ToolCallRecord.
type ToolResultRecord struct {
	Name   string
	Output json.RawMessage
}

// StepRecord is one recorded step of an exploration or deep-research run.
type StepRecord struct {
	Step         int
	Text         string
	Reasoning    string
	ToolCalls    []ToolCallRecord
	ToolResults  []ToolResultRecord
	FinishReason string
	Usage        *Usage
}

// Result is the buffered outcome of any of the three entry points.
type Result struct {
	Model   string
	Text    string
	Sources []Source
	Steps   []StepRecord // empty for quick answer, which has no step structure
}

// Driver runs the quick-answer/exploration/deep-research entry points
// against a ChatModel, backed by Hybrid Search and the tool surface.
type Driver struct {
	Model   ChatModel
	Search  *hybridsearch.Engine
	Tools   *tool.Surface
	Metrics *observability.MetricsCollector
}

// New creates a Driver.
func New(model ChatModel, search *hybridsearch.Engine, tools *tool.Surface) *Driver {
	return &Driver{Model: model, Search: search, Tools: tools}
}

// QuickAnswer runs a single Hybrid Search call, then a no-tools ChatModel
// turn over the retrieved context.
func (d *Driver) QuickAnswer(ctx context.Context, question string, resourceIDs []string) (Result, error) {
	if strings.TrimSpace(question) == "" {
		return Result{}, ctxerrors.Validationf("question cannot be empty")
	}
	start := time.Now()

	results, err := d.Search.Search(ctx, hybridsearch.Query{Text: question, ResourceIDs: resourceIDs, Mode: hybridsearch.ModeHybrid})
	if err != nil {
		return Result{}, err
	}

	req := ChatRequest{
		System:     quickAnswerSystemPrompt,
		Prompt:     buildContextPrompt(question, results),
		StepBudget: stepBudgetQuickAnswer,
	}
	events, err := d.Model.Stream(ctx, req)
	if err != nil {
		return Result{}, err
	}
	text, finishReason, _, err := drain(ctx, events)
	if err != nil {
		return Result{}, err
	}
	if d.Metrics != nil {
		d.Metrics.RecordAgentStep(string(ModeQuickAnswer), finishReason, time.Since(start))
	}

	return Result{Model: d.Model.Name(), Text: text, Sources: sourcesFromResults(results)}, nil
}

// Explore runs a tool-using ChatModel turn with a step budget of 20.
func (d *Driver) Explore(ctx context.Context, question string, resourceIDs []string) (Result, error) {
	return d.run(ctx, ModeExploration, question, resourceIDs, stepBudgetExploration)
}

// DeepResearch runs a tool-using ChatModel turn with a step budget of 50
// and a system prompt demanding broader coverage.
func (d *Driver) DeepResearch(ctx context.Context, question string, resourceIDs []string) (Result, error) {
	return d.run(ctx, ModeDeepResearch, question, resourceIDs, stepBudgetDeepResearch)
}

func (d *Driver) run(ctx context.Context, mode Mode, question string, resourceIDs []string, stepBudget int) (Result, error) {
	if strings.TrimSpace(question) == "" {
		return Result{}, ctxerrors.Validationf("question cannot be empty")
	}
	start := time.Now()

	sources := newSourceSet()
	specs := d.toolSpecs(resourceIDs, sources)

	req := ChatRequest{
		System:     systemPromptFor(mode),
		Prompt:     question,
		Tools:      specs,
		StepBudget: stepBudget,
	}
	events, err := d.Model.Stream(ctx, req)
	if err != nil {
		return Result{}, err
	}

	steps, text, err := collectSteps(ctx, events)
	if err != nil {
		return Result{}, err
	}
	if d.Metrics != nil {
		finishReason := ""
		if n := len(steps); n > 0 {
			finishReason = steps[n-1].FinishReason
		}
		duration := time.Since(start)
		for range steps {
			d.Metrics.RecordAgentStep(string(mode), finishReason, duration)
		}
	}

	return Result{Model: d.Model.Name(), Text: text, Sources: sources.list(), Steps: steps}, nil
}

// collectSteps consumes a ChatModel event stream and groups tool-call /
// tool-result pairs into numbered steps. A new step begins whenever a
// tool-call event follows an event of a different kind; all other event
// kinds accumulate onto the current step.
func collectSteps(ctx context.Context, events <-chan ModelEvent) ([]StepRecord, string, error) {
	var steps []StepRecord
	var lastKind EventKind
	var finalText strings.Builder
	var runErr error

	current := func() *StepRecord {
		if len(steps) == 0 {
			steps = append(steps, StepRecord{Step: 1})
		}
		return &steps[len(steps)-1]
	}

loop:
	for {
		select {
		case <-ctx.Done():
			runErr = ctx.Err()
			break loop
		case ev, ok := <-events:
			if !ok {
				break loop
			}
			switch ev.Kind {
			case EventTextDelta:
				current().Text += ev.Text
				finalText.WriteString(ev.Text)
			case EventReasoning:
				current().Reasoning += ev.Text
			case EventToolCall:
				if lastKind != EventToolCall && len(steps) > 0 {
					steps = append(steps, StepRecord{Step: len(steps) + 1})
				}
				s := current()
				s.ToolCalls = append(s.ToolCalls, ToolCallRecord{Name: ev.ToolName, Input: ev.ToolInput})
			case EventToolResult:
				s := current()
				s.ToolResults = append(s.ToolResults, ToolResultRecord{Name: ev.ToolName, Output: ev.ToolOutput})
			case EventFinish:
				s := current()
				s.FinishReason = ev.FinishReason
				s.Usage = ev.Usage
			case EventError:
				runErr = ev.Err
			}
			lastKind = ev.Kind
		}
	}
	return steps, finalText.String(), runErr
}

func buildContextPrompt(question string, results []hybridsearch.Result) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n\nContext:\n")
	for _, r := range results {
		b.WriteString(fmt.Sprintf("--- %s:%d-%d ---\n", r.Filepath, r.LineStart, r.LineEnd))
		b.WriteString(truncatePreview(r.Text))
		b.WriteString("\n")
	}
	return b.String()
}

func truncatePreview(text string) string {
	lines := strings.Split(text, "\n")
	if len(lines) > searchPreviewLines {
		lines = lines[:searchPreviewLines]
	}
	preview := strings.Join(lines, "\n")
	if len(preview) > searchPreviewChars {
		preview = preview[:searchPreviewChars]
	}
	return preview
}

func sourcesFromResults(results []hybridsearch.Result) []Source {
	set := newSourceSet()
	for _, r := range results {
		set.add(Source{ChunkID: r.ChunkID, ResourceID: r.ResourceID, Filepath: r.Filepath, LineStart: r.LineStart, LineEnd: r.LineEnd})
	}
	return set.list()
}

// sourceSet accumulates Sources uniquely by chunkId (falling back to
// resourceId:filepath:lineStart), preserving first-seen order.
type sourceSet struct {
	seen  map[string]bool
	items []Source
}

func newSourceSet() *sourceSet {
	return &sourceSet{seen: make(map[string]bool)}
}

func (s *sourceSet) add(src Source) {
	k := sourceKey(src)
	if s.seen[k] {
		return
	}
	s.seen[k] = true
	s.items = append(s.items, src)
}

func (s *sourceSet) list() []Source {
	return s.items
}

const quickAnswerSystemPrompt = "Answer the question using only the provided context. Be concise."

func systemPromptFor(mode Mode) string {
	switch mode {
	case ModeDeepResearch:
		return "Investigate the question thoroughly, using the available tools across as much of the codebase as the step budget allows. Favor breadth of coverage over speed."
	default:
		return "Investigate the question using the available tools, scoped to the resources in context."
	}
}
