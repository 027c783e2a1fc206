// Package agent implements the quick-answer, exploration, and
// deep-research entry points shared by every caller: build a system
// prompt, instantiate a ChatModel, expose a bounded tool surface, and
// either buffer the final result or emit a streamed event sequence.
package agent

import (
	"context"
	"encoding/json"
)

// EventKind tags the variant of a ModelEvent emitted by a ChatModel.
type EventKind string

const (
	EventTextDelta  EventKind = "text-delta"
	EventReasoning  EventKind = "reasoning"
	EventToolCall   EventKind = "tool-call"
	EventToolResult EventKind = "tool-result"
	EventFinish     EventKind = "finish"
	EventError      EventKind = "error"
)

// Usage summarizes token accounting for one model turn.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ModelEvent is one item of a ChatModel's full event stream.
type ModelEvent struct {
	Kind         EventKind
	Text         string
	ToolCallID   string
	ToolName     string
	ToolInput    json.RawMessage
	ToolOutput   json.RawMessage
	FinishReason string
	Usage        *Usage
	Err          error
}

// ToolHandler executes a tool call and returns its JSON-encoded result.
type ToolHandler func(ctx context.Context, input json.RawMessage) (json.RawMessage, error)

// ToolSpec describes one callable tool offered to the model for a turn.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Handler     ToolHandler
}

// ChatRequest is the input to one ChatModel invocation.
type ChatRequest struct {
	System     string
	Prompt     string
	Tools      []ToolSpec
	StepBudget int
}

// ChatModel is the external collaborator the driver invokes. A call
// streams a sequence of ModelEvents; the model itself is responsible for
// invoking a requested tool's Handler and feeding the result back into its
// own context before continuing, up to StepBudget tool-using steps.
type ChatModel interface {
	Name() string
	Stream(ctx context.Context, req ChatRequest) (<-chan ModelEvent, error)
}

// drain collects a ChatModel event stream into a buffered result: the
// concatenated text, the finish reason and usage of the finish event, and
// the error of the last error event. Tool-call and tool-result events are
// not collected. Used by quick answer, which runs the model without tools and has no use
// for per-step structure.
func drain(ctx context.Context, events <-chan ModelEvent) (text string, finishReason string, usage *Usage, err error) {
	for {
		select {
		case <-ctx.Done():
			return text, finishReason, usage, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return text, finishReason, usage, err
			}
			switch ev.Kind {
			case EventTextDelta:
				text += ev.Text
			case EventFinish:
				finishReason = ev.FinishReason
				usage = ev.Usage
			case EventError:
				err = ev.Err
			}
		}
	}
}
