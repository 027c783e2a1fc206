package agent

import (
	"context"
	"time"

	"github.com/ctxpack/ctxpack/internal/hybridsearch"
)

// StreamEventKind tags the variant of a driver-level StreamEvent.
type StreamEventKind string

const (
	StreamStart      StreamEventKind = "start"
	StreamSources    StreamEventKind = "sources"
	StreamTextDelta  StreamEventKind = "text-delta"
	StreamToolCall   StreamEventKind = "tool-call"
	StreamToolResult StreamEventKind = "tool-result"
	StreamDone       StreamEventKind = "done"
	StreamError      StreamEventKind = "error"
	StreamPing       StreamEventKind = "ping"
)

// StreamEvent is one item of the public streaming interface.
type StreamEvent struct {
	Kind    StreamEventKind
	Model   string
	Sources []Source
	Text    string
	Step    int
	Name    string
	Input   []byte
	Output  []byte
	Message string
}

// bufferedStreamChan is the producer/consumer channel size: large enough
// to absorb a burst of tool-call/tool-result pairs without the producer
// blocking on a momentarily slow consumer, small enough that a stalled
// consumer still applies backpressure quickly.
const bufferedStreamChan = 32

// StreamQuickAnswer runs a quick answer and emits start/sources/text-delta
// events followed by exactly one terminal event.
func (d *Driver) StreamQuickAnswer(ctx context.Context, question string, resourceIDs []string, onTerminal func()) (<-chan StreamEvent, error) {
	out := make(chan StreamEvent, bufferedStreamChan)
	go func() {
		defer close(out)
		defer fireOnce(onTerminal)

		modelName := d.Model.Name()
		if !sendEvent(ctx, out, StreamEvent{Kind: StreamStart, Model: modelName}) {
			return
		}

		results, err := d.Search.Search(ctx, hybridsearch.Query{Text: question, ResourceIDs: resourceIDs, Mode: hybridsearch.ModeHybrid})
		if err != nil {
			sendEvent(ctx, out, StreamEvent{Kind: StreamError, Message: err.Error()})
			return
		}
		sources := sourcesFromResults(results)
		if !sendEvent(ctx, out, StreamEvent{Kind: StreamSources, Sources: sources}) {
			return
		}

		req := ChatRequest{System: quickAnswerSystemPrompt, Prompt: buildContextPrompt(question, results), StepBudget: stepBudgetQuickAnswer}
		events, err := d.Model.Stream(ctx, req)
		if err != nil {
			sendEvent(ctx, out, StreamEvent{Kind: StreamError, Message: err.Error()})
			return
		}
		relayBuffered(ctx, out, events, modelName)
	}()
	return out, nil
}

// StreamExplore runs the exploration mode as a stream of tool-call/
// tool-result/text-delta events with a 5s heartbeat.
func (d *Driver) StreamExplore(ctx context.Context, question string, resourceIDs []string, onTerminal func()) (<-chan StreamEvent, error) {
	return d.streamToolRun(ctx, ModeExploration, question, resourceIDs, stepBudgetExploration, onTerminal)
}

// StreamDeepResearch runs the deep-research mode as a stream of events
// with a 5s heartbeat and a step budget of 50.
func (d *Driver) StreamDeepResearch(ctx context.Context, question string, resourceIDs []string, onTerminal func()) (<-chan StreamEvent, error) {
	return d.streamToolRun(ctx, ModeDeepResearch, question, resourceIDs, stepBudgetDeepResearch, onTerminal)
}

func (d *Driver) streamToolRun(ctx context.Context, mode Mode, question string, resourceIDs []string, stepBudget int, onTerminal func()) (<-chan StreamEvent, error) {
	out := make(chan StreamEvent, bufferedStreamChan)
	go func() {
		defer close(out)
		defer fireOnce(onTerminal)

		modelName := d.Model.Name()
		if !sendEvent(ctx, out, StreamEvent{Kind: StreamStart, Model: modelName}) {
			return
		}

		sources := newSourceSet()
		specs := d.toolSpecs(resourceIDs, sources)
		req := ChatRequest{System: systemPromptFor(mode), Prompt: question, Tools: specs, StepBudget: stepBudget}

		events, err := d.Model.Stream(ctx, req)
		if err != nil {
			sendEvent(ctx, out, StreamEvent{Kind: StreamError, Message: err.Error()})
			return
		}
		relayWithSteps(ctx, out, events, modelName)
	}()
	return out, nil
}

func fireOnce(f func()) {
	if f != nil {
		f()
	}
}

// sendEvent delivers ev to out, honoring ctx cancellation. Returns false
// if the context was cancelled before the send completed, signalling the
// caller to stop producing further events.
func sendEvent(ctx context.Context, out chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- ev:
		return true
	}
}

// relayBuffered forwards a no-tools ChatModel stream (quick answer) as
// text-delta events, heartbeating every 5s, and emits exactly one
// terminal event.
func relayBuffered(ctx context.Context, out chan<- StreamEvent, events <-chan ModelEvent, modelName string) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !sendEvent(ctx, out, StreamEvent{Kind: StreamPing}) {
				return
			}
		case ev, ok := <-events:
			if !ok {
				sendEvent(ctx, out, StreamEvent{Kind: StreamDone, Model: modelName})
				return
			}
			switch ev.Kind {
			case EventTextDelta:
				if !sendEvent(ctx, out, StreamEvent{Kind: StreamTextDelta, Text: ev.Text}) {
					return
				}
			case EventError:
				sendEvent(ctx, out, StreamEvent{Kind: StreamError, Message: ev.Err.Error()})
				return
			case EventFinish:
				sendEvent(ctx, out, StreamEvent{Kind: StreamDone, Model: modelName})
				return
			}
		}
	}
}

// relayWithSteps forwards a tool-using ChatModel stream as tool-call/
// tool-result/text-delta events, applying the same step-numbering rule as
// collectSteps, heartbeating every 5s, and emitting exactly one terminal
// event.
func relayWithSteps(ctx context.Context, out chan<- StreamEvent, events <-chan ModelEvent, modelName string) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	step := 1
	var lastKind EventKind
	seenEvent := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !sendEvent(ctx, out, StreamEvent{Kind: StreamPing}) {
				return
			}
		case ev, ok := <-events:
			if !ok {
				sendEvent(ctx, out, StreamEvent{Kind: StreamDone, Model: modelName})
				return
			}
			switch ev.Kind {
			case EventTextDelta:
				if !sendEvent(ctx, out, StreamEvent{Kind: StreamTextDelta, Text: ev.Text, Step: step}) {
					return
				}
			case EventToolCall:
				if lastKind != EventToolCall && seenEvent {
					step++
				}
				if !sendEvent(ctx, out, StreamEvent{Kind: StreamToolCall, Step: step, Name: ev.ToolName, Input: ev.ToolInput}) {
					return
				}
			case EventToolResult:
				if !sendEvent(ctx, out, StreamEvent{Kind: StreamToolResult, Step: step, Name: ev.ToolName, Output: ev.ToolOutput}) {
					return
				}
			case EventError:
				sendEvent(ctx, out, StreamEvent{Kind: StreamError, Message: ev.Err.Error()})
				return
			case EventFinish:
				sendEvent(ctx, out, StreamEvent{Kind: StreamDone, Model: modelName})
				return
			}
			lastKind = ev.Kind
			seenEvent = true
		}
	}
}
