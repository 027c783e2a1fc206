package agent

import "context"

// MockChatModel replays a scripted sequence of turns. A turn is a
// pre-built list of ModelEvents; when a turn contains a tool-call event,
// the mock invokes the matching tool's Handler itself and appends a
// tool-result event with the handler's output, mirroring how a real model
// provider resolves tool calls before continuing. Used for testing the
// driver without a live provider dependency.
type MockChatModel struct {
	ModelName string
	Turns     [][]ModelEvent
}

// NewMock creates a mock model that replays turns in order.
func NewMock(name string, turns ...[]ModelEvent) *MockChatModel {
	return &MockChatModel{ModelName: name, Turns: turns}
}

func (m *MockChatModel) Name() string {
	if m.ModelName == "" {
		return "mock"
	}
	return m.ModelName
}

func (m *MockChatModel) Stream(ctx context.Context, req ChatRequest) (<-chan ModelEvent, error) {
	out := make(chan ModelEvent, 16)
	go func() {
		defer close(out)
		handlers := make(map[string]ToolHandler, len(req.Tools))
		for _, ts := range req.Tools {
			handlers[ts.Name] = ts.Handler
		}

		for _, turn := range m.Turns {
			for _, ev := range turn {
				select {
				case <-ctx.Done():
					return
				case out <- ev:
				}
				if ev.Kind == EventToolCall {
					handler := handlers[ev.ToolName]
					var output []byte
					var err error
					if handler != nil {
						output, err = handler(ctx, ev.ToolInput)
					}
					result := ModelEvent{Kind: EventToolResult, ToolCallID: ev.ToolCallID, ToolName: ev.ToolName, ToolOutput: output}
					if err != nil {
						result.ToolOutput = []byte(`{"error":"` + err.Error() + `"}`)
					}
					select {
					case <-ctx.Done():
						return
					case out <- result:
					}
				}
			}
		}
	}()
	return out, nil
}
