package projections

import (
	"encoding/json"

	"go-agentdb/pkg/events"
	"go-agentdb/pkg/store"
)

// PendingToolCall is one tool call awaiting execution, as requested by the
// most recent LLMResponseReceived.
type PendingToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolArgs returns the pending tool calls from the most recent
// LLMResponseReceived event: a scan from the tail finds the latest such
// event and returns its tool_calls. If none exists, it returns nil.
func ToolArgs(evts []store.Event) []PendingToolCall {
	for i := len(evts) - 1; i >= 0; i-- {
		if evts[i].Type != events.TypeLLMResponseReceived {
			continue
		}
		var p events.LLMResponseReceived
		if err := json.Unmarshal(evts[i].Data, &p); err != nil {
			return nil
		}
		calls := make([]PendingToolCall, 0, len(p.ToolCalls))
		for _, tc := range p.ToolCalls {
			calls = append(calls, PendingToolCall{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
		}
		return calls
	}
	return nil
}
