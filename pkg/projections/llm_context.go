package projections

import (
	"encoding/json"

	"go-agentdb/pkg/events"
	"go-agentdb/pkg/store"
)

// Role tags a ContextMessage by who or what produced it.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContextMessage is one entry in the LLM-facing conversation history.
type ContextMessage struct {
	Role     Role   `json:"role"`
	Text     string `json:"text,omitempty"`
	ToolName string `json:"tool_name,omitempty"`
	Result   any    `json:"result,omitempty"`
	Error    string `json:"error,omitempty"`
}

// LLMContext folds a stream into the ordered conversation history an LLM
// call needs: user messages, assistant text, and tool outcomes, in stream
// order. Event types outside this set are skipped.
func LLMContext(evts []store.Event) []ContextMessage {
	var out []ContextMessage
	for _, e := range evts {
		switch e.Type {
		case events.TypeUserMessageAdded:
			var p events.UserMessageAdded
			if err := json.Unmarshal(e.Data, &p); err != nil {
				continue
			}
			out = append(out, ContextMessage{Role: RoleUser, Text: p.Message})

		case events.TypeLLMResponseReceived:
			var p events.LLMResponseReceived
			if err := json.Unmarshal(e.Data, &p); err != nil {
				continue
			}
			if p.ResponseText != "" {
				out = append(out, ContextMessage{Role: RoleAssistant, Text: p.ResponseText})
			}

		case events.TypeToolExecutionCompleted:
			var p events.ToolExecutionCompleted
			if err := json.Unmarshal(e.Data, &p); err != nil {
				continue
			}
			out = append(out, ContextMessage{Role: RoleTool, ToolName: p.ToolName, Result: p.Result})

		case events.TypeToolExecutionFailed:
			var p events.ToolExecutionFailed
			if err := json.Unmarshal(e.Data, &p); err != nil {
				continue
			}
			out = append(out, ContextMessage{Role: RoleTool, ToolName: p.ToolName, Error: p.ErrorMessage})
		}
	}
	return out
}
