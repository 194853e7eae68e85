package projections

import (
	"encoding/json"

	"go-agentdb/pkg/events"
	"go-agentdb/pkg/store"
)

// StepType is the engine's next action, as decided by NextStep.
type StepType string

const (
	StepCallLLM      StepType = "CallLLM"
	StepExecuteTools StepType = "ExecuteTools"
	StepDone         StepType = "Done"
	StepFailed       StepType = "Failed"
)

// toolCorrelation is the metadata every ToolExecutionRequested/Completed/
// Failed event carries, correlating it back to one of the pending tool
// calls in the triggering LLMResponseReceived.
type toolCorrelation struct {
	ToolID    string `json:"tool_id"`
	ToolIndex int    `json:"tool_index"`
}

func readCorrelation(metadata json.RawMessage) (toolCorrelation, bool) {
	if len(metadata) == 0 {
		return toolCorrelation{}, false
	}
	var c toolCorrelation
	if err := json.Unmarshal(metadata, &c); err != nil {
		return toolCorrelation{}, false
	}
	return c, true
}

// NextStep decides what the engine does next, evaluating the rules below
// in order and returning on the first match.
//
//  1. A SessionCompleted event anywhere -> Done.
//  2. Tail is LLMCallFailed -> Failed (the LLM step only records this once
//     its own retry budget is exhausted).
//  3. Tail is LLMResponseReceived with tool calls, and not every call has a
//     matching ToolExecutionRequested yet -> ExecuteTools.
//  4. Tail is LLMResponseReceived with no tool calls -> Done.
//  5. Every tool call requested from the last LLM response has a matching
//     ToolExecutionCompleted or ToolExecutionFailed -> CallLLM.
//  6. Tail is UserMessageAdded or SessionStarted -> CallLLM.
//  7. Otherwise -> Done.
func NextStep(evts []store.Event) StepType {
	if len(evts) == 0 {
		return StepDone
	}

	for _, e := range evts {
		if e.Type == events.TypeSessionCompleted {
			return StepDone
		}
	}

	tail := evts[len(evts)-1]

	if tail.Type == events.TypeLLMCallFailed {
		return StepFailed
	}

	lastResponseIdx := -1
	for i := len(evts) - 1; i >= 0; i-- {
		if evts[i].Type == events.TypeLLMResponseReceived {
			lastResponseIdx = i
			break
		}
	}

	if tail.Type == events.TypeLLMResponseReceived {
		var p events.LLMResponseReceived
		if err := json.Unmarshal(tail.Data, &p); err == nil && len(p.ToolCalls) > 0 {
			return StepExecuteTools
		}
		return StepDone
	}

	if lastResponseIdx >= 0 {
		var resp events.LLMResponseReceived
		if err := json.Unmarshal(evts[lastResponseIdx].Data, &resp); err == nil && len(resp.ToolCalls) > 0 {
			requested := make(map[int]bool, len(resp.ToolCalls))
			completed := make(map[int]bool, len(resp.ToolCalls))

			for _, e := range evts[lastResponseIdx+1:] {
				switch e.Type {
				case events.TypeToolExecutionRequested:
					if c, ok := readCorrelation(e.Metadata); ok {
						requested[c.ToolIndex] = true
					}
				case events.TypeToolExecutionCompleted, events.TypeToolExecutionFailed:
					if c, ok := readCorrelation(e.Metadata); ok {
						completed[c.ToolIndex] = true
					}
				}
			}

			allRequested := true
			for i := range resp.ToolCalls {
				if !requested[i] {
					allRequested = false
					break
				}
			}
			if !allRequested {
				return StepExecuteTools
			}

			allCompleted := true
			for i := range resp.ToolCalls {
				if !completed[i] {
					allCompleted = false
					break
				}
			}
			if allCompleted {
				return StepCallLLM
			}
		}
	}

	if tail.Type == events.TypeUserMessageAdded || tail.Type == events.TypeSessionStarted {
		return StepCallLLM
	}

	return StepDone
}
