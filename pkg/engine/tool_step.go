package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go-agentdb/pkg/events"
	"go-agentdb/pkg/projections"
	"go-agentdb/pkg/store"
)

type toolCorrelation struct {
	ToolID    string `json:"tool_id"`
	ToolIndex int    `json:"tool_index"`
}

// runToolStep extracts the pending tool calls from the tool-arguments
// projection and executes each in order, appending a requested/completed
// (or requested/failed) pair of events per call. Indices already serviced
// by a prior, interrupted run of this step (identified by an existing
// ToolExecutionRequested for that tool_index) are skipped, so resuming a
// partially-completed tool step never re-executes a call or appends a
// duplicate event pair.
func runToolStep(ctx context.Context, client *store.Client, streamName string, evts []store.Event, registry *Registry, approve ApprovalFunc, autoApprove bool, log *slog.Logger) error {
	pending := projections.ToolArgs(evts)
	serviced := requestedToolIndices(evts)

	for index, call := range pending {
		if serviced[index] {
			continue
		}

		metadata, err := json.Marshal(toolCorrelation{ToolID: call.ID, ToolIndex: index})
		if err != nil {
			return &SessionError{Op: "tool_step_append", Err: err}
		}

		requestedData, err := json.Marshal(events.ToolExecutionRequested{
			ToolName:  call.Name,
			Arguments: call.Arguments,
		})
		if err != nil {
			return &SessionError{Op: "tool_step_append", Err: err}
		}
		if _, err := client.Append(ctx, streamName, events.TypeToolExecutionRequested, requestedData, metadata, nil); err != nil {
			return &SessionError{Op: "tool_step_append", Err: err}
		}

		if !autoApprove {
			allowed, err := approve(ctx, call.Name, call.Arguments)
			if err != nil || !allowed {
				if err := appendToolFailed(ctx, client, streamName, call.Name, "rejected_by_user", metadata); err != nil {
					return err
				}
				continue
			}
		}

		tool, ok := registry.Lookup(call.Name)
		if !ok {
			if err := appendToolFailed(ctx, client, streamName, call.Name, "tool_not_found", metadata); err != nil {
				return err
			}
			continue
		}

		if err := registry.Validate(call.Name, call.Arguments); err != nil {
			if err := appendToolFailed(ctx, client, streamName, call.Name, "invalid_arguments: "+err.Error(), metadata); err != nil {
				return err
			}
			continue
		}

		start := time.Now()
		result, execErr := tool.Execute(ctx, call.Arguments)
		elapsed := time.Since(start).Milliseconds()

		if execErr != nil {
			log.Warn("tool execution failed", "tool", call.Name, "error", execErr)
			if err := appendToolFailed(ctx, client, streamName, call.Name, execErr.Error(), metadata); err != nil {
				return err
			}
			continue
		}

		completedData, err := json.Marshal(events.ToolExecutionCompleted{
			ToolName:        call.Name,
			Result:          result,
			ExecutionTimeMs: elapsed,
		})
		if err != nil {
			return &SessionError{Op: "tool_step_append", Err: err}
		}
		if _, err := client.Append(ctx, streamName, events.TypeToolExecutionCompleted, completedData, metadata, nil); err != nil {
			return &SessionError{Op: "tool_step_append", Err: err}
		}
	}

	return nil
}

// requestedToolIndices scans the events appended after the most recent
// LLMResponseReceived for ToolExecutionRequested events and returns the set
// of tool_index values already serviced, mirroring the scan
// projections.NextStep performs to decide whether to re-enter this step.
func requestedToolIndices(evts []store.Event) map[int]bool {
	lastResponseIdx := -1
	for i := len(evts) - 1; i >= 0; i-- {
		if evts[i].Type == events.TypeLLMResponseReceived {
			lastResponseIdx = i
			break
		}
	}
	if lastResponseIdx < 0 {
		return nil
	}

	requested := make(map[int]bool)
	for _, e := range evts[lastResponseIdx+1:] {
		if e.Type != events.TypeToolExecutionRequested {
			continue
		}
		var c toolCorrelation
		if err := json.Unmarshal(e.Metadata, &c); err != nil {
			continue
		}
		requested[c.ToolIndex] = true
	}
	return requested
}

func appendToolFailed(ctx context.Context, client *store.Client, streamName, toolName, errorMessage string, metadata json.RawMessage) error {
	data, err := json.Marshal(events.ToolExecutionFailed{
		ToolName:     toolName,
		ErrorMessage: errorMessage,
		RetryCount:   0,
	})
	if err != nil {
		return &SessionError{Op: "tool_step_append", Err: err}
	}
	if _, err := client.Append(ctx, streamName, events.TypeToolExecutionFailed, data, metadata, nil); err != nil {
		return &SessionError{Op: "tool_step_append", Err: err}
	}
	return nil
}
