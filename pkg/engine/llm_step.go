package engine

import (
	"context"
	"encoding/json"
	"log/slog"

	"go-agentdb/pkg/events"
	"go-agentdb/pkg/projections"
	"go-agentdb/pkg/store"
)

// maxLLMRetries is the LLM step's own retry budget before it gives up and
// records an LLMCallFailed event.
const maxLLMRetries = 2

// runLLMStep projects the stream to LLM context, enumerates tool
// declarations, and calls the LLM client, retrying any error the client
// returns up to maxLLMRetries times before recording a failure event.
func runLLMStep(ctx context.Context, client *store.Client, streamName string, evts []store.Event, llm LLMClient, registry *Registry, systemPrompt string, log *slog.Logger) error {
	context_ := projections.LLMContext(evts)
	var declarations []ToolDeclaration
	if registry != nil {
		declarations = registry.Declarations()
	}

	var lastErr error
	retryCount := 0
	for attempt := 0; attempt <= maxLLMRetries; attempt++ {
		resp, err := llm.Call(ctx, context_, declarations, systemPrompt)
		if err == nil {
			data, marshalErr := json.Marshal(events.LLMResponseReceived{
				ResponseText: resp.Text,
				ToolCalls:    resp.ToolCalls,
				ModelName:    resp.ModelName,
				TokenUsage:   resp.TokenUsage,
			})
			if marshalErr != nil {
				return &SessionError{Op: "llm_step_append", Err: marshalErr}
			}
			if _, err := client.Append(ctx, streamName, events.TypeLLMResponseReceived, data, nil, nil); err != nil {
				return &SessionError{Op: "llm_step_append", Err: err}
			}
			return nil
		}

		lastErr = err
		retryCount = attempt
		log.Warn("llm call failed", "attempt", attempt, "error", err)
	}

	data, err := json.Marshal(events.LLMCallFailed{
		ErrorMessage: lastErr.Error(),
		RetryCount:   retryCount,
	})
	if err != nil {
		return &SessionError{Op: "llm_step_append", Err: err}
	}
	if _, err := client.Append(ctx, streamName, events.TypeLLMCallFailed, data, nil, nil); err != nil {
		return &SessionError{Op: "llm_step_append", Err: err}
	}
	return nil
}
