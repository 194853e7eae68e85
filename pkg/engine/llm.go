package engine

import (
	"context"

	"go-agentdb/pkg/events"
	"go-agentdb/pkg/projections"
)

// DefaultSystemPrompt is used when a session does not override it.
const DefaultSystemPrompt = "You are a helpful assistant. Use the available tools when they help answer the user's request."

// LLMResponse is what an LLMClient call returns on success.
type LLMResponse struct {
	Text       string
	ToolCalls  []events.ToolCall
	ModelName  string
	TokenUsage *events.TokenUsage
}

// LLMError is the error type an LLMClient returns for a model-layer failure
// (bad request, rate limit, provider outage). The LLM step does not branch
// on it: any error returned by Call is retried and, once the retries are
// used up, recorded as LLMCallFailed.
type LLMError struct {
	Message string
	Cause   error
}

func (e *LLMError) Error() string { return e.Message }
func (e *LLMError) Unwrap() error { return e.Cause }

// LLMClient is the external collaborator the engine calls to decide what
// the agent says or does next. Implementations wrap a specific provider.
type LLMClient interface {
	Call(ctx context.Context, messages []projections.ContextMessage, tools []ToolDeclaration, systemPrompt string) (LLMResponse, error)
}
