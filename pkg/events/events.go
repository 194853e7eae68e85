// Package events defines the typed payloads persisted to the message store
// and the type-name constants used to tag them.
package events

// Type names as they appear in Event.Type / message_store.messages.type.
const (
	TypeSessionStarted              = "SessionStarted"
	TypeUserMessageAdded            = "UserMessageAdded"
	TypeLLMResponseReceived         = "LLMResponseReceived"
	TypeLLMCallFailed               = "LLMCallFailed"
	TypeToolExecutionRequested      = "ToolExecutionRequested"
	TypeToolExecutionCompleted      = "ToolExecutionCompleted"
	TypeToolExecutionFailed         = "ToolExecutionFailed"
	TypeSessionTerminationRequested = "SessionTerminationRequested"
	TypeSessionCompleted            = "SessionCompleted"
	TypePositionRecorded            = "PositionRecorded"
)

// SessionStarted marks the creation of a new thread.
type SessionStarted struct {
	ThreadID string `json:"thread_id"`
}

// UserMessageAdded records a message from the user.
type UserMessageAdded struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"` // ISO-8601
}

// ToolCall is an LLM-requested tool invocation, embedded in
// LLMResponseReceived.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// TokenUsage reports LLM token accounting, when the provider supplies it.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// LLMResponseReceived records a completed LLM call: free text, zero or more
// requested tool calls, or both.
type LLMResponseReceived struct {
	ResponseText string      `json:"response_text,omitempty"`
	ToolCalls    []ToolCall  `json:"tool_calls,omitempty"`
	ModelName    string      `json:"model_name"`
	TokenUsage   *TokenUsage `json:"token_usage,omitempty"`
}

// LLMCallFailed is a recorded failure, not an exception: it drives the next
// projection rather than aborting the thread.
type LLMCallFailed struct {
	ErrorMessage string `json:"error_message"`
	RetryCount   int    `json:"retry_count"`
}

// ToolExecutionRequested records that the engine is about to run a tool.
type ToolExecutionRequested struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolExecutionCompleted records a tool's synchronous result.
type ToolExecutionCompleted struct {
	ToolName        string `json:"tool_name"`
	Result          any    `json:"result"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
}

// ToolExecutionFailed is a recorded failure; per the source this system was
// distilled from, retry_count is always 0 here, unlike LLMCallFailed.
type ToolExecutionFailed struct {
	ToolName     string `json:"tool_name"`
	ErrorMessage string `json:"error_message"`
	RetryCount   int    `json:"retry_count"`
}

// SessionTerminationRequested is appended by terminate_session; the
// processing loop observes it and appends SessionCompleted in response.
type SessionTerminationRequested struct {
	Reason string `json:"reason"`
}

// SessionCompleted marks a thread as done, graceful or not.
type SessionCompleted struct {
	CompletionReason string `json:"completion_reason"`
}

// PositionRecorded is appended by EventStorePositionStore to durably track
// a subscriber's read cursor.
type PositionRecorded struct {
	Position int64 `json:"position"`
}
