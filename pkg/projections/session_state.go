package projections

import (
	"encoding/json"
	"time"

	"go-agentdb/pkg/events"
	"go-agentdb/pkg/store"
)

// Status is the user-visible lifecycle state of a session.
type Status string

const (
	StatusNotStarted Status = "NotStarted"
	StatusActive     Status = "Active"
	StatusTerminated Status = "Terminated"
	StatusFailed     Status = "Failed"
)

// SessionState is the derived, never-stored view of a thread's lifecycle.
type SessionState struct {
	Status           Status
	StartTime        time.Time
	EndTime          *time.Time
	UserMessageCount int
	LLMCallCount     int
	ToolCallCount    int
	CompletionReason string
}

// State folds a stream into its current SessionState.
func State(evts []store.Event) SessionState {
	s := SessionState{Status: StatusNotStarted}
	for _, e := range evts {
		switch e.Type {
		case events.TypeSessionStarted:
			s.Status = StatusActive
			s.StartTime = e.Time

		case events.TypeUserMessageAdded:
			s.UserMessageCount++

		case events.TypeLLMResponseReceived:
			s.LLMCallCount++

		case events.TypeLLMCallFailed:
			s.LLMCallCount++
			s.Status = StatusFailed

		case events.TypeToolExecutionRequested:
			s.ToolCallCount++

		case events.TypeSessionCompleted:
			var p events.SessionCompleted
			if err := json.Unmarshal(e.Data, &p); err == nil {
				s.CompletionReason = p.CompletionReason
			}
			s.Status = StatusTerminated
			end := e.Time
			s.EndTime = &end
		}
	}
	return s
}
