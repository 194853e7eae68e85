package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go-agentdb/pkg/events"
	"go-agentdb/pkg/store"
)

// StartSession validates initialMessage, generates a fresh thread id,
// composes its stream name under the default category/version, and
// appends SessionStarted followed by UserMessageAdded. It returns the new
// thread id.
func StartSession(ctx context.Context, client *store.Client, initialMessage string) (string, error) {
	if strings.TrimSpace(initialMessage) == "" {
		return "", &SessionError{Op: "start", Err: &store.InvalidArgumentError{
			StoreError: store.StoreError{Op: "start_session", Err: fmt.Errorf("initial_message must not be empty")},
			Field:      "initial_message",
		}}
	}

	threadID := store.GenerateThreadID()
	streamName, err := store.BuildStreamName(store.DefaultCategory, store.DefaultVersion, threadID)
	if err != nil {
		return "", &SessionError{Op: "start", Err: err}
	}

	startedData, err := json.Marshal(events.SessionStarted{ThreadID: threadID})
	if err != nil {
		return "", &SessionError{Op: "start", Err: err}
	}
	if _, err := client.Append(ctx, streamName, events.TypeSessionStarted, startedData, nil, nil); err != nil {
		return "", &SessionError{Op: "start", Err: err}
	}

	messageData, err := json.Marshal(events.UserMessageAdded{
		Message:   initialMessage,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", &SessionError{Op: "start", Err: err}
	}
	if _, err := client.Append(ctx, streamName, events.TypeUserMessageAdded, messageData, nil, nil); err != nil {
		return "", &SessionError{Op: "start", Err: err}
	}

	return threadID, nil
}

// TerminateSession appends SessionTerminationRequested; the processing loop
// observes this on its next projection and appends SessionCompleted.
func TerminateSession(ctx context.Context, client *store.Client, streamName, reason string) error {
	data, err := json.Marshal(events.SessionTerminationRequested{Reason: reason})
	if err != nil {
		return &SessionError{Op: "terminate", Err: err}
	}
	if _, err := client.Append(ctx, streamName, events.TypeSessionTerminationRequested, data, nil, nil); err != nil {
		return &SessionError{Op: "terminate", Err: err}
	}
	return nil
}
