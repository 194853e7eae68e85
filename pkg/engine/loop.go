package engine

import (
	"context"
	"encoding/json"
	"log/slog"

	"go-agentdb/pkg/events"
	"go-agentdb/pkg/projections"
	"go-agentdb/pkg/store"
)

// Options configures a single ProcessThread invocation.
type Options struct {
	MaxIterations    int
	AutoApproveTools bool
	SystemPrompt     string
	Approve          ApprovalFunc
	Logger           *slog.Logger
}

func (o Options) maxIterations() int {
	if o.MaxIterations <= 0 {
		return 25
	}
	return o.MaxIterations
}

func (o Options) systemPrompt() string {
	if o.SystemPrompt == "" {
		return DefaultSystemPrompt
	}
	return o.SystemPrompt
}

func (o Options) approve() ApprovalFunc {
	if o.Approve == nil {
		return AlwaysApprove
	}
	return o.Approve
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

// ProcessThread repeatedly reads streamName, projects it to the next step,
// executes that step, and re-reads, until the next-step projection returns
// Done or Failed or the iteration cap is reached. It returns the thread's
// final SessionState.
//
// A MaxIterationsExceededError is returned (alongside the terminated
// SessionState) when the cap is hit; every other returned error is fatal:
// a stream read or an append failed and the thread's state may not reflect
// the last attempted step.
func ProcessThread(ctx context.Context, client *store.Client, streamName string, llm LLMClient, registry *Registry, opts Options) (projections.SessionState, error) {
	log := opts.logger().With("stream", streamName)

	for iteration := 0; ; iteration++ {
		evts, err := client.ReadStream(ctx, streamName, store.ReadOptions{})
		if err != nil {
			return projections.SessionState{}, &SessionError{Op: "process_thread_read", Err: err}
		}

		if reason, pending := pendingTermination(evts); pending {
			if err := appendSessionCompleted(ctx, client, streamName, reason); err != nil {
				return projections.SessionState{}, err
			}
			continue
		}

		step := projections.NextStep(evts)
		if step == projections.StepDone || step == projections.StepFailed {
			return projections.State(evts), nil
		}

		if iteration >= opts.maxIterations() {
			if err := appendSessionCompleted(ctx, client, streamName, "max_iterations_reached"); err != nil {
				return projections.SessionState{}, err
			}
			evts, err := client.ReadStream(ctx, streamName, store.ReadOptions{})
			if err != nil {
				return projections.SessionState{}, &SessionError{Op: "process_thread_read", Err: err}
			}
			threadID := streamName
			if _, _, id, parseErr := store.ParseStreamName(streamName); parseErr == nil {
				threadID = id
			}
			return projections.State(evts), &MaxIterationsExceededError{ThreadID: threadID, MaxIterations: opts.maxIterations()}
		}

		switch step {
		case projections.StepCallLLM:
			if err := runLLMStep(ctx, client, streamName, evts, llm, registry, opts.systemPrompt(), log); err != nil {
				return projections.SessionState{}, err
			}
		case projections.StepExecuteTools:
			if err := runToolStep(ctx, client, streamName, evts, registry, opts.approve(), opts.AutoApproveTools, log); err != nil {
				return projections.SessionState{}, err
			}
		}
	}
}

// pendingTermination reports whether the stream's tail is a
// SessionTerminationRequested not yet followed by a SessionCompleted, and
// if so, the reason to complete it with.
func pendingTermination(evts []store.Event) (reason string, pending bool) {
	if len(evts) == 0 {
		return "", false
	}
	tail := evts[len(evts)-1]
	if tail.Type != events.TypeSessionTerminationRequested {
		return "", false
	}
	var p events.SessionTerminationRequested
	if err := json.Unmarshal(tail.Data, &p); err != nil {
		return "", false
	}
	return p.Reason, true
}

func appendSessionCompleted(ctx context.Context, client *store.Client, streamName, reason string) error {
	data, err := json.Marshal(events.SessionCompleted{CompletionReason: reason})
	if err != nil {
		return &SessionError{Op: "process_thread_append", Err: err}
	}
	if _, err := client.Append(ctx, streamName, events.TypeSessionCompleted, data, nil, nil); err != nil {
		return &SessionError{Op: "process_thread_append", Err: err}
	}
	return nil
}
