// Package projections implements pure, deterministic folds over event
// histories: turning a stream's events into the views the engine and its
// collaborators need (LLM context, pending tool calls, next-step decision,
// session state). Projection bodies never perform I/O, never read wall-clock
// or random state, and must treat unrecognised event types as no-ops.
package projections

import "go-agentdb/pkg/store"

// Func is a pure projection: an event history in, a value out.
type Func[T any] func(events []store.Event) T

// Result wraps a projection's value with bookkeeping about what was folded.
type Result[T any] struct {
	Value       T
	EventCount  int
	LastPosition int64 // -1 if events is empty
}

// WithMetadata runs f over events and reports how many events were folded
// and the stream position of the last one.
func WithMetadata[T any](events []store.Event, f Func[T]) Result[T] {
	last := int64(-1)
	if n := len(events); n > 0 {
		last = events[n-1].Position
	}
	return Result[T]{
		Value:        f(events),
		EventCount:  len(events),
		LastPosition: last,
	}
}

// Compose2 and Compose3 evaluate two or three projections over the same
// event slice (shared, read-only) and return their values together. Each
// projection folds the slice on its own, one after another; the folds are
// not fused into a single pass.
func Compose2[A, B any](events []store.Event, fa Func[A], fb Func[B]) (A, B) {
	return fa(events), fb(events)
}

func Compose3[A, B, C any](events []store.Event, fa Func[A], fb Func[B], fc Func[C]) (A, B, C) {
	return fa(events), fb(events), fc(events)
}
