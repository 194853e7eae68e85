package store

import (
	"context"
	"encoding/json"
	"sync"
)

// PositionStore is a cursor backend for subscribers: it remembers the last
// global_position successfully processed for a given subscriber id.
type PositionStore interface {
	// GetPosition returns the last saved position for subscriberID, or 0 if
	// none has ever been saved.
	GetPosition(ctx context.Context, subscriberID string) (int64, error)

	// SavePosition persists position for subscriberID. Implementations must
	// make this idempotent and monotonic: saving a position less than or
	// equal to the stored one is a no-op.
	SavePosition(ctx context.Context, subscriberID string, position int64) error
}

// InMemoryPositionStore is a non-durable PositionStore suitable for tests
// and single-process development.
type InMemoryPositionStore struct {
	mu        sync.Mutex
	positions map[string]int64
}

// NewInMemoryPositionStore returns an empty InMemoryPositionStore.
func NewInMemoryPositionStore() *InMemoryPositionStore {
	return &InMemoryPositionStore{positions: make(map[string]int64)}
}

func (s *InMemoryPositionStore) GetPosition(_ context.Context, subscriberID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positions[subscriberID], nil
}

func (s *InMemoryPositionStore) SavePosition(_ context.Context, subscriberID string, position int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if position <= s.positions[subscriberID] {
		return nil
	}
	s.positions[subscriberID] = position
	return nil
}

// EventStorePositionStore persists cursors as PositionRecorded events on a
// dedicated stream "position:{subscriberID}", one stream per subscriber.
// Reading the last such event recovers the cursor after a restart.
type EventStorePositionStore struct {
	client *Client
}

// NewEventStorePositionStore returns a PositionStore backed by client.
func NewEventStorePositionStore(client *Client) *EventStorePositionStore {
	return &EventStorePositionStore{client: client}
}

type positionRecordedPayload struct {
	Position int64 `json:"position"`
}

func positionStreamName(subscriberID string) string {
	return "position:" + subscriberID
}

func (s *EventStorePositionStore) GetPosition(ctx context.Context, subscriberID string) (int64, error) {
	events, err := s.client.ReadStream(ctx, positionStreamName(subscriberID), ReadOptions{FromPosition: 0, BatchSize: 1 << 30})
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}
	var payload positionRecordedPayload
	if err := json.Unmarshal(events[len(events)-1].Data, &payload); err != nil {
		return 0, &FatalStoreError{StoreError{Op: "get_position", Err: err}}
	}
	return payload.Position, nil
}

func (s *EventStorePositionStore) SavePosition(ctx context.Context, subscriberID string, position int64) error {
	current, err := s.GetPosition(ctx, subscriberID)
	if err != nil {
		return err
	}
	if position <= current {
		return nil
	}
	data, err := json.Marshal(positionRecordedPayload{Position: position})
	if err != nil {
		return &FatalStoreError{StoreError{Op: "save_position", Err: err}}
	}
	_, err = s.client.Append(ctx, positionStreamName(subscriberID), "PositionRecorded", data, nil, nil)
	return err
}
