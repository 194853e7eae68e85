package store

import (
	"context"
	"fmt"
	"strings"
)

// ReadStream returns events from streamName in position order, starting at
// opts.FromPosition, up to opts.batchSize() events.
func (c *Client) ReadStream(ctx context.Context, streamName string, opts ReadOptions) ([]Event, error) {
	if strings.TrimSpace(streamName) == "" {
		return nil, &InvalidArgumentError{
			StoreError: StoreError{Op: "read_stream", Err: errEmptyField("stream_name")},
			Field:      "stream_name",
		}
	}

	rows, err := c.pool.Query(ctx, `
		SELECT id, stream_name, type, position, global_position, data, metadata, time
		  FROM message_store.messages
		 WHERE stream_name = $1 AND position >= $2
		 ORDER BY position
		 LIMIT $3
	`, streamName, opts.FromPosition, opts.batchSize())
	if err != nil {
		return nil, classifyReadError(err, "read_stream")
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, classifyReadError(err, "read_stream")
	}
	return events, nil
}

func scanEvents(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.StreamName, &e.Type, &e.Position, &e.GlobalPosition, &e.Data, &e.Metadata, &e.Time); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func classifyReadError(err error, op string) error {
	return &TransientStoreError{StoreError{Op: op, Err: fmt.Errorf("query message_store.messages: %w", err)}}
}
