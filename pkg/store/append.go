package store

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"go.jetify.com/typeid"
)

// Append writes a single event to streamName. If expectedVersion is non-nil,
// the write fails with a *ConcurrencyConflict unless the stream's current
// version equals *expectedVersion. It returns the event's position within
// the stream.
func (c *Client) Append(ctx context.Context, streamName, eventType string, data, metadata []byte, expectedVersion *int64) (int64, error) {
	if strings.TrimSpace(streamName) == "" {
		return 0, &InvalidArgumentError{
			StoreError: StoreError{Op: "append", Err: errEmptyField("stream_name")},
			Field:      "stream_name",
		}
	}
	if strings.TrimSpace(eventType) == "" {
		return 0, &InvalidArgumentError{
			StoreError: StoreError{Op: "append", Err: errEmptyField("event_type")},
			Field:      "event_type",
		}
	}

	id, err := typeid.WithPrefix(eventTypePrefix(eventType))
	if err != nil {
		return 0, &FatalStoreError{StoreError{Op: "append", Err: err}}
	}

	var metadataArg any
	if metadata != nil {
		metadataArg = metadata
	}

	var position int64
	row := c.pool.QueryRow(ctx, `
		SELECT message_store.write_message($1, $2, $3, $4, $5, $6)
	`, id.String(), streamName, eventType, data, metadataArg, expectedVersion)

	if err := row.Scan(&position); err != nil {
		return 0, classifyWriteError(err, streamName, expectedVersion)
	}
	return position, nil
}

// eventTypePrefix derives a TypeID prefix from an event type name, e.g.
// "UserMessageAdded" -> "usermessageadded". TypeID prefixes must be
// lowercase ASCII.
func eventTypePrefix(eventType string) string {
	return strings.ToLower(eventType)
}

func classifyWriteError(err error, streamName string, expectedVersion *int64) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "A0001" || strings.Contains(pgErr.Message, "Wrong expected version") {
			return concurrencyConflictFromMessage(pgErr.Message, streamName, expectedVersion)
		}
		switch pgErr.Code {
		case "08000", "08003", "08006", "57P01", "57P02", "57P03":
			return &TransientStoreError{StoreError{Op: "append", Err: err}}
		}
		return &FatalStoreError{StoreError{Op: "append", Err: err}}
	}
	if strings.Contains(err.Error(), "Wrong expected version") {
		return concurrencyConflictFromMessage(err.Error(), streamName, expectedVersion)
	}
	return &TransientStoreError{StoreError{Op: "append", Err: err}}
}

// concurrencyConflictFromMessage parses the actual stream version out of the
// stored procedure's error message, in the form:
// "Wrong expected version: {expected} (Stream: {stream}, Stream Version: {actual})"
func concurrencyConflictFromMessage(message, streamName string, expectedVersion *int64) error {
	var actual *int64
	if idx := strings.Index(message, "Stream Version:"); idx >= 0 {
		rest := strings.TrimSpace(message[idx+len("Stream Version:"):])
		rest = strings.TrimSuffix(rest, ")")
		if v, err := strconv.ParseInt(strings.TrimSpace(rest), 10, 64); err == nil {
			actual = &v
		}
	}
	return &ConcurrencyConflict{
		StoreError: StoreError{Op: "append", Err: errf("wrong expected version")},
		Stream:     streamName,
		Expected:   expectedVersion,
		Actual:     actual,
	}
}
