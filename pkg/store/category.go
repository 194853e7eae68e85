package store

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
)

// ReadCategory returns events across every stream in the given category
// ("{category}:{version}"), ordered by global position. If opts specifies a
// consumer group, only events whose stream name hashes (FNV-1a, 64-bit) to
// this member's slot are returned.
func (c *Client) ReadCategory(ctx context.Context, category string, opts CategoryReadOptions) ([]Event, error) {
	if strings.TrimSpace(category) == "" {
		return nil, &InvalidArgumentError{
			StoreError: StoreError{Op: "read_category", Err: errEmptyField("category")},
			Field:      "category",
		}
	}
	if (opts.ConsumerGroupMember == nil) != (opts.ConsumerGroupSize == nil) {
		return nil, &InvalidArgumentError{
			StoreError: StoreError{Op: "read_category", Err: errf("consumer_group_member and consumer_group_size must be set together")},
			Field:      "consumer_group",
		}
	}
	if opts.ConsumerGroupSize != nil && *opts.ConsumerGroupSize <= 0 {
		return nil, &InvalidArgumentError{
			StoreError: StoreError{Op: "read_category", Err: errf("consumer_group_size must be positive")},
			Field:      "consumer_group_size",
		}
	}
	if opts.ConsumerGroupMember != nil && opts.ConsumerGroupSize != nil &&
		(*opts.ConsumerGroupMember < 0 || *opts.ConsumerGroupMember >= *opts.ConsumerGroupSize) {
		return nil, &InvalidArgumentError{
			StoreError: StoreError{Op: "read_category", Err: errf("consumer_group_member must be in [0, consumer_group_size)")},
			Field:      "consumer_group_member",
		}
	}

	var sb strings.Builder
	args := []any{category, opts.FromGlobalPosition}
	sb.WriteString(`
		SELECT id, stream_name, type, position, global_position, data, metadata, time
		  FROM message_store.messages
		 WHERE category = $1 AND global_position >= $2
	`)
	if opts.Correlation != "" {
		args = append(args, opts.Correlation)
		sb.WriteString(fmt.Sprintf(" AND metadata ->> 'correlation_id' = $%d", len(args)))
	}
	if opts.Condition != "" {
		sb.WriteString(" AND (" + opts.Condition + ")")
	}
	sb.WriteString(" ORDER BY global_position")

	// Consumer-group partitioning needs more rows than the caller's batch
	// size since events are filtered client-side after the hash check; pull
	// a generous multiple and let the caller page by FromGlobalPosition.
	fetchLimit := opts.batchSize()
	if opts.ConsumerGroupSize != nil {
		fetchLimit *= *opts.ConsumerGroupSize
	}
	args = append(args, fetchLimit)
	sb.WriteString(fmt.Sprintf(" LIMIT $%d", len(args)))

	rows, err := c.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, classifyReadError(err, "read_category")
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, classifyReadError(err, "read_category")
	}

	if opts.ConsumerGroupSize == nil {
		if len(events) > opts.batchSize() {
			events = events[:opts.batchSize()]
		}
		return events, nil
	}

	member := *opts.ConsumerGroupMember
	size := *opts.ConsumerGroupSize
	filtered := make([]Event, 0, len(events))
	for _, e := range events {
		if int(fnv1a64(e.StreamName)%uint64(size)) == member {
			filtered = append(filtered, e)
		}
		if len(filtered) >= opts.batchSize() {
			break
		}
	}
	return filtered, nil
}

// fnv1a64 hashes s with 64-bit FNV-1a, matching the partitioning scheme
// subscribers use to split a category's streams across a consumer group.
func fnv1a64(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}
