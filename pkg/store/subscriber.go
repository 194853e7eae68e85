package store

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// MessageHandler processes a single event dispatched by a Subscriber. A
// returned error is treated as retryable, up to SubscriberConfig.MaxRetries.
type MessageHandler func(ctx context.Context, event Event) error

// SubscriberConfig configures a Subscriber.
type SubscriberConfig struct {
	Category string // required

	Handler MessageHandler // required

	PollInterval time.Duration // default 100ms
	BatchSize    int           // default 100

	PositionStore PositionStore // required if SubscriberID is set
	SubscriberID  string        // required if PositionStore is set

	ConsumerGroupMember *int
	ConsumerGroupSize   *int

	// MaxRetries bounds handler retries for a single message before the
	// subscriber halts. Default 3.
	MaxRetries int

	// SaveEvery persists the cursor after this many successfully handled
	// messages, and always at the end of a batch. Default 1 (save after
	// every message).
	SaveEvery int

	Logger *slog.Logger
}

func (c SubscriberConfig) pollInterval() time.Duration {
	if c.PollInterval <= 0 {
		return 100 * time.Millisecond
	}
	return c.PollInterval
}

func (c SubscriberConfig) batchSize() int {
	if c.BatchSize <= 0 {
		return 100
	}
	return c.BatchSize
}

func (c SubscriberConfig) maxRetries() int {
	if c.MaxRetries <= 0 {
		return 3
	}
	return c.MaxRetries
}

func (c SubscriberConfig) saveEvery() int {
	if c.SaveEvery <= 0 {
		return 1
	}
	return c.SaveEvery
}

func (c SubscriberConfig) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Subscriber polls a category in ascending global_position order and
// dispatches each event to a handler, persisting its read cursor as it
// goes so it can resume exactly where it left off after a restart.
type Subscriber struct {
	client *Client
	cfg    SubscriberConfig

	stop    atomic.Bool
	stopped chan struct{}
	once    sync.Once
}

// NewSubscriber constructs a Subscriber over client with the given config.
func NewSubscriber(client *Client, cfg SubscriberConfig) *Subscriber {
	return &Subscriber{client: client, cfg: cfg, stopped: make(chan struct{})}
}

// Run polls until Stop is called or ctx is cancelled, or until a handler
// still fails on the same message after MaxRetries retries (MaxRetries+1
// attempts in all). It blocks the
// calling goroutine; callers typically invoke it in its own goroutine.
func (s *Subscriber) Run(ctx context.Context) error {
	defer close(s.stopped)

	log := s.cfg.logger().With("category", s.cfg.Category, "subscriber_id", s.cfg.SubscriberID)

	cursor, err := s.currentPosition(ctx)
	if err != nil {
		return err
	}

	unsaved := 0
	for {
		if s.stop.Load() || ctx.Err() != nil {
			return s.savePosition(ctx, cursor)
		}

		events, err := s.client.ReadCategory(ctx, s.cfg.Category, CategoryReadOptions{
			FromGlobalPosition:  cursor + 1,
			BatchSize:           s.cfg.batchSize(),
			ConsumerGroupMember: s.cfg.ConsumerGroupMember,
			ConsumerGroupSize:   s.cfg.ConsumerGroupSize,
		})
		if err != nil {
			log.Error("subscriber read_category failed", "error", err)
			if IsTransientStoreError(err) {
				time.Sleep(s.cfg.pollInterval())
				continue
			}
			return err
		}

		if len(events) == 0 {
			time.Sleep(s.cfg.pollInterval())
			continue
		}

		for _, e := range events {
			if s.stop.Load() || ctx.Err() != nil {
				return s.savePosition(ctx, cursor)
			}

			if err := s.dispatchWithRetry(ctx, e, log); err != nil {
				log.Error("subscriber handler failed, halting", "global_position", e.GlobalPosition, "error", err)
				_ = s.savePosition(ctx, cursor)
				return err
			}

			cursor = e.GlobalPosition
			unsaved++
			if unsaved >= s.cfg.saveEvery() {
				if err := s.savePosition(ctx, cursor); err != nil {
					return err
				}
				unsaved = 0
			}
		}

		if unsaved > 0 {
			if err := s.savePosition(ctx, cursor); err != nil {
				return err
			}
			unsaved = 0
		}
	}
}

func (s *Subscriber) dispatchWithRetry(ctx context.Context, e Event, log *slog.Logger) error {
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(s.cfg.maxRetries()))
	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := s.cfg.Handler(ctx, e)
		if err != nil {
			log.Warn("subscriber handler error", "global_position", e.GlobalPosition, "attempt", attempt, "error", err)
		}
		return err
	}, backoff.WithContext(policy, ctx))
}

func (s *Subscriber) currentPosition(ctx context.Context) (int64, error) {
	if s.cfg.PositionStore == nil {
		return 0, nil
	}
	return s.cfg.PositionStore.GetPosition(ctx, s.cfg.SubscriberID)
}

func (s *Subscriber) savePosition(ctx context.Context, position int64) error {
	if s.cfg.PositionStore == nil {
		return nil
	}
	return s.cfg.PositionStore.SavePosition(ctx, s.cfg.SubscriberID, position)
}

// Stop requests the subscriber halt at the next batch or message boundary.
// In-flight handler calls are allowed to complete. Stop does not block;
// call Wait to block until the run loop actually exits.
func (s *Subscriber) Stop() {
	s.stop.Store(true)
}

// Wait blocks until Run has returned.
func (s *Subscriber) Wait() {
	<-s.stopped
}
