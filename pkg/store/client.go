package store

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config configures the pgx connection pool backing a Client. Fields are
// normally populated via ConfigFromEnv, mirroring the DB_* environment
// variables used elsewhere in this codebase.
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string

	MaxConns int32
	MinConns int32

	ConnectRetries int
	ConnectBackoff time.Duration
}

// ConfigFromEnv reads DB_HOST, DB_PORT, DB_USER, DB_PASSWORD, DB_NAME,
// DB_MAX_CONNS and DB_MIN_CONNS, applying sane defaults for anything unset.
func ConfigFromEnv() Config {
	cfg := Config{
		Host:           envOr("DB_HOST", "localhost"),
		Port:           envOr("DB_PORT", "5432"),
		User:           envOr("DB_USER", "agentdb"),
		Password:       envOr("DB_PASSWORD", "agentdb"),
		Database:       envOr("DB_NAME", "agentdb"),
		MaxConns:       int32(envOrInt("DB_MAX_CONNS", 20)),
		MinConns:       int32(envOrInt("DB_MIN_CONNS", 5)),
		ConnectRetries: 30,
		ConnectBackoff: 2 * time.Second,
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func (c Config) dsn() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// Client is the Postgres-backed event store. It wraps a pgx connection pool
// and exposes Append, ReadStream, ReadCategory and the position-store and
// subscriber helpers built on top of them.
type Client struct {
	pool *pgxpool.Pool
}

// Open connects to Postgres per cfg, retrying ConnectRetries times with
// ConnectBackoff between attempts, then validates that the message_store
// schema is present. The caller must call Close when done.
func Open(ctx context.Context, cfg Config) (*Client, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.dsn())
	if err != nil {
		return nil, &FatalStoreError{StoreError{Op: "open", Err: err}}
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = 10 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 30 * time.Second

	var pool *pgxpool.Pool
	retries := cfg.ConnectRetries
	if retries <= 0 {
		retries = 1
	}
	for attempt := 0; attempt < retries; attempt++ {
		pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				break
			}
			pool.Close()
		}
		if attempt < retries-1 {
			time.Sleep(cfg.ConnectBackoff)
		}
	}
	if err != nil {
		return nil, &TransientStoreError{StoreError{Op: "open", Err: fmt.Errorf("connect after %d attempts: %w", retries, err)}}
	}

	if err := validateSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Client{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (c *Client) Close() {
	c.pool.Close()
}

func validateSchema(ctx context.Context, pool *pgxpool.Pool) error {
	var exists bool
	err := pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = 'message_store' AND table_name = 'messages'
		)
	`).Scan(&exists)
	if err != nil {
		return &FatalStoreError{StoreError{Op: "validate_schema", Err: fmt.Errorf("check messages table: %w", err)}}
	}
	if !exists {
		return &FatalStoreError{StoreError{Op: "validate_schema", Err: fmt.Errorf("message_store.messages table not found; has docker-entrypoint-initdb.d/schema.sql been applied?")}}
	}

	var procExists bool
	err = pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT FROM pg_proc p
			JOIN pg_namespace n ON n.oid = p.pronamespace
			WHERE n.nspname = 'message_store' AND p.proname = 'write_message'
		)
	`).Scan(&procExists)
	if err != nil {
		return &FatalStoreError{StoreError{Op: "validate_schema", Err: fmt.Errorf("check write_message function: %w", err)}}
	}
	if !procExists {
		return &FatalStoreError{StoreError{Op: "validate_schema", Err: fmt.Errorf("message_store.write_message function not found")}}
	}
	return nil
}
