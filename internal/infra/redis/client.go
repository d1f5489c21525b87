package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps Redis operations for the finish-dedupe ledger. The ledger
// makes finishTransaction idempotent across process restarts: once a
// transaction id is marked finished, later sweeps skip the server round trip.
type Client struct {
	rdb *redis.Client
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	// FinishedTTL bounds how long finished ids are remembered. Zero keeps
	// them forever.
	FinishedTTL time.Duration `yaml:"finished_ttl"`
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks connectivity for health reporting.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Key helpers
func finishedKey(txID string) string {
	return fmt.Sprintf("finished:%s", txID)
}

const checkpointKey = "recovery:last_sweep"

// MarkFinished records a transaction id as acknowledged. Returns false when
// the id was already marked.
func (c *Client) MarkFinished(ctx context.Context, txID string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, finishedKey(txID), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}

// IsFinished reports whether the transaction id was already acknowledged.
func (c *Client) IsFinished(ctx context.Context, txID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, finishedKey(txID)).Result()
	if err != nil {
		return false, fmt.Errorf("exists failed: %w", err)
	}
	return n > 0, nil
}

// SaveCheckpoint stores the outcome of the latest sweep.
func (c *Client) SaveCheckpoint(ctx context.Context, finishedAt time.Time, processed, recovered, failed int) error {
	fields := map[string]any{
		"finished_at": finishedAt.Unix(),
		"processed":   processed,
		"recovered":   recovered,
		"failed":      failed,
	}
	if err := c.rdb.HSet(ctx, checkpointKey, fields).Err(); err != nil {
		return fmt.Errorf("hset failed: %w", err)
	}
	return nil
}

// LastCheckpoint returns when the latest sweep finished, or the zero time
// when no sweep ran yet.
func (c *Client) LastCheckpoint(ctx context.Context) (time.Time, error) {
	val, err := c.rdb.HGet(ctx, checkpointKey, "finished_at").Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("hget failed: %w", err)
	}
	sec, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid checkpoint: %w", err)
	}
	return time.Unix(sec, 0), nil
}
