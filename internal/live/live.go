// Package live publishes the current game state to Redis so UIs and other
// observers can watch a running game without touching the orchestrator.
package live

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/freeeve/parley/internal/model"
)

// Key patterns for the live mirror.
func snapshotKey(runID string) string { return "run:" + runID + ":snapshot" }
func eventsKey(runID string) string   { return "run:" + runID + ":events" }
func phaseKey(runID string) string    { return "run:" + runID + ":phase" }

// Client wraps the Redis client for live game state publication.
type Client struct {
	rdb   *redis.Client
	runID string
}

// NewClient creates a Client from a connection URL.
func NewClient(redisURL, runID string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{rdb: rdb, runID: runID}, nil
}

// NewClientFromPool wraps an existing redis.Client for use in tests.
func NewClientFromPool(rdb *redis.Client, runID string) *Client {
	return &Client{rdb: rdb, runID: runID}
}

// PublishSnapshot stores the latest phase snapshot.
func (c *Client) PublishSnapshot(ctx context.Context, snap *model.PhaseSnapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := c.rdb.Set(ctx, snapshotKey(c.runID), b, 0).Err(); err != nil {
		return fmt.Errorf("set snapshot: %w", err)
	}
	return c.rdb.Set(ctx, phaseKey(c.runID), snap.Name, 0).Err()
}

// PublishEvents appends the derived events for a phase to the run's event
// stream.
func (c *Client) PublishEvents(ctx context.Context, phase string, events []model.GameEvent) error {
	if len(events) == 0 {
		return nil
	}
	vals := make([]any, 0, len(events))
	for _, e := range events {
		b, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		vals = append(vals, b)
	}
	return c.rdb.RPush(ctx, eventsKey(c.runID), vals...).Err()
}

// DeleteRunData removes all live keys for the run (on game end).
func (c *Client) DeleteRunData(ctx context.Context) error {
	return c.rdb.Del(ctx, snapshotKey(c.runID), eventsKey(c.runID), phaseKey(c.runID)).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}
