// Package cache provides Redis-based caching for quick status reads.
// The cache is never the source of truth; the sqlite run table is.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MRamiBalles/coreria/internal/engine"
	"github.com/MRamiBalles/coreria/internal/platform/logger"
)

// ErrMiss is returned when a key is not cached.
var ErrMiss = errors.New("cache miss")

const (
	statusKey  = "coreria:status"
	historyKey = "coreria:runs"

	writeTimeout = time.Second
)

// RedisClient is an interface for Redis operations.
// This allows for easy mocking in tests.
type RedisClient interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HSet(ctx context.Context, key string, values ...interface{}) error
}

// Status is the cached view of the current or most recent run.
type Status struct {
	RunID     string  `json:"run_id"`
	Running   bool    `json:"running"`
	Tick      int64   `json:"tick"`
	Entities  int     `json:"entities"`
	TickRate  float64 `json:"tick_rate"`
	Elapsed   float64 `json:"elapsed"`
	Overruns  int64   `json:"overruns"`
	Reason    string  `json:"reason,omitempty"`
	UpdatedAt int64   `json:"updated_at"` // Unix timestamp
}

// StatusCache mirrors run progress into Redis. It implements engine.Observer
// and writes on run start, on run finish, and every `every` ticks between.
type StatusCache struct {
	client     RedisClient
	logger     *logger.Logger
	every      int64
	expiration time.Duration
	status     Status
}

// NewStatusCache creates a status cache. every <= 0 disables per-tick writes.
func NewStatusCache(client RedisClient, every int, log *logger.Logger) *StatusCache {
	return &StatusCache{
		client:     client,
		logger:     log,
		every:      int64(every),
		expiration: 15 * time.Minute, // Status expires after 15 minutes
	}
}

func (c *StatusCache) RunStarted(info engine.RunInfo) {
	c.status = Status{
		RunID:    info.RunID.String(),
		Running:  true,
		Entities: info.Entities,
		TickRate: info.TickRate,
	}
	c.flush()
}

func (c *StatusCache) TickCompleted(stats engine.TickStats) {
	c.status.Tick = stats.Tick
	c.status.Entities = stats.Entities
	c.status.Elapsed = float64(stats.Tick) * stats.DT
	if stats.Overrun {
		c.status.Overruns++
	}
	if c.every > 0 && stats.Tick%c.every == 0 {
		c.flush()
	}
}

func (c *StatusCache) RunFinished(summary engine.RunSummary) {
	c.status.Running = false
	c.status.Tick = summary.Ticks
	c.status.Elapsed = summary.Elapsed
	c.status.Reason = string(summary.Reason)
	c.flush()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	data, err := json.Marshal(c.status)
	if err == nil {
		err = c.client.HSet(ctx, historyKey, c.status.RunID, string(data))
	}
	if err != nil {
		c.logger.Warn("failed to cache run history", "run", c.status.RunID, "error", err)
	}
}

func (c *StatusCache) flush() {
	c.status.UpdatedAt = time.Now().Unix()
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := c.SetStatus(ctx, c.status); err != nil {
		c.logger.Warn("failed to cache status", "run", c.status.RunID, "error", err)
	}
}

// SetStatus caches the given status.
func (c *StatusCache) SetStatus(ctx context.Context, status Status) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	return c.client.Set(ctx, statusKey, data, c.expiration)
}

// GetStatus retrieves the cached status. It returns ErrMiss when nothing is cached.
func (c *StatusCache) GetStatus(ctx context.Context) (*Status, error) {
	data, err := c.client.Get(ctx, statusKey)
	if err != nil {
		return nil, err
	}

	var status Status
	if err := json.Unmarshal([]byte(data), &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status: %w", err)
	}
	return &status, nil
}

// History returns the final status of every cached run, keyed by run ID.
func (c *StatusCache) History(ctx context.Context) (map[string]Status, error) {
	data, err := c.client.HGetAll(ctx, historyKey)
	if err != nil {
		return nil, err
	}

	history := make(map[string]Status, len(data))
	for id, jsonStr := range data {
		var status Status
		if err := json.Unmarshal([]byte(jsonStr), &status); err != nil {
			return nil, fmt.Errorf("failed to unmarshal status for %s: %w", id, err)
		}
		history[id] = status
	}
	return history, nil
}

// Invalidate removes all cached state.
func (c *StatusCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, statusKey, historyKey)
}
