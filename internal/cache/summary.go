// Package cache keeps encoded financial summaries in Redis. A nil client
// turns every call into a no-op miss.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "insaat:summary:"

type SummaryCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewSummaryCache(rdb *redis.Client, ttl time.Duration) *SummaryCache {
	return &SummaryCache{rdb: rdb, ttl: ttl}
}

// Connect builds a client for addr and pings it. An empty address or a
// failed ping returns nil, which disables caching.
func Connect(ctx context.Context, addr string) *redis.Client {
	if addr == "" {
		slog.Warn("REDIS_ADDR not set, summary caching disabled")
		return nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		slog.Error("Redis connection failed, summary caching disabled", "error", err)
		_ = rdb.Close()
		return nil
	}

	slog.Info("Connected to Redis", "addr", addr)
	return rdb
}

func Key(projectID uint) string {
	return fmt.Sprintf("%s%d", keyPrefix, projectID)
}

func (c *SummaryCache) Enabled() bool {
	return c != nil && c.rdb != nil
}

func (c *SummaryCache) Get(ctx context.Context, projectID uint) ([]byte, bool, error) {
	if !c.Enabled() {
		return nil, false, nil
	}
	b, err := c.rdb.Get(ctx, Key(projectID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return b, true, nil
}

func (c *SummaryCache) Set(ctx context.Context, projectID uint, payload []byte) error {
	if !c.Enabled() {
		return nil
	}
	if err := c.rdb.Set(ctx, Key(projectID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *SummaryCache) Invalidate(ctx context.Context, projectIDs ...uint) error {
	if !c.Enabled() || len(projectIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(projectIDs))
	for _, id := range projectIDs {
		keys = append(keys, Key(id))
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
