package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/solanatracker/data-api-sdk/logging"
	"github.com/solanatracker/data-api-sdk/models"
)

// StatsCache stores computed windowed-statistics snapshots in Redis so
// repeated lookups for the same token skip re-aggregation.
type StatsCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// NewStatsCache creates a cache against the given Redis instance.
// Entries expire after ttl.
func NewStatsCache(addr, password string, db int, ttl time.Duration) *StatsCache {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	return &StatsCache{
		client: client,
		ttl:    ttl,
		logger: logging.NewLogger("datastream", "stats-cache"),
	}
}

// Ping verifies connectivity.
func (c *StatsCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

func statsKey(token string) string {
	return "token:" + token + ":stats"
}

// Put stores one token's aggregated statistics snapshot.
func (c *StatsCache) Put(ctx context.Context, token string, stats models.AggregatedStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}

	if err := c.client.Set(ctx, statsKey(token), data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Error("Failed to cache stats snapshot", map[string]interface{}{
			"token": token,
		})
		return fmt.Errorf("cache stats for %s: %w", token, err)
	}
	return nil
}

// Get loads a token's cached snapshot. A cache miss returns (nil, nil).
func (c *StatsCache) Get(ctx context.Context, token string) (models.AggregatedStats, error) {
	data, err := c.client.Get(ctx, statsKey(token)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load stats for %s: %w", token, err)
	}

	var stats models.AggregatedStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("unmarshal cached stats for %s: %w", token, err)
	}
	return stats, nil
}

// Invalidate removes a token's snapshot.
func (c *StatsCache) Invalidate(ctx context.Context, token string) error {
	if err := c.client.Del(ctx, statsKey(token)).Err(); err != nil {
		return fmt.Errorf("invalidate stats for %s: %w", token, err)
	}
	return nil
}

// Close releases the Redis connection pool.
func (c *StatsCache) Close() error {
	return c.client.Close()
}
