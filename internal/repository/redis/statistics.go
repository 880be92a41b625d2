package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/michaelayoade/dotmac-ftth-ops-sub000/internal/domain"
	apperrors "github.com/michaelayoade/dotmac-ftth-ops-sub000/pkg/errors"
)

const statisticsKey = "ftthops:workflow:statistics"

// StatisticsCache caches the aggregate workflow statistics in Redis. The
// aggregation query scans the whole workflows table, so dashboards poll the
// cache and tolerate results up to one TTL old.
type StatisticsCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStatisticsCache creates a Redis-backed statistics cache.
func NewStatisticsCache(client *redis.Client, ttl time.Duration) *StatisticsCache {
	return &StatisticsCache{
		client: client,
		ttl:    ttl,
	}
}

// Get retrieves the cached statistics snapshot.
func (c *StatisticsCache) Get(ctx context.Context) (*domain.WorkflowStatistics, error) {
	data, err := c.client.Get(ctx, statisticsKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, apperrors.NotFound("workflow statistics", "cache")
		}
		return nil, fmt.Errorf("redis get statistics: %w", err)
	}

	var stats domain.WorkflowStatistics
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("unmarshal statistics: %w", err)
	}

	return &stats, nil
}

// Set stores a statistics snapshot with the configured TTL.
func (c *StatisticsCache) Set(ctx context.Context, stats *domain.WorkflowStatistics) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal statistics: %w", err)
	}

	if err := c.client.Set(ctx, statisticsKey, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set statistics: %w", err)
	}

	return nil
}

// Invalidate drops the cached snapshot.
func (c *StatisticsCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, statisticsKey).Err(); err != nil {
		return fmt.Errorf("redis del statistics: %w", err)
	}

	return nil
}
