package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aescanero/varflow/pkg/domain"
)

// ValuesCache implements ValuesCache using Redis
type ValuesCache struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewValuesCache creates a new Redis values cache
func NewValuesCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *ValuesCache {
	return &ValuesCache{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// Get returns the cached rows for key
func (c *ValuesCache) Get(ctx context.Context, key string) ([]domain.FieldValues, bool, error) {
	data, err := c.client.Get(ctx, getValuesKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get cached values: %w", err)
	}

	var rows []domain.FieldValues
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cached values: %w", err)
	}

	return rows, true, nil
}

// Set stores rows under key with the cache ttl
func (c *ValuesCache) Set(ctx context.Context, key string, rows []domain.FieldValues) error {
	if c.ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("failed to marshal values: %w", err)
	}

	if err := c.client.Set(ctx, getValuesKey(key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache values: %w", err)
	}

	c.logger.Debug("values cached", zap.String("key", key), zap.Int("fields", len(rows)))
	return nil
}

// getValuesKey returns the Redis key for a cache entry
func getValuesKey(key string) string {
	return fmt.Sprintf("varflow:values:%s", key)
}
