// Package cache keeps recommendation aggregates in Redis so repeated
// lookbacks skip the transaction scan.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rohanjaggi/hdb-prediction/internal/config"
	"github.com/rohanjaggi/hdb-prediction/internal/metrics"
	"github.com/rohanjaggi/hdb-prediction/internal/model"
)

const keyPrefix = "hdb:recommendation:"

// NewRedisClient creates a Redis client from configuration
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})
}

// Ping tests the Redis connection
func Ping(ctx context.Context, rdb *redis.Client) error {
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// RecommendationCache stores ranked location stats keyed by cutoff year
type RecommendationCache struct {
	rdb *redis.Client
	ttl time.Duration
	log *zap.Logger
}

// NewRecommendationCache creates a new cache with the given entry lifetime
func NewRecommendationCache(rdb *redis.Client, ttl time.Duration, log *zap.Logger) *RecommendationCache {
	return &RecommendationCache{rdb: rdb, ttl: ttl, log: log}
}

func cacheKey(cutoffYear int) string {
	return fmt.Sprintf("%s%d", keyPrefix, cutoffYear)
}

// GetStats returns cached stats for cutoffYear. Any Redis or decode failure
// is a miss.
func (c *RecommendationCache) GetStats(ctx context.Context, cutoffYear int) ([]model.LocationStat, bool) {
	val, err := c.rdb.Get(ctx, cacheKey(cutoffYear)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("recommendation cache read failed", zap.Int("cutoff_year", cutoffYear), zap.Error(err))
		}
		metrics.CacheLookups.WithLabelValues("recommendation", "miss").Inc()
		return nil, false
	}

	var stats []model.LocationStat
	if err := json.Unmarshal(val, &stats); err != nil {
		c.log.Warn("corrupt recommendation cache entry", zap.Int("cutoff_year", cutoffYear), zap.Error(err))
		metrics.CacheLookups.WithLabelValues("recommendation", "miss").Inc()
		return nil, false
	}

	metrics.CacheLookups.WithLabelValues("recommendation", "hit").Inc()
	return stats, true
}

// SetStats stores stats for cutoffYear
func (c *RecommendationCache) SetStats(ctx context.Context, cutoffYear int, stats []model.LocationStat) {
	data, err := json.Marshal(stats)
	if err != nil {
		c.log.Warn("failed to encode recommendation cache entry", zap.Error(err))
		return
	}
	if err := c.rdb.Set(ctx, cacheKey(cutoffYear), data, c.ttl).Err(); err != nil {
		c.log.Warn("recommendation cache write failed", zap.Int("cutoff_year", cutoffYear), zap.Error(err))
	}
}
