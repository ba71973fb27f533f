package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/raaihank/pii-sentinel/internal/record"
)

// ErrMiss is returned by Get when no result is cached for a record ID
var ErrMiss = errors.New("cache miss")

// ResultCache keeps recent redaction results in Redis, keyed by record ID
type ResultCache struct {
	client *redis.Client
	config *Config
	logger *zap.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// NewResultCache creates a new Redis-backed result cache
func NewResultCache(config *Config, logger *zap.Logger) (*ResultCache, error) {
	// Parse Redis URL
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Configure connection pool
	if config.MaxConnections > 0 {
		opts.PoolSize = config.MaxConnections
	}
	opts.MinIdleConns = config.MinIdleConns

	cache := &ResultCache{
		client: redis.NewClient(opts),
		config: config,
		logger: logger,
	}

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := cache.client.Ping(ctx).Err(); err != nil {
		cache.client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Result cache initialized successfully",
		zap.String("redis_url", maskRedisURL(config.RedisURL)),
		zap.Int("max_connections", config.MaxConnections),
		zap.Duration("default_ttl", config.DefaultTTL))

	return cache, nil
}

// Name identifies the cache in sink logs and metrics
func (rc *ResultCache) Name() string {
	return "redis"
}

// Get returns the cached result for recordID or ErrMiss
func (rc *ResultCache) Get(ctx context.Context, recordID string) (*CachedResult, error) {
	key := rc.resultKey(recordID)

	data, err := rc.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		rc.misses.Add(1)
		rc.logger.Debug("Cache miss", zap.String("key", key))
		return nil, ErrMiss
	} else if err != nil {
		return nil, fmt.Errorf("cache lookup failed: %w", err)
	}

	var cached CachedResult
	if err := json.Unmarshal(data, &cached); err != nil {
		rc.logger.Error("Failed to unmarshal cached result", zap.Error(err))
		// Delete corrupted cache entry
		rc.client.Del(ctx, key)
		rc.misses.Add(1)
		return nil, ErrMiss
	}

	rc.hits.Add(1)
	rc.logger.Debug("Cache hit", zap.String("key", key))
	return &cached, nil
}

// WriteBatch caches outputs using a single Redis pipeline
func (rc *ResultCache) WriteBatch(ctx context.Context, outputs []record.Output) error {
	if len(outputs) == 0 {
		return nil
	}

	pipe := rc.client.Pipeline()
	now := time.Now()

	for _, out := range outputs {
		data, err := encodeResult(out, now, rc.config.DefaultTTL)
		if err != nil {
			rc.logger.Error("Failed to marshal result for caching",
				zap.String("record_id", out.RecordID),
				zap.Error(err))
			continue
		}
		pipe.Set(ctx, rc.resultKey(out.RecordID), data, rc.config.DefaultTTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("batch cache operation failed: %w", err)
	}

	rc.logger.Debug("Batch cache operation completed",
		zap.Int("cached_results", len(outputs)))

	return nil
}

// GetStats returns cache performance statistics
func (rc *ResultCache) GetStats(ctx context.Context) (*CacheStats, error) {
	info, err := rc.client.Info(ctx, "memory").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get Redis info: %w", err)
	}

	stats := &CacheStats{
		Hits:        rc.hits.Load(),
		Misses:      rc.misses.Load(),
		MemoryUsage: parseUsedMemory(info),
	}

	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}

	if keys, err := rc.client.DBSize(ctx).Result(); err == nil {
		stats.TotalKeys = keys
	}

	return stats, nil
}

// Close closes the Redis connection
func (rc *ResultCache) Close() error {
	if rc.client != nil {
		return rc.client.Close()
	}
	return nil
}

func (rc *ResultCache) resultKey(recordID string) string {
	return buildKey(rc.config.KeyPrefix, recordID)
}

func buildKey(prefix, recordID string) string {
	if prefix == "" {
		return "result:" + recordID
	}
	return prefix + ":result:" + recordID
}

func encodeResult(out record.Output, now time.Time, ttl time.Duration) ([]byte, error) {
	return json.Marshal(CachedResult{
		Output:   out,
		CachedAt: now,
		TTL:      int64(ttl.Seconds()),
	})
}

// parseUsedMemory extracts used_memory from an INFO reply
func parseUsedMemory(info string) int64 {
	for _, line := range strings.Split(info, "\r\n") {
		if memStr, ok := strings.CutPrefix(line, "used_memory:"); ok {
			if mem, err := strconv.ParseInt(memStr, 10, 64); err == nil {
				return mem
			}
		}
	}
	return 0
}

// maskRedisURL masks the password in a Redis URL for logging
func maskRedisURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
