package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/annel0/mmo-grid/internal/logging"
	"github.com/go-redis/redis/v8"
)

// RedisCache реализует CacheRepo поверх Redis.
// Считает hit ratio и latency для /api/server.
type RedisCache struct {
	client *redis.Client
	config CacheConfig

	requests int64
	hits     int64
	misses   int64
	errs     int64

	latencySum   int64 // в наносекундах
	latencyCount int64
	maxLatency   int64
}

// NewRedisCache создаёт клиента и проверяет соединение PING'ом.
func NewRedisCache(config CacheConfig) (*RedisCache, error) {
	if config.MaxConnections == 0 {
		config.MaxConnections = 10
	}
	if config.PoolTimeout == 0 {
		config.PoolTimeout = 30 * time.Second
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 5 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         config.RedisURL,
		Password:     config.RedisPassword,
		DB:           config.RedisDB,
		PoolSize:     config.MaxConnections,
		PoolTimeout:  config.PoolTimeout,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.Info("🧊 Redis cache: подключено к %s (db=%d)", config.RedisURL, config.RedisDB)
	return &RedisCache{client: rdb, config: config}, nil
}

// Get получает значение по ключу.
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	defer r.recordLatency(start)

	atomic.AddInt64(&r.requests, 1)

	val, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		atomic.AddInt64(&r.hits, 1)
		return val, nil
	case errors.Is(err, redis.Nil):
		atomic.AddInt64(&r.misses, 1)
		return nil, ErrCacheMiss
	default:
		return nil, r.fail(ctx, "get", key, err)
	}
}

// Set сохраняет значение.
func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	defer r.recordLatency(start)

	atomic.AddInt64(&r.requests, 1)
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return r.fail(ctx, "set", key, err)
	}
	return nil
}

// Delete удаляет ключи одной командой DEL.
func (r *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	start := time.Now()
	defer r.recordLatency(start)

	atomic.AddInt64(&r.requests, 1)
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return r.fail(ctx, "del", keys[0], err)
	}
	return nil
}

// BatchSet сохраняет несколько значений через pipeline.
func (r *RedisCache) BatchSet(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	if len(items) == 0 {
		return nil
	}
	start := time.Now()
	defer r.recordLatency(start)

	atomic.AddInt64(&r.requests, 1)

	pipe := r.client.Pipeline()
	for key, value := range items {
		pipe.Set(ctx, key, value, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return r.fail(ctx, "pipeline set", fmt.Sprintf("%d keys", len(items)), err)
	}
	return nil
}

// Keys обходит ключи через SCAN, не блокируя Redis как KEYS.
func (r *RedisCache) Keys(ctx context.Context, pattern string) ([]string, error) {
	start := time.Now()
	defer r.recordLatency(start)

	atomic.AddInt64(&r.requests, 1)

	var keys []string
	iter := r.client.Scan(ctx, 0, pattern, 256).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, r.fail(ctx, "scan", pattern, err)
	}
	return keys, nil
}

// Close закрывает соединение с Redis.
func (r *RedisCache) Close() error {
	logging.Info("🧊 Redis cache: соединение закрыто")
	return r.client.Close()
}

// GetMetrics возвращает снимок метрик.
func (r *RedisCache) GetMetrics() CacheMetrics {
	hits := atomic.LoadInt64(&r.hits)
	misses := atomic.LoadInt64(&r.misses)

	m := CacheMetrics{
		TotalRequests: atomic.LoadInt64(&r.requests),
		CacheHits:     hits,
		CacheMisses:   misses,
		Errors:        atomic.LoadInt64(&r.errs),
		MaxLatencyMs:  float64(atomic.LoadInt64(&r.maxLatency)) / float64(time.Millisecond),
		LastUpdate:    time.Now(),
	}
	if hits+misses > 0 {
		m.HitRatio = float64(hits) / float64(hits+misses)
	}
	if n := atomic.LoadInt64(&r.latencyCount); n > 0 {
		m.AvgLatencyMs = float64(atomic.LoadInt64(&r.latencySum)) / float64(n) / float64(time.Millisecond)
	}
	return m
}

func (r *RedisCache) fail(ctx context.Context, op, key string, err error) error {
	atomic.AddInt64(&r.errs, 1)
	if ctx.Err() != nil {
		return fmt.Errorf("redis %s %s: %w", op, key, ErrCacheTimeout)
	}
	return fmt.Errorf("redis %s %s: %w", op, key, err)
}

func (r *RedisCache) recordLatency(start time.Time) {
	latency := time.Since(start).Nanoseconds()
	atomic.AddInt64(&r.latencySum, latency)
	atomic.AddInt64(&r.latencyCount, 1)

	for {
		current := atomic.LoadInt64(&r.maxLatency)
		if latency <= current || atomic.CompareAndSwapInt64(&r.maxLatency, current, latency) {
			return
		}
	}
}
