package cache

import (
	"context"
	"errors"
	"time"
)

// CacheRepo определяет интерфейс внешнего key-value кеша.
//
// Использование:
//
//	cache := NewRedisCache(config)
//	data, err := cache.Get(ctx, "key")
//	err = cache.Set(ctx, "key", data, 30*time.Second)
//	err = cache.Delete(ctx, "key")
type CacheRepo interface {
	// Get получает значение по ключу. Возвращает ErrCacheMiss если ключ не найден.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set сохраняет значение с указанным TTL. TTL = 0 означает отсутствие истечения.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete удаляет ключи. Отсутствующие ключи не считаются ошибкой.
	Delete(ctx context.Context, keys ...string) error

	// BatchSet сохраняет несколько значений за один запрос.
	BatchSet(ctx context.Context, items map[string][]byte, ttl time.Duration) error

	// Keys возвращает ключи, подходящие под glob-шаблон ("grid:region:*").
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Close закрывает соединение с кешем.
	Close() error

	// GetMetrics возвращает снимок метрик кеша.
	GetMetrics() CacheMetrics
}

// CacheMetrics содержит метрики производительности кеша.
type CacheMetrics struct {
	TotalRequests int64   `json:"total_requests"`
	CacheHits     int64   `json:"cache_hits"`
	CacheMisses   int64   `json:"cache_misses"`
	Errors        int64   `json:"errors"`
	HitRatio      float64 `json:"hit_ratio"`

	AvgLatencyMs float64 `json:"avg_latency_ms"`
	MaxLatencyMs float64 `json:"max_latency_ms"`

	LastUpdate time.Time `json:"last_update"`
}

// CacheConfig содержит конфигурацию для кеша.
type CacheConfig struct {
	RedisURL      string
	RedisPassword string
	RedisDB       int

	MaxConnections int
	PoolTimeout    time.Duration
	// DialTimeout ограничивает первичный PING при создании клиента
	DialTimeout time.Duration
}

// Ошибки кеша
var (
	ErrCacheMiss    = errors.New("cache miss")
	ErrCacheTimeout = errors.New("cache timeout")
)

// IsCacheMiss проверяет, является ли ошибка промахом кеша.
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}
