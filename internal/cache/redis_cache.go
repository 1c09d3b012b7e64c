package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/annel0/shard-realms/internal/logging"
	"github.com/go-redis/redis/v8"
)

// RedisCache реализует CacheRepo поверх Redis. Снапшоты сетки общие
// для всех узлов, поэтому новый зритель на любом узле сразу получает
// актуальную сетку.
type RedisCache struct {
	client      *redis.Client
	config      *CacheConfig
	invalidator CacheInvalidator

	totalRequests int64
	hits          int64
	misses        int64
	invalidations int64
}

// NewRedisCache подключается к Redis и проверяет соединение.
// invalidator опционален (может быть nil).
func NewRedisCache(config *CacheConfig, invalidator CacheInvalidator) (*RedisCache, error) {
	if config.DefaultTTL == 0 {
		config.DefaultTTL = 30 * time.Second
	}
	if config.MaxTTL == 0 {
		config.MaxTTL = 1 * time.Hour
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "shard-realms:"
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         config.RedisURL,
		Password:     config.RedisPassword,
		DB:           config.RedisDB,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.Info("🧊 Redis кеш подключён: %s", config.RedisURL)
	return &RedisCache{client: rdb, config: config, invalidator: invalidator}, nil
}

func (r *RedisCache) key(key string) string {
	return r.config.KeyPrefix + key
}

// Get получает значение по ключу из Redis кеша.
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	atomic.AddInt64(&r.totalRequests, 1)

	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err == nil {
		atomic.AddInt64(&r.hits, 1)
		return val, nil
	}
	atomic.AddInt64(&r.misses, 1)

	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	logging.Error("Redis Get error for key %s: %v", key, err)
	return nil, fmt.Errorf("redis get error: %w", err)
}

// Set сохраняет значение; TTL ограничен сверху MaxTTL
func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrInvalidKey
	}
	if ttl > r.config.MaxTTL {
		ttl = r.config.MaxTTL
	}
	if err := r.client.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		logging.Error("Redis Set error for key %s: %v", key, err)
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		logging.Error("Redis Delete error for key %s: %v", key, err)
		return fmt.Errorf("redis delete error: %w", err)
	}
	return nil
}

func (r *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	count, err := r.client.Exists(ctx, r.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists error: %w", err)
	}
	return count > 0, nil
}

// Invalidate удаляет ключ и асинхронно уведомляет другие узлы
func (r *RedisCache) Invalidate(ctx context.Context, key string) error {
	if err := r.Delete(ctx, key); err != nil {
		return err
	}
	atomic.AddInt64(&r.invalidations, 1)

	if r.invalidator != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := r.invalidator.PublishInvalidation(ctx, key); err != nil {
				logging.Error("Failed to publish invalidation for key %s: %v", key, err)
			}
		}()
	}
	return nil
}

// Close закрывает соединение с Redis
func (r *RedisCache) Close() error {
	if r.invalidator != nil {
		if err := r.invalidator.Close(); err != nil {
			logging.Warn("⚠️ Ошибка закрытия invalidator: %v", err)
		}
	}
	if err := r.client.Close(); err != nil {
		logging.Error("Error closing Redis connection: %v", err)
		return err
	}
	logging.Info("Redis cache closed")
	return nil
}

func (r *RedisCache) GetMetrics() *CacheMetrics {
	m := &CacheMetrics{
		TotalRequests: atomic.LoadInt64(&r.totalRequests),
		CacheHits:     atomic.LoadInt64(&r.hits),
		CacheMisses:   atomic.LoadInt64(&r.misses),
		Invalidations: atomic.LoadInt64(&r.invalidations),
		LastUpdate:    time.Now(),
	}
	m.HitRatio = m.ratio()
	return m
}
