package cache

import (
	"context"
	"sync"
	"time"

	"github.com/annel0/shard-realms/internal/logging"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // нулевое значение: без истечения
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryCache локальный кеш процесса. С invalidator узлы сбрасывают
// друг у друга устаревшие снапшоты.
type MemoryCache struct {
	mu          sync.Mutex
	entries     map[string]memoryEntry
	invalidator CacheInvalidator
	metrics     CacheMetrics
	now         func() time.Time
}

// NewMemoryCache создаёт кеш; invalidator может быть nil
func NewMemoryCache(invalidator CacheInvalidator) *MemoryCache {
	return &MemoryCache{
		entries:     make(map[string]memoryEntry),
		invalidator: invalidator,
		now:         time.Now,
	}
}

// Listen подписывает кеш на инвалидации с других узлов
func (m *MemoryCache) Listen(ctx context.Context) error {
	if m.invalidator == nil {
		return nil
	}
	return m.invalidator.SubscribeInvalidations(ctx, func(key string) error {
		return m.Delete(ctx, key)
	})
}

func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.metrics.TotalRequests++
	e, ok := m.entries[key]
	if !ok || e.expired(m.now()) {
		if ok {
			delete(m.entries, key)
		}
		m.metrics.CacheMisses++
		return nil, ErrCacheMiss
	}
	m.metrics.CacheHits++
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (m *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrInvalidKey
	}
	stored := make([]byte, len(value))
	copy(stored, value)

	e := memoryEntry{value: stored}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}

	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	return ok && !e.expired(m.now()), nil
}

func (m *MemoryCache) Invalidate(ctx context.Context, key string) error {
	if err := m.Delete(ctx, key); err != nil {
		return err
	}
	m.mu.Lock()
	m.metrics.Invalidations++
	m.mu.Unlock()

	if m.invalidator != nil {
		if err := m.invalidator.PublishInvalidation(ctx, key); err != nil {
			logging.Warn("⚠️ Не удалось разослать инвалидацию %s: %v", key, err)
			return err
		}
	}
	return nil
}

func (m *MemoryCache) Close() error {
	if m.invalidator != nil {
		return m.invalidator.Close()
	}
	return nil
}

func (m *MemoryCache) GetMetrics() *CacheMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	metrics := m.metrics
	metrics.TotalKeys = int64(len(m.entries))
	metrics.HitRatio = metrics.ratio()
	metrics.LastUpdate = m.now()
	return &metrics
}
