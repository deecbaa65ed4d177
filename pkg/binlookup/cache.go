package binlookup

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MemoryCache is an in-process Cache for tests and dev setups.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryCacheEntry
	now     func() time.Time
}

type memoryCacheEntry struct {
	res       Result
	expiresAt time.Time
}

// NewMemoryCache returns an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryCacheEntry),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

var _ Cache = (*MemoryCache)(nil)

func (m *MemoryCache) Get(ctx context.Context, bin string) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[bin]
	if !ok || m.now().After(e.expiresAt) {
		return nil, nil
	}
	res := e.res
	return &res, nil
}

func (m *MemoryCache) Set(ctx context.Context, bin string, res *Result, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[bin] = memoryCacheEntry{res: *res, expiresAt: m.now().Add(ttl)}
	return nil
}

// RedisCache shares lookup results across processes.
type RedisCache struct {
	client redis.UniversalClient
}

// NewRedisCache wires a cache over an existing redis client.
func NewRedisCache(client redis.UniversalClient) *RedisCache {
	if client == nil {
		panic("binlookup: redis client is required")
	}
	return &RedisCache{client: client}
}

var _ Cache = (*RedisCache)(nil)

func cacheKey(bin string) string { return "binlookup:" + bin }

func (r *RedisCache) Get(ctx context.Context, bin string) (*Result, error) {
	raw, err := r.client.Get(ctx, cacheKey(bin)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *RedisCache) Set(ctx context.Context, bin string, res *Result, ttl time.Duration) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, cacheKey(bin), raw, ttl).Err()
}
