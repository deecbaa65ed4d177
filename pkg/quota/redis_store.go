package quota

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps counters in redis, the production backend: INCR is
// atomic across processes and expiry handles bucket cleanup.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wires a store over an existing redis client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	if client == nil {
		panic("quota: redis client is required")
	}
	return &RedisStore{client: client}
}

var _ Store = (*RedisStore)(nil)

func (s *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}

	// First hit creates the bucket; pin its lifetime to the window.
	if count == 1 {
		if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, err
		}
	}
	return count, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (int64, error) {
	count, err := s.client.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}
	return count, nil
}
