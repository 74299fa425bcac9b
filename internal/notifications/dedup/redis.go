package dedup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "habitpulse:fired:"

// RedisClient is the subset of redis.Cmdable used here.
type RedisClient interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisStore shares fired keys between poller instances. Keys are
// date-scoped and expire after the local day ends, so Reset does nothing.
type RedisStore struct {
	client RedisClient
}

func NewRedisStore(client RedisClient) *RedisStore {
	return &RedisStore{client: client}
}

// NewRedisStoreFromURL parses a redis:// URL and connects.
func NewRedisStoreFromURL(url string) (*RedisStore, *redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewClient(opts)
	return NewRedisStore(client), client, nil
}

func (s *RedisStore) Seen(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisStore) MarkIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, redisKeyPrefix+key, 1, ttl).Result()
}

func (s *RedisStore) Reset(context.Context) error { return nil }
