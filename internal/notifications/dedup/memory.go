package dedup

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryStore keeps keys in process memory. Only correct with a single
// poller instance.
type MemoryStore struct {
	c *cache.Cache
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{c: cache.New(cache.NoExpiration, 10*time.Minute)}
}

func (s *MemoryStore) Seen(_ context.Context, key string) (bool, error) {
	_, ok := s.c.Get(key)
	return ok, nil
}

// MarkIfAbsent relies on cache.Add failing for an existing key.
func (s *MemoryStore) MarkIfAbsent(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if err := s.c.Add(key, struct{}{}, ttl); err != nil {
		return false, nil
	}
	return true, nil
}

func (s *MemoryStore) Reset(context.Context) error {
	s.c.Flush()
	return nil
}
