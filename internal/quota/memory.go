package quota

import (
	"context"
	"sync"
)

// MemoryStore keeps counters in process memory with a lock per counter key.
// Suitable for standalone deployments and tests; a multi-instance
// deployment needs the Redis or Postgres store.
type MemoryStore struct {
	mu       sync.Mutex // guards the counters map itself
	counters map[string]*memoryCounter
}

type memoryCounter struct {
	mu   sync.Mutex
	used int
}

// NewMemoryStore creates an in-memory counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters: make(map[string]*memoryCounter),
	}
}

func (s *MemoryStore) counter(key string) *memoryCounter {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[key]
	if !ok {
		c = &memoryCounter{}
		s.counters[key] = c
	}
	return c
}

// Increment performs the check-then-increment under the per-key lock.
func (s *MemoryStore) Increment(ctx context.Context, userID int64, feature, monthKey string, amount, limit int) (bool, int, error) {
	c := s.counter(counterKey(userID, feature, monthKey))
	c.mu.Lock()
	defer c.mu.Unlock()

	if limit >= 0 && c.used+amount > limit {
		return false, c.used, nil
	}
	c.used += amount
	return true, c.used, nil
}

// Current reads the accumulated amount for a key.
func (s *MemoryStore) Current(ctx context.Context, userID int64, feature, monthKey string) (int, error) {
	c := s.counter(counterKey(userID, feature, monthKey))
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used, nil
}
