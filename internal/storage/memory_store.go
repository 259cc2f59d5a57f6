package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"careerpilot/internal/models"
)

// MemoryStore holds small serialized context blobs keyed by
// (user, scope key), e.g. the last-used résumé version. It is a cache:
// last-write-wins, stale reads tolerated, entries expire on their own.
type MemoryStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewMemoryStore creates a Redis-backed memory store.
func NewMemoryStore(client *redis.Client, ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryStore{client: client, ttl: ttl}
}

func memoryKey(userID int64, scopeKey string) string {
	return fmt.Sprintf("memory:%d:%s", userID, scopeKey)
}

// Get reads a memory entry. A missing key returns (nil, nil).
func (s *MemoryStore) Get(ctx context.Context, userID int64, scopeKey string) (*models.MemoryEntry, error) {
	data, err := s.client.Get(ctx, memoryKey(userID, scopeKey)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read memory entry: %w", err)
	}

	var entry models.MemoryEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		// A corrupt cache entry is dropped, not surfaced.
		s.client.Del(ctx, memoryKey(userID, scopeKey))
		return nil, nil
	}
	return &entry, nil
}

// Put writes a memory entry, overwriting any previous value.
func (s *MemoryStore) Put(ctx context.Context, userID int64, scopeKey string, value json.RawMessage) error {
	entry := models.MemoryEntry{
		UserID:    userID,
		ScopeKey:  scopeKey,
		Value:     value,
		UpdatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal memory entry: %w", err)
	}
	if err := s.client.Set(ctx, memoryKey(userID, scopeKey), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write memory entry: %w", err)
	}
	return nil
}
