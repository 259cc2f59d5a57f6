package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// checkAndIncrScript does the read, limit check and INCRBY as one atomic
// unit on the Redis side. A negative limit means unbounded: always
// increment. Returns {allowed, used}.
var checkAndIncrScript = redis.NewScript(`
	local used = tonumber(redis.call('GET', KEYS[1])) or 0
	local amount = tonumber(ARGV[1])
	local limit = tonumber(ARGV[2])
	local ttl = tonumber(ARGV[3])

	if limit >= 0 and used + amount > limit then
		return {0, used}
	end

	local new_used = redis.call('INCRBY', KEYS[1], amount)
	redis.call('EXPIRE', KEYS[1], ttl)
	return {1, new_used}
`)

// RedisStore keeps counters in Redis, one key per (user, feature, month).
// Counters expire after the retention window; a new month starts at zero by
// key absence.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed counter store. ttl bounds how long
// historical month keys are kept.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 60 * 24 * time.Hour
	}
	return &RedisStore{client: client, ttl: ttl}
}

// Increment runs the conditional increment script.
func (s *RedisStore) Increment(ctx context.Context, userID int64, feature, monthKey string, amount, limit int) (bool, int, error) {
	key := counterKey(userID, feature, monthKey)
	ttlSeconds := int(s.ttl / time.Second)

	result, err := checkAndIncrScript.Run(ctx, s.client, []string{key}, amount, limit, ttlSeconds).Slice()
	if err != nil {
		return false, 0, fmt.Errorf("failed to run quota script: %w", err)
	}
	if len(result) != 2 {
		return false, 0, fmt.Errorf("unexpected quota script result: %v", result)
	}

	allowed, ok1 := result[0].(int64)
	used, ok2 := result[1].(int64)
	if !ok1 || !ok2 {
		return false, 0, fmt.Errorf("unexpected quota script result types: %v", result)
	}
	return allowed == 1, int(used), nil
}

// Current reads the accumulated amount for a key.
func (s *RedisStore) Current(ctx context.Context, userID int64, feature, monthKey string) (int, error) {
	val, err := s.client.Get(ctx, counterKey(userID, feature, monthKey)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read quota counter: %w", err)
	}
	return val, nil
}
