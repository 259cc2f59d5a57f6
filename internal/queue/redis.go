package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue implements Queue over a Redis list. Items survive restarts and
// multiple workers can drain the same list.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueueWithClient wraps an existing client, sharing its pool.
func NewRedisQueueWithClient(client *redis.Client, name string) *RedisQueue {
	return &RedisQueue{client: client, key: "queue:" + name}
}

// Enqueue adds an item to the queue
func (q *RedisQueue) Enqueue(ctx context.Context, item interface{}) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	if err := q.client.RPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("failed to push to Redis: %w", err)
	}
	return nil
}

// DequeueBatch blocks up to wait for the first item, then drains up to
// maxItems with non-blocking pops.
func (q *RedisQueue) DequeueBatch(ctx context.Context, maxItems int, wait time.Duration) ([][]byte, error) {
	var items [][]byte

	result, err := q.client.BLPop(ctx, wait, q.key).Result()
	if err == redis.Nil {
		return items, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop from Redis: %w", err)
	}
	// BLPOP returns [key, value]
	if len(result) == 2 {
		items = append(items, []byte(result[1]))
	}

	for len(items) < maxItems {
		val, err := q.client.LPop(ctx, q.key).Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return items, fmt.Errorf("failed to pop from Redis: %w", err)
		}
		items = append(items, []byte(val))
	}

	return items, nil
}

// Length returns the current queue depth
func (q *RedisQueue) Length(ctx context.Context) (int, error) {
	length, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue length: %w", err)
	}
	return int(length), nil
}

// Close shuts down the queue. The client is left open when shared.
func (q *RedisQueue) Close() error {
	return nil
}
