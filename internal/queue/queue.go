package queue

import (
	"context"
	"errors"
	"time"
)

// The archive pipeline buffers finalized run records through a queue so a
// slow or unavailable sink never blocks request handling. Two backends:
// an in-memory channel queue for standalone deployments and a Redis list
// queue that survives restarts and supports multiple workers.

var (
	// ErrQueueClosed is returned on operations against a closed queue
	ErrQueueClosed = errors.New("queue is closed")

	// ErrQueueFull is returned when an enqueue would exceed the buffer.
	// Producers treat it as a drop, never as a reason to wait.
	ErrQueueFull = errors.New("queue is full")

	// ErrItemNotFound is returned when a dead-letter item does not exist
	ErrItemNotFound = errors.New("item not found")
)

// Queue buffers opaque JSON-serializable items between producers and a
// batch worker.
type Queue interface {
	// Enqueue adds an item to the queue
	Enqueue(ctx context.Context, item interface{}) error

	// DequeueBatch waits up to wait for at least one item, then drains up
	// to maxItems without blocking further. An empty slice means the wait
	// elapsed with nothing queued.
	DequeueBatch(ctx context.Context, maxItems int, wait time.Duration) ([][]byte, error)

	// Length returns the current queue depth
	Length(ctx context.Context) (int, error)

	// Close shuts down the queue
	Close() error
}

// DeadLetterItem is a failed item parked for later inspection or retry.
type DeadLetterItem struct {
	ID        string
	Payload   []byte
	Error     string
	Timestamp time.Time
}

// DeadLetterQueue parks items whose processing exhausted its retries.
type DeadLetterQueue interface {
	Add(ctx context.Context, payload []byte, cause error) error
	List(ctx context.Context, maxItems int) ([]DeadLetterItem, error)
	Remove(ctx context.Context, id string) error
}

// Config holds queue tuning knobs shared by both backends.
type Config struct {
	// Name keys the Redis list and labels the worker logs
	Name string

	// BufferSize bounds the in-memory backlog
	BufferSize int

	// MaxRetries is the number of attempts before an item is dead-lettered
	MaxRetries int

	// RetryBackoff is the initial backoff, doubled per attempt
	RetryBackoff time.Duration
}

// DefaultConfig returns default queue configuration
func DefaultConfig(name string) *Config {
	return &Config{
		Name:         name,
		BufferSize:   10000,
		MaxRetries:   3,
		RetryBackoff: 1 * time.Second,
	}
}
