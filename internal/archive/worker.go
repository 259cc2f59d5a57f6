package archive

import (
	"context"
	"encoding/json"
	"time"

	"careerpilot/internal/logging"
	"careerpilot/internal/models"
	"careerpilot/internal/queue"
)

// Worker drains finalized run records from a queue and flushes them to the
// object writer in batches, by size or by interval, whichever comes first.
// The archive is observability only: failures are retried, then
// dead-lettered, and never surface to request handling.
type Worker struct {
	queue       queue.Queue
	dlq         queue.DeadLetterQueue
	writer      ObjectWriter
	flushSize   int
	flushWait   time.Duration
	maxRetries  int
	retryWait   time.Duration
	logger      *logging.Logger
	cancel      context.CancelFunc
	stopChan    chan struct{}
	stoppedChan chan struct{}
}

// WorkerConfig tunes the archive worker.
type WorkerConfig struct {
	FlushSize     int
	FlushInterval time.Duration
	MaxRetries    int
	RetryBackoff  time.Duration
}

// NewWorker creates an archive worker.
func NewWorker(q queue.Queue, dlq queue.DeadLetterQueue, writer ObjectWriter, cfg WorkerConfig) *Worker {
	if cfg.FlushSize <= 0 {
		cfg.FlushSize = 500
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Minute
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 1 * time.Second
	}
	return &Worker{
		queue:       q,
		dlq:         dlq,
		writer:      writer,
		flushSize:   cfg.FlushSize,
		flushWait:   cfg.FlushInterval,
		maxRetries:  cfg.MaxRetries,
		retryWait:   cfg.RetryBackoff,
		logger:      logging.NewLogger("archive-worker"),
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}
}

// Enqueue hands a finalized run to the archive pipeline. Best effort: a
// full or closed queue only logs.
func (w *Worker) Enqueue(ctx context.Context, run *models.Run) {
	if err := w.queue.Enqueue(ctx, FromRun(run)); err != nil {
		w.logger.Warn("Failed to enqueue run for archiving", "run_id", run.ID, "error", err)
	}
}

// Start starts the worker goroutine
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	go w.run(ctx)
}

// Stop drains in-flight work and stops the worker. Cancelling the worker
// context unblocks a dequeue parked on its wait.
func (w *Worker) Stop() {
	close(w.stopChan)
	if w.cancel != nil {
		w.cancel()
	}
	<-w.stoppedChan
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.stoppedChan)

	for {
		select {
		case <-w.stopChan:
			w.drain()
			w.logger.Info("Archive worker stopping")
			return
		case <-ctx.Done():
			w.logger.Info("Archive worker context cancelled")
			return
		default:
			w.processBatch(ctx)
		}
	}
}

func (w *Worker) processBatch(ctx context.Context) {
	payloads, err := w.queue.DequeueBatch(ctx, w.flushSize, w.flushWait)
	if err != nil {
		if err == queue.ErrQueueClosed || ctx.Err() != nil {
			return
		}
		w.logger.Error("Failed to dequeue archive records", "error", err)
		time.Sleep(1 * time.Second)
		return
	}
	if len(payloads) == 0 {
		return
	}
	w.flush(ctx, payloads)
}

// drain flushes whatever is still queued during shutdown, on its own
// short-lived context.
func (w *Worker) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for {
		payloads, err := w.queue.DequeueBatch(ctx, w.flushSize, 100*time.Millisecond)
		if err != nil || len(payloads) == 0 {
			return
		}
		w.flush(ctx, payloads)
	}
}

func (w *Worker) flush(ctx context.Context, payloads [][]byte) {
	records := make([]Record, 0, len(payloads))
	for _, payload := range payloads {
		var rec Record
		if err := json.Unmarshal(payload, &rec); err != nil {
			w.logger.Error("Failed to unmarshal archive record", "error", err)
			continue
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return
	}

	var lastErr error
	for attempt := 0; attempt <= w.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := w.retryWait * time.Duration(1<<uint(attempt-1))
			w.logger.Debug("Retrying archive flush", "attempt", attempt, "backoff", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
		}

		key, err := w.writer.WriteBatch(ctx, records)
		if err == nil {
			w.logger.Debug("Flushed archive batch", "key", key, "count", len(records))
			return
		}
		lastErr = err
		w.logger.Error("Failed to flush archive batch", "attempt", attempt, "error", err)
	}

	if w.dlq != nil {
		for _, payload := range payloads {
			if err := w.dlq.Add(ctx, payload, lastErr); err != nil {
				w.logger.Error("Failed to dead-letter archive record", "error", err)
			}
		}
		w.logger.Warn("Archive batch moved to DLQ", "count", len(payloads), "error", lastErr)
	}
}

// QueueLength reports the current backlog.
func (w *Worker) QueueLength(ctx context.Context) (int, error) {
	return w.queue.Length(ctx)
}
