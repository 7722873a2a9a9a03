package async

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/pipeline"
	"github.com/MitankshGosalia/DataThon-3.0-Round-2---Invo-Smart-Ai/internal/store"
)

// ProcessorQueue fans document jobs out to a bounded worker pool. The
// decode/preprocess/OCR stages are CPU-bound, so the pool should be sized
// to available cores by the caller.
type ProcessorQueue struct {
	proc     *pipeline.Processor
	invoices *store.Store // nil disables persistence
	logger   *slog.Logger
	workers  int
	timeout  time.Duration

	ch   chan Job
	done chan struct{}
	wg   sync.WaitGroup
	enq  sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

// ErrQueueClosed is returned by Enqueue once shutdown has begun.
var ErrQueueClosed = errors.New("queue is closed")

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func WithStore(s *store.Store) Option {
	return func(q *ProcessorQueue) {
		q.invoices = s
	}
}

func NewProcessorQueue(proc *pipeline.Processor, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		proc:    proc,
		logger:  logger,
		workers: 4,
		timeout: 3 * time.Minute,
		ch:      make(chan Job, 256),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)

				for job := range q.ch {
					ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
					q.processJob(ctx, workerID, job)
					cancel()
				}

				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *ProcessorQueue) processJob(ctx context.Context, workerID int, job Job) {
	data, err := os.ReadFile(job.Path)
	if err != nil {
		q.logger.Error("read failed", "worker_id", workerID, "path", job.Path, "error", err)
		return
	}
	res := q.proc.ProcessInvoice(ctx, data, filepath.Base(job.Path))
	if !res.Success {
		q.logger.Error("processing failed", "worker_id", workerID, "path", job.Path, "error", res.Error)
	} else {
		q.logger.Info("processed document", "worker_id", workerID, "path", job.Path,
			"method", res.Method, "is_valid", res.Validation != nil && res.Validation.IsValid)
	}
	if q.invoices != nil {
		if _, err := q.invoices.SaveResult(ctx, filepath.Base(job.Path), res); err != nil {
			q.logger.Error("persist failed", "worker_id", workerID, "path", job.Path, "error", err)
		}
	}
}

// Enqueue submits one job, blocking for backpressure when the buffer is
// full. The channel send happens outside the mutex so a wedged worker pool
// cannot deadlock Shutdown; a full buffer unblocks on ctx cancellation or
// shutdown.
func (q *ProcessorQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.logger.Warn("cannot enqueue: queue is shutting down", "path", job.Path)
		return ErrQueueClosed
	}
	q.enq.Add(1)
	q.mu.Unlock()
	defer q.enq.Done()

	select {
	case q.ch <- job:
		q.logger.Info("queued document for processing", "path", job.Path)
		return nil
	default:
	}

	q.logger.Warn("queue full, applying backpressure", "path", job.Path)
	select {
	case q.ch <- job:
		q.logger.Info("queued document for processing", "path", job.Path)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return ErrQueueClosed
	}
}

func (q *ProcessorQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.done)
	q.mu.Unlock()

	// Blocked enqueuers exit via q.done; the channel closes only after the
	// last of them has returned.
	q.enq.Wait()
	close(q.ch)

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
