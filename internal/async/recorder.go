package async

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/calendar-converter/internal/entity"
	"github.com/joseph-ayodele/calendar-converter/internal/repository"
)

// Recorder accepts finished conversion records for the audit log.
type Recorder interface {
	Record(ctx context.Context, c entity.Conversion)
	Shutdown(ctx context.Context)
}

// NopRecorder discards records; used when the audit log is disabled.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, entity.Conversion) {}

func (NopRecorder) Shutdown(context.Context) {}

// AuditQueue writes conversion records in the background so the request path
// never waits on the database.
type AuditQueue struct {
	repo    repository.ConversionRepository
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan entity.Conversion
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*AuditQueue)

func WithWorkers(n int) Option {
	return func(q *AuditQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *AuditQueue) {
		if n > 0 {
			q.ch = make(chan entity.Conversion, n)
		}
	}
}
func WithWriteTimeout(d time.Duration) Option {
	return func(q *AuditQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewAuditQueue(repo repository.ConversionRepository, logger *slog.Logger, opts ...Option) *AuditQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &AuditQueue{
		repo:    repo,
		logger:  logger,
		workers: 2,
		timeout: 5 * time.Second,
		ch:      make(chan entity.Conversion, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *AuditQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("audit.worker.started", "worker_id", workerID)

				for c := range q.ch {
					ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
					err := q.repo.Insert(ctx, &c)
					cancel()

					if err != nil {
						q.logger.Error("audit.write.failed", "worker_id", workerID, "req_id", c.RequestID, "error", err)
					}
				}

				q.logger.Debug("audit.worker.stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

// Record enqueues c. When the queue is full the record is dropped.
func (q *AuditQueue) Record(_ context.Context, c entity.Conversion) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("audit.record.rejected", "reason", "shutting down", "req_id", c.RequestID)
		return
	}
	select {
	case q.ch <- c:
	default:
		q.logger.Warn("audit.record.dropped", "reason", "queue full", "req_id", c.RequestID)
	}
}

func (q *AuditQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("audit.shutdown.interrupted")
	case <-done:
		q.logger.Info("audit.shutdown.drained")
	}
}
