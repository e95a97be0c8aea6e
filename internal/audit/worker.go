package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultFlushInterval = 200 * time.Millisecond
	defaultBatchSize     = 64
)

// Worker buffers events in memory and appends them to a store from a
// background goroutine, so Emit never blocks on the sink. Failed appends
// are logged and dropped.
type Worker struct {
	store         Store
	buffer        *RingBuffer
	logger        *slog.Logger
	flushInterval time.Duration
	batchSize     int
	now           func() time.Time

	wake chan struct{}
	once sync.Once
	done chan struct{}
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithLogger sets the logger used for append failures.
func WithLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithFlushInterval sets how often the buffer is drained when idle.
func WithFlushInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.flushInterval = d
		}
	}
}

// WithBatchSize sets the maximum events appended per drain step.
func WithBatchSize(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func NewWorker(store Store, capacity int, opts ...WorkerOption) *Worker {
	w := &Worker{
		store:         store,
		buffer:        NewRingBuffer(capacity),
		logger:        slog.Default(),
		flushInterval: defaultFlushInterval,
		batchSize:     defaultBatchSize,
		now:           time.Now,
		wake:          make(chan struct{}, 1),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Emit stamps and enqueues an event. It never fails.
func (w *Worker) Emit(ctx context.Context, base Event) error {
	w.buffer.Enqueue(stamp(ctx, base, w.now))
	select {
	case w.wake <- struct{}{}:
	default:
	}
	return nil
}

// Run drains the buffer until ctx is done, then flushes what is left
// with a short grace period.
func (w *Worker) Run(ctx context.Context) error {
	defer w.once.Do(func() { close(w.done) })

	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			w.drain(flushCtx)
			cancel()
			return nil
		case <-w.wake:
			w.drain(ctx)
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// Done is closed once Run has returned.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Dropped reports events discarded because the buffer overflowed.
func (w *Worker) Dropped() int64 {
	return w.buffer.Dropped()
}

func (w *Worker) drain(ctx context.Context) {
	for {
		batch := w.buffer.DequeueBatch(w.batchSize)
		if len(batch) == 0 {
			return
		}
		for _, event := range batch {
			if err := w.store.Append(ctx, event); err != nil {
				w.logger.ErrorContext(ctx, "audit append failed",
					"action", event.Action,
					"event_id", event.ID,
					"error", err,
				)
			}
		}
	}
}
