package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/projectvision/vision/pkg/async"
	"github.com/projectvision/vision/pkg/observability"
)

const asyncShutdownTimeout = 10 * time.Second

// AsyncRecorder moves writes to a slower recorder off the request path.
// Record returns once the entry is queued; write failures are reported
// through the pool's OnError hook.
type AsyncRecorder struct {
	inner Recorder
	pool  *async.WorkerPool
}

// NewAsyncRecorder wraps inner with a worker pool of the given size
func NewAsyncRecorder(ctx context.Context, inner Recorder, workers int, logger *observability.Logger, onError func(error)) *AsyncRecorder {
	return &AsyncRecorder{
		inner: inner,
		pool: async.NewWorkerPool(ctx, async.PoolConfig{
			Workers:   workers,
			QueueSize: workers * 64,
			TaskName:  "audit-write",
			Timeout:   5 * time.Second,
			Logger:    logger,
			OnError:   onError,
		}),
	}
}

// Record queues a copy of the entry
func (r *AsyncRecorder) Record(ctx context.Context, entry *Entry) error {
	prepare(ctx, entry)
	c := *entry
	if err := r.pool.Submit(func(ctx context.Context) error {
		return r.inner.Record(ctx, &c)
	}); err != nil {
		return fmt.Errorf("failed to queue audit entry: %w", err)
	}
	return nil
}

// Close drains queued entries and closes the wrapped recorder
func (r *AsyncRecorder) Close() error {
	drainErr := r.pool.Shutdown(asyncShutdownTimeout)
	if err := r.inner.Close(); err != nil {
		return fmt.Errorf("failed to close recorder: %w", err)
	}
	return drainErr
}
