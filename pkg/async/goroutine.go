package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/projectvision/vision/pkg/observability"
)

// ErrPoolClosed is returned by Submit after Shutdown
var ErrPoolClosed = errors.New("worker pool shut down")

// SafeGo runs fn in a goroutine with a timeout, recovering panics and
// logging the returned error.
//
//	async.SafeGo(ctx, logger, 5*time.Second, "rate limiter cleanup", func(ctx context.Context) error {
//	    return limiter.Cleanup(ctx)
//	})
func SafeGo(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()
		defer observability.RecoverPanic(logger, taskName)

		if err := fn(ctx); err != nil {
			logger.WithError(err).WithField("task", taskName).Error("Background task failed")
		}
	}()
}

// WorkerPool runs submitted tasks on a fixed number of workers. Task errors
// and panics are logged and passed to the OnError hook; they never stop a
// worker.
type WorkerPool struct {
	taskName string
	timeout  time.Duration
	logger   *observability.Logger
	onError  func(error)

	workCh chan func(context.Context) error
	doneCh chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// PoolConfig configures a WorkerPool
type PoolConfig struct {
	Workers   int
	QueueSize int
	TaskName  string
	// Timeout bounds each task
	Timeout time.Duration
	Logger  *observability.Logger
	// OnError is called for every failed or panicking task
	OnError func(error)
}

// NewWorkerPool starts a worker pool
func NewWorkerPool(ctx context.Context, cfg PoolConfig) *WorkerPool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.FromContext(ctx)
	}

	// Tasks outlive the caller's request, so only cancellation by Shutdown applies.
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p := &WorkerPool{
		taskName: cfg.TaskName,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger.WithField("pool", cfg.TaskName),
		onError:  cfg.OnError,
		workCh:   make(chan func(context.Context) error, cfg.QueueSize),
		doneCh:   make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker()
		}()
	}
	go func() {
		wg.Wait()
		close(p.doneCh)
	}()

	return p
}

// Submit queues a task, blocking while the queue is full
func (p *WorkerPool) Submit(fn func(context.Context) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	p.workCh <- fn
	return nil
}

// Shutdown stops accepting tasks and waits up to timeout for queued tasks
// to finish
func (p *WorkerPool) Shutdown(timeout time.Duration) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.workCh)
	}
	p.mu.Unlock()

	defer p.cancel()
	select {
	case <-p.doneCh:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("worker pool %s shutdown timed out after %v", p.taskName, timeout)
	}
}

func (p *WorkerPool) worker() {
	for fn := range p.workCh {
		p.run(fn)
	}
}

func (p *WorkerPool) run(fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			p.fail(fmt.Errorf("panic in %s: %v", p.taskName, r))
		}
	}()

	if err := fn(ctx); err != nil {
		p.fail(err)
	}
}

func (p *WorkerPool) fail(err error) {
	p.logger.WithError(err).Error("Background task failed")
	if p.onError != nil {
		p.onError(err)
	}
}
