package async

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectvision/vision/pkg/observability"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testLogger() (*observability.Logger, *syncBuffer) {
	out := &syncBuffer{}
	return observability.NewLogger(observability.DebugLevel, out), out
}

func TestSafeGo_LogsErrors(t *testing.T) {
	logger, out := testLogger()
	done := make(chan struct{})

	SafeGo(context.Background(), logger, time.Second, "test task", func(ctx context.Context) error {
		defer close(done)
		return errors.New("boom")
	})

	<-done
	assert.Eventually(t, func() bool { return strings.Contains(out.String(), "boom") },
		time.Second, 10*time.Millisecond)
}

func TestSafeGo_RecoversPanics(t *testing.T) {
	logger, out := testLogger()

	SafeGo(context.Background(), logger, time.Second, "panicky", func(ctx context.Context) error {
		panic("kaboom")
	})

	assert.Eventually(t, func() bool { return strings.Contains(out.String(), "PANIC recovered") },
		time.Second, 10*time.Millisecond)
}

func TestSafeGo_Timeout(t *testing.T) {
	logger, _ := testLogger()
	result := make(chan error, 1)

	SafeGo(context.Background(), logger, 20*time.Millisecond, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		result <- ctx.Err()
		return ctx.Err()
	})

	select {
	case err := <-result:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("task was not cancelled")
	}
}

func TestWorkerPool_RunsTasks(t *testing.T) {
	logger, _ := testLogger()
	pool := NewWorkerPool(context.Background(), PoolConfig{Workers: 3, TaskName: "test", Logger: logger})

	var count atomic.Int32
	for i := 0; i < 20; i++ {
		require.NoError(t, pool.Submit(func(ctx context.Context) error {
			count.Add(1)
			return nil
		}))
	}

	require.NoError(t, pool.Shutdown(time.Second))
	assert.Equal(t, int32(20), count.Load())
}

func TestWorkerPool_ReportsFailures(t *testing.T) {
	logger, _ := testLogger()
	var failures atomic.Int32
	pool := NewWorkerPool(context.Background(), PoolConfig{
		Workers:  2,
		TaskName: "test",
		Logger:   logger,
		OnError:  func(error) { failures.Add(1) },
	})

	require.NoError(t, pool.Submit(func(ctx context.Context) error { return errors.New("failed") }))
	require.NoError(t, pool.Submit(func(ctx context.Context) error { panic("bad task") }))
	require.NoError(t, pool.Submit(func(ctx context.Context) error { return nil }))

	require.NoError(t, pool.Shutdown(time.Second))
	assert.Equal(t, int32(2), failures.Load())
}

func TestWorkerPool_SubmitAfterShutdown(t *testing.T) {
	logger, _ := testLogger()
	pool := NewWorkerPool(context.Background(), PoolConfig{Workers: 1, Logger: logger})

	require.NoError(t, pool.Shutdown(time.Second))
	assert.ErrorIs(t, pool.Submit(func(ctx context.Context) error { return nil }), ErrPoolClosed)
	// A second shutdown is harmless
	assert.NoError(t, pool.Shutdown(time.Second))
}

func TestWorkerPool_ShutdownTimeout(t *testing.T) {
	logger, _ := testLogger()
	pool := NewWorkerPool(context.Background(), PoolConfig{Workers: 1, Logger: logger, Timeout: time.Minute})
	release := make(chan struct{})
	defer close(release)

	require.NoError(t, pool.Submit(func(ctx context.Context) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}))

	err := pool.Shutdown(20 * time.Millisecond)
	assert.Error(t, err)
}

func TestWorkerPool_IgnoresCallerCancellation(t *testing.T) {
	logger, _ := testLogger()
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewWorkerPool(ctx, PoolConfig{Workers: 1, Logger: logger})
	cancel()

	var ran atomic.Bool
	require.NoError(t, pool.Submit(func(ctx context.Context) error {
		ran.Store(ctx.Err() == nil)
		return nil
	}))
	require.NoError(t, pool.Shutdown(time.Second))
	assert.True(t, ran.Load())
}
