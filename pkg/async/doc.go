// Package async runs background work with panic recovery and logging.
//
// SafeGo starts a single goroutine with a timeout. WorkerPool processes a
// queue of tasks on a fixed set of workers; the audit package uses it to
// write entries to slow sinks off the request path:
//
//	pool := async.NewWorkerPool(ctx, async.PoolConfig{Workers: 4, TaskName: "audit"})
//	defer pool.Shutdown(5 * time.Second)
//
//	pool.Submit(func(ctx context.Context) error {
//		return recorder.Record(ctx, entry)
//	})
package async
