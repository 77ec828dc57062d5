// Package worker provides a generic, thread-safe worker pool for concurrent task processing.
//
// # Overview
//
// The worker package implements a bounded worker pool with:
//   - Generic type support for type-safe work processing
//   - Bounded queues with backpressure (non-blocking submit, drop on full)
//   - Context-aware cancellation and graceful shutdown
//   - Dual-tracking observability (always-on statistics + optional Prometheus metrics)
//
// The result distributor uses a pool so publishing downstream never blocks
// orchestration: a full queue drops the oldest-priority work and records the
// drop rather than stalling a Process call.
//
// # Usage
//
//	pool := worker.NewPool(4, 256, func(ctx context.Context, item Item) error {
//	    return publish(ctx, item)
//	})
//	pool.Start(ctx)
//	defer pool.Stop(5 * time.Second)
//
//	if err := pool.Submit(item); errors.Is(err, worker.ErrQueueFull) {
//	    // backpressure: item dropped, counted in Stats().Dropped
//	}
package worker
