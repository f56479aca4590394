// Package queue provides the Queue type for job orchestration.
//
// This package includes:
//   - Queue: processor registration, enqueueing, pause/resume, stats and cancellation
//   - Config: per-queue attempts, backoff, timeout and concurrency
//   - Option: configuration options for job enqueueing
//   - Hook registration for job lifecycle events
//   - Event subscription for monitoring
package queue
