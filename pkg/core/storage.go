package core

import (
	"context"
	"time"
)

// Storage defines the persistence layer for jobs.
type Storage interface {
	// Migrate creates the necessary database tables.
	Migrate(ctx context.Context) error

	// Job lifecycle
	Enqueue(ctx context.Context, job *Job) error
	EnqueueUnique(ctx context.Context, job *Job, uniqueKey string) error
	Dequeue(ctx context.Context, queue string, workerID string, lockFor time.Duration) (*Job, error)
	Complete(ctx context.Context, jobID string, workerID string, result []byte) error
	Fail(ctx context.Context, jobID string, workerID string, errMsg string, retryAt *time.Time) error

	// Scheduling
	PromoteDueJobs(ctx context.Context, queue string, now time.Time) (int64, error)

	// Locking
	Heartbeat(ctx context.Context, jobID string, workerID string, lockFor time.Duration) error
	ReleaseStaleLocks(ctx context.Context, now time.Time) (int64, error)

	// Queries
	GetJob(ctx context.Context, jobID string) (*Job, error)
	FindJobs(ctx context.Context, filter JobFilter) ([]*Job, error)
	QueueStats(ctx context.Context, queue string) (*QueueStats, error)

	// Bulk operations
	CancelJobs(ctx context.Context, filter JobFilter) (int64, error)
	RetryJob(ctx context.Context, jobID string) (*Job, error)
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CountCompletedBetween(ctx context.Context, from, to time.Time) (int64, error)

	// Queue pause operations
	PauseQueue(ctx context.Context, queue string) error
	UnpauseQueue(ctx context.Context, queue string) error
	GetPausedQueues(ctx context.Context) ([]string, error)
	IsQueuePaused(ctx context.Context, queue string) (bool, error)
}
