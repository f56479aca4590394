package worker

import (
	"log/slog"
	"time"

	"github.com/jdziat/newsdesk/pkg/security"
)

// WorkerOption configures a Worker.
type WorkerOption interface {
	ApplyWorker(*WorkerConfig)
}

type workerOptionFunc func(*WorkerConfig)

func (f workerOptionFunc) ApplyWorker(c *WorkerConfig) { f(c) }

// WorkerConfig holds worker configuration.
type WorkerConfig struct {
	Queues            []string       // queues to dispatch; all configured queues when empty
	Concurrency       map[string]int // per-queue override of queue.Config.Concurrency
	PollInterval      time.Duration
	LockDuration      time.Duration
	HeartbeatInterval time.Duration
	StaleSweep        time.Duration
	WorkerID          string
	Logger            *slog.Logger
	StorageRetry      *RetryConfig
	DequeueRetry      *RetryConfig
}

// WithQueues restricts the worker to the named queues.
func WithQueues(names ...string) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.Queues = append(c.Queues, names...)
	})
}

// QueueConcurrency overrides the number of parallel processors for one queue.
// Values are clamped to [1, MaxConcurrency].
func QueueConcurrency(name string, n int) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if c.Concurrency == nil {
			c.Concurrency = make(map[string]int)
		}
		c.Concurrency[name] = security.ClampConcurrency(n)
	})
}

// PollInterval sets how often each dispatcher looks for due work.
func PollInterval(d time.Duration) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.PollInterval = d
	})
}

// LockDuration sets how long a claimed job stays locked without a heartbeat.
func LockDuration(d time.Duration) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.LockDuration = d
	})
}

// HeartbeatInterval sets how often an active job's lock is extended.
func HeartbeatInterval(d time.Duration) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.HeartbeatInterval = d
	})
}

// StaleLockSweep sets how often expired locks are released. Zero disables the sweeper.
func StaleLockSweep(d time.Duration) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.StaleSweep = d
	})
}

// WithWorkerID sets the identity recorded in job locks.
func WithWorkerID(id string) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.WorkerID = id
	})
}

// WithLogger sets the worker logger.
func WithLogger(l *slog.Logger) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.Logger = l
	})
}

// WithStorageRetry sets the retry policy for job state writes.
func WithStorageRetry(cfg RetryConfig) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.StorageRetry = &cfg
	})
}

// WithDequeueRetry sets the retry policy for claiming jobs.
func WithDequeueRetry(cfg RetryConfig) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.DequeueRetry = &cfg
	})
}

// WithRetryAttempts sets the number of storage write attempts, keeping the
// other defaults.
func WithRetryAttempts(n int) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		cfg := DefaultRetryConfig()
		cfg.MaxAttempts = n
		c.StorageRetry = &cfg
	})
}

// DisableRetry makes storage writes and claims single-shot.
func DisableRetry() WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		single := RetryConfig{MaxAttempts: 1}
		c.StorageRetry = &single
		dq := single
		c.DequeueRetry = &dq
	})
}
