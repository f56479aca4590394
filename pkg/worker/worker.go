package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jdziat/newsdesk/pkg/core"
	intctx "github.com/jdziat/newsdesk/pkg/internal/context"
	"github.com/jdziat/newsdesk/pkg/internal/handler"
	"github.com/jdziat/newsdesk/pkg/queue"
)

// Worker runs one dispatcher per queue. Each dispatcher claims jobs only
// while it has a free processor slot, so a queue never runs more than its
// configured concurrency.
type Worker struct {
	queue  *queue.Queue
	config WorkerConfig
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewWorker creates a new worker for the given queue.
func NewWorker(q *queue.Queue, opts ...WorkerOption) *Worker {
	config := WorkerConfig{
		PollInterval:      time.Second,
		LockDuration:      5 * time.Minute,
		HeartbeatInterval: time.Minute,
		StaleSweep:        time.Minute,
		WorkerID:          uuid.New().String(),
	}

	for _, opt := range opts {
		opt.ApplyWorker(&config)
	}

	if len(config.Queues) == 0 {
		config.Queues = q.Names()
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if config.LockDuration <= 0 {
		config.LockDuration = 5 * time.Minute
	}
	if config.HeartbeatInterval <= 0 || config.HeartbeatInterval >= config.LockDuration {
		config.HeartbeatInterval = config.LockDuration / 3
	}

	if config.StorageRetry == nil {
		defaultCfg := DefaultRetryConfig()
		config.StorageRetry = &defaultCfg
	}
	if config.DequeueRetry == nil {
		// Use longer backoff for dequeue to avoid hammering DB during outages
		dequeueCfg := RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    500 * time.Millisecond,
			MaxBackoff:        10 * time.Second,
			BackoffMultiplier: 2.0,
			JitterFraction:    0.2,
		}
		config.DequeueRetry = &dequeueCfg
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		queue:  q,
		config: config,
		logger: logger.With("worker_id", config.WorkerID),
	}
}

// ID returns the identity the worker records in job locks.
func (w *Worker) ID() string {
	return w.config.WorkerID
}

// Concurrency returns the number of parallel processors for a queue.
func (w *Worker) Concurrency(name string) int {
	if n, ok := w.config.Concurrency[name]; ok {
		return n
	}
	cfg, ok := w.queue.Config(name)
	if !ok || cfg.Concurrency < 1 {
		return 1
	}
	return cfg.Concurrency
}

// Start begins processing jobs. Blocks until ctx is cancelled, then waits
// for in-flight jobs to finish before returning ctx.Err().
func (w *Worker) Start(ctx context.Context) error {
	for _, name := range w.config.Queues {
		if _, ok := w.queue.Config(name); !ok {
			return fmt.Errorf("%w: %s", core.ErrUnknownQueue, name)
		}
	}

	w.logger.Info("worker started", "queues", w.config.Queues)

	var loops sync.WaitGroup
	for _, name := range w.config.Queues {
		loops.Add(1)
		go func(name string) {
			defer loops.Done()
			w.dispatch(ctx, name, w.Concurrency(name))
		}(name)
	}

	if w.config.StaleSweep > 0 {
		loops.Add(1)
		go func() {
			defer loops.Done()
			w.sweepStaleLocks(ctx)
		}()
	}

	<-ctx.Done()
	loops.Wait()
	w.wg.Wait()
	w.logger.Info("worker stopped")
	return ctx.Err()
}

// dispatch is the poll loop for one queue.
func (w *Worker) dispatch(ctx context.Context, name string, concurrency int) {
	slots := make(chan struct{}, concurrency)
	logger := w.logger.With("queue", name)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if n, err := w.queue.Storage().PromoteDueJobs(ctx, name, time.Now()); err != nil {
			if ctx.Err() == nil {
				logger.Warn("failed to promote delayed jobs", "error", err)
			}
		} else if n > 0 {
			logger.Debug("promoted delayed jobs", "count", n)
		}

		// Fill every free slot before waiting for the next tick.
	fill:
		for {
			select {
			case slots <- struct{}{}:
			default:
				break fill
			}

			job, err := w.dequeueWithRetry(ctx, name)
			if err != nil || job == nil {
				<-slots
				if err != nil && ctx.Err() == nil {
					logger.Error("failed to dequeue after retries", "error", err)
				}
				break fill
			}

			w.wg.Add(1)
			go func(job *core.Job) {
				defer w.wg.Done()
				defer func() { <-slots }()
				w.processJob(ctx, job)
			}(job)
		}
	}
}

// dequeueWithRetry attempts to claim a job with exponential backoff on failure.
func (w *Worker) dequeueWithRetry(ctx context.Context, name string) (*core.Job, error) {
	var job *core.Job
	err := retryWithBackoff(ctx, *w.config.DequeueRetry, func() error {
		var dequeueErr error
		job, dequeueErr = w.queue.Storage().Dequeue(ctx, name, w.config.WorkerID, w.config.LockDuration)
		return dequeueErr
	})
	return job, err
}

// sweepStaleLocks returns jobs whose worker stopped heartbeating to pending.
func (w *Worker) sweepStaleLocks(ctx context.Context) {
	ticker := time.NewTicker(w.config.StaleSweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.queue.Storage().ReleaseStaleLocks(ctx, time.Now())
			if err != nil {
				if ctx.Err() == nil {
					w.logger.Warn("failed to release stale locks", "error", err)
				}
				continue
			}
			if n > 0 {
				w.logger.Info("released stale locks", "count", n)
			}
		}
	}
}

// processJob runs one claimed job to a terminal or delayed state. Shutdown
// does not interrupt it; the queue timeout bounds it instead.
func (w *Worker) processJob(parent context.Context, job *core.Job) {
	ctx := context.WithoutCancel(parent)
	startTime := time.Now()
	logger := w.logger.With("job_id", job.ID, "kind", job.Kind, "queue", job.Queue, "attempt", job.Attempt)

	h, ok := w.queue.GetHandler(job.Kind)
	if !ok {
		err := core.NoRetry(fmt.Errorf("no processor registered for %s", job.Kind))
		logger.Error("no processor for job")
		w.failWithRetry(ctx, job.ID, err.Error(), nil)
		w.queue.CallFailHooks(ctx, job, err)
		w.queue.Emit(&core.JobFailed{Job: job, Error: err, Timestamp: time.Now()})
		return
	}

	w.queue.Emit(&core.JobStarted{Job: job, Timestamp: startTime})
	logger.Debug("job started")

	heartbeatCtx, cancelHeartbeat := context.WithCancel(ctx)
	defer cancelHeartbeat()
	go w.runHeartbeat(heartbeatCtx, job)

	result, err := w.executeHandler(ctx, job, h, logger)

	// Stop heartbeat before completing/failing the job
	cancelHeartbeat()

	if err != nil {
		w.handleError(ctx, job, err, logger)
		return
	}

	if completeErr := w.completeWithRetry(ctx, job.ID, result); completeErr != nil {
		logger.Error("failed to complete job after retries", "error", completeErr)
		return
	}
	duration := time.Since(startTime)
	w.queue.Emit(&core.JobCompleted{Job: job, Duration: duration, Timestamp: time.Now()})
	logger.Info("job completed", "duration", duration)
}

// timeoutFor returns the processor timeout, falling back to the queue's.
func (w *Worker) timeoutFor(job *core.Job, h *handler.Handler) time.Duration {
	if h.Timeout > 0 {
		return h.Timeout
	}
	cfg, _ := w.queue.Config(job.Queue)
	return cfg.Timeout
}

func (w *Worker) executeHandler(ctx context.Context, job *core.Job, h *handler.Handler, logger *slog.Logger) (result []byte, err error) {
	timeout := w.timeoutFor(job, h)
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	jc := &intctx.JobContext{
		Job:      job,
		WorkerID: w.config.WorkerID,
		Logger:   logger,
	}
	result, err = h.Execute(intctx.WithJobContext(runCtx, jc), job.Payload)
	if err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("timed out after %s: %w", timeout, err)
	}
	return result, err
}

// runHeartbeat periodically extends the job lock during execution.
func (w *Worker) runHeartbeat(ctx context.Context, job *core.Job) {
	ticker := time.NewTicker(w.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := retryWithBackoff(ctx, *w.config.StorageRetry, func() error {
				return w.queue.Storage().Heartbeat(ctx, job.ID, w.config.WorkerID, w.config.LockDuration)
			})
			if err != nil {
				if ctx.Err() == nil {
					w.logger.Warn("heartbeat failed after retries", "job_id", job.ID, "error", err)
				}
			} else {
				w.logger.Debug("heartbeat sent", "job_id", job.ID)
			}
		}
	}
}

// handleError moves a failed job to delayed while attempts remain and to
// failed otherwise. NoRetry errors are always terminal; RetryAfter errors
// override the computed backoff.
func (w *Worker) handleError(ctx context.Context, job *core.Job, err error, logger *slog.Logger) {
	var noRetry *core.NoRetryError
	if errors.As(err, &noRetry) {
		w.failPermanently(ctx, job, err, logger)
		return
	}

	if !job.CanRetry() {
		w.failPermanently(ctx, job, err, logger)
		return
	}

	delay := w.queue.BackoffFor(job, job.Attempt)
	var retryAfter *core.RetryAfterError
	if errors.As(err, &retryAfter) && retryAfter.Delay > 0 {
		delay = retryAfter.Delay
	}
	retryAt := time.Now().Add(delay)

	if !w.failWithRetry(ctx, job.ID, err.Error(), &retryAt) {
		return
	}
	w.queue.CallRetryHooks(ctx, job, job.Attempt, err)
	w.queue.Emit(&core.JobRetrying{Job: job, Attempt: job.Attempt, Error: err, NextRunAt: retryAt, Timestamp: time.Now()})
	logger.Warn("job failed, retry scheduled", "error", err, "retry_in", delay)
}

func (w *Worker) failPermanently(ctx context.Context, job *core.Job, err error, logger *slog.Logger) {
	if !w.failWithRetry(ctx, job.ID, err.Error(), nil) {
		return
	}
	w.queue.CallFailHooks(ctx, job, err)
	w.queue.Emit(&core.JobFailed{Job: job, Error: err, Timestamp: time.Now()})
	logger.Error("job failed permanently", "error", err)
}

// completeWithRetry marks a job complete with retry on transient failures.
func (w *Worker) completeWithRetry(ctx context.Context, jobID string, result []byte) error {
	return retryWithBackoff(ctx, *w.config.StorageRetry, func() error {
		return w.queue.Storage().Complete(ctx, jobID, w.config.WorkerID, result)
	})
}

// failWithRetry records a failed attempt with retry on transient storage
// failures. It reports whether the write succeeded.
func (w *Worker) failWithRetry(ctx context.Context, jobID string, errMsg string, retryAt *time.Time) bool {
	err := retryWithBackoff(ctx, *w.config.StorageRetry, func() error {
		return w.queue.Storage().Fail(ctx, jobID, w.config.WorkerID, errMsg, retryAt)
	})
	if err != nil {
		w.logger.Error("failed to record job failure after retries", "job_id", jobID, "error", err)
		return false
	}
	return true
}
