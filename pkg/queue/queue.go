package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jdziat/newsdesk/pkg/core"
	"github.com/jdziat/newsdesk/pkg/internal/handler"
	"github.com/jdziat/newsdesk/pkg/security"
)

// Queue manages processor registration, enqueueing, queue policy and
// observability for the pipeline queues.
type Queue struct {
	storage  core.Storage
	handlers map[core.JobKind]*handler.Handler
	configs  map[string]Config
	mu       sync.RWMutex

	// Hooks
	onFail  []func(context.Context, *core.Job, error)
	onRetry []func(context.Context, *core.Job, int, error)

	// Event stream
	eventSubs []chan core.Event
}

// New creates a new Queue with the given storage backend and the default
// queue configurations.
func New(s core.Storage) *Queue {
	return &Queue{
		storage:  s,
		handlers: make(map[core.JobKind]*handler.Handler),
		configs:  DefaultConfigs(),
	}
}

// Configure replaces the policy of one queue. Zero fields keep the current values.
func (q *Queue) Configure(cfg Config) error {
	if err := security.ValidateQueueName(cfg.Name); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	cur := q.configs[cfg.Name]
	cur.Name = cfg.Name
	if cfg.MaxAttempts > 0 {
		cur.MaxAttempts = security.ClampAttempts(cfg.MaxAttempts)
	}
	if cfg.BaseDelay > 0 {
		cur.BaseDelay = cfg.BaseDelay
	}
	if cfg.Timeout > 0 {
		cur.Timeout = cfg.Timeout
	}
	if cfg.Concurrency > 0 {
		cur.Concurrency = security.ClampConcurrency(cfg.Concurrency)
	}
	q.configs[cfg.Name] = cur
	return nil
}

// Config returns the policy of a queue.
func (q *Queue) Config(name string) (Config, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	cfg, ok := q.configs[name]
	return cfg, ok
}

// Names returns the configured queue names in sorted order.
func (q *Queue) Names() []string {
	q.mu.RLock()
	defer q.mu.RUnlock()
	names := make([]string, 0, len(q.configs))
	for name := range q.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Register registers the processor for a job kind.
// The function must have signature: func(ctx context.Context, payload T) error
// or func(ctx context.Context, payload T) (R, error). A non-nil R is stored
// as the job result.
func (q *Queue) Register(kind core.JobKind, fn any, opts ...Option) {
	if err := security.ValidateJobKind(kind); err != nil {
		panic(fmt.Sprintf("jobs: invalid job kind %q: %v", kind, err))
	}

	h, err := handler.NewHandler(fn)
	if err != nil {
		panic(fmt.Sprintf("jobs: processor for %q: %v", kind, err))
	}

	// Apply registration options (e.g. Timeout)
	if len(opts) > 0 {
		o := NewOptions()
		for _, opt := range opts {
			opt.Apply(o)
		}
		h.Timeout = o.Timeout
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[kind] = h
}

// HasHandler checks if a processor is registered for kind.
func (q *Queue) HasHandler(kind core.JobKind) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	_, ok := q.handlers[kind]
	return ok
}

// GetHandler returns the processor registered for kind.
func (q *Queue) GetHandler(kind core.JobKind) (*handler.Handler, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	h, ok := q.handlers[kind]
	return h, ok
}

// Enqueue persists a pending job of the given kind and returns its ID.
// Attempts and backoff default to the target queue's Config. With Unique,
// core.ErrDuplicateJob is returned unwrapped while a job with the same key
// is in flight.
func (q *Queue) Enqueue(ctx context.Context, kind core.JobKind, payload any, opts ...Option) (string, error) {
	if !q.HasHandler(kind) {
		return "", fmt.Errorf("jobs: no processor registered for %q", kind)
	}

	options := NewOptions()
	for _, opt := range opts {
		opt.Apply(options)
	}
	if options.Queue == "" {
		options.Queue = core.QueueFor(kind)
	}
	if err := security.ValidateQueueName(options.Queue); err != nil {
		return "", err
	}
	cfg, ok := q.Config(options.Queue)
	if !ok {
		return "", fmt.Errorf("%w: %q", core.ErrUnknownQueue, options.Queue)
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("jobs: failed to marshal payload: %w", err)
	}
	if err := security.ValidatePayloadSize(payloadBytes); err != nil {
		return "", err
	}

	maxAttempts := options.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = cfg.MaxAttempts
	}

	job := &core.Job{
		EntityID:    options.EntityID,
		Kind:        kind,
		Queue:       options.Queue,
		Priority:    options.Priority,
		MaxAttempts: security.ClampAttempts(maxAttempts),
		BackoffBase: options.BaseDelay,
		Payload:     payloadBytes,
	}

	if options.Delay > 0 {
		runAt := time.Now().Add(options.Delay)
		job.RunAt = &runAt
	}
	if options.RunAt != nil {
		job.RunAt = options.RunAt
	}

	if options.UniqueKey != "" {
		if err := q.storage.EnqueueUnique(ctx, job, options.UniqueKey); err != nil {
			if errors.Is(err, core.ErrDuplicateJob) {
				return "", err
			}
			return "", fmt.Errorf("jobs: failed to enqueue: %w", err)
		}
	} else if err := q.storage.Enqueue(ctx, job); err != nil {
		return "", fmt.Errorf("jobs: failed to enqueue: %w", err)
	}

	q.Emit(&core.JobEnqueued{Job: job, Timestamp: time.Now()})
	return job.ID, nil
}

// BackoffFor returns the delay before the next attempt after the given
// failed attempt (1-based): base * 2^(attempt-1), capped at MaxBackoff.
func (q *Queue) BackoffFor(job *core.Job, attempt int) time.Duration {
	base := job.BackoffBase
	if base <= 0 {
		cfg, _ := q.Config(job.Queue)
		base = cfg.BaseDelay
	}
	return ExponentialBackoff(base, attempt)
}

// ExponentialBackoff computes base * 2^(attempt-1), capped at MaxBackoff.
func ExponentialBackoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= MaxBackoff {
			return MaxBackoff
		}
	}
	return min(delay, MaxBackoff)
}

// Storage returns the underlying storage.
func (q *Queue) Storage() core.Storage {
	return q.storage
}

// Stats returns job counts for one queue.
func (q *Queue) Stats(ctx context.Context, name string) (*core.QueueStats, error) {
	if err := security.ValidateQueueName(name); err != nil {
		return nil, err
	}
	return q.storage.QueueStats(ctx, name)
}

// AllStats returns job counts for every configured queue.
func (q *Queue) AllStats(ctx context.Context) ([]*core.QueueStats, error) {
	names := q.Names()
	out := make([]*core.QueueStats, 0, len(names))
	for _, name := range names {
		st, err := q.storage.QueueStats(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("stats for %s: %w", name, err)
		}
		out = append(out, st)
	}
	return out, nil
}

// Cancel moves pending and delayed jobs matching filter to cancelled.
// Active jobs finish their current attempt.
func (q *Queue) Cancel(ctx context.Context, filter core.JobFilter) (int64, error) {
	n, err := q.storage.CancelJobs(ctx, filter)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		q.Emit(&core.JobsCancelled{Filter: filter, Count: n, Timestamp: time.Now()})
	}
	return n, nil
}

// RetryFailed resets every terminally failed job of a queue (all queues when
// name is empty) to pending with a fresh attempt budget.
func (q *Queue) RetryFailed(ctx context.Context, name string) (int, error) {
	filter := core.JobFilter{
		Queue:    name,
		Statuses: []core.JobStatus{core.StatusFailed},
		Limit:    1000,
	}
	jobs, err := q.storage.FindJobs(ctx, filter)
	if err != nil {
		return 0, err
	}

	retried := 0
	for _, job := range jobs {
		if _, err := q.storage.RetryJob(ctx, job.ID); err != nil {
			if errors.Is(err, core.ErrCannotRetryStatus) {
				continue
			}
			return retried, fmt.Errorf("retry job %s: %w", job.ID, err)
		}
		retried++
	}
	return retried, nil
}

// OnJobFail registers a callback for when a job fails permanently.
func (q *Queue) OnJobFail(fn func(context.Context, *core.Job, error)) {
	q.mu.Lock()
	q.onFail = append(q.onFail, fn)
	q.mu.Unlock()
}

// OnRetry registers a callback for when a job is rescheduled.
func (q *Queue) OnRetry(fn func(context.Context, *core.Job, int, error)) {
	q.mu.Lock()
	q.onRetry = append(q.onRetry, fn)
	q.mu.Unlock()
}

// Events returns a channel for receiving queue events.
// The caller must call Unsubscribe when done to prevent resource leaks.
func (q *Queue) Events() <-chan core.Event {
	ch := make(chan core.Event, 100)
	q.mu.Lock()
	q.eventSubs = append(q.eventSubs, ch)
	q.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel created by Events().
// The channel is not closed; callers must stop reading before calling Unsubscribe.
func (q *Queue) Unsubscribe(ch <-chan core.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, sub := range q.eventSubs {
		if sub == ch {
			q.eventSubs = append(q.eventSubs[:i], q.eventSubs[i+1:]...)
			return
		}
	}
}

// Emit emits an event to all subscribers.
func (q *Queue) Emit(e core.Event) {
	q.mu.RLock()
	subs := make([]chan core.Event, len(q.eventSubs))
	copy(subs, q.eventSubs)
	q.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
			// Drop if full - this prevents blocking on slow consumers
		}
	}
}

// CallFailHooks calls all registered fail hooks.
func (q *Queue) CallFailHooks(ctx context.Context, job *core.Job, err error) {
	q.mu.RLock()
	hooks := make([]func(context.Context, *core.Job, error), len(q.onFail))
	copy(hooks, q.onFail)
	q.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, job, err)
	}
}

// CallRetryHooks calls all registered retry hooks.
func (q *Queue) CallRetryHooks(ctx context.Context, job *core.Job, attempt int, err error) {
	q.mu.RLock()
	hooks := make([]func(context.Context, *core.Job, int, error), len(q.onRetry))
	copy(hooks, q.onRetry)
	q.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, job, attempt, err)
	}
}

// --- Queue Pause Operations ---

// PauseQueue stops dispatch of new jobs from a queue. Active jobs finish and
// the persisted backlog is kept.
func (q *Queue) PauseQueue(ctx context.Context, name string) error {
	if err := q.known(name); err != nil {
		return err
	}
	if err := q.storage.PauseQueue(ctx, name); err != nil {
		return err
	}
	q.Emit(&core.QueuePaused{Queue: name, Timestamp: time.Now()})
	return nil
}

// ResumeQueue releases a paused queue's pending and delayed jobs for dispatch.
func (q *Queue) ResumeQueue(ctx context.Context, name string) error {
	if err := q.known(name); err != nil {
		return err
	}
	if err := q.storage.UnpauseQueue(ctx, name); err != nil {
		return err
	}
	q.Emit(&core.QueueResumed{Queue: name, Timestamp: time.Now()})
	return nil
}

// IsQueuePaused checks if a queue is paused.
func (q *Queue) IsQueuePaused(ctx context.Context, name string) (bool, error) {
	if err := security.ValidateQueueName(name); err != nil {
		return false, err
	}
	return q.storage.IsQueuePaused(ctx, name)
}

// GetPausedQueues returns all paused queue names.
func (q *Queue) GetPausedQueues(ctx context.Context) ([]string, error) {
	return q.storage.GetPausedQueues(ctx)
}

func (q *Queue) known(name string) error {
	if err := security.ValidateQueueName(name); err != nil {
		return err
	}
	if _, ok := q.Config(name); !ok {
		return fmt.Errorf("%w: %q", core.ErrUnknownQueue, name)
	}
	return nil
}
