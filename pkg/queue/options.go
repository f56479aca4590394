// Package queue provides the Queue orchestrator for the job pipeline.
package queue

import (
	"time"

	"github.com/jdziat/newsdesk/pkg/core"
	"github.com/jdziat/newsdesk/pkg/security"
)

// MaxBackoff caps the computed retry delay.
const MaxBackoff = 24 * time.Hour

// Config holds the per-queue dispatch and retry policy.
type Config struct {
	Name        string
	MaxAttempts int
	BaseDelay   time.Duration
	Timeout     time.Duration
	Concurrency int
}

// DefaultConfigs returns the built-in policy for the three pipeline queues.
// Social publication backs off longer because the platforms rate limit.
func DefaultConfigs() map[string]Config {
	return map[string]Config{
		core.QueueContent: {
			Name:        core.QueueContent,
			MaxAttempts: 3,
			BaseDelay:   5 * time.Second,
			Timeout:     90 * time.Second,
			Concurrency: 2,
		},
		core.QueueImage: {
			Name:        core.QueueImage,
			MaxAttempts: 3,
			BaseDelay:   5 * time.Second,
			Timeout:     60 * time.Second,
			Concurrency: 1,
		},
		core.QueueSocial: {
			Name:        core.QueueSocial,
			MaxAttempts: 3,
			BaseDelay:   30 * time.Second,
			Timeout:     30 * time.Second,
			Concurrency: 1,
		},
	}
}

// Options holds configuration for job enqueueing and registration.
type Options struct {
	Queue       string
	EntityID    string
	Priority    int
	MaxAttempts int
	BaseDelay   time.Duration
	Delay       time.Duration
	RunAt       *time.Time
	UniqueKey   string
	Timeout     time.Duration
}

// NewOptions creates Options with defaults. Zero attempts and delays are
// filled from the queue's Config at enqueue time.
func NewOptions() *Options {
	return &Options{
		Priority: core.PriorityNormal,
	}
}

// Option modifies Options.
type Option interface {
	Apply(*Options)
}

type optionFunc func(*Options)

func (f optionFunc) Apply(o *Options) { f(o) }

// QueueOpt overrides the queue a job is routed to.
func QueueOpt(name string) Option {
	return optionFunc(func(o *Options) {
		o.Queue = name
	})
}

// Entity sets the owning entity (article) of the job.
func Entity(id string) Option {
	return optionFunc(func(o *Options) {
		o.EntityID = id
	})
}

// Priority sets the job priority (lower = runs first).
func Priority(p int) Option {
	return optionFunc(func(o *Options) {
		o.Priority = p
	})
}

// Attempts sets the maximum number of attempts.
// Values are clamped to [1, MaxAttempts] (100).
func Attempts(n int) Option {
	return optionFunc(func(o *Options) {
		o.MaxAttempts = security.ClampAttempts(n)
	})
}

// Backoff sets the base delay of the exponential retry schedule.
func Backoff(base time.Duration) Option {
	return optionFunc(func(o *Options) {
		o.BaseDelay = base
	})
}

// Delay schedules the job to run after a duration.
func Delay(d time.Duration) Option {
	return optionFunc(func(o *Options) {
		o.Delay = d
	})
}

// At schedules the job to run at a specific time.
func At(t time.Time) Option {
	return optionFunc(func(o *Options) {
		o.RunAt = &t
	})
}

// Unique refuses the enqueue while another job with this key is in flight.
func Unique(key string) Option {
	return optionFunc(func(o *Options) {
		o.UniqueKey = key
	})
}

// Timeout bounds a processor invocation. Used with Register.
func Timeout(d time.Duration) Option {
	return optionFunc(func(o *Options) {
		o.Timeout = d
	})
}
