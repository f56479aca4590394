// Package jobctx provides public access to job context for processors.
package jobctx

import (
	"context"
	"log/slog"

	"github.com/jdziat/newsdesk/pkg/core"
	intctx "github.com/jdziat/newsdesk/pkg/internal/context"
)

// JobFromContext returns the current Job from context, or nil if not in a processor.
// Use this to get the job ID for logging or progress tracking.
func JobFromContext(ctx context.Context) *core.Job {
	jc := intctx.GetJobContext(ctx)
	if jc == nil {
		return nil
	}
	return jc.Job
}

// JobIDFromContext returns the current job ID from context, or empty string if not in a processor.
func JobIDFromContext(ctx context.Context) string {
	job := JobFromContext(ctx)
	if job == nil {
		return ""
	}
	return job.ID
}

// WorkerIDFromContext returns the ID of the worker running the current job.
func WorkerIDFromContext(ctx context.Context) string {
	jc := intctx.GetJobContext(ctx)
	if jc == nil {
		return ""
	}
	return jc.WorkerID
}

// IsFinalAttempt reports whether a failure of the current attempt would be terminal.
// Returns false outside a processor.
func IsFinalAttempt(ctx context.Context) bool {
	job := JobFromContext(ctx)
	if job == nil {
		return false
	}
	return !job.CanRetry()
}

// Logger returns a logger annotated with the current job, falling back to
// slog.Default outside a processor.
func Logger(ctx context.Context) *slog.Logger {
	jc := intctx.GetJobContext(ctx)
	if jc == nil || jc.Logger == nil {
		return slog.Default()
	}
	if jc.Job == nil {
		return jc.Logger
	}
	return jc.Logger.With(
		"job_id", jc.Job.ID,
		"kind", jc.Job.Kind,
		"attempt", jc.Job.Attempt,
	)
}
