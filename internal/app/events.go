package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jdziat/newsdesk/pkg/core"
	"github.com/jdziat/newsdesk/pkg/security"
)

// EventSource is the part of the queue that publishes lifecycle events.
type EventSource interface {
	Events() <-chan core.Event
	Unsubscribe(ch <-chan core.Event)
}

// logEvents writes queue lifecycle events to logger until ctx is done.
// Retries and permanent failures are logged at warn, the rest at debug.
func logEvents(ctx context.Context, src EventSource, logger *slog.Logger) error {
	ch := src.Events()
	defer src.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-ch:
			logEvent(ctx, logger, e)
		}
	}
}

func logEvent(ctx context.Context, logger *slog.Logger, e core.Event) {
	switch ev := e.(type) {
	case *core.JobEnqueued:
		logger.DebugContext(ctx, "job enqueued", jobAttrs(ev.Job)...)
	case *core.JobStarted:
		logger.DebugContext(ctx, "job started", append(jobAttrs(ev.Job), "attempt", ev.Job.Attempt)...)
	case *core.JobCompleted:
		logger.DebugContext(ctx, "job completed", append(jobAttrs(ev.Job), "duration", ev.Duration)...)
	case *core.JobRetrying:
		logger.WarnContext(ctx, "job will retry", append(jobAttrs(ev.Job),
			"attempt", ev.Attempt, "next_run_at", ev.NextRunAt, "error", ev.Error)...)
	case *core.JobFailed:
		logger.WarnContext(ctx, "job failed", append(jobAttrs(ev.Job), "error", ev.Error)...)
	case *core.JobsCancelled:
		logger.InfoContext(ctx, "jobs cancelled", "count", ev.Count)
	case *core.QueuePaused:
		logger.InfoContext(ctx, "queue paused", "queue", ev.Queue)
	case *core.QueueResumed:
		logger.InfoContext(ctx, "queue resumed", "queue", ev.Queue)
	}
}

func jobAttrs(j *core.Job) []any {
	if j == nil {
		return nil
	}
	return []any{"job_id", j.ID, "kind", j.Kind, "queue", j.Queue}
}

// HookRegistrar is the part of the queue that runs failure callbacks.
type HookRegistrar interface {
	OnRetry(fn func(context.Context, *core.Job, int, error))
	OnJobFail(fn func(context.Context, *core.Job, error))
}

// ArticleNoter is implemented by *article.Repository.
type ArticleNoter interface {
	NoteAIError(ctx context.Context, id, note string) error
}

// noteContentFailures keeps an article's ai_error on the latest failed
// content attempt, so editors see why enrichment is missing.
func noteContentFailures(q HookRegistrar, articles ArticleNoter, logger *slog.Logger) {
	note := func(ctx context.Context, job *core.Job, msg string) {
		if job.Kind != core.KindContentProcess || job.EntityID == "" {
			return
		}
		err := articles.NoteAIError(ctx, job.EntityID, security.SanitizeErrorMessage(msg))
		if err != nil && !errors.Is(err, core.ErrNotFound) {
			logger.WarnContext(ctx, "failed to note content failure", "article_id", job.EntityID, "error", err)
		}
	}
	q.OnRetry(func(ctx context.Context, job *core.Job, attempt int, err error) {
		note(ctx, job, fmt.Sprintf("attempt %d failed, will retry: %v", attempt, err))
	})
	q.OnJobFail(func(ctx context.Context, job *core.Job, err error) {
		note(ctx, job, fmt.Sprintf("content job failed: %v", err))
	})
}
