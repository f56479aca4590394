package jobctx

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jdziat/newsdesk/pkg/core"
	intctx "github.com/jdziat/newsdesk/pkg/internal/context"
)

func TestJobFromContext(t *testing.T) {
	t.Run("returns job when set in context", func(t *testing.T) {
		job := &core.Job{ID: "test-job-123", Kind: core.KindGenerateImage}
		ctx := intctx.WithJobContext(context.Background(), &intctx.JobContext{Job: job})

		result := JobFromContext(ctx)
		if assert.NotNil(t, result) {
			assert.Equal(t, "test-job-123", result.ID)
			assert.Equal(t, core.KindGenerateImage, result.Kind)
		}
	})

	t.Run("returns nil when not set in context", func(t *testing.T) {
		assert.Nil(t, JobFromContext(context.Background()))
	})

	t.Run("returns nil when job context has no job", func(t *testing.T) {
		ctx := intctx.WithJobContext(context.Background(), &intctx.JobContext{})
		assert.Nil(t, JobFromContext(ctx))
	})
}

func TestJobIDFromContext(t *testing.T) {
	ctx := intctx.WithJobContext(context.Background(), &intctx.JobContext{Job: &core.Job{ID: "job-id-456"}})
	assert.Equal(t, "job-id-456", JobIDFromContext(ctx))
	assert.Empty(t, JobIDFromContext(context.Background()))
}

func TestWorkerIDFromContext(t *testing.T) {
	ctx := intctx.WithJobContext(context.Background(), &intctx.JobContext{WorkerID: "worker-7"})
	assert.Equal(t, "worker-7", WorkerIDFromContext(ctx))
	assert.Empty(t, WorkerIDFromContext(context.Background()))
}

func TestIsFinalAttempt(t *testing.T) {
	withJob := func(attempt, max int) context.Context {
		job := &core.Job{Attempt: attempt, MaxAttempts: max}
		return intctx.WithJobContext(context.Background(), &intctx.JobContext{Job: job})
	}

	assert.False(t, IsFinalAttempt(withJob(1, 3)))
	assert.False(t, IsFinalAttempt(withJob(2, 3)))
	assert.True(t, IsFinalAttempt(withJob(3, 3)))
	assert.False(t, IsFinalAttempt(context.Background()))
}

func TestLogger(t *testing.T) {
	t.Run("annotates with job fields", func(t *testing.T) {
		var buf bytes.Buffer
		base := slog.New(slog.NewTextHandler(&buf, nil))
		job := &core.Job{ID: "job-9", Kind: core.KindPublishSocial, Attempt: 2}
		ctx := intctx.WithJobContext(context.Background(), &intctx.JobContext{Job: job, Logger: base})

		Logger(ctx).Info("published")

		out := buf.String()
		assert.Contains(t, out, "job_id=job-9")
		assert.Contains(t, out, "kind=social.publish")
		assert.Contains(t, out, "attempt=2")
	})

	t.Run("falls back to default", func(t *testing.T) {
		assert.Same(t, slog.Default(), Logger(context.Background()))
	})
}
