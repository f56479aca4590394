package processor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/newsdesk/internal/article"
	"github.com/jdziat/newsdesk/internal/logging"
	"github.com/jdziat/newsdesk/internal/social"
	"github.com/jdziat/newsdesk/pkg/core"
	"github.com/jdziat/newsdesk/pkg/queue"
	"github.com/jdziat/newsdesk/pkg/worker"
)

// register binds the processors to e.q with the given collaborators.
func (e *env) register(svc *fakeAI, images *fakeImageStore, pubs ...social.Publisher) {
	Register(e.q,
		newContent(e, svc, ContentConfig{}),
		NewImageProcessor(e.repo, &fakeRenderer{}, images, "", logging.Discard()),
		newPublication(e, pubs...),
	)
}

func (e *env) runWorker(t *testing.T, opts ...worker.WorkerOption) {
	t.Helper()
	base := []worker.WorkerOption{
		worker.PollInterval(10 * time.Millisecond),
		worker.StaleLockSweep(0),
		worker.WithLogger(logging.Discard()),
	}
	w := worker.NewWorker(e.q, append(base, opts...)...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	var once sync.Once
	t.Cleanup(func() {
		once.Do(func() {
			cancel()
			select {
			case <-done:
			case <-time.After(5 * time.Second):
				t.Error("worker did not stop")
			}
		})
	})
}

func (e *env) waitForStatus(t *testing.T, id string, status core.JobStatus) *core.Job {
	t.Helper()
	var job *core.Job
	require.Eventually(t, func() bool {
		j, err := e.store.GetJob(context.Background(), id)
		if err != nil || j == nil {
			return false
		}
		job = j
		return j.Status == status
	}, 5*time.Second, 10*time.Millisecond, "job %s never reached %s", id, status)
	return job
}

func TestPipeline_ContentJobCompletes(t *testing.T) {
	e := newEnv(t)
	e.register(&fakeAI{summary: aiReply{out: str("S")}, commentary: aiReply{out: str("C")}}, &fakeImageStore{})
	a := e.article(t, "Council approves budget")

	id, err := NewJobs(e.q, "").Content(context.Background(), a.ID, core.PriorityNormal)
	require.NoError(t, err)
	e.runWorker(t)

	job := e.waitForStatus(t, id, core.StatusCompleted)
	assert.Equal(t, 1, job.Attempt)
	var res ContentResult
	require.NoError(t, json.Unmarshal(job.Result, &res))
	assert.Equal(t, "S", *res.Summary)
	assert.Nil(t, res.Headline)

	got, err := e.repo.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, got.AIProcessed)
	assert.Equal(t, "C", *got.Commentary)
	assert.Nil(t, got.RewrittenContent)
}

func TestPipeline_MissingArticleFailsWithoutRetry(t *testing.T) {
	e := newEnv(t)
	e.register(&fakeAI{}, &fakeImageStore{})

	id, err := NewJobs(e.q, "").Content(context.Background(), "deleted-article", core.PriorityNormal)
	require.NoError(t, err)
	e.runWorker(t)

	job := e.waitForStatus(t, id, core.StatusFailed)
	assert.Equal(t, 1, job.Attempt)
	assert.Equal(t, 3, job.MaxAttempts)
	assert.Contains(t, job.LastError, "not found")
}

func TestPipeline_ImageStoreFailureIsRetried(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.q.Configure(queue.Config{Name: core.QueueImage, BaseDelay: time.Hour}))
	e.register(&fakeAI{}, &fakeImageStore{err: errors.New("bucket unavailable")})
	a := e.article(t, "Rail strike called off")

	id, err := NewJobs(e.q, "").Image(context.Background(), a.ID, "", "")
	require.NoError(t, err)
	started := time.Now()
	e.runWorker(t)

	job := e.waitForStatus(t, id, core.StatusDelayed)
	assert.Equal(t, 1, job.Attempt)
	assert.Contains(t, job.LastError, "bucket unavailable")
	require.NotNil(t, job.RunAt)
	assert.WithinDuration(t, started.Add(time.Hour), *job.RunAt, 10*time.Second)

	got, err := e.repo.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Nil(t, got.SocialImageURL)
}

func TestPipeline_ImageStoreFailureOnFinalAttempt(t *testing.T) {
	e := newEnv(t)
	e.register(&fakeAI{}, &fakeImageStore{err: errors.New("bucket unavailable")})
	a := e.article(t, "Storm closes harbour")

	id, err := e.q.Enqueue(context.Background(), core.KindGenerateImage, ImagePayload{ArticleID: a.ID}, queue.Attempts(1))
	require.NoError(t, err)
	e.runWorker(t)

	job := e.waitForStatus(t, id, core.StatusFailed)
	assert.Contains(t, job.LastError, "bucket unavailable")

	got, err := e.repo.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Nil(t, got.SocialImageURL)
	assert.False(t, got.ImageGenerated)
}

func TestPipeline_PausedQueueHoldsBacklog(t *testing.T) {
	e := newEnv(t)
	e.register(&fakeAI{summary: aiReply{out: str("S")}}, &fakeImageStore{})
	ctx := context.Background()
	require.NoError(t, e.q.PauseQueue(ctx, core.QueueContent))

	jobs := NewJobs(e.q, "")
	var ids []string
	for _, title := range []string{"Paused one", "Paused two", "Paused three"} {
		id, err := jobs.Content(ctx, e.article(t, title).ID, core.PriorityNormal)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	e.runWorker(t)

	time.Sleep(150 * time.Millisecond)
	stats, err := e.q.Stats(ctx, core.QueueContent)
	require.NoError(t, err)
	assert.True(t, stats.Paused)
	assert.EqualValues(t, 3, stats.Waiting)
	assert.EqualValues(t, 0, stats.Active)

	require.NoError(t, e.q.ResumeQueue(ctx, core.QueueContent))
	for _, id := range ids {
		e.waitForStatus(t, id, core.StatusCompleted)
	}
}

func TestPipeline_EveryPublishAttemptIsRecorded(t *testing.T) {
	e := newEnv(t)
	pub := &fakePublisher{platform: "telegram", results: []publishOutcome{
		{err: errUpstream},
		{err: errUpstream},
		{postID: "777"},
	}}
	e.register(&fakeAI{}, &fakeImageStore{}, pub)
	a := e.article(t, "Third time lucky")

	id, err := NewJobs(e.q, "").Publish(context.Background(), a.ID, "telegram", "")
	require.NoError(t, err)
	e.runWorker(t)

	job := e.waitForStatus(t, id, core.StatusCompleted)
	assert.Equal(t, 3, job.Attempt)

	posts, err := e.repo.PostsForArticle(context.Background(), a.ID)
	require.NoError(t, err)
	require.Len(t, posts, 3)
	statuses := make(map[int]article.PostStatus, 3)
	for _, p := range posts {
		assert.Equal(t, id, p.JobID)
		statuses[p.Attempt] = p.Status
	}
	assert.Equal(t, map[int]article.PostStatus{
		1: article.PostFailed,
		2: article.PostFailed,
		3: article.PostPublished,
	}, statuses)
}

func TestJobs_DuplicateContentJob(t *testing.T) {
	e := newEnv(t)
	registerNoops(e)
	jobs := NewJobs(e.q, "")

	_, err := jobs.Content(context.Background(), "a1", core.PriorityHigh)
	require.NoError(t, err)
	_, err = jobs.Content(context.Background(), "a1", core.PriorityNormal)
	assert.ErrorIs(t, err, core.ErrDuplicateJob)

	_, err = jobs.Content(context.Background(), "a2", core.PriorityNormal)
	assert.NoError(t, err)
}
