package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/jdziat/newsdesk/internal/article"
	"github.com/jdziat/newsdesk/internal/config"
	"github.com/jdziat/newsdesk/internal/ingest"
	"github.com/jdziat/newsdesk/internal/logging"
	"github.com/jdziat/newsdesk/internal/processor"
	"github.com/jdziat/newsdesk/internal/report"
	"github.com/jdziat/newsdesk/internal/testdb"
	"github.com/jdziat/newsdesk/pkg/core"
	"github.com/jdziat/newsdesk/pkg/queue"
	"github.com/jdziat/newsdesk/pkg/storage"
)

type env struct {
	db    *gorm.DB
	repo  *article.Repository
	store *storage.GormStorage
	q     *queue.Queue
	jobs  *processor.Jobs
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	db := testdb.Open(t, "social_posts", "external_sources", "articles", "queue_states", "jobs")
	repo := article.NewRepository(db)
	require.NoError(t, repo.Migrate(ctx))
	s := storage.NewGormStorage(db)
	require.NoError(t, s.Migrate(ctx))

	q := queue.New(s)
	q.Register(core.KindContentProcess, func(context.Context, processor.ContentPayload) error { return nil })
	return &env{db: db, repo: repo, store: s, q: q, jobs: processor.NewJobs(q, "")}
}

func (e *env) contentJobs(t *testing.T, statuses ...core.JobStatus) []*core.Job {
	t.Helper()
	jobs, err := e.store.FindJobs(context.Background(), core.JobFilter{Kind: core.KindContentProcess, Statuses: statuses})
	require.NoError(t, err)
	return jobs
}

// ──────────────────────────────────────────────────────────────────────────────
// Fetch
// ──────────────────────────────────────────────────────────────────────────────

type staticFeed struct {
	items []ingest.Candidate
	err   error
	calls int
}

func (f *staticFeed) Fetch(context.Context, []string) ([]ingest.Candidate, error) {
	f.calls++
	return f.items, f.err
}

type memorySeen struct {
	keys    map[string]bool
	lookups int
}

func newMemorySeen() *memorySeen { return &memorySeen{keys: make(map[string]bool)} }

func (m *memorySeen) Seen(_ context.Context, key string) (bool, error) {
	m.lookups++
	return m.keys[key], nil
}

func (m *memorySeen) Mark(_ context.Context, keys ...string) error {
	for _, k := range keys {
		m.keys[k] = true
	}
	return nil
}

func candidates(n int) []ingest.Candidate {
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	out := make([]ingest.Candidate, n)
	for i := range out {
		out[i] = ingest.Candidate{
			Title:       fmt.Sprintf("Story %d", i),
			Content:     "Body",
			URL:         fmt.Sprintf("https://wire.example/story-%d", i),
			Source:      "wire",
			Category:    "world",
			PublishedAt: base.Add(time.Duration(i) * time.Minute),
			Tags:        []string{"wire"},
		}
	}
	return out
}

func TestFetcher_CreatesDraftsAndQueuesContent(t *testing.T) {
	e := newEnv(t)
	feed := &staticFeed{items: candidates(3)}

	res, err := NewFetcher(feed, nil, e.repo, e.jobs, nil, logging.Discard()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, FetchResult{Candidates: 3, Created: 3}, res)

	a, err := e.repo.GetBySlug(context.Background(), "story-1")
	require.NoError(t, err)
	assert.Equal(t, article.StatusDraft, a.Status)
	assert.Equal(t, []string{"wire"}, a.TagList())
	require.NotNil(t, a.SourcePublishedAt)
	assert.True(t, feed.items[1].PublishedAt.Equal(*a.SourcePublishedAt))

	jobs := e.contentJobs(t, core.StatusPending)
	require.Len(t, jobs, 3)
	for _, j := range jobs {
		assert.Equal(t, core.PriorityNormal, j.Priority)
	}
}

func TestFetcher_SecondRunIsIdempotent(t *testing.T) {
	e := newEnv(t)
	feed := &staticFeed{items: candidates(4)}
	f := NewFetcher(feed, nil, e.repo, e.jobs, nil, logging.Discard())

	_, err := f.Run(context.Background())
	require.NoError(t, err)
	before := len(e.contentJobs(t))

	res, err := f.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 4, res.Skipped)
	assert.Len(t, e.contentJobs(t), before)

	ids, err := e.repo.ListIDs(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, ids, 4)
}

func TestFetcher_SkipsExistingURLOrTitle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	items := candidates(3)
	require.NoError(t, e.repo.Create(ctx, &article.Article{Title: "Other", URL: items[0].URL}))
	require.NoError(t, e.repo.Create(ctx, &article.Article{Title: strings.ToUpper(items[1].Title), URL: "https://elsewhere.example/x"}))

	res, err := NewFetcher(&staticFeed{items: items}, nil, e.repo, e.jobs, nil, logging.Discard()).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 2, res.Skipped)
}

func TestFetcher_MarksCandidatesInSeenSet(t *testing.T) {
	e := newEnv(t)
	seen := newMemorySeen()
	f := NewFetcher(&staticFeed{items: candidates(2)}, seen, e.repo, e.jobs, nil, logging.Discard())

	_, err := f.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, seen.keys, 2)
	assert.Zero(t, seen.lookups)
}

func TestFetcher_StaleSeenSetDoesNotHideNewArticles(t *testing.T) {
	e := newEnv(t)
	items := candidates(2)
	seen := newMemorySeen()
	for _, c := range items {
		require.NoError(t, seen.Mark(context.Background(), ingest.SeenKey(c)))
	}

	res, err := NewFetcher(&staticFeed{items: items}, seen, e.repo, e.jobs, nil, logging.Discard()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Len(t, e.contentJobs(t, core.StatusPending), 2)
}

func TestFetcher_MatchesNormalizedURL(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.repo.Create(ctx, &article.Article{Title: "Earlier copy", URL: "https://wire.example/story-0"}))

	items := candidates(2)
	items[0].URL = "https://Wire.example/story-0/?utm_source=rss"
	items[1].URL = "https://wire.example/story-1/?utm_medium=feed#top"

	res, err := NewFetcher(&staticFeed{items: items}, nil, e.repo, e.jobs, nil, logging.Discard()).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Skipped)

	a, err := e.repo.GetBySlug(ctx, "story-1")
	require.NoError(t, err)
	assert.Equal(t, "https://wire.example/story-1", a.URL)
}

func TestFetcher_FeedError(t *testing.T) {
	e := newEnv(t)
	_, err := NewFetcher(&staticFeed{err: errors.New("all feeds down")}, nil, e.repo, e.jobs, nil, logging.Discard()).
		Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all feeds down")
}

// ──────────────────────────────────────────────────────────────────────────────
// Reconcile
// ──────────────────────────────────────────────────────────────────────────────

func (e *env) unprocessed(t *testing.T, title string, created time.Time, status article.Status) *article.Article {
	t.Helper()
	a := &article.Article{Title: title, Status: status, CreatedAt: created}
	require.NoError(t, e.repo.Create(context.Background(), a))
	return a
}

func TestReconciler_OldestBatchAtHighPriority(t *testing.T) {
	e := newEnv(t)
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	e.unprocessed(t, "Archived", base.Add(-time.Hour), article.StatusArchived)
	var want []string
	for i := range 12 {
		a := e.unprocessed(t, fmt.Sprintf("Backlog %02d", i), base.Add(time.Duration(i)*time.Minute), article.StatusDraft)
		if i < 10 {
			want = append(want, a.ID)
		}
	}

	n, err := NewReconciler(e.repo, e.jobs, 10, logging.Discard()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	var got []string
	for _, j := range e.contentJobs(t) {
		assert.Equal(t, core.PriorityHigh, j.Priority)
		got = append(got, j.EntityID)
	}
	assert.ElementsMatch(t, want, got)
}

func TestReconciler_Converges(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.unprocessed(t, "Stuck", time.Now().UTC(), article.StatusDraft)
	r := NewReconciler(e.repo, e.jobs, 10, logging.Discard())

	n, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	pending := e.contentJobs(t, core.StatusPending)
	require.Len(t, pending, 1)
	assert.Equal(t, a.ID, pending[0].EntityID)

	// A second run while the job is in flight adds nothing.
	n, err = r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	job, err := e.store.Dequeue(ctx, core.QueueContent, "w1", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, job)
	summary := "done"
	require.NoError(t, e.repo.UpdateAIFields(ctx, a.ID, article.AIFields{Summary: &summary}, ""))
	require.NoError(t, e.store.Complete(ctx, job.ID, "w1", nil))

	n, err = r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, e.contentJobs(t), 1)
}

// ──────────────────────────────────────────────────────────────────────────────
// Cleanup and report
// ──────────────────────────────────────────────────────────────────────────────

func (e *env) job(t *testing.T, status core.JobStatus, age time.Duration, completed bool) string {
	t.Helper()
	at := time.Now().Add(-age)
	j := &core.Job{
		ID:          uuid.New().String(),
		Kind:        core.KindContentProcess,
		Queue:       core.QueueContent,
		Status:      status,
		MaxAttempts: 3,
		Payload:     datatypes.JSON(`{}`),
		CreatedAt:   at,
	}
	if completed {
		j.CompletedAt = &at
	}
	if status == core.StatusActive {
		j.LockedBy = "w1"
		j.LockedUntil = &at
	}
	require.NoError(t, e.db.Create(j).Error)
	return j.ID
}

func TestCleaner_DeletesOnlyOldTerminalJobs(t *testing.T) {
	e := newEnv(t)
	old := 30 * 24 * time.Hour
	var keep []string
	keep = append(keep,
		e.job(t, core.StatusPending, old, false),
		e.job(t, core.StatusActive, old, false),
		e.job(t, core.StatusDelayed, old, false),
		e.job(t, core.StatusCompleted, time.Hour, true),
	)
	e.job(t, core.StatusCompleted, old, true)
	e.job(t, core.StatusFailed, old, true)
	e.job(t, core.StatusCancelled, old, true)

	n, err := NewCleaner(e.store, 7*24*time.Hour, logging.Discard()).Run(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	var left []string
	for _, j := range e.contentJobs(t) {
		left = append(left, j.ID)
	}
	assert.ElementsMatch(t, keep, left)
}

type captureSink struct{ got []*report.Report }

func (c *captureSink) Name() string { return "capture" }

func (c *captureSink) Emit(_ context.Context, r *report.Report) error {
	c.got = append(c.got, r)
	return nil
}

func TestReporter_EmitsPreviousDay(t *testing.T) {
	e := newEnv(t)
	sink := &captureSink{}

	rep, err := NewReporter(report.NewGenerator(e.repo, e.store), []report.Sink{sink}, logging.Discard()).
		Run(context.Background())
	require.NoError(t, err)
	require.Len(t, sink.got, 1)
	assert.Same(t, rep, sink.got[0])
	assert.True(t, report.DayStart(time.Now()).AddDate(0, 0, -1).Equal(rep.Day))
}

func TestTriggers(t *testing.T) {
	cfg := config.SchedulerConfig{
		FetchOnStart: true,
		Fetch:        "@every 30m",
		Reconcile:    "@every 2h",
		Report:       "@daily 00:05",
		Cleanup:      "@weekly sunday 03:00",
	}
	triggers, err := Triggers(cfg, &Fetcher{}, &Reconciler{}, &Reporter{}, &Cleaner{})
	require.NoError(t, err)
	require.Len(t, triggers, 4)
	assert.Equal(t, TriggerFetch, triggers[0].Name)
	assert.True(t, triggers[0].RunOnStart)
	assert.False(t, triggers[1].RunOnStart)

	from := time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC) // Saturday
	assert.True(t, time.Date(2026, 5, 3, 0, 5, 0, 0, time.UTC).Equal(triggers[2].Schedule.Next(from)))
	assert.True(t, time.Date(2026, 5, 3, 3, 0, 0, 0, time.UTC).Equal(triggers[3].Schedule.Next(from)))

	cfg.Report = "daily-ish"
	_, err = Triggers(cfg, &Fetcher{}, &Reconciler{}, &Reporter{}, &Cleaner{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheduler.report")
}
