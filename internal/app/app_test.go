package app

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/newsdesk/internal/article"
	"github.com/jdziat/newsdesk/internal/config"
	"github.com/jdziat/newsdesk/internal/logging"
	"github.com/jdziat/newsdesk/pkg/core"
	"github.com/jdziat/newsdesk/pkg/worker"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Database.DSN = filepath.Join(dir, "newsdesk.db")
	cfg.Media.LocalDir = filepath.Join(dir, "media")
	cfg.Scheduler.Enabled = false
	cfg.Sources = []config.SourceConfig{
		{Name: "wire", Active: true, Feeds: []string{"https://wire.example/rss"}, Keywords: []string{"election"}},
		{Name: "paused", Active: false, Feeds: []string{"https://paused.example/rss"}},
	}
	return cfg
}

func newApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, a.Close()) })
	return a
}

func TestNew_SeedsSourcesAndTriggers(t *testing.T) {
	a := newApp(t, testConfig(t))

	active, err := a.Articles.ActiveSources(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "wire", active[0].Name)
	settings, err := active[0].Settings()
	require.NoError(t, err)
	assert.Equal(t, []string{"election"}, settings.Keywords)

	assert.Equal(t, []string{"cleanup", "fetch", "reconcile", "report"}, a.Scheduler.Names())
	assert.Empty(t, a.Social.Platforms())
}

func TestNew_AppliesQueueConfig(t *testing.T) {
	cfg := testConfig(t)
	qc := cfg.Queues[core.QueueSocial]
	qc.MaxAttempts = 5
	cfg.Queues[core.QueueSocial] = qc

	a := newApp(t, cfg)
	got, ok := a.Queue.Config(core.QueueSocial)
	require.True(t, ok)
	assert.Equal(t, 5, got.MaxAttempts)
	assert.Equal(t, 30*time.Second, got.BaseDelay)
}

func TestSeedSources_IsIdempotent(t *testing.T) {
	cfg := testConfig(t)
	a := newApp(t, cfg)

	cfg.Sources[1].Active = true
	require.NoError(t, a.SeedSources(context.Background()))
	require.NoError(t, a.SeedSources(context.Background()))

	active, err := a.Articles.ActiveSources(context.Background())
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestRun_ProcessesContentJobs(t *testing.T) {
	cfg := testConfig(t)
	cfg.Content.ChainImageGeneration = true
	a := newApp(t, cfg)
	ctx := context.Background()

	art := &article.Article{Title: "Polls close", Content: "Counting has begun.", Category: "politics"}
	require.NoError(t, a.Articles.Create(ctx, art))
	id, err := a.Jobs.Content(ctx, art.ID, core.PriorityNormal)
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- a.Run(runCtx, worker.PollInterval(10*time.Millisecond), worker.StaleLockSweep(0)) }()
	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			select {
			case err := <-done:
				assert.NoError(t, err)
			case <-time.After(5 * time.Second):
				t.Error("app did not stop")
			}
		})
	}
	t.Cleanup(stop)

	require.Eventually(t, func() bool {
		j, err := a.Store.GetJob(ctx, id)
		return err == nil && j != nil && j.Status == core.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	// With no AI provider configured the fields stay empty, and the chained
	// image job renders the placeholder card.
	require.Eventually(t, func() bool {
		got, err := a.Articles.Get(ctx, art.ID)
		return err == nil && got.ImageGenerated
	}, 5*time.Second, 10*time.Millisecond)

	got, err := a.Articles.Get(ctx, art.ID)
	require.NoError(t, err)
	assert.True(t, got.AIProcessed)
	assert.Nil(t, got.Summary)
	require.NotNil(t, got.SocialImageURL)
	assert.Equal(t, "/media/"+art.ID+"/default.png", *got.SocialImageURL)
	stop()
}

func TestRunNow_Reconcile(t *testing.T) {
	a := newApp(t, testConfig(t))
	ctx := context.Background()
	require.NoError(t, a.Articles.Create(ctx, &article.Article{Title: "Forgotten"}))

	require.NoError(t, a.Scheduler.RunNow(ctx, "reconcile"))

	stats, err := a.Queue.Stats(ctx, core.QueueContent)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Waiting)
}
