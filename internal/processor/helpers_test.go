package processor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jdziat/newsdesk/internal/article"
	"github.com/jdziat/newsdesk/internal/media"
	"github.com/jdziat/newsdesk/internal/social"
	"github.com/jdziat/newsdesk/internal/testdb"
	"github.com/jdziat/newsdesk/pkg/core"
	"github.com/jdziat/newsdesk/pkg/queue"
	"github.com/jdziat/newsdesk/pkg/storage"
)

type env struct {
	repo  *article.Repository
	store *storage.GormStorage
	q     *queue.Queue
}

// newEnv returns an article repository and a job queue sharing one
// in-memory database. Every queue backs off 10ms so retries stay fast.
func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	db := testdb.Open(t, "social_posts", "external_sources", "articles", "queue_states", "jobs")

	repo := article.NewRepository(db)
	require.NoError(t, repo.Migrate(ctx))
	s := storage.NewGormStorage(db)
	require.NoError(t, s.Migrate(ctx))

	q := queue.New(s)
	for _, name := range q.Names() {
		require.NoError(t, q.Configure(queue.Config{Name: name, BaseDelay: 10 * time.Millisecond}))
	}
	return &env{repo: repo, store: s, q: q}
}

func (e *env) article(t *testing.T, title string) *article.Article {
	t.Helper()
	a := &article.Article{
		Title:    title,
		Content:  "Body of " + title,
		URL:      "https://news.example/" + article.Slugify(title),
		Category: "politics",
		ImageURL: "https://news.example/" + article.Slugify(title) + ".jpg",
	}
	require.NoError(t, e.repo.Create(context.Background(), a))
	return a
}

func str(s string) *string { return &s }

// ──────────────────────────────────────────────────────────────────────────────
// Fakes
// ──────────────────────────────────────────────────────────────────────────────

type aiReply struct {
	out *string
	err error
}

type fakeAI struct {
	summary, headline, commentary, rewrite aiReply
	calls                                  sync.WaitGroup
	barrier                                bool
}

// wait blocks until all four calls have started when barrier is set, so a
// sequential implementation fails instead of passing by accident.
func (f *fakeAI) wait(ctx context.Context) error {
	if !f.barrier {
		return nil
	}
	f.calls.Done()
	done := make(chan struct{})
	go func() { f.calls.Wait(); close(done) }()
	select {
	case <-done:
		return nil
	case <-time.After(2 * time.Second):
		return errors.New("ai calls did not run concurrently")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeAI) reply(ctx context.Context, r aiReply) (*string, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	return r.out, r.err
}

func (f *fakeAI) Summarize(ctx context.Context, _, _ string) (*string, error) {
	return f.reply(ctx, f.summary)
}

func (f *fakeAI) Headline(ctx context.Context, _, _ string) (*string, error) {
	return f.reply(ctx, f.headline)
}

func (f *fakeAI) Commentary(ctx context.Context, _, _ string) (*string, error) {
	return f.reply(ctx, f.commentary)
}

func (f *fakeAI) Rewrite(ctx context.Context, _, _ string) (*string, error) {
	return f.reply(ctx, f.rewrite)
}

type fakeRenderer struct {
	mu   sync.Mutex
	reqs []media.RenderRequest
	err  error
}

func (f *fakeRenderer) Render(_ context.Context, req media.RenderRequest) (*media.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &media.Image{Data: []byte("png"), ContentType: "image/png"}, nil
}

type fakeImageStore struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (f *fakeImageStore) Put(_ context.Context, key string, _ *media.Image) (*media.Stored, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	if f.err != nil {
		return nil, f.err
	}
	return &media.Stored{URL: "https://cdn.example/" + key, Path: "/srv/media/" + key}, nil
}

type fakePublisher struct {
	mu       sync.Mutex
	platform string
	posts    []social.Post
	// results are returned in order; the last one repeats.
	results []publishOutcome
}

type publishOutcome struct {
	postID string
	err    error
}

func (f *fakePublisher) Platform() string { return f.platform }

func (f *fakePublisher) Publish(_ context.Context, post social.Post) (*social.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, post)
	out := f.results[min(len(f.posts), len(f.results))-1]
	if out.err != nil {
		return nil, out.err
	}
	return &social.Result{PostID: out.postID}, nil
}

var errUpstream = core.ExternalFailure("fake", errors.New("503 service unavailable"))
