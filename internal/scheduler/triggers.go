package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/datatypes"

	"github.com/jdziat/newsdesk/internal/article"
	"github.com/jdziat/newsdesk/internal/config"
	"github.com/jdziat/newsdesk/internal/ingest"
	"github.com/jdziat/newsdesk/internal/report"
	"github.com/jdziat/newsdesk/pkg/core"
	"github.com/jdziat/newsdesk/pkg/schedule"
)

// Trigger names.
const (
	TriggerFetch     = "fetch"
	TriggerReconcile = "reconcile"
	TriggerReport    = "report"
	TriggerCleanup   = "cleanup"
)

// ContentEnqueuer is implemented by *processor.Jobs.
type ContentEnqueuer interface {
	Content(ctx context.Context, articleID string, priority int) (string, error)
}

// ──────────────────────────────────────────────────────────────────────────────
// Fetch
// ──────────────────────────────────────────────────────────────────────────────

// ArticleWriter is the article persistence the fetch trigger needs.
type ArticleWriter interface {
	ExistsByURLOrTitle(ctx context.Context, url, title string) (bool, error)
	Create(ctx context.Context, a *article.Article) error
}

// FetchResult counts what one fetch did with the feed's candidates.
type FetchResult struct {
	Candidates int
	Created    int
	Skipped    int
	Failed     int
}

// Fetcher stores new candidates as draft articles and queues their content
// jobs.
type Fetcher struct {
	feed       ingest.Feed
	seen       ingest.SeenSet
	articles   ArticleWriter
	jobs       ContentEnqueuer
	categories []string
	logger     *slog.Logger
}

// NewFetcher creates the fetch trigger. seen may be nil. It only records
// candidates the article store already holds; the store decides what is new.
func NewFetcher(feed ingest.Feed, seen ingest.SeenSet, articles ArticleWriter, jobs ContentEnqueuer, categories []string, logger *slog.Logger) *Fetcher {
	return &Fetcher{feed: feed, seen: seen, articles: articles, jobs: jobs, categories: categories, logger: logger}
}

func (f *Fetcher) Run(ctx context.Context) (FetchResult, error) {
	var res FetchResult
	candidates, err := f.feed.Fetch(ctx, f.categories)
	if err != nil {
		return res, fmt.Errorf("fetch feeds: %w", err)
	}
	res.Candidates = len(candidates)

	var seenKeys []string
	for _, c := range candidates {
		if ctx.Err() != nil {
			break
		}
		stored, err := f.store(ctx, c)
		switch {
		case err != nil:
			res.Failed++
			f.logger.Error("failed to store candidate", "url", c.URL, "error", err)
			continue
		case stored:
			res.Created++
		default:
			res.Skipped++
		}
		seenKeys = append(seenKeys, ingest.SeenKey(c))
	}

	if f.seen != nil && len(seenKeys) > 0 {
		if err := f.seen.Mark(ctx, seenKeys...); err != nil {
			f.logger.Warn("failed to update seen set", "error", err)
		}
	}
	f.logger.Info("fetch finished", "candidates", res.Candidates, "created", res.Created, "skipped", res.Skipped, "failed", res.Failed)
	if res.Failed > 0 {
		return res, fmt.Errorf("%d of %d candidates could not be stored", res.Failed, res.Candidates)
	}
	return res, nil
}

// store reports whether c was new and has been created. Articles are
// matched and stored by their normalised URL.
func (f *Fetcher) store(ctx context.Context, c ingest.Candidate) (bool, error) {
	url := ingest.NormalizeURL(c.URL)
	exists, err := f.articles.ExistsByURLOrTitle(ctx, url, c.Title)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	a := &article.Article{
		Title:    c.Title,
		Content:  c.Content,
		URL:      url,
		Source:   c.Source,
		Category: c.Category,
		ImageURL: c.ImageURL,
		Status:   article.StatusDraft,
	}
	if len(c.Tags) > 0 {
		raw, err := json.Marshal(c.Tags)
		if err != nil {
			return false, err
		}
		a.Tags = datatypes.JSON(raw)
	}
	if !c.PublishedAt.IsZero() {
		at := c.PublishedAt.UTC()
		a.SourcePublishedAt = &at
	}
	if err := f.articles.Create(ctx, a); err != nil {
		return false, err
	}

	if _, err := f.jobs.Content(ctx, a.ID, core.PriorityNormal); err != nil && !errors.Is(err, core.ErrDuplicateJob) {
		// Reconciliation picks the article up later.
		f.logger.Error("failed to enqueue content job", "article_id", a.ID, "error", err)
	}
	return true, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Reconcile
// ──────────────────────────────────────────────────────────────────────────────

// UnprocessedFinder is implemented by *article.Repository.
type UnprocessedFinder interface {
	FindUnprocessed(ctx context.Context, limit int) ([]*article.Article, error)
}

// Reconciler re-queues articles the content processor never finished.
type Reconciler struct {
	articles UnprocessedFinder
	jobs     ContentEnqueuer
	batch    int
	logger   *slog.Logger
}

func NewReconciler(articles UnprocessedFinder, jobs ContentEnqueuer, batch int, logger *slog.Logger) *Reconciler {
	if batch <= 0 {
		batch = 10
	}
	return &Reconciler{articles: articles, jobs: jobs, batch: batch, logger: logger}
}

// Run enqueues a high-priority content job for each of the oldest
// unprocessed articles. Articles with a job already in flight are skipped.
// It returns the number of jobs enqueued.
func (r *Reconciler) Run(ctx context.Context) (int, error) {
	pending, err := r.articles.FindUnprocessed(ctx, r.batch)
	if err != nil {
		return 0, fmt.Errorf("find unprocessed articles: %w", err)
	}
	var enqueued int
	var errs []error
	for _, a := range pending {
		_, err := r.jobs.Content(ctx, a.ID, core.PriorityHigh)
		switch {
		case errors.Is(err, core.ErrDuplicateJob):
		case err != nil:
			errs = append(errs, fmt.Errorf("article %s: %w", a.ID, err))
		default:
			enqueued++
		}
	}
	r.logger.Info("reconciliation finished", "found", len(pending), "enqueued", enqueued)
	return enqueued, errors.Join(errs...)
}

// ──────────────────────────────────────────────────────────────────────────────
// Report and cleanup
// ──────────────────────────────────────────────────────────────────────────────

// Reporter builds the previous day's report and hands it to the sinks.
type Reporter struct {
	generator *report.Generator
	sinks     []report.Sink
	logger    *slog.Logger
}

func NewReporter(generator *report.Generator, sinks []report.Sink, logger *slog.Logger) *Reporter {
	return &Reporter{generator: generator, sinks: sinks, logger: logger}
}

// Run fails only when the counts cannot be read; sink errors are logged.
func (r *Reporter) Run(ctx context.Context) (*report.Report, error) {
	rep, err := r.generator.Previous(ctx)
	if err != nil {
		return nil, err
	}
	report.Emit(ctx, rep, r.sinks, r.logger)
	return rep, nil
}

// TerminalJobDeleter is implemented by core.Storage.
type TerminalJobDeleter interface {
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Cleaner deletes terminal jobs older than the retention window. Pending,
// delayed and active jobs are never touched.
type Cleaner struct {
	jobs      TerminalJobDeleter
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

func NewCleaner(jobs TerminalJobDeleter, retention time.Duration, logger *slog.Logger) *Cleaner {
	return &Cleaner{jobs: jobs, retention: retention, logger: logger, now: time.Now}
}

func (c *Cleaner) Run(ctx context.Context) (int64, error) {
	cutoff := c.now().Add(-c.retention)
	n, err := c.jobs.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete terminal jobs: %w", err)
	}
	c.logger.Info("cleanup finished", "deleted", n, "cutoff", cutoff)
	return n, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Wiring
// ──────────────────────────────────────────────────────────────────────────────

// Triggers builds the four pipeline triggers from cfg.
func Triggers(cfg config.SchedulerConfig, f *Fetcher, r *Reconciler, rep *Reporter, c *Cleaner) ([]Trigger, error) {
	var triggers []Trigger
	add := func(name, expr string, onStart bool, run func(context.Context) error) error {
		s, err := schedule.Parse(expr)
		if err != nil {
			return fmt.Errorf("scheduler.%s: %w", name, err)
		}
		triggers = append(triggers, Trigger{Name: name, Schedule: s, RunOnStart: onStart, Run: run})
		return nil
	}

	err := errors.Join(
		add(TriggerFetch, cfg.Fetch, cfg.FetchOnStart, func(ctx context.Context) error {
			_, err := f.Run(ctx)
			return err
		}),
		add(TriggerReconcile, cfg.Reconcile, false, func(ctx context.Context) error {
			_, err := r.Run(ctx)
			return err
		}),
		add(TriggerReport, cfg.Report, false, func(ctx context.Context) error {
			_, err := rep.Run(ctx)
			return err
		}),
		add(TriggerCleanup, cfg.Cleanup, false, func(ctx context.Context) error {
			_, err := c.Run(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, err
	}
	return triggers, nil
}
