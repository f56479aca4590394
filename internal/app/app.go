// Package app wires the pipeline components from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/jdziat/newsdesk/internal/ai"
	"github.com/jdziat/newsdesk/internal/article"
	"github.com/jdziat/newsdesk/internal/config"
	"github.com/jdziat/newsdesk/internal/ingest"
	"github.com/jdziat/newsdesk/internal/media"
	"github.com/jdziat/newsdesk/internal/processor"
	"github.com/jdziat/newsdesk/internal/report"
	"github.com/jdziat/newsdesk/internal/scheduler"
	"github.com/jdziat/newsdesk/internal/social"
	"github.com/jdziat/newsdesk/pkg/queue"
	"github.com/jdziat/newsdesk/pkg/storage"
	"github.com/jdziat/newsdesk/pkg/worker"
)

// App holds the wired pipeline.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	DB        *gorm.DB
	Store     *storage.GormStorage
	Queue     *queue.Queue
	Articles  *article.Repository
	Jobs      *processor.Jobs
	Social    *social.Registry
	Reports   *report.DBSink
	Scheduler *scheduler.Scheduler

	closers []func() error
}

// New opens the database, runs migrations, seeds the configured sources and
// builds every component. Optional services (Redis, Kafka) that fail to
// connect are logged and left out.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := storage.Open(cfg.Database.DSN,
		storage.MaxOpenConns(cfg.Database.MaxOpenConns),
		storage.MaxIdleConns(cfg.Database.MaxIdleConns),
		storage.ConnMaxLifetime(cfg.Database.ConnMaxLifetime),
	)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Logger: logger, DB: db}
	a.closers = append(a.closers, func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	if err := a.build(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	a.Store = storage.NewGormStorage(a.DB)
	a.Articles = article.NewRepository(a.DB)
	a.Reports = report.NewDBSink(a.DB)
	for _, m := range []interface{ Migrate(context.Context) error }{a.Store, a.Articles, a.Reports} {
		if err := m.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	if err := a.SeedSources(ctx); err != nil {
		return err
	}

	a.Queue = queue.New(a.Store)
	for _, qc := range cfg.QueueConfigs() {
		if err := a.Queue.Configure(qc); err != nil {
			return err
		}
	}
	a.Jobs = processor.NewJobs(a.Queue, cfg.Content.ImageTemplate)
	noteContentFailures(a.Queue, a.Articles, a.Logger)

	images, err := media.NewStore(ctx, cfg.Media)
	if err != nil {
		return fmt.Errorf("image store: %w", err)
	}
	a.Social = social.NewFromConfig(cfg.Social)

	processor.Register(a.Queue,
		processor.NewContentProcessor(a.Articles, ai.New(cfg.AI, a.Logger), a.Jobs, processor.ContentConfig{
			FailurePolicy: cfg.Content.FailurePolicy,
			ChainImage:    cfg.Content.ChainImageGeneration,
		}, a.Logger),
		processor.NewImageProcessor(a.Articles, media.NewRenderer(cfg.Media), images, cfg.Content.ImageTemplate, a.Logger),
		processor.NewPublicationProcessor(a.Articles, a.Social, a.Logger),
	)

	seen := a.seenSet(ctx)
	triggers, err := scheduler.Triggers(cfg.Scheduler,
		scheduler.NewFetcher(a.feed(seen), seen, a.Articles, a.Jobs, cfg.Scheduler.Categories, a.Logger),
		scheduler.NewReconciler(a.Articles, a.Jobs, cfg.Scheduler.ReconcileBatch, a.Logger),
		scheduler.NewReporter(report.NewGenerator(a.Articles, a.Store), a.reportSinks(), a.Logger),
		scheduler.NewCleaner(a.Store, cfg.Scheduler.Retention, a.Logger),
	)
	if err != nil {
		return err
	}
	a.Scheduler = scheduler.New(a.Logger, triggers...)
	return nil
}

// SeedSources upserts the configured sources by name. Sources removed from
// the configuration stay in the table.
func (a *App) SeedSources(ctx context.Context) error {
	for _, src := range a.Config.Sources {
		settings := article.SourceSettings{Feeds: src.Feeds, Categories: src.Categories, Keywords: src.Keywords}
		if err := a.Articles.UpsertSource(ctx, src.Name, src.Active, settings); err != nil {
			return fmt.Errorf("seed source %s: %w", src.Name, err)
		}
	}
	return nil
}

func (a *App) feed(seen ingest.SeenSet) ingest.Feed {
	var extractor ingest.Extractor
	if a.Config.Ingest.ExtractFullText {
		extractor = ingest.ReadabilityExtractor{Timeout: a.Config.Ingest.Timeout}
	}
	return ingest.NewRSSFeed(a.Articles, a.Config.Ingest, extractor, a.Logger).WithSeenSet(seen)
}

func (a *App) seenSet(ctx context.Context) ingest.SeenSet {
	if a.Config.Redis.Addr == "" {
		return nil
	}
	seen, err := ingest.NewRedisSeenSet(ctx, a.Config.Redis)
	if err != nil {
		a.Logger.Warn("redis unavailable, dedup falls back to the database", "addr", a.Config.Redis.Addr, "error", err)
		return nil
	}
	a.closers = append(a.closers, seen.Close)
	return seen
}

func (a *App) reportSinks() []report.Sink {
	sinks := []report.Sink{report.NewLogSink(a.Logger), a.Reports}
	if len(a.Config.Kafka.Brokers) == 0 {
		return sinks
	}
	kafka, err := report.NewKafkaSink(a.Config.Kafka.Brokers, a.Config.Kafka.ReportTopic)
	if err != nil {
		a.Logger.Warn("kafka unavailable, reports are not published", "brokers", a.Config.Kafka.Brokers, "error", err)
		return sinks
	}
	a.closers = append(a.closers, kafka.Close)
	return append(sinks, kafka)
}

// Worker builds a worker for all three queues from the worker configuration.
func (a *App) Worker(opts ...worker.WorkerOption) *worker.Worker {
	wc := a.Config.Worker
	base := []worker.WorkerOption{
		worker.WithLogger(a.Logger),
		worker.PollInterval(wc.PollInterval),
		worker.LockDuration(wc.LockDuration),
		worker.HeartbeatInterval(wc.HeartbeatInterval),
		worker.StaleLockSweep(wc.StaleLockSweep),
	}
	return worker.NewWorker(a.Queue, append(base, opts...)...)
}

// Run processes jobs, and runs the scheduler when enabled, until ctx is
// cancelled.
func (a *App) Run(ctx context.Context, opts ...worker.WorkerOption) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return logEvents(ctx, a.Queue, a.Logger) })
	g.Go(func() error { return a.Worker(opts...).Start(ctx) })
	if a.Config.Scheduler.Enabled {
		g.Go(func() error { return a.Scheduler.Start(ctx) })
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
