// Package report aggregates the daily pipeline counts and emits them to the
// configured sinks.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Report holds the counts for one UTC calendar day.
type Report struct {
	Day               time.Time `json:"day"`
	ArticlesCreated   int64     `json:"articlesCreated"`
	ArticlesPublished int64     `json:"articlesPublished"`
	PostsPublished    int64     `json:"postsPublished"`
	JobsCompleted     int64     `json:"jobsCompleted"`
	GeneratedAt       time.Time `json:"generatedAt"`
}

// ArticleCounter is implemented by *article.Repository.
type ArticleCounter interface {
	CountCreatedBetween(ctx context.Context, from, to time.Time) (int64, error)
	CountPublishedBetween(ctx context.Context, from, to time.Time) (int64, error)
	CountPostsPublishedBetween(ctx context.Context, from, to time.Time) (int64, error)
}

// JobCounter is implemented by core.Storage.
type JobCounter interface {
	CountCompletedBetween(ctx context.Context, from, to time.Time) (int64, error)
}

// Generator builds reports from the article and job stores.
type Generator struct {
	articles ArticleCounter
	jobs     JobCounter
	now      func() time.Time
}

func NewGenerator(articles ArticleCounter, jobs JobCounter) *Generator {
	return &Generator{articles: articles, jobs: jobs, now: time.Now}
}

// DayStart truncates t to midnight UTC.
func DayStart(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Previous builds the report for the UTC day before now.
func (g *Generator) Previous(ctx context.Context) (*Report, error) {
	return g.Generate(ctx, DayStart(g.now()).AddDate(0, 0, -1))
}

// Generate builds the report for the UTC day containing day.
func (g *Generator) Generate(ctx context.Context, day time.Time) (*Report, error) {
	from := DayStart(day)
	to := from.AddDate(0, 0, 1)
	r := &Report{Day: from, GeneratedAt: g.now().UTC()}

	var err error
	if r.ArticlesCreated, err = g.articles.CountCreatedBetween(ctx, from, to); err != nil {
		return nil, fmt.Errorf("count created articles: %w", err)
	}
	if r.ArticlesPublished, err = g.articles.CountPublishedBetween(ctx, from, to); err != nil {
		return nil, fmt.Errorf("count published articles: %w", err)
	}
	if r.PostsPublished, err = g.articles.CountPostsPublishedBetween(ctx, from, to); err != nil {
		return nil, fmt.Errorf("count social posts: %w", err)
	}
	if r.JobsCompleted, err = g.jobs.CountCompletedBetween(ctx, from, to); err != nil {
		return nil, fmt.Errorf("count completed jobs: %w", err)
	}
	return r, nil
}

// Sink receives generated reports.
type Sink interface {
	Name() string
	Emit(ctx context.Context, r *Report) error
}

// Emit sends r to every sink. A failing sink is logged and does not stop the
// others; the number of failed sinks is returned.
func Emit(ctx context.Context, r *Report, sinks []Sink, logger *slog.Logger) int {
	failed := 0
	for _, s := range sinks {
		if err := s.Emit(ctx, r); err != nil {
			failed++
			logger.Error("report sink failed", "sink", s.Name(), "day", r.Day.Format(time.DateOnly), "error", err)
		}
	}
	return failed
}

// LogSink writes the report to a logger.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Emit(_ context.Context, r *Report) error {
	s.logger.Info("daily report",
		"day", r.Day.Format(time.DateOnly),
		"articles_created", r.ArticlesCreated,
		"articles_published", r.ArticlesPublished,
		"posts_published", r.PostsPublished,
		"jobs_completed", r.JobsCompleted,
	)
	return nil
}
