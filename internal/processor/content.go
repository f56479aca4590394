package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/jdziat/newsdesk/internal/ai"
	"github.com/jdziat/newsdesk/internal/article"
	"github.com/jdziat/newsdesk/internal/config"
	"github.com/jdziat/newsdesk/pkg/core"
	"github.com/jdziat/newsdesk/pkg/jobctx"
)

// ContentResult is stored as the job result.
type ContentResult struct {
	article.AIFields
	Failed     []string `json:"failed,omitempty"`
	ImageJobID string   `json:"imageJobId,omitempty"`
}

// ContentConfig configures the content processor.
type ContentConfig struct {
	// FailurePolicy decides what happens when every AI call errors:
	// config.PolicyRetry fails the job, config.PolicyAbsorb completes it
	// with empty fields and an error note.
	FailurePolicy string
	// ChainImage enqueues image generation after a successful run.
	ChainImage bool
}

// ContentProcessor enriches an article with the four AI fields.
type ContentProcessor struct {
	store  ArticleStore
	ai     ai.Service
	jobs   *Jobs
	cfg    ContentConfig
	logger *slog.Logger
}

// NewContentProcessor creates the processor. jobs may be nil when chaining
// is disabled.
func NewContentProcessor(store ArticleStore, svc ai.Service, jobs *Jobs, cfg ContentConfig, logger *slog.Logger) *ContentProcessor {
	if cfg.FailurePolicy == "" {
		cfg.FailurePolicy = config.PolicyRetry
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ContentProcessor{store: store, ai: svc, jobs: jobs, cfg: cfg, logger: logger}
}

type aiCall struct {
	name string
	fn   func(ctx context.Context, title, content string) (*string, error)
	out  **string
}

// Process runs the four AI calls concurrently. A failing call never cancels
// the others; whatever came back is stored and the article is marked
// processed. When no call produced a field and at least one failed, the
// retry policy fails the job instead.
func (p *ContentProcessor) Process(ctx context.Context, payload ContentPayload) (*ContentResult, error) {
	a, err := loadArticle(ctx, p.store, payload.ArticleID)
	if err != nil {
		return nil, err
	}
	log := jobctx.Logger(ctx).With("article_id", a.ID)

	var fields article.AIFields
	calls := []aiCall{
		{"summary", p.ai.Summarize, &fields.Summary},
		{"headline", p.ai.Headline, &fields.Headline},
		{"commentary", p.ai.Commentary, &fields.Commentary},
		{"rewrite", p.ai.Rewrite, &fields.RewrittenContent},
	}
	errs := make([]error, len(calls))

	var g errgroup.Group
	for i, call := range calls {
		g.Go(func() error {
			out, err := call.fn(ctx, a.Title, a.Content)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", call.name, err)
				return nil
			}
			*call.out = out
			return nil
		})
	}
	_ = g.Wait()

	result := &ContentResult{}
	var notes []string
	for i, err := range errs {
		if err != nil {
			result.Failed = append(result.Failed, calls[i].name)
			notes = append(notes, err.Error())
		}
	}

	produced := 0
	for _, call := range calls {
		if *call.out != nil {
			produced++
		}
	}

	// Nothing came back and something failed: a soft nil from one call must
	// not hide an outage of the others.
	if produced == 0 && len(result.Failed) > 0 {
		joined := errors.Join(errs...)
		if p.cfg.FailurePolicy != config.PolicyAbsorb {
			return nil, retryHint(joined)
		}
		log.Warn("no ai output, storing empty fields", "failed", result.Failed, "error", joined)
	} else if len(result.Failed) > 0 {
		log.Warn("some ai calls failed", "failed", result.Failed)
	}

	note := strings.Join(notes, "; ")
	if err := p.store.UpdateAIFields(ctx, a.ID, fields, note); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, core.NotFound("article", a.ID)
		}
		return nil, core.PersistenceFailure("store ai fields", err)
	}
	result.AIFields = fields

	if p.cfg.ChainImage && p.jobs != nil {
		title := a.Title
		if fields.Headline != nil && *fields.Headline != "" {
			title = *fields.Headline
		}
		id, err := p.jobs.Image(ctx, a.ID, "", title)
		switch {
		case errors.Is(err, core.ErrDuplicateJob):
			log.Debug("image job already queued")
		case err != nil:
			// The AI fields are stored; failing here would repeat the AI calls.
			log.Error("failed to enqueue image job", "error", err)
		default:
			result.ImageJobID = id
		}
	}
	return result, nil
}

// retryHint keeps the longest RetryAfter delay among errs so a rate-limited
// provider is not hammered on the next attempt.
func retryHint(joined error) error {
	failure := core.ExternalFailure("ai", joined)
	var longest *core.RetryAfterError
	if x, ok := joined.(interface{ Unwrap() []error }); ok {
		for _, e := range x.Unwrap() {
			var ra *core.RetryAfterError
			if errors.As(e, &ra) && (longest == nil || ra.Delay > longest.Delay) {
				longest = ra
			}
		}
	}
	if longest != nil {
		return core.RetryAfter(longest.Delay, failure)
	}
	return failure
}
