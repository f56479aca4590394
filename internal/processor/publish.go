package processor

import (
	"context"
	"log/slog"
	"strings"

	"github.com/jdziat/newsdesk/internal/article"
	"github.com/jdziat/newsdesk/internal/social"
	"github.com/jdziat/newsdesk/pkg/jobctx"
	"github.com/jdziat/newsdesk/pkg/security"
)

// PublisherLookup resolves a platform name. *social.Registry implements it.
type PublisherLookup interface {
	Get(platform string) (social.Publisher, error)
}

// PublishResult is stored as the job result.
type PublishResult struct {
	Platform string             `json:"platform"`
	Status   article.PostStatus `json:"status"`
	PostID   string             `json:"postId,omitempty"`
}

// PublicationProcessor posts an article to a social platform and records one
// SocialPost row for every attempt that reaches the publishing step.
type PublicationProcessor struct {
	store      ArticleStore
	publishers PublisherLookup
	logger     *slog.Logger
}

// NewPublicationProcessor creates the publication processor.
func NewPublicationProcessor(store ArticleStore, publishers PublisherLookup, logger *slog.Logger) *PublicationProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &PublicationProcessor{store: store, publishers: publishers, logger: logger}
}

// Process publishes the article to the payload's platform and records the attempt.
func (p *PublicationProcessor) Process(ctx context.Context, payload PublishPayload) (*PublishResult, error) {
	a, err := loadArticle(ctx, p.store, payload.ArticleID)
	if err != nil {
		return nil, err
	}
	log := jobctx.Logger(ctx).With("article_id", a.ID, "platform", payload.Platform)

	post := social.Post{
		ArticleID: a.ID,
		Caption:   Caption(a, payload.Caption),
		ImageURL:  imageFor(a),
		Link:      a.URL,
	}
	record := &article.SocialPost{
		ArticleID: a.ID,
		Platform:  strings.ToLower(payload.Platform),
		Caption:   post.Caption,
		ImageURL:  post.ImageURL,
	}
	if job := jobctx.JobFromContext(ctx); job != nil {
		record.JobID = job.ID
		record.Attempt = job.Attempt
	}

	publisher, err := p.publishers.Get(payload.Platform)
	if err != nil {
		record.Status = article.PostFailed
		record.Error = security.SanitizeErrorMessage(err.Error())
		p.record(ctx, log, record)
		return nil, err
	}

	res, err := publisher.Publish(ctx, post)
	if err != nil {
		record.Status = article.PostFailed
		record.Error = security.SanitizeErrorMessage(err.Error())
		p.record(ctx, log, record)
		return nil, err
	}

	record.Status = article.PostPublished
	if res == nil || res.PostID == "" {
		record.Status = article.PostSkipped
	} else {
		record.PostID = res.PostID
	}
	// The post is live; a failed write must not trigger a second post.
	p.record(ctx, log, record)
	log.Info("article published", "status", record.Status, "post_id", record.PostID)

	return &PublishResult{Platform: record.Platform, Status: record.Status, PostID: record.PostID}, nil
}

func (p *PublicationProcessor) record(ctx context.Context, log *slog.Logger, post *article.SocialPost) {
	if err := p.store.RecordPost(context.WithoutCancel(ctx), post); err != nil {
		log.Error("failed to record social post", "status", post.Status, "error", err)
	}
}

// Caption returns the explicit caption, or the display title followed by
// the summary, when there is one, and the article URL.
func Caption(a *article.Article, explicit string) string {
	if c := strings.TrimSpace(explicit); c != "" {
		return c
	}
	parts := []string{a.DisplayTitle()}
	if a.Summary != nil && *a.Summary != "" {
		parts = append(parts, *a.Summary)
	}
	if a.URL != "" {
		parts = append(parts, a.URL)
	}
	return strings.Join(parts, "\n\n")
}

func imageFor(a *article.Article) string {
	if a.SocialImageURL != nil && *a.SocialImageURL != "" {
		return *a.SocialImageURL
	}
	return a.ImageURL
}
