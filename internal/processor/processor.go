// Package processor holds the handlers for the three pipeline queues and
// the helpers that enqueue their jobs.
package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/jdziat/newsdesk/internal/article"
	"github.com/jdziat/newsdesk/pkg/core"
	"github.com/jdziat/newsdesk/pkg/queue"
)

// ContentPayload is the payload of a content.process job.
type ContentPayload struct {
	ArticleID string `json:"articleId"`
}

// ImagePayload is the payload of an image.generate job. Title overrides the
// article title on the card.
type ImagePayload struct {
	ArticleID  string `json:"articleId"`
	TemplateID string `json:"templateId"`
	Title      string `json:"title,omitempty"`
}

// PublishPayload is the payload of a social.publish job.
type PublishPayload struct {
	ArticleID string `json:"articleId"`
	Platform  string `json:"platform"`
	Caption   string `json:"caption,omitempty"`
}

// ArticleStore is the article persistence the processors need.
type ArticleStore interface {
	Get(ctx context.Context, id string) (*article.Article, error)
	UpdateAIFields(ctx context.Context, id string, fields article.AIFields, note string) error
	SetSocialImage(ctx context.Context, id, url string) error
	RecordPost(ctx context.Context, p *article.SocialPost) error
}

// loadArticle maps a missing article to a terminal NotFound and anything
// else to a retriable persistence failure.
func loadArticle(ctx context.Context, store ArticleStore, id string) (*article.Article, error) {
	if id == "" {
		return nil, core.NoRetry(fmt.Errorf("payload: articleId is required"))
	}
	a, err := store.Get(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		return nil, core.NotFound("article", id)
	}
	if err != nil {
		return nil, core.PersistenceFailure("load article", err)
	}
	return a, nil
}

// Register binds the processors to their job kinds on q.
func Register(q *queue.Queue, content *ContentProcessor, image *ImageProcessor, publish *PublicationProcessor) {
	q.Register(core.KindContentProcess, content.Process)
	q.Register(core.KindGenerateImage, image.Process)
	q.Register(core.KindPublishSocial, publish.Process)
}
