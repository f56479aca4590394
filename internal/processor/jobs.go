package processor

import (
	"context"

	"github.com/jdziat/newsdesk/pkg/core"
	"github.com/jdziat/newsdesk/pkg/queue"
)

// Enqueuer admits jobs. *queue.Queue implements it.
type Enqueuer interface {
	Enqueue(ctx context.Context, kind core.JobKind, payload any, opts ...queue.Option) (string, error)
}

// Jobs enqueues pipeline jobs with their routing, priority and
// de-duplication keys. Each call returns core.ErrDuplicateJob while an
// equivalent job is still pending, delayed or active.
type Jobs struct {
	q             Enqueuer
	imageTemplate string
}

// NewJobs creates the enqueue helpers. imageTemplate is used when a caller
// does not name one.
func NewJobs(q Enqueuer, imageTemplate string) *Jobs {
	if imageTemplate == "" {
		imageTemplate = "default"
	}
	return &Jobs{q: q, imageTemplate: imageTemplate}
}

// ContentKey is the unique key of an article's content job.
func ContentKey(articleID string) string { return "content:" + articleID }

// Content enqueues AI processing for an article.
func (j *Jobs) Content(ctx context.Context, articleID string, priority int) (string, error) {
	return j.q.Enqueue(ctx, core.KindContentProcess, ContentPayload{ArticleID: articleID},
		queue.Entity(articleID),
		queue.Priority(priority),
		queue.Unique(ContentKey(articleID)),
	)
}

// Image enqueues social image generation. An empty template uses the default.
func (j *Jobs) Image(ctx context.Context, articleID, template, title string) (string, error) {
	if template == "" {
		template = j.imageTemplate
	}
	return j.q.Enqueue(ctx, core.KindGenerateImage, ImagePayload{ArticleID: articleID, TemplateID: template, Title: title},
		queue.Entity(articleID),
		queue.Unique("image:"+articleID+":"+template),
	)
}

// Publish enqueues a social post of an article to one platform.
func (j *Jobs) Publish(ctx context.Context, articleID, platform, caption string) (string, error) {
	return j.q.Enqueue(ctx, core.KindPublishSocial, PublishPayload{ArticleID: articleID, Platform: platform, Caption: caption},
		queue.Entity(articleID),
		queue.Unique("publish:"+articleID+":"+platform),
	)
}
