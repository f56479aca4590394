package processor

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jdziat/newsdesk/internal/media"
	"github.com/jdziat/newsdesk/pkg/core"
	"github.com/jdziat/newsdesk/pkg/jobctx"
)

// ImageProcessor renders an article's social card, stores it and records
// its URL. Nothing is written to the article unless both steps succeed.
type ImageProcessor struct {
	store           ArticleStore
	renderer        media.Renderer
	images          media.Store
	defaultTemplate string
	logger          *slog.Logger
}

// NewImageProcessor creates the image processor. An empty defaultTemplate
// falls back to "default".
func NewImageProcessor(store ArticleStore, renderer media.Renderer, images media.Store, defaultTemplate string, logger *slog.Logger) *ImageProcessor {
	if defaultTemplate == "" {
		defaultTemplate = "default"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageProcessor{store: store, renderer: renderer, images: images, defaultTemplate: defaultTemplate, logger: logger}
}

// Process renders and stores the card, then sets the article's social image.
// Render and store failures are retriable external failures.
func (p *ImageProcessor) Process(ctx context.Context, payload ImagePayload) (*media.Stored, error) {
	a, err := loadArticle(ctx, p.store, payload.ArticleID)
	if err != nil {
		return nil, err
	}
	template := payload.TemplateID
	if template == "" {
		template = p.defaultTemplate
	}
	title := payload.Title
	if title == "" {
		title = a.DisplayTitle()
	}
	req := media.RenderRequest{
		ArticleID: a.ID,
		Template:  template,
		Title:     title,
		Category:  a.Category,
		Source:    a.Source,
		ImageURL:  a.ImageURL,
		Tags:      a.TagList(),
	}
	if a.Summary != nil {
		req.Subtitle = *a.Summary
	}

	img, err := p.renderer.Render(ctx, req)
	if err != nil {
		return nil, core.ExternalFailure("image renderer", err)
	}
	stored, err := p.images.Put(ctx, media.ObjectKey(a.ID, template, img.ContentType), img)
	if err != nil {
		return nil, core.ExternalFailure("image store", err)
	}

	if err := p.store.SetSocialImage(ctx, a.ID, stored.URL); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, core.NotFound("article", a.ID)
		}
		return nil, core.PersistenceFailure("store social image", err)
	}
	jobctx.Logger(ctx).Info("social image generated", "article_id", a.ID, "url", stored.URL)
	return stored, nil
}
