package article

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jdziat/newsdesk/pkg/core"
)

// Repository persists articles, sources and social posts with GORM.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a repository on db.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates the article tables.
func (r *Repository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&Article{}, &ExternalSource{}, &SocialPost{})
}

// Get returns an article by id. A missing article yields an error wrapping
// core.ErrNotFound.
func (r *Repository) Get(ctx context.Context, id string) (*Article, error) {
	var a Article
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("article %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetBySlug returns an article by slug.
func (r *Repository) GetBySlug(ctx context.Context, slug string) (*Article, error) {
	var a Article
	err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("article slug %s: %w", slug, core.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Create inserts a new article, assigning an id and a unique slug derived
// from the title when they are empty. New articles default to draft.
func (r *Repository) Create(ctx context.Context, a *Article) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Status == "" {
		a.Status = StatusDraft
	}
	if a.Slug == "" {
		slug, err := r.UniqueSlug(ctx, a.Title)
		if err != nil {
			return err
		}
		a.Slug = slug
	}
	return r.db.WithContext(ctx).Create(a).Error
}

// UniqueSlug returns Slugify(title), suffixed with -2, -3, ... until unused.
func (r *Repository) UniqueSlug(ctx context.Context, title string) (string, error) {
	base := Slugify(title)
	candidate := base
	for i := 2; ; i++ {
		var n int64
		if err := r.db.WithContext(ctx).Model(&Article{}).Where("slug = ?", candidate).Count(&n).Error; err != nil {
			return "", err
		}
		if n == 0 {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}

// ExistsByURLOrTitle reports whether an article with the same source URL or
// the same title (case-insensitive) is already stored.
func (r *Repository) ExistsByURLOrTitle(ctx context.Context, url, title string) (bool, error) {
	q := r.db.WithContext(ctx).Model(&Article{})
	switch {
	case url != "" && title != "":
		q = q.Where("url = ? OR LOWER(title) = ?", url, strings.ToLower(title))
	case url != "":
		q = q.Where("url = ?", url)
	case title != "":
		q = q.Where("LOWER(title) = ?", strings.ToLower(title))
	default:
		return false, nil
	}
	var n int64
	if err := q.Limit(1).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// FindUnprocessed returns up to limit non-archived articles that have not
// been AI-processed or whose summary is still empty, oldest first.
func (r *Repository) FindUnprocessed(ctx context.Context, limit int) ([]*Article, error) {
	if limit <= 0 {
		limit = 10
	}
	var out []*Article
	err := r.db.WithContext(ctx).
		Where("(ai_processed = ? OR summary IS NULL) AND status <> ?", false, StatusArchived).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListIDs returns the ids of non-archived articles, oldest first. With
// onlyUnprocessed it is restricted to articles not yet AI-processed.
func (r *Repository) ListIDs(ctx context.Context, onlyUnprocessed bool) ([]string, error) {
	q := r.db.WithContext(ctx).Model(&Article{}).Where("status <> ?", StatusArchived)
	if onlyUnprocessed {
		q = q.Where("ai_processed = ?", false)
	}
	var ids []string
	err := q.Order("created_at ASC").Pluck("id", &ids).Error
	return ids, err
}

// UpdateAIFields stores the content processor output and marks the article
// processed. Nil fields keep their stored value, so a rerun never erases
// what an earlier run produced.
func (r *Repository) UpdateAIFields(ctx context.Context, id string, fields AIFields, note string) error {
	updates := map[string]any{
		"ai_processed":    true,
		"ai_processed_at": time.Now(),
		"ai_error":        note,
	}
	for col, v := range map[string]*string{
		"summary":           fields.Summary,
		"headline":          fields.Headline,
		"commentary":        fields.Commentary,
		"rewritten_content": fields.RewrittenContent,
	} {
		if v != nil {
			updates[col] = *v
		}
	}
	res := r.db.WithContext(ctx).Model(&Article{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("article %s: %w", id, core.ErrNotFound)
	}
	return nil
}

// NoteAIError records why content processing failed without touching the
// AI fields or the processed flag.
func (r *Repository) NoteAIError(ctx context.Context, id, note string) error {
	res := r.db.WithContext(ctx).Model(&Article{}).Where("id = ?", id).Update("ai_error", note)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("article %s: %w", id, core.ErrNotFound)
	}
	return nil
}

// SetSocialImage stores the generated social image URL.
func (r *Repository) SetSocialImage(ctx context.Context, id, url string) error {
	res := r.db.WithContext(ctx).Model(&Article{}).Where("id = ?", id).Updates(map[string]any{
		"social_image_url": url,
		"image_generated":  true,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("article %s: %w", id, core.ErrNotFound)
	}
	return nil
}

// Publish moves an article to published.
func (r *Repository) Publish(ctx context.Context, id string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&Article{}).Where("id = ?", id).Updates(map[string]any{
		"status":       StatusPublished,
		"published_at": at,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("article %s: %w", id, core.ErrNotFound)
	}
	return nil
}

// CountCreatedBetween counts articles created in [from, to).
func (r *Repository) CountCreatedBetween(ctx context.Context, from, to time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Article{}).
		Where("created_at >= ? AND created_at < ?", from, to).
		Count(&n).Error
	return n, err
}

// CountPublishedBetween counts articles published in [from, to).
func (r *Repository) CountPublishedBetween(ctx context.Context, from, to time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Article{}).
		Where("status = ? AND published_at >= ? AND published_at < ?", StatusPublished, from, to).
		Count(&n).Error
	return n, err
}

// ──────────────────────────────────────────────────────────────────────────────
// Social posts
// ──────────────────────────────────────────────────────────────────────────────

// RecordPost inserts a publication outcome.
func (r *Repository) RecordPost(ctx context.Context, p *SocialPost) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).Create(p).Error
}

// PostsForArticle returns the publication history of an article, oldest first.
func (r *Repository) PostsForArticle(ctx context.Context, articleID string) ([]*SocialPost, error) {
	var out []*SocialPost
	err := r.db.WithContext(ctx).Where("article_id = ?", articleID).Order("created_at ASC").Find(&out).Error
	return out, err
}

// CountPostsPublishedBetween counts successful social posts in [from, to).
func (r *Repository) CountPostsPublishedBetween(ctx context.Context, from, to time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&SocialPost{}).
		Where("status = ? AND created_at >= ? AND created_at < ?", PostPublished, from, to).
		Count(&n).Error
	return n, err
}

// ──────────────────────────────────────────────────────────────────────────────
// External sources
// ──────────────────────────────────────────────────────────────────────────────

// UpsertSource creates or updates a source by name. LastFetchedAt is kept.
func (r *Repository) UpsertSource(ctx context.Context, name string, active bool, settings SourceSettings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode source %s: %w", name, err)
	}
	src := ExternalSource{Name: name, Kind: "rss", Active: active, Config: datatypes.JSON(raw)}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"kind", "active", "config", "updated_at"}),
	}).Create(&src).Error
}

// ActiveSources returns the sources to poll, by name.
func (r *Repository) ActiveSources(ctx context.Context) ([]*ExternalSource, error) {
	var out []*ExternalSource
	err := r.db.WithContext(ctx).Where("active = ?", true).Order("name ASC").Find(&out).Error
	return out, err
}

// SetSourceActive toggles a source.
func (r *Repository) SetSourceActive(ctx context.Context, name string, active bool) error {
	res := r.db.WithContext(ctx).Model(&ExternalSource{}).Where("name = ?", name).Update("active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("source %s: %w", name, core.ErrNotFound)
	}
	return nil
}

// TouchSource stamps the last successful fetch time of a source.
func (r *Repository) TouchSource(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&ExternalSource{}).Where("id = ?", id).Update("last_fetched_at", at).Error
}
