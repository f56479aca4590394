// Package article holds the news records the job pipeline reads and enriches,
// and their GORM repository.
package article

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Status is the editorial state of an article.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

// Article is a news item. The AI fields start null and are filled by the
// content processor; AIProcessed is set once it has run.
type Article struct {
	ID                string `gorm:"primaryKey;size:36"`
	Title             string `gorm:"size:500;not null"`
	Slug              string `gorm:"uniqueIndex;size:255;not null"`
	Content           string `gorm:"type:text"`
	URL               string `gorm:"index;size:2048"`
	Source            string `gorm:"size:255"`
	Category          string `gorm:"index;size:100"`
	Tags              datatypes.JSON
	ImageURL          string `gorm:"size:2048"`
	Status            Status `gorm:"index;size:16;not null;default:draft"`
	SourcePublishedAt *time.Time
	PublishedAt       *time.Time `gorm:"index"`

	Summary          *string    `gorm:"type:text"`
	Headline         *string    `gorm:"type:text"`
	Commentary       *string    `gorm:"type:text"`
	RewrittenContent *string    `gorm:"type:text"`
	AIProcessed      bool       `gorm:"column:ai_processed;index;not null;default:false"`
	AIProcessedAt    *time.Time `gorm:"column:ai_processed_at"`
	AIError          string     `gorm:"column:ai_error;type:text"`

	SocialImageURL *string `gorm:"size:2048"`
	ImageGenerated bool    `gorm:"not null;default:false"`

	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

// TagList decodes the stored tags.
func (a *Article) TagList() []string {
	if len(a.Tags) == 0 {
		return nil
	}
	var tags []string
	if err := json.Unmarshal(a.Tags, &tags); err != nil {
		return nil
	}
	return tags
}

// DisplayTitle prefers the AI headline over the original title.
func (a *Article) DisplayTitle() string {
	if a.Headline != nil && *a.Headline != "" {
		return *a.Headline
	}
	return a.Title
}

// AIFields is the output of the content processor. Nil fields leave the stored
// value unchanged.
type AIFields struct {
	Summary          *string `json:"summary"`
	Headline         *string `json:"headline"`
	Commentary       *string `json:"commentary"`
	RewrittenContent *string `json:"rewrittenContent"`
}

// ExternalSource is a configured feed the ingestion component polls.
// Sources are seeded from configuration and never deleted.
type ExternalSource struct {
	ID            uint   `gorm:"primaryKey"`
	Name          string `gorm:"uniqueIndex;size:255;not null"`
	Kind          string `gorm:"size:32;not null;default:rss"`
	Active        bool   `gorm:"not null"`
	LastFetchedAt *time.Time
	Config        datatypes.JSON
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SourceSettings is the provider-specific configuration of a source.
type SourceSettings struct {
	Feeds      []string `json:"feeds"`
	Categories []string `json:"categories,omitempty"`
	Keywords   []string `json:"keywords,omitempty"`
}

// Settings decodes the source configuration.
func (s *ExternalSource) Settings() (SourceSettings, error) {
	var out SourceSettings
	if len(s.Config) == 0 {
		return out, nil
	}
	err := json.Unmarshal(s.Config, &out)
	return out, err
}

// PostStatus is the outcome of one publication attempt.
type PostStatus string

const (
	PostPublished PostStatus = "published"
	PostFailed    PostStatus = "failed"
	PostSkipped   PostStatus = "skipped"
)

// SocialPost records one publication attempt of an article to a platform.
type SocialPost struct {
	ID        string     `gorm:"primaryKey;size:36"`
	ArticleID string     `gorm:"index;size:36;not null"`
	Platform  string     `gorm:"size:64;not null"`
	Status    PostStatus `gorm:"index;size:16;not null"`
	PostID    string     `gorm:"size:255"`
	Caption   string     `gorm:"type:text"`
	ImageURL  string     `gorm:"size:2048"`
	Error     string     `gorm:"type:text"`
	JobID     string     `gorm:"index;size:36"`
	Attempt   int
	CreatedAt time.Time `gorm:"index"`
}
