// Package ingest pulls candidate articles from configured RSS/Atom sources
// and de-duplicates them before the fetch trigger stores them.
package ingest

import (
	"context"
	"time"

	"github.com/jdziat/newsdesk/internal/article"
)

// Candidate is an article found upstream that has not been stored yet.
type Candidate struct {
	Title       string
	Content     string
	URL         string
	Source      string
	Category    string
	PublishedAt time.Time
	ImageURL    string
	Tags        []string
}

// Feed produces a de-duplicated sequence of candidates ordered by
// publication time, oldest first. An empty categories slice means all.
type Feed interface {
	Fetch(ctx context.Context, categories []string) ([]Candidate, error)
}

// SourceStore is the subset of the article repository the feed needs.
type SourceStore interface {
	ActiveSources(ctx context.Context) ([]*article.ExternalSource, error)
	TouchSource(ctx context.Context, id uint, at time.Time) error
}
