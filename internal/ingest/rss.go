package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"

	"github.com/jdziat/newsdesk/internal/article"
	"github.com/jdziat/newsdesk/internal/config"
)

// sourceParallelism bounds how many sources are polled at once.
const sourceParallelism = 4

// fullTextThreshold is the description length below which the full text is
// extracted from the article page, when extraction is enabled.
const fullTextThreshold = 600

// RSSFeed reads every active RSS/Atom source.
type RSSFeed struct {
	store     SourceStore
	parser    *gofeed.Parser
	extractor Extractor
	seen      SeenSet
	maxItems  int
	timeout   time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

var _ Feed = (*RSSFeed)(nil)

// NewRSSFeed creates a feed over the sources in store. extractor may be nil.
func NewRSSFeed(store SourceStore, cfg config.IngestConfig, extractor Extractor, logger *slog.Logger) *RSSFeed {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: timeout}
	parser.UserAgent = "newsdesk/1.0 (+rss)"
	return &RSSFeed{
		store:     store,
		parser:    parser,
		extractor: extractor,
		maxItems:  cfg.MaxItemsPerFeed,
		timeout:   timeout,
		logger:    logger,
		now:       time.Now,
	}
}

// WithSeenSet skips full-text extraction for candidates already in seen.
func (f *RSSFeed) WithSeenSet(seen SeenSet) *RSSFeed {
	f.seen = seen
	return f
}

// Fetch polls every active source matching categories. A feed that fails is
// logged and skipped; Fetch fails only when every polled feed failed.
func (f *RSSFeed) Fetch(ctx context.Context, categories []string) ([]Candidate, error) {
	sources, err := f.store.ActiveSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}

	var (
		mu        sync.Mutex
		out       []Candidate
		attempted int
		failed    int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sourceParallelism)

	for _, src := range sources {
		settings, err := src.Settings()
		if err != nil {
			f.logger.Warn("skipping source with invalid config", "source", src.Name, "error", err)
			continue
		}
		if !matchesCategories(settings.Categories, categories) {
			continue
		}

		g.Go(func() error {
			items, ok, bad := f.fetchSource(gctx, src, settings)
			mu.Lock()
			out = append(out, items...)
			attempted += ok + bad
			failed += bad
			mu.Unlock()
			if ok > 0 {
				if err := f.store.TouchSource(gctx, src.ID, f.now()); err != nil {
					f.logger.Warn("failed to stamp source fetch time", "source", src.Name, "error", err)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if attempted > 0 && failed == attempted {
		return nil, errors.New("ingest: every feed failed")
	}
	return Dedup(out), nil
}

// fetchSource returns the kept items and the number of feeds that succeeded
// and failed.
func (f *RSSFeed) fetchSource(ctx context.Context, src *article.ExternalSource, settings article.SourceSettings) ([]Candidate, int, int) {
	var (
		items     []Candidate
		succeeded int
		failed    int
	)
	for _, feedURL := range settings.Feeds {
		if ctx.Err() != nil {
			break
		}
		got, err := f.fetchFeed(ctx, src.Name, feedURL, settings)
		if err != nil {
			failed++
			f.logger.Warn("feed fetch failed", "source", src.Name, "feed", feedURL, "error", err)
			continue
		}
		succeeded++
		items = append(items, got...)
	}
	return items, succeeded, failed
}

func (f *RSSFeed) fetchFeed(ctx context.Context, sourceName, feedURL string, settings article.SourceSettings) ([]Candidate, error) {
	fctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	feed, err := f.parser.ParseURLWithContext(feedURL, fctx)
	if err != nil {
		return nil, err
	}

	count := len(feed.Items)
	if f.maxItems > 0 && count > f.maxItems {
		count = f.maxItems
	}

	out := make([]Candidate, 0, count)
	for _, item := range feed.Items[:count] {
		c := f.toCandidate(sourceName, item, settings)
		if c.Title == "" || c.URL == "" {
			continue
		}
		if !matchesKeywords(settings.Keywords, c) {
			continue
		}
		if f.extractor != nil && len(c.Content) < fullTextThreshold && !f.alreadySeen(ctx, c) {
			text, err := f.extractor.Extract(ctx, c.URL)
			if err != nil {
				f.logger.Debug("full text extraction failed", "url", c.URL, "error", err)
			} else if len(text) > len(c.Content) {
				c.Content = text
			}
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *RSSFeed) alreadySeen(ctx context.Context, c Candidate) bool {
	if f.seen == nil {
		return false
	}
	seen, err := f.seen.Seen(ctx, SeenKey(c))
	if err != nil {
		f.logger.Debug("seen set lookup failed", "error", err)
		return false
	}
	return seen
}

func (f *RSSFeed) toCandidate(sourceName string, item *gofeed.Item, settings article.SourceSettings) Candidate {
	raw := item.Content
	if raw == "" {
		raw = item.Description
	}

	published := f.now()
	if item.PublishedParsed != nil {
		published = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		published = *item.UpdatedParsed
	}

	link := strings.TrimSpace(item.Link)
	if link == "" && len(item.Links) > 0 {
		link = strings.TrimSpace(item.Links[0])
	}

	c := Candidate{
		Title:       strings.TrimSpace(HTMLToText(item.Title)),
		Content:     HTMLToText(raw),
		URL:         link,
		Source:      sourceName,
		PublishedAt: published.UTC(),
		ImageURL:    imageOf(item),
		Tags:        append([]string(nil), item.Categories...),
	}
	switch {
	case len(settings.Categories) > 0:
		c.Category = settings.Categories[0]
	case len(item.Categories) > 0:
		c.Category = strings.ToLower(item.Categories[0])
	}
	return c
}

func imageOf(item *gofeed.Item) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") {
			return enc.URL
		}
	}
	return ""
}

// matchesCategories reports whether a source tagged with have should be
// polled for the requested categories. Untagged sources and empty requests
// always match.
func matchesCategories(have, want []string) bool {
	if len(have) == 0 || len(want) == 0 {
		return true
	}
	for _, w := range want {
		for _, h := range have {
			if strings.EqualFold(w, h) {
				return true
			}
		}
	}
	return false
}

func matchesKeywords(keywords []string, c Candidate) bool {
	if len(keywords) == 0 {
		return true
	}
	haystack := strings.ToLower(c.Title + "\n" + c.Content + "\n" + strings.Join(c.Tags, " "))
	for _, kw := range keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" && strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}
