// Package social publishes article posts to social platforms.
package social

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/jdziat/newsdesk/internal/config"
	"github.com/jdziat/newsdesk/pkg/core"
)

// Post is one publication request.
type Post struct {
	ArticleID string
	Caption   string
	ImageURL  string
	Link      string
}

// Result identifies the created post. An empty PostID means the platform
// accepted the request but chose not to post.
type Result struct {
	PostID string
}

// Publisher posts to one platform.
type Publisher interface {
	Platform() string
	Publish(ctx context.Context, post Post) (*Result, error)
}

// Registry maps platform names to publishers.
type Registry struct {
	mu         sync.RWMutex
	publishers map[string]Publisher
}

// NewRegistry creates a registry holding pubs.
func NewRegistry(pubs ...Publisher) *Registry {
	r := &Registry{publishers: make(map[string]Publisher)}
	for _, p := range pubs {
		r.Register(p)
	}
	return r
}

// NewFromConfig registers the publishers that have credentials configured.
func NewFromConfig(cfg config.SocialConfig) *Registry {
	r := NewRegistry()
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		r.Register(NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.APIBase, cfg.Timeout))
	}
	if cfg.Webhook.URL != "" {
		r.Register(NewWebhook(cfg.Webhook.Platform, cfg.Webhook.URL, cfg.Webhook.Token, cfg.Timeout))
	}
	return r
}

// Register adds or replaces the publisher for p.Platform().
func (r *Registry) Register(p Publisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publishers[strings.ToLower(p.Platform())] = p
}

// Get returns the publisher for platform. An unknown platform is a terminal
// configuration error.
func (r *Registry) Get(platform string) (Publisher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.publishers[strings.ToLower(platform)]
	if !ok {
		return nil, core.NoRetry(fmt.Errorf("social platform %q: %w", platform, core.ErrConfigurationMissing))
	}
	return p, nil
}

// Platforms lists registered platform names, sorted.
func (r *Registry) Platforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.publishers))
	for name := range r.publishers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// clip shortens s to at most n runes, ending with an ellipsis when cut.
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n-1])) + "…"
}
