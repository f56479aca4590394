// Package ai is the text service the content processor calls: summary,
// headline, commentary and rewrite, backed by an OpenAI or Cohere completer.
package ai

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/jdziat/newsdesk/internal/config"
)

// Service produces the four AI fields of an article. Each call returns
// (nil, nil) when no provider is configured or the provider produced no
// text, and an error when the provider call failed.
type Service interface {
	Summarize(ctx context.Context, title, content string) (*string, error)
	Headline(ctx context.Context, title, content string) (*string, error)
	Commentary(ctx context.Context, title, content string) (*string, error)
	Rewrite(ctx context.Context, title, content string) (*string, error)
}

// Completer runs one instruction/prompt exchange against a language model.
type Completer interface {
	Name() string
	Complete(ctx context.Context, instruction, prompt string) (string, error)
}

const (
	summarizeInstruction  = "You are a news editor. Summarize the article in two or three factual sentences. Do not add opinions."
	headlineInstruction   = "You are a news editor. Write one concise, accurate headline of at most twelve words. Reply with the headline only, without quotes."
	commentaryInstruction = "You are a news analyst. Write a short paragraph of context explaining why this story matters to readers."
	rewriteInstruction    = "You are a news writer. Rewrite the article in clear, neutral prose, keeping every fact and quote. Reply with the article body only."
)

// TextService implements Service on top of a Completer.
type TextService struct {
	completer     Completer
	maxInputChars int
	logger        *slog.Logger
}

var _ Service = (*TextService)(nil)

// NewTextService wraps c. A nil completer yields a service whose calls all
// return (nil, nil). Article text longer than maxInputChars is truncated.
func NewTextService(c Completer, maxInputChars int, logger *slog.Logger) *TextService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TextService{completer: c, maxInputChars: maxInputChars, logger: logger}
}

// New builds the text service for the configured provider. A provider
// without an API key is treated as unconfigured.
func New(cfg config.AIConfig, logger *slog.Logger) *TextService {
	var c Completer
	switch cfg.Provider {
	case "openai":
		if o := NewOpenAI(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.Timeout); o != nil {
			c = o
		}
	case "cohere":
		if co := NewCohere(cfg.CohereKey, cfg.CohereModel, cfg.Timeout); co != nil {
			c = co
		}
	}
	if c == nil && logger != nil {
		logger.Warn("ai provider not configured, content processing will store empty fields", "provider", cfg.Provider)
	}
	return NewTextService(c, cfg.MaxInputChars, logger)
}

// Configured reports whether a provider is attached.
func (s *TextService) Configured() bool {
	return s.completer != nil
}

func (s *TextService) Summarize(ctx context.Context, title, content string) (*string, error) {
	return s.run(ctx, "summarize", summarizeInstruction, title, content)
}

func (s *TextService) Headline(ctx context.Context, title, content string) (*string, error) {
	return s.run(ctx, "headline", headlineInstruction, title, content)
}

func (s *TextService) Commentary(ctx context.Context, title, content string) (*string, error) {
	return s.run(ctx, "commentary", commentaryInstruction, title, content)
}

func (s *TextService) Rewrite(ctx context.Context, title, content string) (*string, error) {
	return s.run(ctx, "rewrite", rewriteInstruction, title, content)
}

func (s *TextService) run(ctx context.Context, op, instruction, title, content string) (*string, error) {
	if s.completer == nil {
		return nil, nil
	}
	prompt := "Title: " + title + "\n\n" + truncate(content, s.maxInputChars)

	out, err := s.completer.Complete(ctx, instruction, prompt)
	if err != nil {
		return nil, err
	}
	out = strings.TrimSpace(out)
	if op == "headline" {
		out = strings.Trim(out, "\"'")
	}
	if out == "" {
		s.logger.Debug("ai provider returned empty text", "op", op, "provider", s.completer.Name())
		return nil, nil
	}
	return &out, nil
}

// truncate cuts s to at most n runes. n <= 0 means no limit.
func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
