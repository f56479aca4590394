package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// HTMLToText converts a feed description to plain text. Paragraphs and list
// items become separate lines; scripts and styles are dropped.
func HTMLToText(html string) string {
	if !strings.ContainsAny(html, "<&") {
		return collapse(html)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return collapse(html)
	}
	doc.Find("script, style, noscript").Remove()

	var blocks []string
	doc.Find("p, li, h1, h2, h3, h4, blockquote").Each(func(_ int, s *goquery.Selection) {
		if s.Find("p, li").Length() > 0 {
			return
		}
		if text := collapse(s.Text()); text != "" {
			blocks = append(blocks, text)
		}
	})
	if len(blocks) == 0 {
		return collapse(doc.Text())
	}
	return strings.Join(blocks, "\n\n")
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Extractor fetches the readable body of an article page.
type Extractor interface {
	Extract(ctx context.Context, pageURL string) (string, error)
}

// ReadabilityExtractor extracts article text with go-readability.
type ReadabilityExtractor struct {
	Timeout time.Duration
}

func (r ReadabilityExtractor) Extract(ctx context.Context, pageURL string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < timeout {
		timeout = time.Until(dl)
	}
	page, err := readability.FromURL(pageURL, timeout)
	if err != nil {
		return "", fmt.Errorf("readability extraction failed: %w", err)
	}
	return strings.TrimSpace(page.TextContent), nil
}
