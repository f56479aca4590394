package social

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jdziat/newsdesk/pkg/core"
)

// Webhook posts articles as JSON to an HTTP endpoint, for platforms bridged
// through an automation service.
type Webhook struct {
	platform string
	url      string
	token    string
	client   *http.Client
}

var _ Publisher = (*Webhook)(nil)

func NewWebhook(platform, url, token string, timeout time.Duration) *Webhook {
	if platform == "" {
		platform = "webhook"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Webhook{platform: platform, url: url, token: token, client: &http.Client{Timeout: timeout}}
}

func (w *Webhook) Platform() string { return w.platform }

type webhookPayload struct {
	DeliveryID string `json:"deliveryId"`
	Platform   string `json:"platform"`
	ArticleID  string `json:"articleId"`
	Caption    string `json:"caption"`
	ImageURL   string `json:"imageUrl,omitempty"`
	Link       string `json:"link,omitempty"`
}

// Publish sends the post. The response may carry {"id": "..."}; otherwise
// the delivery id is used as the post id. A 204 means the receiver skipped
// the post.
func (w *Webhook) Publish(ctx context.Context, post Post) (*Result, error) {
	delivery := uuid.New().String()
	body, err := json.Marshal(webhookPayload{
		DeliveryID: delivery,
		Platform:   w.platform,
		ArticleID:  post.ArticleID,
		Caption:    post.Caption,
		ImageURL:   post.ImageURL,
		Link:       post.Link,
	})
	if err != nil {
		return nil, fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return nil, core.NoRetry(fmt.Errorf("webhook request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", post.ArticleID+":"+w.platform)
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, core.ExternalFailure(w.platform, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return &Result{}, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var out struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(raw, &out); err == nil && out.ID != "" {
			return &Result{PostID: out.ID}, nil
		}
		return &Result{PostID: delivery}, nil
	}

	failure := core.ExternalFailure(w.platform, fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(raw)))
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, core.RetryAfter(time.Minute, failure)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, core.NoRetry(failure)
	default:
		return nil, failure
	}
}
