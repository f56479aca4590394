package social

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jdziat/newsdesk/pkg/core"
)

const (
	telegramCaptionLimit = 1024
	telegramTextLimit    = 4096
)

// Telegram posts to a chat through the Bot API. Posts with an absolute image
// URL go out as sendPhoto, everything else as sendMessage.
type Telegram struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
}

var _ Publisher = (*Telegram)(nil)

// NewTelegram registers bot token and chat identifier.
func NewTelegram(botToken, chatID, apiBase string, timeout time.Duration) *Telegram {
	if apiBase == "" {
		apiBase = "https://api.telegram.org"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Telegram{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  strings.TrimRight(apiBase, "/"),
		client:   &http.Client{Timeout: timeout},
	}
}

func (t *Telegram) Platform() string { return "telegram" }

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	ErrorCode   int    `json:"error_code"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
	Parameters struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

func (t *Telegram) Publish(ctx context.Context, post Post) (*Result, error) {
	if t.botToken == "" || t.chatID == "" {
		return nil, core.NoRetry(fmt.Errorf("telegram: %w", core.ErrConfigurationMissing))
	}

	text := post.Caption
	if post.Link != "" && !strings.Contains(text, post.Link) {
		text = strings.TrimSpace(text + "\n\n" + post.Link)
	}

	form := url.Values{}
	form.Set("chat_id", t.chatID)
	method := "sendMessage"
	if isAbsoluteURL(post.ImageURL) {
		method = "sendPhoto"
		form.Set("photo", post.ImageURL)
		form.Set("caption", clip(text, telegramCaptionLimit))
	} else {
		form.Set("text", clip(text, telegramTextLimit))
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", t.apiBase, t.botToken, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		// The request URL embeds the bot token; keep it out of job errors.
		var ue *url.Error
		if errors.As(err, &ue) {
			err = fmt.Errorf("%s %s: %w", ue.Op, method, ue.Err)
		}
		return nil, core.ExternalFailure("telegram", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, core.ExternalFailure("telegram", err)
	}
	var tr telegramResponse
	_ = json.Unmarshal(body, &tr)

	if resp.StatusCode == http.StatusOK && tr.OK {
		return &Result{PostID: strconv.FormatInt(tr.Result.MessageID, 10)}, nil
	}

	desc := tr.Description
	if desc == "" {
		desc = resp.Status
	}
	failure := core.ExternalFailure("telegram", fmt.Errorf("%s: %s", method, desc))
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		delay := time.Duration(tr.Parameters.RetryAfter) * time.Second
		if delay <= 0 {
			delay = 30 * time.Second
		}
		return nil, core.RetryAfter(delay, failure)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, core.NoRetry(failure)
	default:
		return nil, failure
	}
}

func isAbsoluteURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
