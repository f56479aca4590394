package social

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/newsdesk/internal/config"
	"github.com/jdziat/newsdesk/pkg/core"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry(NewWebhook("mastodon", "http://hook", "", time.Second))
	r.Register(NewTelegram("tok", "chat", "", time.Second))

	assert.Equal(t, []string{"mastodon", "telegram"}, r.Platforms())

	p, err := r.Get("Telegram")
	require.NoError(t, err)
	assert.Equal(t, "telegram", p.Platform())

	_, err = r.Get("x")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrConfigurationMissing)
	var nr *core.NoRetryError
	assert.True(t, errors.As(err, &nr))
}

func TestNewFromConfig(t *testing.T) {
	r := NewFromConfig(config.SocialConfig{
		Telegram: config.TelegramConfig{BotToken: "tok"},
		Webhook:  config.WebhookConfig{Platform: "linkedin", URL: "http://hook"},
	})
	// Telegram needs both token and chat id.
	assert.Equal(t, []string{"linkedin"}, r.Platforms())
}

func TestClip(t *testing.T) {
	assert.Equal(t, "short", clip("short", 10))
	assert.Equal(t, "abcd…", clip("abcdefgh", 5))
}

// ──────────────────────────────────────────────────────────────────────────────
// Telegram
// ──────────────────────────────────────────────────────────────────────────────

func telegramServer(t *testing.T, status int, reply string, seen func(path string, form url.Values)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if seen != nil {
			seen(r.URL.Path, r.PostForm)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTelegram_SendPhoto(t *testing.T) {
	var path string
	var form url.Values
	srv := telegramServer(t, http.StatusOK, `{"ok":true,"result":{"message_id":4711}}`, func(p string, f url.Values) {
		path, form = p, f
	})

	tg := NewTelegram("123:abc", "@newsroom", srv.URL, time.Second)
	res, err := tg.Publish(context.Background(), Post{
		ArticleID: "a1",
		Caption:   "Markets rally",
		ImageURL:  "https://cdn.example/a1/default.png",
		Link:      "https://news.example/markets-rally",
	})
	require.NoError(t, err)
	assert.Equal(t, "4711", res.PostID)
	assert.Equal(t, "/bot123:abc/sendPhoto", path)
	assert.Equal(t, "@newsroom", form.Get("chat_id"))
	assert.Equal(t, "https://cdn.example/a1/default.png", form.Get("photo"))
	assert.Equal(t, "Markets rally\n\nhttps://news.example/markets-rally", form.Get("caption"))
}

func TestTelegram_SendMessageWithoutAbsoluteImage(t *testing.T) {
	var path string
	var form url.Values
	srv := telegramServer(t, http.StatusOK, `{"ok":true,"result":{"message_id":9}}`, func(p string, f url.Values) {
		path, form = p, f
	})

	res, err := NewTelegram("tok", "1", srv.URL, time.Second).Publish(context.Background(), Post{
		Caption:  strings.Repeat("x", 5000),
		ImageURL: "/media/a1/default.png",
	})
	require.NoError(t, err)
	assert.Equal(t, "9", res.PostID)
	assert.Equal(t, "/bottok/sendMessage", path)
	assert.Len(t, []rune(form.Get("text")), telegramTextLimit)
}

func TestTelegram_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		reply     string
		noRetry   bool
		wantDelay time.Duration
	}{
		{"rate limited", http.StatusTooManyRequests, `{"ok":false,"error_code":429,"description":"Too Many Requests","parameters":{"retry_after":17}}`, false, 17 * time.Second},
		{"chat not found", http.StatusBadRequest, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`, true, 0},
		{"server error", http.StatusBadGateway, `bad gateway`, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := telegramServer(t, tt.status, tt.reply, nil)
			_, err := NewTelegram("tok", "1", srv.URL, time.Second).Publish(context.Background(), Post{Caption: "c"})
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrExternalService)

			var nr *core.NoRetryError
			assert.Equal(t, tt.noRetry, errors.As(err, &nr))
			var ra *core.RetryAfterError
			if tt.wantDelay > 0 {
				require.True(t, errors.As(err, &ra))
				assert.Equal(t, tt.wantDelay, ra.Delay)
			} else {
				assert.False(t, errors.As(err, &ra))
			}
		})
	}
}

func TestTelegram_TransportErrorHidesToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	base := srv.URL
	srv.Close()

	_, err := NewTelegram("secret-token", "1", base, time.Second).Publish(context.Background(), Post{Caption: "c"})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrExternalService)
	assert.NotContains(t, err.Error(), "secret-token")
}

// ──────────────────────────────────────────────────────────────────────────────
// Webhook
// ──────────────────────────────────────────────────────────────────────────────

func TestWebhook_Publish(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		assert.Equal(t, "a1:linkedin", r.Header.Get("Idempotency-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"id":"urn:li:share:1"}`)
	}))
	defer srv.Close()

	res, err := NewWebhook("linkedin", srv.URL, "s3cret", time.Second).Publish(context.Background(), Post{
		ArticleID: "a1", Caption: "hello", ImageURL: "https://cdn/x.png",
	})
	require.NoError(t, err)
	assert.Equal(t, "urn:li:share:1", res.PostID)
	assert.Equal(t, "linkedin", got.Platform)
	assert.Equal(t, "hello", got.Caption)
	assert.NotEmpty(t, got.DeliveryID)
}

func TestWebhook_FallsBackToDeliveryID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	res, err := NewWebhook("", srv.URL, "", time.Second).Publish(context.Background(), Post{ArticleID: "a1"})
	require.NoError(t, err)
	assert.Len(t, res.PostID, 36)
}

func TestWebhook_NoContentIsSkip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	res, err := NewWebhook("", srv.URL, "", time.Second).Publish(context.Background(), Post{ArticleID: "a1"})
	require.NoError(t, err)
	assert.Empty(t, res.PostID)
}

func TestWebhook_Errors(t *testing.T) {
	for status, noRetry := range map[int]bool{
		http.StatusUnprocessableEntity: true,
		http.StatusServiceUnavailable:  false,
		http.StatusTooManyRequests:     false,
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
		}))
		_, err := NewWebhook("", srv.URL, "", time.Second).Publish(context.Background(), Post{})
		srv.Close()

		require.Error(t, err, "status %d", status)
		var nr *core.NoRetryError
		assert.Equal(t, noRetry, errors.As(err, &nr), "status %d", status)
	}
}
