package handler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/newsdesk/pkg/core"
)

// ---------------------------------------------------------------------------
// Helper types used across multiple tests
// ---------------------------------------------------------------------------

type testPayload struct {
	ArticleID string `json:"articleId"`
	Platform  string `json:"platform"`
}

type testResult struct {
	URL  string `json:"url"`
	Path string `json:"path"`
}

// ---------------------------------------------------------------------------
// NewHandler – rejection
// ---------------------------------------------------------------------------

func TestNewHandler_RejectsNil(t *testing.T) {
	_, err := NewHandler(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil")
}

func TestNewHandler_RejectsTypedNil(t *testing.T) {
	var fn func(ctx context.Context, p testPayload) error
	_, err := NewHandler(fn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil")
}

func TestNewHandler_RejectsNonFunction(t *testing.T) {
	for _, v := range []any{"not a function", 42, testPayload{}} {
		_, err := NewHandler(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "function")
	}
}

func TestNewHandler_RejectsBadSignatures(t *testing.T) {
	cases := map[string]any{
		"zero args":        func() error { return nil },
		"three args":       func(context.Context, int, int) error { return nil },
		"no return":        func(context.Context, testPayload) {},
		"non-error return": func(context.Context, testPayload) int { return 0 },
		"second not error": func(context.Context, testPayload) (int, int) { return 0, 0 },
		"three returns":    func(context.Context, testPayload) (int, int, error) { return 0, 0, nil },
	}
	for name, fn := range cases {
		_, err := NewHandler(fn)
		assert.Error(t, err, name)
	}
}

// ---------------------------------------------------------------------------
// NewHandler – acceptance
// ---------------------------------------------------------------------------

func TestNewHandler_ContextAndPayload(t *testing.T) {
	h, err := NewHandler(func(ctx context.Context, p testPayload) error { return nil })
	require.NoError(t, err)
	assert.True(t, h.HasContext)
	assert.False(t, h.HasResult)
	assert.Equal(t, "testPayload", h.ArgsType.Name())
}

func TestNewHandler_ContextOnly(t *testing.T) {
	h, err := NewHandler(func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	assert.True(t, h.HasContext)
	assert.Nil(t, h.ArgsType)
}

func TestNewHandler_WithResult(t *testing.T) {
	h, err := NewHandler(func(ctx context.Context, p testPayload) (*testResult, error) { return nil, nil })
	require.NoError(t, err)
	assert.True(t, h.HasResult)
}

// ---------------------------------------------------------------------------
// Execute
// ---------------------------------------------------------------------------

func TestHandler_Execute_InvalidFn(t *testing.T) {
	h := &Handler{}
	_, err := h.Execute(context.Background(), nil)
	require.Error(t, err)
}

func TestHandler_Execute_BadJSONIsTerminal(t *testing.T) {
	h, err := NewHandler(func(ctx context.Context, p testPayload) error { return nil })
	require.NoError(t, err)

	_, err = h.Execute(context.Background(), []byte(`{not json`))
	require.Error(t, err)

	var noRetry *core.NoRetryError
	assert.True(t, errors.As(err, &noRetry))
}

func TestHandler_Execute_DecodesPayload(t *testing.T) {
	var got testPayload
	h, err := NewHandler(func(ctx context.Context, p testPayload) error {
		got = p
		return nil
	})
	require.NoError(t, err)

	out, err := h.Execute(context.Background(), []byte(`{"articleId":"a1","platform":"telegram"}`))
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Equal(t, testPayload{ArticleID: "a1", Platform: "telegram"}, got)
}

func TestHandler_Execute_EmptyPayloadIsZeroValue(t *testing.T) {
	var called bool
	h, err := NewHandler(func(ctx context.Context, p testPayload) error {
		called = true
		assert.Empty(t, p.ArticleID)
		return nil
	})
	require.NoError(t, err)

	_, err = h.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, called)
}

func TestHandler_Execute_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	h, err := NewHandler(func(ctx context.Context, p testPayload) error { return boom })
	require.NoError(t, err)

	_, err = h.Execute(context.Background(), []byte(`{}`))
	assert.ErrorIs(t, err, boom)
}

func TestHandler_Execute_MarshalsResult(t *testing.T) {
	h, err := NewHandler(func(ctx context.Context, p testPayload) (*testResult, error) {
		return &testResult{URL: "https://cdn/x.png", Path: "social/x.png"}, nil
	})
	require.NoError(t, err)

	out, err := h.Execute(context.Background(), []byte(`{"articleId":"a1"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"url":"https://cdn/x.png","path":"social/x.png"}`, string(out))
}

func TestHandler_Execute_NilResult(t *testing.T) {
	h, err := NewHandler(func(ctx context.Context, p testPayload) (*testResult, error) { return nil, nil })
	require.NoError(t, err)

	out, err := h.Execute(context.Background(), []byte(`{}`))
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestHandler_Execute_ResultWithError(t *testing.T) {
	boom := errors.New("store failed")
	h, err := NewHandler(func(ctx context.Context, p testPayload) (*testResult, error) {
		return &testResult{URL: "ignored"}, boom
	})
	require.NoError(t, err)

	out, err := h.Execute(context.Background(), []byte(`{}`))
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, out)
}

type ctxKey struct{}

func TestHandler_Execute_ContextPropagation(t *testing.T) {
	h, err := NewHandler(func(ctx context.Context, p testPayload) (string, error) {
		return ctx.Value(ctxKey{}).(string), nil
	})
	require.NoError(t, err)

	ctx := context.WithValue(context.Background(), ctxKey{}, "propagated")
	out, err := h.Execute(ctx, []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, `"propagated"`, string(out))
}
