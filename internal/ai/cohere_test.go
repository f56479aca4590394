package ai

import (
	"context"
	"errors"
	"testing"

	cohere "github.com/cohere-ai/cohere-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/newsdesk/pkg/core"
)

func TestCohere_Complete(t *testing.T) {
	var got *cohere.ChatRequest
	c := &Cohere{
		model: "command-r",
		chat: func(_ context.Context, req *cohere.ChatRequest) (*cohere.NonStreamedChatResponse, error) {
			got = req
			return &cohere.NonStreamedChatResponse{Text: "Rewritten."}, nil
		},
	}

	out, err := c.Complete(context.Background(), "rewrite it", "Title: x")
	require.NoError(t, err)
	assert.Equal(t, "Rewritten.", out)
	require.NotNil(t, got)
	assert.Equal(t, "Title: x", got.Message)
	require.NotNil(t, got.Model)
	assert.Equal(t, "command-r", *got.Model)
	require.NotNil(t, got.Preamble)
	assert.Equal(t, "rewrite it", *got.Preamble)
}

func TestCohere_ErrorIsExternalFailure(t *testing.T) {
	c := &Cohere{
		model: "command-r",
		chat: func(context.Context, *cohere.ChatRequest) (*cohere.NonStreamedChatResponse, error) {
			return nil, errors.New("gateway timeout")
		},
	}
	_, err := c.Complete(context.Background(), "i", "p")
	assert.ErrorIs(t, err, core.ErrExternalService)
}

func TestNewCohere_EmptyKey(t *testing.T) {
	assert.Nil(t, NewCohere("", "", 0))
	assert.Nil(t, NewOpenAI("", "", "", 0))
}
