package ai

import (
	"context"
	"net/http"
	"time"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"

	"github.com/jdziat/newsdesk/pkg/core"
)

type cohereChat func(ctx context.Context, req *cohere.ChatRequest) (*cohere.NonStreamedChatResponse, error)

// Cohere completes prompts with the Cohere chat API.
type Cohere struct {
	chat    cohereChat
	model   string
	timeout time.Duration
}

// NewCohere returns nil when apiKey is empty.
func NewCohere(apiKey, model string, timeout time.Duration) *Cohere {
	if apiKey == "" {
		return nil
	}
	client := cohereclient.NewClient(
		cohereclient.WithToken(apiKey),
		cohereclient.WithHTTPClient(&http.Client{Timeout: 2 * max(timeout, 30*time.Second)}),
	)
	if model == "" {
		model = "command-r"
	}
	return &Cohere{
		chat: func(ctx context.Context, req *cohere.ChatRequest) (*cohere.NonStreamedChatResponse, error) {
			return client.Chat(ctx, req)
		},
		model:   model,
		timeout: timeout,
	}
}

func (c *Cohere) Name() string { return "cohere" }

func (c *Cohere) Complete(ctx context.Context, instruction, prompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	model := c.model
	resp, err := c.chat(ctx, &cohere.ChatRequest{
		Message:  prompt,
		Model:    &model,
		Preamble: &instruction,
	})
	if err != nil {
		return "", core.ExternalFailure("cohere", err)
	}
	if resp == nil {
		return "", nil
	}
	return resp.Text, nil
}
