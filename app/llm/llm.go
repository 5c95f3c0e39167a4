// Package llm is a small client for the OpenAI chat completions gateway.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

var (
	ErrNotConfigured = errors.New("llm gateway not configured")
	ErrEmptyReply    = errors.New("llm returned no content")
)

// Prompt is one system+user exchange.
type Prompt struct {
	System    string
	User      string
	MaxTokens int
}

type Client struct {
	api     *openai.Client
	model   string
	timeout time.Duration
	log     *zap.Logger
}

// New returns a client for apiKey. baseURL overrides the gateway root and may
// be empty. A client without an apiKey answers ErrNotConfigured.
func New(apiKey, baseURL, model string, timeout time.Duration, log *zap.Logger) *Client {
	c := &Client{model: model, timeout: timeout, log: log}
	if apiKey == "" {
		log.Info("llm disabled: OPENAI_API_KEY not set")
		return c
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	c.api = openai.NewClientWithConfig(cfg)
	return c
}

func (c *Client) Configured() bool {
	return c != nil && c.api != nil
}

// Complete sends p and returns the first choice's text.
func (c *Client) Complete(ctx context.Context, p Prompt) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   p.MaxTokens,
		Temperature: 0.4,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.System},
			{Role: openai.ChatMessageRoleUser, Content: p.User},
		},
	}
	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	c.log.Debug("llm completion",
		zap.String("model", resp.Model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("took", time.Since(start)),
	)
	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}
