package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicConfig configures an AnthropicClient.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	MaxRetries   int
	RetryDelay   time.Duration
	DefaultModel string
}

// AnthropicClient adapts the Anthropic SDK to the model.Client contract.
type AnthropicClient struct {
	client       anthropic.Client
	maxRetries   int
	retryDelay   time.Duration
	defaultModel string
}

// NewAnthropicClient constructs an AnthropicClient from config, applying
// defaults for unset optional fields.
func NewAnthropicClient(config AnthropicConfig) (*AnthropicClient, error) {
	if config.APIKey == "" {
		return nil, errors.New("model: anthropic API key is required")
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "claude-sonnet-4-20250514"
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if strings.TrimSpace(config.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &AnthropicClient{
		client:       anthropic.NewClient(opts...),
		maxRetries:   config.MaxRetries,
		retryDelay:   config.RetryDelay,
		defaultModel: config.DefaultModel,
	}, nil
}

// Complete sends req to Claude's Messages API with retry on transient
// failures, returning the assembled response.
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (Response, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model(req.Model)),
		Messages:  c.convertMessages(req.Messages),
		MaxTokens: int64(c.maxTokens(req.MaxTokens)),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	var msg *anthropic.Message
	var err error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		msg, err = c.client.Messages.New(ctx, params)
		if err == nil {
			break
		}
		if !isRetryableAnthropicError(err) || attempt == c.maxRetries {
			break
		}
		backoff := time.Duration(float64(c.retryDelay) * math.Pow(2, float64(attempt)))
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case <-time.After(backoff):
		}
	}
	if err != nil {
		return Response{}, fmt.Errorf("model: anthropic request failed: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if t := block.AsText(); t.Text != "" {
			text.WriteString(t.Text)
		}
	}
	return Response{
		Content:      text.String(),
		Model:        string(msg.Model),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}, nil
}

// Stream issues a single Complete call and replays it as one final chunk.
// The underlying core never consumes Stream directly (spec §4.4 calls the
// LLM tool synchronously); this exists to satisfy the Client contract for
// callers above the core that want the streaming variant from spec §6.
func (c *AnthropicClient) Stream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	resp, err := c.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	ch := make(chan StreamChunk, 1)
	ch <- StreamChunk{Done: true, Content: resp.Content, Model: resp.Model, OutputTokens: resp.OutputTokens}
	close(ch)
	return ch, nil
}

func (c *AnthropicClient) model(requested string) string {
	if requested == "" {
		return c.defaultModel
	}
	return requested
}

func (c *AnthropicClient) maxTokens(requested int) int {
	if requested <= 0 {
		return 4096
	}
	return requested
}

func (c *AnthropicClient) convertMessages(messages []ChatMessage) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			continue
		}
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}

func isRetryableAnthropicError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "connection reset")
}
