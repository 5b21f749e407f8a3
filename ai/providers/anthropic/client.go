// Package anthropic provides text generation over the Anthropic Messages API.
// Anthropic has no embedding endpoint; pair it with another embedding provider.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/itsneelabh/gomind-learning/core"
)

const (
	// DefaultModel is used when none is configured
	DefaultModel = "claude-sonnet-4-20250514"
	// DefaultMaxTokens bounds responses when the caller sets no limit
	DefaultMaxTokens = 1024
)

// Client implements core.TextGenerator for Anthropic.
type Client struct {
	client anthropic.Client
	model  string
}

// NewClient wraps an existing SDK client.
func NewClient(client anthropic.Client, model string) *Client {
	if model == "" {
		model = DefaultModel
	}
	return &Client{client: client, model: model}
}

// GenerateText sends prompt as a single user message and joins the text blocks.
func (c *Client) GenerateText(ctx context.Context, prompt string, opts core.GenerateOptions) (string, error) {
	maxTokens := int64(opts.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if opts.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: opts.System},
		}
	}
	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic api error: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", errors.New("anthropic returned no text")
	}
	return text, nil
}
