// Package gemini provides embeddings and text generation over the Google
// GenAI SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/itsneelabh/gomind-learning/ai"
	"github.com/itsneelabh/gomind-learning/core"
	"google.golang.org/genai"
)

const (
	// DefaultModel is used for text generation when none is configured
	DefaultModel = "gemini-2.5-flash"
	// DefaultEmbeddingModel is used for embeddings when none is configured
	DefaultEmbeddingModel = "gemini-embedding-001"
)

// Client implements core.Embedder and core.TextGenerator for Gemini.
type Client struct {
	client    *genai.Client
	model     string
	dimension int
}

// NewClient wraps an existing genai client.
func NewClient(client *genai.Client, model string, dimension int) *Client {
	return &Client{client: client, model: model, dimension: dimension}
}

// Dimension returns the embedding size after truncation.
func (c *Client) Dimension() int { return c.dimension }

// Embed returns the embedding of text, truncated to the configured dimension.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(text, genai.RoleUser),
	}

	result, err := c.client.Models.EmbedContent(ctx, c.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini embed failed: %w", err)
	}
	if len(result.Embeddings) == 0 || result.Embeddings[0] == nil {
		return nil, errors.New("gemini returned no embeddings")
	}
	return ai.FitDimension(result.Embeddings[0].Values, c.dimension)
}

// GenerateText runs a single-turn GenerateContent call and joins the text parts.
func (c *Client) GenerateText(ctx context.Context, prompt string, opts core.GenerateOptions) (string, error) {
	config := &genai.GenerateContentConfig{}
	if opts.Temperature > 0 {
		config.Temperature = ptr(float32(opts.Temperature))
	}
	if opts.MaxTokens > 0 {
		config.MaxOutputTokens = int32(opts.MaxTokens)
	}
	if opts.System != "" {
		config.SystemInstruction = genai.NewContentFromText(opts.System, genai.RoleUser)
	}

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini generate failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("gemini returned no candidates")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			b.WriteString(part.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", errors.New("gemini returned empty text")
	}
	return text, nil
}

func ptr[T any](v T) *T {
	return &v
}
