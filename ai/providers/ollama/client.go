// Package ollama provides embeddings and text generation against a local or
// remote Ollama server.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/itsneelabh/gomind-learning/ai"
	"github.com/itsneelabh/gomind-learning/core"
	"github.com/ollama/ollama/api"
)

const (
	// DefaultBaseURL is the standard local Ollama endpoint
	DefaultBaseURL = "http://localhost:11434"
	// DefaultModel is used for generation when none is configured
	DefaultModel = "llama3.2"
	// DefaultEmbeddingModel is used for embeddings when none is configured
	DefaultEmbeddingModel = "nomic-embed-text"
)

// Client implements core.Embedder and core.TextGenerator for Ollama.
type Client struct {
	client    *api.Client
	model     string
	dimension int
}

// NewClient wraps an existing Ollama API client.
func NewClient(client *api.Client, model string, dimension int) *Client {
	return &Client{client: client, model: model, dimension: dimension}
}

// Dimension returns the embedding size after truncation.
func (c *Client) Dimension() int { return c.dimension }

// Embed returns the embedding of text, truncated to the configured dimension.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.Embed(ctx, &api.EmbedRequest{
		Model: c.model,
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embed failed: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, errors.New("ollama returned no embeddings")
	}
	return ai.FitDimension(resp.Embeddings[0], c.dimension)
}

// GenerateText runs a non-streaming chat request.
func (c *Client) GenerateText(ctx context.Context, prompt string, opts core.GenerateOptions) (string, error) {
	messages := make([]api.Message, 0, 2)
	if opts.System != "" {
		messages = append(messages, api.Message{Role: "system", Content: opts.System})
	}
	messages = append(messages, api.Message{Role: "user", Content: prompt})

	stream := false
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &stream,
		Options:  map[string]interface{}{},
	}
	if opts.MaxTokens > 0 {
		req.Options["num_predict"] = opts.MaxTokens
	}
	if opts.Temperature > 0 {
		req.Options["temperature"] = opts.Temperature
	}

	var b strings.Builder
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		b.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat failed: %w", err)
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", errors.New("ollama returned empty text")
	}
	return text, nil
}
