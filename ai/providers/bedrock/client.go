// Package bedrock provides embeddings and text generation over AWS Bedrock:
// the Converse API for text and Titan embedding models through InvokeModel.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/itsneelabh/gomind-learning/ai"
	"github.com/itsneelabh/gomind-learning/core"
)

const (
	// DefaultModel is used for text generation when none is configured
	DefaultModel = "anthropic.claude-3-haiku-20240307-v1:0"
	// DefaultEmbeddingModel is used for embeddings when none is configured
	DefaultEmbeddingModel = "amazon.titan-embed-text-v2:0"
)

// RuntimeAPI is the subset of *bedrockruntime.Client the provider calls.
type RuntimeAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Client implements core.Embedder and core.TextGenerator for Bedrock.
type Client struct {
	api       RuntimeAPI
	model     string
	dimension int
}

// NewClient wraps a Bedrock runtime client.
func NewClient(api RuntimeAPI, model string, dimension int) *Client {
	return &Client{api: api, model: model, dimension: dimension}
}

// Dimension returns the embedding size after truncation.
func (c *Client) Dimension() int { return c.dimension }

type titanEmbedRequest struct {
	InputText string `json:"inputText"`
}

type titanEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed invokes the Titan embedding model and truncates to the configured dimension.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(titanEmbedRequest{InputText: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embed request: %w", err)
	}

	out, err := c.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.model),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock invoke model error: %w", err)
	}

	var resp titanEmbedResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse embed response: %w", err)
	}
	if len(resp.Embedding) == 0 {
		return nil, errors.New("bedrock returned no embedding")
	}
	return ai.FitDimension(resp.Embedding, c.dimension)
}

// GenerateText runs a single-turn Converse call and joins the text blocks.
func (c *Client) GenerateText(ctx context.Context, prompt string, opts core.GenerateOptions) (string, error) {
	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(c.model),
		Messages: []types.Message{
			{
				Role:    types.ConversationRoleUser,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: prompt}},
			},
		},
	}
	if opts.System != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: opts.System},
		}
	}
	if opts.MaxTokens > 0 || opts.Temperature > 0 {
		inference := &types.InferenceConfiguration{}
		if opts.MaxTokens > 0 {
			inference.MaxTokens = aws.Int32(int32(opts.MaxTokens))
		}
		if opts.Temperature > 0 {
			inference.Temperature = aws.Float32(float32(opts.Temperature))
		}
		input.InferenceConfig = inference
	}

	out, err := c.api.Converse(ctx, input)
	if err != nil {
		return "", fmt.Errorf("bedrock converse error: %w", err)
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", errors.New("unexpected output type from Bedrock")
	}

	var b strings.Builder
	for _, block := range msg.Value.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			b.WriteString(text.Value)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", errors.New("no text content in Bedrock response")
	}
	return text, nil
}
