package gemini

import (
	"context"
	"fmt"

	"github.com/itsneelabh/gomind-learning/ai"
	"github.com/itsneelabh/gomind-learning/core"
	"github.com/itsneelabh/gomind-learning/telemetry"
	"google.golang.org/genai"
)

func init() {
	ai.MustRegister(&Factory{})
}

// Factory creates Gemini clients
type Factory struct{}

// Name returns the provider name
func (f *Factory) Name() string {
	return ai.ProviderGemini
}

// Description returns provider description
func (f *Factory) Description() string {
	return "Google Gemini models via the GenAI SDK (embeddings and generation)"
}

// DetectEnvironment checks if Gemini is configured and returns priority
func (f *Factory) DetectEnvironment() (priority int, available bool) {
	if ai.APIKeyFromEnv("", "GEMINI_API_KEY", "GOOGLE_API_KEY") != "" {
		return 70, true
	}
	return 0, false
}

// NewEmbedder creates a Gemini embedder
func (f *Factory) NewEmbedder(cfg core.AIConfig, dimension int) (core.Embedder, error) {
	client, err := f.newGenAIClient(cfg)
	if err != nil {
		return nil, err
	}
	model := cfg.Model
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return NewClient(client, model, dimension), nil
}

// NewGenerator creates a Gemini text generator
func (f *Factory) NewGenerator(cfg core.AIConfig) (core.TextGenerator, error) {
	client, err := f.newGenAIClient(cfg)
	if err != nil {
		return nil, err
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return NewClient(client, model, 0), nil
}

func (f *Factory) newGenAIClient(cfg core.AIConfig) (*genai.Client, error) {
	apiKey := ai.APIKeyFromEnv(cfg.APIKey, "GEMINI_API_KEY", "GOOGLE_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required: %w", core.ErrMissingConfiguration)
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: telemetry.NewHTTPClient(cfg.Timeout),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return client, nil
}
