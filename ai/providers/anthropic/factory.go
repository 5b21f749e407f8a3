package anthropic

import (
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/itsneelabh/gomind-learning/ai"
	"github.com/itsneelabh/gomind-learning/core"
	"github.com/itsneelabh/gomind-learning/telemetry"
)

func init() {
	ai.MustRegister(&Factory{})
}

// Factory creates Anthropic clients
type Factory struct{}

// Name returns the provider name
func (f *Factory) Name() string {
	return ai.ProviderAnthropic
}

// Description returns provider description
func (f *Factory) Description() string {
	return "Anthropic Claude models via the Messages API (generation only)"
}

// DetectEnvironment checks if Anthropic is configured and returns priority
func (f *Factory) DetectEnvironment() (priority int, available bool) {
	if ai.APIKeyFromEnv("", "ANTHROPIC_API_KEY") != "" {
		return 80, true
	}
	return 0, false
}

// NewEmbedder is unsupported: the Messages API has no embeddings.
func (f *Factory) NewEmbedder(cfg core.AIConfig, dimension int) (core.Embedder, error) {
	return nil, fmt.Errorf("anthropic embeddings: %w", ai.ErrCapabilityUnsupported)
}

// NewGenerator creates an Anthropic text generator
func (f *Factory) NewGenerator(cfg core.AIConfig) (core.TextGenerator, error) {
	apiKey := ai.APIKeyFromEnv(cfg.APIKey, "ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required: %w", core.ErrMissingConfiguration)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(telemetry.NewHTTPClient(cfg.Timeout)),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return NewClient(anthropic.NewClient(opts...), cfg.Model), nil
}
