package ai

import (
	"fmt"
	"os"
	"strings"

	"github.com/itsneelabh/gomind-learning/core"
)

// Standard provider names
const (
	ProviderHash      = "hash"
	ProviderGemini    = "gemini"
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
	ProviderAuto      = "auto" // Auto-detect from environment
	ProviderNone      = "none" // No text generation
)

// Options carries the ambient dependencies for built clients.
type Options struct {
	Resilience core.ResilienceConfig
	Logger     core.Logger
}

// NewEmbedder builds the configured embedder, wrapped with retry, circuit
// breaking and a per-call timeout. The hash embedder is returned unwrapped.
func NewEmbedder(cfg core.AIConfig, dimension int, opts Options) (core.Embedder, error) {
	name := cfg.EmbeddingProvider
	if name == "" {
		name = cfg.Provider
	}
	name, err := resolveProvider(name)
	if err != nil {
		return nil, err
	}

	factory, ok := GetProvider(name)
	if !ok {
		return nil, unknownProvider(name)
	}
	if cfg.EmbeddingModel != "" {
		cfg.Model = cfg.EmbeddingModel
	}

	embedder, err := factory.NewEmbedder(cfg, dimension)
	if err != nil {
		return nil, fmt.Errorf("create %s embedder: %w", name, err)
	}
	if name == ProviderHash {
		return embedder, nil
	}
	return NewResilientEmbedder(name, embedder, cfg.Timeout, opts)
}

// NewGenerator builds the configured text generator. It returns nil, nil
// when the provider has no generation capability, in which case callers use
// their statistical fallbacks.
func NewGenerator(cfg core.AIConfig, opts Options) (core.TextGenerator, error) {
	name, err := resolveProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}
	if name == ProviderNone {
		return nil, nil
	}

	factory, ok := GetProvider(name)
	if !ok {
		return nil, unknownProvider(name)
	}

	generator, err := factory.NewGenerator(cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s generator: %w", name, err)
	}
	if generator == nil {
		return nil, nil
	}
	return NewResilientGenerator(name, generator, cfg.Timeout, opts)
}

func resolveProvider(name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "":
		return ProviderHash, nil
	case ProviderAuto:
		return detectBestProvider()
	default:
		return name, nil
	}
}

func unknownProvider(name string) error {
	return &core.FrameworkError{
		Op:      "ai.NewProvider",
		Kind:    "config",
		Message: fmt.Sprintf("provider %q is not registered (available: %s)", name, strings.Join(ListProviders(), ", ")),
		Err:     core.ErrInvalidConfiguration,
	}
}

// APIKeyFromEnv returns configured, or the first non-empty environment variable.
func APIKeyFromEnv(configured string, envVars ...string) string {
	if configured != "" {
		return configured
	}
	for _, v := range envVars {
		if key := os.Getenv(v); key != "" {
			return key
		}
	}
	return ""
}

// FitDimension truncates v to dimension. Shorter vectors are an error:
// they cannot be compared with stored ones.
func FitDimension(v []float32, dimension int) ([]float32, error) {
	if dimension <= 0 || len(v) == dimension {
		return v, nil
	}
	if len(v) > dimension {
		return v[:dimension], nil
	}
	return nil, fmt.Errorf("embedding has %d dimensions, need at least %d", len(v), dimension)
}
