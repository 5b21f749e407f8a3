package ollama

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/itsneelabh/gomind-learning/ai"
	"github.com/itsneelabh/gomind-learning/core"
	"github.com/itsneelabh/gomind-learning/telemetry"
	"github.com/ollama/ollama/api"
)

func init() {
	ai.MustRegister(&Factory{})
}

// Factory creates Ollama clients
type Factory struct{}

// Name returns the provider name
func (f *Factory) Name() string {
	return ai.ProviderOllama
}

// Description returns provider description
func (f *Factory) Description() string {
	return "Local or self-hosted models served by Ollama (embeddings and generation)"
}

// DetectEnvironment reports Ollama as available when OLLAMA_HOST is set or
// the default port answers.
func (f *Factory) DetectEnvironment() (priority int, available bool) {
	if os.Getenv("OLLAMA_HOST") != "" {
		return 50, true
	}
	conn, err := net.DialTimeout("tcp", "localhost:11434", 200*time.Millisecond)
	if err != nil {
		return 0, false
	}
	conn.Close()
	return 50, true
}

// NewEmbedder creates an Ollama embedder
func (f *Factory) NewEmbedder(cfg core.AIConfig, dimension int) (core.Embedder, error) {
	client, err := newAPIClient(cfg)
	if err != nil {
		return nil, err
	}
	model := cfg.Model
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return NewClient(client, model, dimension), nil
}

// NewGenerator creates an Ollama text generator
func (f *Factory) NewGenerator(cfg core.AIConfig) (core.TextGenerator, error) {
	client, err := newAPIClient(cfg)
	if err != nil {
		return nil, err
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return NewClient(client, model, 0), nil
}

func newAPIClient(cfg core.AIConfig) (*api.Client, error) {
	raw := cfg.BaseURL
	if raw == "" {
		raw = os.Getenv("OLLAMA_HOST")
	}
	if raw == "" {
		raw = DefaultBaseURL
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	baseURL, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama base URL %q: %w", raw, core.ErrInvalidConfiguration)
	}
	return api.NewClient(baseURL, telemetry.NewHTTPClient(cfg.Timeout)), nil
}
