package bedrock

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/itsneelabh/gomind-learning/ai"
	"github.com/itsneelabh/gomind-learning/core"
	"github.com/itsneelabh/gomind-learning/telemetry"
)

func init() {
	ai.MustRegister(&Factory{})
}

// Factory creates AWS Bedrock clients
type Factory struct{}

// Name returns the provider name
func (f *Factory) Name() string {
	return ai.ProviderBedrock
}

// Description returns provider description
func (f *Factory) Description() string {
	return "AWS Bedrock models (Converse for generation, Titan for embeddings)"
}

// DetectEnvironment checks for AWS credentials in the environment.
// Credentials from ~/.aws are still used when present; they just do not
// count towards auto-detection.
func (f *Factory) DetectEnvironment() (priority int, available bool) {
	if os.Getenv("AWS_ACCESS_KEY_ID") != "" && os.Getenv("AWS_SECRET_ACCESS_KEY") != "" {
		return 60, true
	}
	if os.Getenv("AWS_PROFILE") != "" {
		return 60, true
	}
	// running on AWS
	if os.Getenv("AWS_EXECUTION_ENV") != "" || os.Getenv("AWS_CONTAINER_CREDENTIALS_RELATIVE_URI") != "" {
		return 70, true
	}
	return 0, false
}

// NewEmbedder creates a Titan embedder
func (f *Factory) NewEmbedder(cfg core.AIConfig, dimension int) (core.Embedder, error) {
	api, err := newRuntimeClient(cfg)
	if err != nil {
		return nil, err
	}
	model := cfg.Model
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return NewClient(api, model, dimension), nil
}

// NewGenerator creates a Converse text generator
func (f *Factory) NewGenerator(cfg core.AIConfig) (core.TextGenerator, error) {
	api, err := newRuntimeClient(cfg)
	if err != nil {
		return nil, err
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return NewClient(api, model, 0), nil
}

// Region resolves the AWS region: AWS_REGION, then AWS_DEFAULT_REGION, then us-east-1.
func Region() string {
	if r := os.Getenv("AWS_REGION"); r != "" {
		return r
	}
	if r := os.Getenv("AWS_DEFAULT_REGION"); r != "" {
		return r
	}
	return "us-east-1"
}

// staticCredentials parses an API key of the form
// "ACCESS_KEY_ID:SECRET_ACCESS_KEY[:SESSION_TOKEN]".
func staticCredentials(apiKey string) (aws.CredentialsProvider, bool) {
	parts := strings.SplitN(apiKey, ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return nil, false
	}
	var token string
	if len(parts) == 3 {
		token = parts[2]
	}
	return credentials.NewStaticCredentialsProvider(parts[0], parts[1], token), true
}

// newRuntimeClient uses static credentials from cfg.APIKey when given, the
// default credential chain (env, profile, IAM role) otherwise.
func newRuntimeClient(cfg core.AIConfig) (*bedrockruntime.Client, error) {
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(Region()),
		config.WithHTTPClient(telemetry.NewHTTPClient(cfg.Timeout)),
	}
	if cfg.APIKey != "" {
		provider, ok := staticCredentials(cfg.APIKey)
		if !ok {
			return nil, fmt.Errorf("bedrock api key must be ACCESS_KEY_ID:SECRET_ACCESS_KEY: %w", core.ErrInvalidConfiguration)
		}
		loadOpts = append(loadOpts, config.WithCredentialsProvider(provider))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %v: %w", err, core.ErrMissingConfiguration)
	}

	var opts []func(*bedrockruntime.Options)
	if cfg.BaseURL != "" {
		endpoint := cfg.BaseURL
		opts = append(opts, func(o *bedrockruntime.Options) { o.BaseEndpoint = &endpoint })
	}
	return bedrockruntime.NewFromConfig(awsCfg, opts...), nil
}
