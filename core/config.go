package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the learning subsystem.
// It supports three-layer configuration priority:
//  1. Default values (lowest priority)
//  2. Environment variables (medium priority)
//  3. Functional options (highest priority)
//
// Every threshold used by the learner, applier and supervisor lives here
// so deployments can tune them without code changes.
//
// Example usage:
//
//	cfg, err := NewConfig(
//	    WithName("support-agent"),
//	    WithVectorStore("sqlite"),
//	    WithAutoApproveThreshold(0.75),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
type Config struct {
	Name string `json:"name" yaml:"name" env:"GOMIND_LEARNING_NAME" default:"gomind-learning"`

	Memory     MemoryConfig     `json:"memory" yaml:"memory"`
	Learning   LearningConfig   `json:"learning" yaml:"learning"`
	Behavior   BehaviorConfig   `json:"behavior" yaml:"behavior"`
	Supervisor SupervisorConfig `json:"supervisor" yaml:"supervisor"`
	Tasks      TaskConfig       `json:"tasks" yaml:"tasks"`
	Reporter   ReporterConfig   `json:"reporter" yaml:"reporter"`
	AI         AIConfig         `json:"ai" yaml:"ai"`
	Storage    StorageConfig    `json:"storage" yaml:"storage"`
	Resilience ResilienceConfig `json:"resilience" yaml:"resilience"`
	Telemetry  TelemetryConfig  `json:"telemetry" yaml:"telemetry"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
}

// MemoryConfig tunes embedding, retrieval and retention.
type MemoryConfig struct {
	EmbeddingDimension         int           `json:"embedding_dimension" yaml:"embedding_dimension" env:"GOMIND_LEARNING_EMBEDDING_DIM" default:"384"`
	MaxMemoriesPerConversation int           `json:"max_memories_per_conversation" yaml:"max_memories_per_conversation" env:"GOMIND_LEARNING_MAX_MEMORIES" default:"100"`
	MinSimilarity              float64       `json:"min_similarity" yaml:"min_similarity" env:"GOMIND_LEARNING_MIN_SIMILARITY" default:"0.3"`
	RelevanceBoost             float64       `json:"relevance_boost" yaml:"relevance_boost" default:"0.1"`
	DefaultRelevance           float64       `json:"default_relevance" yaml:"default_relevance" default:"0.5"`
	HighRelevanceThreshold     float64       `json:"high_relevance_threshold" yaml:"high_relevance_threshold" default:"0.8"`
	RetentionDays              int           `json:"retention_days" yaml:"retention_days" env:"GOMIND_LEARNING_RETENTION_DAYS" default:"90"`
	ContextLimit               int           `json:"context_limit" yaml:"context_limit" default:"5"`
	TextWeight                 float64       `json:"text_weight" yaml:"text_weight" default:"0.3"`
	VectorWeight               float64       `json:"vector_weight" yaml:"vector_weight" default:"0.7"`
	EmbeddingCacheSize         int           `json:"embedding_cache_size" yaml:"embedding_cache_size" default:"10000"`
	EmbeddingCacheTTL          time.Duration `json:"embedding_cache_ttl" yaml:"embedding_cache_ttl" default:"1h"`
	EmbedTimeout               time.Duration `json:"embed_timeout" yaml:"embed_timeout" env:"GOMIND_LEARNING_EMBED_TIMEOUT" default:"10s"`
}

// LearningConfig tunes pattern detection and template extraction.
type LearningConfig struct {
	MinFragments            int           `json:"min_fragments" yaml:"min_fragments" default:"3"`
	MinOccurrences          int           `json:"min_occurrences" yaml:"min_occurrences" default:"3"`
	MaxPatternConfidence    float64       `json:"max_pattern_confidence" yaml:"max_pattern_confidence" default:"0.9"`
	MaxEvidence             int           `json:"max_evidence" yaml:"max_evidence" default:"10"`
	ExcerptLength           int           `json:"excerpt_length" yaml:"excerpt_length" default:"200"`
	DefaultWindowDays       int           `json:"default_window_days" yaml:"default_window_days" env:"GOMIND_LEARNING_WINDOW_DAYS" default:"7"`
	PatternConfidenceWeight float64       `json:"pattern_confidence_weight" yaml:"pattern_confidence_weight" default:"0.7"`
	TemplateMaxTokens       int           `json:"template_max_tokens" yaml:"template_max_tokens" default:"300"`
	TemplateTemperature     float64       `json:"template_temperature" yaml:"template_temperature" default:"0.3"`
	GenerateTimeout         time.Duration `json:"generate_timeout" yaml:"generate_timeout" default:"15s"`
}

// BehaviorConfig tunes pattern application.
type BehaviorConfig struct {
	MinRelevance            float64       `json:"min_relevance" yaml:"min_relevance" env:"GOMIND_LEARNING_MIN_RELEVANCE" default:"0.3"`
	MaxPatterns             int           `json:"max_patterns" yaml:"max_patterns" default:"10"`
	RecencyWindow           time.Duration `json:"recency_window" yaml:"recency_window" default:"720h"`
	FrequencyNormalizer     float64       `json:"frequency_normalizer" yaml:"frequency_normalizer" default:"100"`
	CacheSize               int           `json:"cache_size" yaml:"cache_size" default:"1000"`
	CacheTTL                time.Duration `json:"cache_ttl" yaml:"cache_ttl" default:"5m"`
	GenerateTimeout         time.Duration `json:"generate_timeout" yaml:"generate_timeout" default:"10s"`
	MaxTokens               int           `json:"max_tokens" yaml:"max_tokens" default:"200"`
	Temperature             float64       `json:"temperature" yaml:"temperature" default:"0.7"`
	DefaultResponse         string        `json:"default_response" yaml:"default_response"`
	// Approved patterns whose success rate falls below this floor are
	// deprecated by the deprecate_patterns job. Zero disables the check.
	DeprecationSuccessFloor float64       `json:"deprecation_success_floor" yaml:"deprecation_success_floor" env:"GOMIND_LEARNING_DEPRECATION_SUCCESS_FLOOR" default:"0.2"`
}

// SupervisorConfig holds approval and conflict thresholds.
type SupervisorConfig struct {
	AutoApproveThreshold float64 `json:"auto_approve_threshold" yaml:"auto_approve_threshold" env:"GOMIND_LEARNING_AUTO_APPROVE_THRESHOLD" default:"0.7"`
	ConflictSimilarity   float64 `json:"conflict_similarity" yaml:"conflict_similarity" default:"0.7"`
	ManualReviewSeverity float64 `json:"manual_review_severity" yaml:"manual_review_severity" default:"0.8"`
	MaxApprovalSeverity  float64 `json:"max_approval_severity" yaml:"max_approval_severity" default:"0.5"`
}

// TaskConfig configures the background task processor.
type TaskConfig struct {
	MaxWorkers   int           `json:"max_workers" yaml:"max_workers" env:"GOMIND_LEARNING_WORKERS" default:"3"`
	QueueSize    int           `json:"queue_size" yaml:"queue_size" env:"GOMIND_LEARNING_QUEUE_SIZE" default:"1000"`
	MaxRetries   int           `json:"max_retries" yaml:"max_retries" env:"GOMIND_LEARNING_MAX_RETRIES" default:"3"`
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval" default:"1s"`
	TaskTimeout  time.Duration `json:"task_timeout" yaml:"task_timeout" default:"5m"`
	HistorySize  int           `json:"history_size" yaml:"history_size" default:"1000"`
	StopTimeout  time.Duration `json:"stop_timeout" yaml:"stop_timeout" default:"30s"`
}

// ReporterConfig tunes metric retention and alert thresholds.
type ReporterConfig struct {
	HistorySize           int           `json:"history_size" yaml:"history_size" default:"10000"`
	EMAWeight             float64       `json:"ema_weight" yaml:"ema_weight" default:"0.8"`
	MinMetrics            int           `json:"min_metrics" yaml:"min_metrics" default:"10"`
	InactivityThreshold   time.Duration `json:"inactivity_threshold" yaml:"inactivity_threshold" default:"2h"`
	SlowResponseThreshold time.Duration `json:"slow_response_threshold" yaml:"slow_response_threshold" default:"5s"`
	LowSuccessThreshold   float64       `json:"low_success_threshold" yaml:"low_success_threshold" default:"0.5"`
	TrendThreshold        float64       `json:"trend_threshold" yaml:"trend_threshold" default:"0.05"`
}

// AIConfig selects the embedding and text-generation providers.
// Provider "hash" needs no credentials and is the default.
type AIConfig struct {
	Provider          string        `json:"provider" yaml:"provider" env:"GOMIND_LEARNING_AI_PROVIDER" default:"hash"`
	EmbeddingProvider string        `json:"embedding_provider" yaml:"embedding_provider" env:"GOMIND_LEARNING_EMBEDDING_PROVIDER" default:"hash"`
	APIKey            string        `json:"api_key" yaml:"api_key" env:"GOMIND_LEARNING_AI_API_KEY"`
	BaseURL           string        `json:"base_url" yaml:"base_url" env:"GOMIND_LEARNING_AI_BASE_URL"`
	Model             string        `json:"model" yaml:"model" env:"GOMIND_LEARNING_AI_MODEL"`
	EmbeddingModel    string        `json:"embedding_model" yaml:"embedding_model" env:"GOMIND_LEARNING_EMBEDDING_MODEL"`
	Temperature       float64       `json:"temperature" yaml:"temperature" default:"0.7"`
	MaxTokens         int           `json:"max_tokens" yaml:"max_tokens" default:"1024"`
	Timeout           time.Duration `json:"timeout" yaml:"timeout" env:"GOMIND_LEARNING_AI_TIMEOUT" default:"30s"`
}

// StorageConfig selects persistence backends.
type StorageConfig struct {
	VectorProvider  string        `json:"vector_provider" yaml:"vector_provider" env:"GOMIND_LEARNING_VECTOR_STORE" default:"memory"`
	PatternProvider string        `json:"pattern_provider" yaml:"pattern_provider" env:"GOMIND_LEARNING_PATTERN_STORE" default:"memory"`
	PostgresURL     string        `json:"postgres_url" yaml:"postgres_url" env:"GOMIND_LEARNING_POSTGRES_URL,DATABASE_URL"`
	SQLitePath      string        `json:"sqlite_path" yaml:"sqlite_path" env:"GOMIND_LEARNING_SQLITE_PATH" default:"learning.db"`
	ChromemPath     string        `json:"chromem_path" yaml:"chromem_path" env:"GOMIND_LEARNING_CHROMEM_PATH"`
	RedisURL        string        `json:"redis_url" yaml:"redis_url" env:"GOMIND_LEARNING_REDIS_URL,REDIS_URL"`
	KeyPrefix       string        `json:"key_prefix" yaml:"key_prefix" default:"gomind:learning"`
	TaskStatusTTL   time.Duration `json:"task_status_ttl" yaml:"task_status_ttl" default:"24h"`
}

// ResilienceConfig contains fault tolerance settings for external calls.
type ResilienceConfig struct {
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker" yaml:"circuit_breaker"`
	Retry          RetryConfig          `json:"retry" yaml:"retry"`
}

// CircuitBreakerConfig defines circuit breaker pattern settings.
type CircuitBreakerConfig struct {
	Enabled          bool          `json:"enabled" yaml:"enabled" env:"GOMIND_LEARNING_CB_ENABLED" default:"true"`
	Threshold        int           `json:"threshold" yaml:"threshold" default:"5"`
	Timeout          time.Duration `json:"timeout" yaml:"timeout" default:"30s"`
	HalfOpenRequests int           `json:"half_open_requests" yaml:"half_open_requests" default:"1"`
}

// RetryConfig defines retry settings with exponential backoff.
// Formula: interval = min(InitialInterval * (Multiplier ^ attempt), MaxInterval)
type RetryConfig struct {
	MaxAttempts     int           `json:"max_attempts" yaml:"max_attempts" default:"3"`
	InitialInterval time.Duration `json:"initial_interval" yaml:"initial_interval" default:"200ms"`
	MaxInterval     time.Duration `json:"max_interval" yaml:"max_interval" default:"5s"`
	Multiplier      float64       `json:"multiplier" yaml:"multiplier" default:"2.0"`
}

// TelemetryConfig contains tracing and metrics configuration.
// Exporter is "stdout", "otlp" (gRPC) or "otlphttp". Metrics are pushed over
// OTLP/HTTP only when MetricsEndpoint is set.
type TelemetryConfig struct {
	Enabled      bool    `json:"enabled" yaml:"enabled" env:"GOMIND_LEARNING_TELEMETRY_ENABLED" default:"false"`
	Exporter     string  `json:"exporter" yaml:"exporter" env:"GOMIND_LEARNING_TELEMETRY_EXPORTER" default:"otlp"`
	Endpoint     string  `json:"endpoint" yaml:"endpoint" env:"GOMIND_LEARNING_TELEMETRY_ENDPOINT,OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string  `json:"service_name" yaml:"service_name" env:"OTEL_SERVICE_NAME"`
	SamplingRate float64 `json:"sampling_rate" yaml:"sampling_rate" default:"1.0"`
	Insecure     bool    `json:"insecure" yaml:"insecure" default:"true"`

	MetricsEndpoint string        `json:"metrics_endpoint" yaml:"metrics_endpoint" env:"GOMIND_LEARNING_METRICS_ENDPOINT"`
	MetricsInterval time.Duration `json:"metrics_interval" yaml:"metrics_interval" default:"30s"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" env:"GOMIND_LEARNING_LOG_LEVEL" default:"info"`
	Format string `json:"format" yaml:"format" env:"GOMIND_LEARNING_LOG_FORMAT" default:"json"`
	Output string `json:"output" yaml:"output" env:"GOMIND_LEARNING_LOG_OUTPUT" default:"stdout"`
}

// Option is a functional option for configuring the subsystem.
// Options are applied in order and can return an error if the value is invalid.
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name: "gomind-learning",
		Memory: MemoryConfig{
			EmbeddingDimension:         384,
			MaxMemoriesPerConversation: 100,
			MinSimilarity:              0.3,
			RelevanceBoost:             0.1,
			DefaultRelevance:           0.5,
			HighRelevanceThreshold:     0.8,
			RetentionDays:              90,
			ContextLimit:               5,
			TextWeight:                 0.3,
			VectorWeight:               0.7,
			EmbeddingCacheSize:         10000,
			EmbeddingCacheTTL:          time.Hour,
			EmbedTimeout:               10 * time.Second,
		},
		Learning: LearningConfig{
			MinFragments:            3,
			MinOccurrences:          3,
			MaxPatternConfidence:    0.9,
			MaxEvidence:             10,
			ExcerptLength:           200,
			DefaultWindowDays:       7,
			PatternConfidenceWeight: 0.7,
			TemplateMaxTokens:       300,
			TemplateTemperature:     0.3,
			GenerateTimeout:         15 * time.Second,
		},
		Behavior: BehaviorConfig{
			MinRelevance:            0.3,
			MaxPatterns:             10,
			RecencyWindow:           30 * 24 * time.Hour,
			FrequencyNormalizer:     100,
			CacheSize:               1000,
			CacheTTL:                5 * time.Minute,
			GenerateTimeout:         10 * time.Second,
			MaxTokens:               200,
			Temperature:             0.7,
			DefaultResponse:         "Thanks for your message. Let me look into that for you.",
			DeprecationSuccessFloor: 0.2,
		},
		Supervisor: SupervisorConfig{
			AutoApproveThreshold: 0.7,
			ConflictSimilarity:   0.7,
			ManualReviewSeverity: 0.8,
			MaxApprovalSeverity:  0.5,
		},
		Tasks: TaskConfig{
			MaxWorkers:   3,
			QueueSize:    1000,
			MaxRetries:   3,
			PollInterval: time.Second,
			TaskTimeout:  5 * time.Minute,
			HistorySize:  1000,
			StopTimeout:  30 * time.Second,
		},
		Reporter: ReporterConfig{
			HistorySize:           10000,
			EMAWeight:             0.8,
			MinMetrics:            10,
			InactivityThreshold:   2 * time.Hour,
			SlowResponseThreshold: 5 * time.Second,
			LowSuccessThreshold:   0.5,
			TrendThreshold:        0.05,
		},
		AI: AIConfig{
			Provider:          "hash",
			EmbeddingProvider: "hash",
			Temperature:       0.7,
			MaxTokens:         1024,
			Timeout:           30 * time.Second,
		},
		Storage: StorageConfig{
			VectorProvider:  "memory",
			PatternProvider: "memory",
			SQLitePath:      "learning.db",
			KeyPrefix:       "gomind:learning",
			TaskStatusTTL:   24 * time.Hour,
		},
		Resilience: ResilienceConfig{
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          true,
				Threshold:        5,
				Timeout:          30 * time.Second,
				HalfOpenRequests: 1,
			},
			Retry: RetryConfig{
				MaxAttempts:     3,
				InitialInterval: 200 * time.Millisecond,
				MaxInterval:     5 * time.Second,
				Multiplier:      2.0,
			},
		},
		Telemetry: TelemetryConfig{
			Exporter:     "otlp",
			SamplingRate:    1.0,
			Insecure:        true,
			MetricsInterval: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// LoadFromEnv loads configuration from environment variables.
// Unparseable values are ignored and the previous value is kept.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("GOMIND_LEARNING_NAME"); v != "" {
		c.Name = v
	}

	// Memory settings
	envInt("GOMIND_LEARNING_EMBEDDING_DIM", &c.Memory.EmbeddingDimension)
	envInt("GOMIND_LEARNING_MAX_MEMORIES", &c.Memory.MaxMemoriesPerConversation)
	envFloat("GOMIND_LEARNING_MIN_SIMILARITY", &c.Memory.MinSimilarity)
	envInt("GOMIND_LEARNING_RETENTION_DAYS", &c.Memory.RetentionDays)
	envDuration("GOMIND_LEARNING_EMBED_TIMEOUT", &c.Memory.EmbedTimeout)

	// Learning and behavior settings
	envInt("GOMIND_LEARNING_WINDOW_DAYS", &c.Learning.DefaultWindowDays)
	envFloat("GOMIND_LEARNING_MIN_RELEVANCE", &c.Behavior.MinRelevance)
	envFloat("GOMIND_LEARNING_DEPRECATION_SUCCESS_FLOOR", &c.Behavior.DeprecationSuccessFloor)
	envFloat("GOMIND_LEARNING_AUTO_APPROVE_THRESHOLD", &c.Supervisor.AutoApproveThreshold)

	// Task processor settings
	envInt("GOMIND_LEARNING_WORKERS", &c.Tasks.MaxWorkers)
	envInt("GOMIND_LEARNING_QUEUE_SIZE", &c.Tasks.QueueSize)
	envInt("GOMIND_LEARNING_MAX_RETRIES", &c.Tasks.MaxRetries)

	// AI settings
	envString("GOMIND_LEARNING_AI_PROVIDER", &c.AI.Provider)
	envString("GOMIND_LEARNING_EMBEDDING_PROVIDER", &c.AI.EmbeddingProvider)
	envString("GOMIND_LEARNING_AI_API_KEY", &c.AI.APIKey)
	envString("GOMIND_LEARNING_AI_BASE_URL", &c.AI.BaseURL)
	envString("GOMIND_LEARNING_AI_MODEL", &c.AI.Model)
	envString("GOMIND_LEARNING_EMBEDDING_MODEL", &c.AI.EmbeddingModel)
	envDuration("GOMIND_LEARNING_AI_TIMEOUT", &c.AI.Timeout)
	if c.AI.APIKey == "" {
		switch c.AI.Provider {
		case "anthropic":
			envString("ANTHROPIC_API_KEY", &c.AI.APIKey)
		case "gemini":
			envString("GEMINI_API_KEY", &c.AI.APIKey)
		}
	}

	// Storage settings
	envString("GOMIND_LEARNING_VECTOR_STORE", &c.Storage.VectorProvider)
	envString("GOMIND_LEARNING_PATTERN_STORE", &c.Storage.PatternProvider)
	envString("DATABASE_URL", &c.Storage.PostgresURL)
	envString("GOMIND_LEARNING_POSTGRES_URL", &c.Storage.PostgresURL)
	envString("GOMIND_LEARNING_SQLITE_PATH", &c.Storage.SQLitePath)
	envString("GOMIND_LEARNING_CHROMEM_PATH", &c.Storage.ChromemPath)
	envString("REDIS_URL", &c.Storage.RedisURL)
	envString("GOMIND_LEARNING_REDIS_URL", &c.Storage.RedisURL)

	// Resilience
	if v := os.Getenv("GOMIND_LEARNING_CB_ENABLED"); v != "" {
		c.Resilience.CircuitBreaker.Enabled = parseBool(v)
	}

	// Telemetry
	if v := os.Getenv("GOMIND_LEARNING_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = parseBool(v)
	}
	envString("GOMIND_LEARNING_TELEMETRY_EXPORTER", &c.Telemetry.Exporter)
	envString("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Telemetry.Endpoint)
	envString("GOMIND_LEARNING_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envString("OTEL_SERVICE_NAME", &c.Telemetry.ServiceName)
	envString("GOMIND_LEARNING_METRICS_ENDPOINT", &c.Telemetry.MetricsEndpoint)

	// Logging
	envString("GOMIND_LEARNING_LOG_LEVEL", &c.Logging.Level)
	envString("GOMIND_LEARNING_LOG_FORMAT", &c.Logging.Format)
	envString("GOMIND_LEARNING_LOG_OUTPUT", &c.Logging.Output)

	return nil
}

// LoadFromFile loads configuration from a JSON or YAML file.
// Fields absent from the file keep their current values.
func (c *Config) LoadFromFile(path string) error {
	cleanPath := filepath.Clean(path)

	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config file extension %s: %w", ext, ErrInvalidConfiguration)
	}

	data, err := os.ReadFile(cleanPath) // nosec G304 -- operator supplied path
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", cleanPath, err)
	}

	switch ext {
	case ".json":
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse JSON config file: %v: %w", err, ErrInvalidConfiguration)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse YAML config file: %v: %w", err, ErrInvalidConfiguration)
		}
	}

	return nil
}

// Validate checks if the configuration is valid and returns an error if not.
// Called automatically by NewConfig.
func (c *Config) Validate() error {
	if c.Name == "" {
		return configError("name is required", ErrMissingConfiguration)
	}
	if c.Memory.EmbeddingDimension <= 0 {
		return configError(fmt.Sprintf("invalid embedding dimension: %d", c.Memory.EmbeddingDimension), ErrInvalidConfiguration)
	}
	if c.Memory.MaxMemoriesPerConversation <= 0 {
		return configError("max memories per conversation must be positive", ErrInvalidConfiguration)
	}
	if c.Memory.TextWeight < 0 || c.Memory.VectorWeight < 0 {
		return configError("hybrid search weights must be non-negative", ErrInvalidConfiguration)
	}

	unit := map[string]float64{
		"memory.min_similarity":              c.Memory.MinSimilarity,
		"memory.relevance_boost":             c.Memory.RelevanceBoost,
		"memory.default_relevance":           c.Memory.DefaultRelevance,
		"memory.high_relevance_threshold":    c.Memory.HighRelevanceThreshold,
		"learning.max_pattern_confidence":    c.Learning.MaxPatternConfidence,
		"learning.pattern_confidence_weight": c.Learning.PatternConfidenceWeight,
		"behavior.min_relevance":             c.Behavior.MinRelevance,
		"behavior.deprecation_success_floor": c.Behavior.DeprecationSuccessFloor,
		"supervisor.auto_approve_threshold":  c.Supervisor.AutoApproveThreshold,
		"supervisor.conflict_similarity":     c.Supervisor.ConflictSimilarity,
		"supervisor.manual_review_severity":  c.Supervisor.ManualReviewSeverity,
		"supervisor.max_approval_severity":   c.Supervisor.MaxApprovalSeverity,
		"reporter.ema_weight":                c.Reporter.EMAWeight,
		"reporter.low_success_threshold":     c.Reporter.LowSuccessThreshold,
	}
	for name, v := range unit {
		if v < 0 || v > 1 {
			return configError(fmt.Sprintf("%s must be within [0,1], got %v", name, v), ErrInvalidConfiguration)
		}
	}

	if c.Tasks.MaxWorkers <= 0 {
		return configError(fmt.Sprintf("invalid worker count: %d", c.Tasks.MaxWorkers), ErrInvalidConfiguration)
	}
	if c.Tasks.QueueSize <= 0 {
		return configError(fmt.Sprintf("invalid queue size: %d", c.Tasks.QueueSize), ErrInvalidConfiguration)
	}
	if c.Tasks.MaxRetries < 0 {
		return configError("max retries cannot be negative", ErrInvalidConfiguration)
	}

	switch c.Storage.VectorProvider {
	case "memory", "chromem", "sqlite":
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return configError("postgres URL is required for the postgres vector store", ErrMissingConfiguration)
		}
	default:
		return configError(fmt.Sprintf("unknown vector store provider: %s", c.Storage.VectorProvider), ErrInvalidConfiguration)
	}

	switch c.Storage.PatternProvider {
	case "memory":
	case "redis":
		if c.Storage.RedisURL == "" {
			return configError("redis URL is required for the redis pattern store", ErrMissingConfiguration)
		}
	default:
		return configError(fmt.Sprintf("unknown pattern store provider: %s", c.Storage.PatternProvider), ErrInvalidConfiguration)
	}

	if (c.AI.Provider == "anthropic" || c.AI.Provider == "gemini") && c.AI.APIKey == "" {
		return configError(fmt.Sprintf("API key is required for AI provider %s", c.AI.Provider), ErrMissingConfiguration)
	}

	if c.Telemetry.Enabled && (c.Telemetry.Exporter == "otlp" || c.Telemetry.Exporter == "otlphttp") && c.Telemetry.Endpoint == "" {
		return configError("telemetry endpoint is required for the "+c.Telemetry.Exporter+" exporter", ErrMissingConfiguration)
	}

	return nil
}

func configError(msg string, kind error) error {
	return &FrameworkError{
		Op:      "Config.Validate",
		Kind:    "config",
		Message: msg,
		Err:     kind,
	}
}

// Helper functions

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// parseBool accepts "true", "1", "yes", "on" (case-insensitive) as true.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// Functional Options

// WithName sets the service name used in logs and traces.
func WithName(name string) Option {
	return func(c *Config) error {
		c.Name = name
		return nil
	}
}

// WithVectorStore selects the memory backend: memory, chromem, postgres or sqlite.
func WithVectorStore(provider string) Option {
	return func(c *Config) error {
		c.Storage.VectorProvider = provider
		return nil
	}
}

// WithPatternStore selects the pattern repository: memory or redis.
func WithPatternStore(provider string) Option {
	return func(c *Config) error {
		c.Storage.PatternProvider = provider
		return nil
	}
}

// WithPostgresURL sets the connection string for the pgvector backend.
func WithPostgresURL(url string) Option {
	return func(c *Config) error {
		c.Storage.PostgresURL = url
		return nil
	}
}

// WithSQLitePath sets the database file for the sqlite backend.
// ":memory:" keeps everything in process.
func WithSQLitePath(path string) Option {
	return func(c *Config) error {
		c.Storage.SQLitePath = path
		return nil
	}
}

// WithRedisURL sets the Redis URL used by the pattern repository and task mirror.
func WithRedisURL(url string) Option {
	return func(c *Config) error {
		c.Storage.RedisURL = url
		return nil
	}
}

// WithAIProvider selects the text-generation provider and credentials.
func WithAIProvider(provider, apiKey string) Option {
	return func(c *Config) error {
		switch provider {
		case "hash", "gemini", "ollama", "anthropic", "bedrock", "auto":
		default:
			return &FrameworkError{
				Op:      "WithAIProvider",
				Kind:    "config",
				Message: fmt.Sprintf("unknown AI provider: %s", provider),
				Err:     ErrInvalidConfiguration,
			}
		}
		c.AI.Provider = provider
		c.AI.APIKey = apiKey
		return nil
	}
}

// WithEmbeddingProvider selects the embedding provider: hash, gemini, ollama or bedrock.
func WithEmbeddingProvider(provider string) Option {
	return func(c *Config) error {
		c.AI.EmbeddingProvider = provider
		return nil
	}
}

// WithAIModel sets the text-generation model name.
func WithAIModel(model string) Option {
	return func(c *Config) error {
		c.AI.Model = model
		return nil
	}
}

// WithAutoApproveThreshold sets the minimum confidence for automatic approval.
func WithAutoApproveThreshold(threshold float64) Option {
	return func(c *Config) error {
		if threshold < 0 || threshold > 1 {
			return &FrameworkError{
				Op:      "WithAutoApproveThreshold",
				Kind:    "config",
				Message: fmt.Sprintf("threshold must be within [0,1], got %v", threshold),
				Err:     ErrInvalidConfiguration,
			}
		}
		c.Supervisor.AutoApproveThreshold = threshold
		return nil
	}
}

// WithMaxWorkers sets the task processor worker count.
func WithMaxWorkers(n int) Option {
	return func(c *Config) error {
		c.Tasks.MaxWorkers = n
		return nil
	}
}

// WithQueueSize sets the task processor queue capacity.
func WithQueueSize(n int) Option {
	return func(c *Config) error {
		c.Tasks.QueueSize = n
		return nil
	}
}

// WithMaxRetries sets how many times a failing task is requeued.
func WithMaxRetries(n int) Option {
	return func(c *Config) error {
		c.Tasks.MaxRetries = n
		return nil
	}
}

// WithMaxMemoriesPerConversation sets the retention cap per conversation.
func WithMaxMemoriesPerConversation(n int) Option {
	return func(c *Config) error {
		c.Memory.MaxMemoriesPerConversation = n
		return nil
	}
}

// WithEmbeddingDimension sets the vector dimension D.
func WithEmbeddingDimension(d int) Option {
	return func(c *Config) error {
		c.Memory.EmbeddingDimension = d
		return nil
	}
}

// WithTelemetry enables tracing with the given OTLP endpoint.
// An empty endpoint switches to the stdout exporter.
func WithTelemetry(enabled bool, endpoint string) Option {
	return func(c *Config) error {
		c.Telemetry.Enabled = enabled
		c.Telemetry.Endpoint = endpoint
		if endpoint == "" {
			c.Telemetry.Exporter = "stdout"
		}
		return nil
	}
}

// WithLogLevel sets the log level (debug, info, warn, error).
func WithLogLevel(level string) Option {
	return func(c *Config) error {
		c.Logging.Level = level
		return nil
	}
}

// WithLogFormat sets the log format (json or console).
func WithLogFormat(format string) Option {
	return func(c *Config) error {
		c.Logging.Format = format
		return nil
	}
}

// WithConfigFile loads a JSON or YAML file on top of the current values.
func WithConfigFile(path string) Option {
	return func(c *Config) error {
		return c.LoadFromFile(path)
	}
}

// NewConfig creates a new configuration with the given options.
// Defaults are applied first, then environment variables, then options.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env config: %w", err)
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
