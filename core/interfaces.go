package core

import (
	"context"
	"time"
)

// Logger interface - structured logging with map fields.
// The *WithContext variants attach trace correlation when the context carries a span.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})

	InfoWithContext(ctx context.Context, msg string, fields map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, fields map[string]interface{})
	DebugWithContext(ctx context.Context, msg string, fields map[string]interface{})
}

// ComponentAwareLogger is implemented by loggers that can tag every entry
// with the component that produced it (e.g. "learning/memory").
type ComponentAwareLogger interface {
	Logger
	WithComponent(component string) Logger
}

// Embedder turns text into a dense vector of a fixed dimension.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// GenerateOptions tunes a single text-generation call.
type GenerateOptions struct {
	MaxTokens   int
	Temperature float64
	System      string
}

// TextGenerator produces free-form text from a prompt.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// Fragment is a single ordered message of a conversation transcript.
type Fragment struct {
	ID             string            `json:"id"`
	ConversationID string            `json:"conversation_id"`
	Content        string            `json:"content"`
	Role           string            `json:"role,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// TranscriptSource gives read-only access to conversation fragments.
type TranscriptSource interface {
	Fragments(ctx context.Context, conversationID string, since time.Time) ([]Fragment, error)
}

// PatternRepository persists patterns, proposals, templates and usage.
// It is the source of truth; in-process caches sit in front of it.
type PatternRepository interface {
	SavePattern(ctx context.Context, p *Pattern) error
	GetPattern(ctx context.Context, id string) (*Pattern, error)
	ListPatterns(ctx context.Context, status PatternStatus) ([]*Pattern, error)
	FindPattern(ctx context.Context, patternType PatternType, trigger string) (*Pattern, error)

	SaveProposal(ctx context.Context, p *LearningProposal) error
	GetProposal(ctx context.Context, id string) (*LearningProposal, error)
	ListProposals(ctx context.Context, status ProposalStatus) ([]*LearningProposal, error)

	SaveTemplate(ctx context.Context, t *ResponseTemplate) error
	GetTemplate(ctx context.Context, patternID string) (*ResponseTemplate, error)

	RecordOutcome(ctx context.Context, patternID string, success bool) error
	SuccessRate(ctx context.Context, patternID string) (float64, error)

	// Generation changes whenever a pattern, template or outcome is written.
	// Readers key derived caches on it.
	Generation(ctx context.Context) (int64, error)
}

// NoOpLogger discards everything. Used when no logger is configured.
type NoOpLogger struct{}

func (n *NoOpLogger) Info(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Error(msg string, fields map[string]interface{}) {}
func (n *NoOpLogger) Warn(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Debug(msg string, fields map[string]interface{}) {}

func (n *NoOpLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}
func (n *NoOpLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}
func (n *NoOpLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}
func (n *NoOpLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}

// WithComponent returns the same no-op logger.
func (n *NoOpLogger) WithComponent(component string) Logger { return n }

// ComponentLogger applies WithComponent when the logger supports it and
// falls back to a NoOpLogger for nil.
func ComponentLogger(logger Logger, component string) Logger {
	if logger == nil {
		return &NoOpLogger{}
	}
	if cal, ok := logger.(ComponentAwareLogger); ok {
		return cal.WithComponent(component)
	}
	return logger
}
