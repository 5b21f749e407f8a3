package core

import (
	"fmt"
	"time"
)

// PatternType is the closed set of behavioral pattern kinds.
type PatternType string

const (
	PatternTypeResponse      PatternType = "response"
	PatternTypeWorkflow      PatternType = "workflow"
	PatternTypePreference    PatternType = "preference"
	PatternTypeErrorHandling PatternType = "error_handling"
)

// PatternTypes lists every valid PatternType in detector order.
var PatternTypes = []PatternType{
	PatternTypeResponse,
	PatternTypeWorkflow,
	PatternTypePreference,
	PatternTypeErrorHandling,
}

// ParsePatternType validates s against the closed set.
func ParsePatternType(s string) (PatternType, error) {
	for _, t := range PatternTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", NewValidationError("core.ParsePatternType", fmt.Sprintf("unknown pattern type %q", s))
}

// PatternStatus tracks whether a pattern may be applied.
type PatternStatus string

const (
	PatternStatusCandidate  PatternStatus = "candidate"
	PatternStatusApproved   PatternStatus = "approved"
	PatternStatusDeprecated PatternStatus = "deprecated"
)

// Pattern is a recurring trigger→action regularity mined from conversations.
type Pattern struct {
	ID         string            `json:"id"`
	Type       PatternType       `json:"pattern_type"`
	Trigger    string            `json:"trigger"`
	Action     string            `json:"action"`
	Confidence float64           `json:"confidence"`
	Frequency  int               `json:"frequency"`
	Contexts   []string          `json:"contexts"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Status     PatternStatus     `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
	LastSeen   time.Time         `json:"last_seen"`
}

// AddContext records a conversation id in the pattern's context set.
func (p *Pattern) AddContext(conversationID string) {
	if conversationID == "" {
		return
	}
	for _, c := range p.Contexts {
		if c == conversationID {
			return
		}
	}
	p.Contexts = append(p.Contexts, conversationID)
}

// HasContext reports whether the pattern was observed in conversationID.
func (p *Pattern) HasContext(conversationID string) bool {
	for _, c := range p.Contexts {
		if c == conversationID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to mutate.
func (p *Pattern) Clone() *Pattern {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Contexts = append([]string(nil), p.Contexts...)
	if p.Metadata != nil {
		cp.Metadata = make(map[string]string, len(p.Metadata))
		for k, v := range p.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// LearningType classifies what a proposal would do to the pattern set.
type LearningType string

const (
	LearningTypeNewPattern    LearningType = "new_pattern"
	LearningTypePatternUpdate LearningType = "pattern_update"
	LearningTypePatternMerge  LearningType = "pattern_merge"
)

// ProposalStatus is the lifecycle state of a LearningProposal.
type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "pending"
	ProposalApproved ProposalStatus = "approved"
	ProposalRejected ProposalStatus = "rejected"
)

// IsTerminal reports whether no further transitions are allowed.
func (s ProposalStatus) IsTerminal() bool {
	return s == ProposalApproved || s == ProposalRejected
}

// CanTransition reports whether s → to is legal: pending → approved|rejected only.
func (s ProposalStatus) CanTransition(to ProposalStatus) bool {
	return s == ProposalPending && to.IsTerminal()
}

// Rejection reasons recorded on proposals.
const (
	ReasonBelowConfidenceThreshold = "below_confidence_threshold"
	ReasonPatternConflicts         = "pattern_conflicts"
	ReasonManualRejection          = "manual_rejection"
)

// LearningProposal is a candidate change awaiting supervisor review.
type LearningProposal struct {
	ID              string                 `json:"id"`
	PatternID       string                 `json:"pattern_id"`
	Type            LearningType           `json:"learning_type"`
	Description     string                 `json:"description"`
	ConfidenceScore float64                `json:"confidence_score"`
	Evidence        []MemoryRef            `json:"evidence"`
	ProposedChanges map[string]interface{} `json:"proposed_changes,omitempty"`
	Status          ProposalStatus         `json:"status"`
	RejectionReason string                 `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	ReviewedAt      *time.Time             `json:"reviewed_at,omitempty"`
}

// Transition moves the proposal to a terminal state.
func (p *LearningProposal) Transition(to ProposalStatus, reason string, at time.Time) error {
	if !p.Status.CanTransition(to) {
		return &FrameworkError{
			Op:      "LearningProposal.Transition",
			Kind:    "proposal",
			ID:      p.ID,
			Message: fmt.Sprintf("cannot move from %s to %s", p.Status, to),
			Err:     ErrInvalidTransition,
		}
	}
	p.Status = to
	if to == ProposalRejected {
		p.RejectionReason = reason
	}
	p.ReviewedAt = &at
	return nil
}

// TemplateMethod records how a response template was produced.
type TemplateMethod string

const (
	TemplateGenerated   TemplateMethod = "generated"
	TemplateStatistical TemplateMethod = "statistical"
	TemplateMinimal     TemplateMethod = "minimal"
)

// Quality is the method's contribution to template confidence.
func (m TemplateMethod) Quality() float64 {
	switch m {
	case TemplateGenerated:
		return 1.0
	case TemplateStatistical:
		return 0.7
	case TemplateMinimal:
		return 0.4
	default:
		return 0
	}
}

// TemplateStructure summarises how evidence responses are shaped.
type TemplateStructure struct {
	Opening         string  `json:"opening,omitempty"`
	Closing         string  `json:"closing,omitempty"`
	HasQuestions    bool    `json:"has_questions"`
	HasLists        bool    `json:"has_lists"`
	HasExplanations bool    `json:"has_explanations"`
	AverageLength   float64 `json:"average_length"`
}

// Completeness is the fraction of structural features present.
func (s TemplateStructure) Completeness() float64 {
	score := 0.0
	if s.Opening != "" {
		score++
	}
	if s.Closing != "" {
		score++
	}
	if s.HasQuestions || s.HasLists || s.HasExplanations {
		score++
	}
	if s.AverageLength > 0 {
		score++
	}
	return score / 4
}

// ToneProfile counts tone indicators across evidence.
type ToneProfile struct {
	Formal     int `json:"formal"`
	Informal   int `json:"informal"`
	Helpful    int `json:"helpful"`
	Technical  int `json:"technical"`
	Empathetic int `json:"empathetic"`
}

// Dominant returns the tone with the highest count, or "neutral".
func (t ToneProfile) Dominant() string {
	best, name := 0, "neutral"
	for _, c := range []struct {
		n    int
		name string
	}{
		{t.Formal, "formal"},
		{t.Informal, "informal"},
		{t.Helpful, "helpful"},
		{t.Technical, "technical"},
		{t.Empathetic, "empathetic"},
	} {
		if c.n > best {
			best, name = c.n, c.name
		}
	}
	return name
}

// ResponseTemplate is a reusable response with named {placeholders}.
type ResponseTemplate struct {
	ID            string            `json:"id"`
	PatternID     string            `json:"pattern_id"`
	Text          string            `json:"text"`
	Placeholders  []string          `json:"placeholders"`
	CommonPhrases []string          `json:"common_phrases"`
	Structure     TemplateStructure `json:"structure"`
	Tone          ToneProfile       `json:"tone"`
	Method        TemplateMethod    `json:"method"`
	Confidence    float64           `json:"confidence"`
	EvidenceCount int               `json:"evidence_count"`
	CreatedAt     time.Time         `json:"created_at"`
}

// ApplicationContext describes the turn a pattern is being applied to.
type ApplicationContext struct {
	ConversationID string            `json:"conversation_id"`
	ContextType    string            `json:"context_type"`
	UserName       string            `json:"user_name,omitempty"`
	Formality      string            `json:"formality,omitempty"`
	Keywords       []string          `json:"keywords,omitempty"`
	Variables      map[string]string `json:"variables,omitempty"`
}

// ApplicablePattern is a pattern judged relevant to the current message.
type ApplicablePattern struct {
	Pattern            *Pattern           `json:"pattern"`
	RelevanceScore     float64            `json:"relevance_score"`
	Template           *ResponseTemplate  `json:"template,omitempty"`
	ApplicationContext ApplicationContext `json:"application_context"`
}

// ConflictDetail is a single overlap between a new and an existing pattern.
type ConflictDetail struct {
	Type              string  `json:"type"`
	Severity          float64 `json:"severity"`
	ExistingPatternID string  `json:"existing_pattern_id"`
	OverlapScore      float64 `json:"overlap_score"`
}

// ConflictAnalysis is the outcome of comparing a pattern against existing ones.
type ConflictAnalysis struct {
	HasConflicts    bool             `json:"has_conflicts"`
	ConflictDetails []ConflictDetail `json:"conflict_details"`
	SeverityScore   float64          `json:"severity_score"`
	Recommendations []string         `json:"recommendations"`
}
