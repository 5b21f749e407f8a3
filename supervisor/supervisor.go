// Package supervisor decides which learning proposals become approved
// patterns: a confidence threshold check followed by a trigger conflict
// check against the patterns already approved.
package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/itsneelabh/gomind-learning/core"
	"github.com/itsneelabh/gomind-learning/internal/textutil"
	"github.com/itsneelabh/gomind-learning/telemetry"
)

// Conflict types and recommendations reported in a ConflictAnalysis.
const (
	ConflictTriggerSimilarity = "trigger_similarity"

	RecommendManualReview    = "manual_review_required"
	RecommendReviewConflicts = "review_conflicts"
)

// ReviewDecision is the outcome of reviewing one proposal.
type ReviewDecision struct {
	Proposal *core.LearningProposal `json:"proposal"`
	Pattern  *core.Pattern          `json:"pattern"`
	Approved bool                   `json:"approved"`
	Reason   string                 `json:"reason,omitempty"`
	Conflict core.ConflictAnalysis  `json:"conflict"`
}

// Supervisor reviews learning proposals.
type Supervisor struct {
	patterns core.PatternRepository
	config   core.SupervisorConfig
	logger   core.Logger
	now      func() time.Time
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithClock overrides time.Now for review timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a supervisor. Zero thresholds fall back to defaults.
func New(patterns core.PatternRepository, cfg core.SupervisorConfig, logger core.Logger, opts ...Option) (*Supervisor, error) {
	if patterns == nil {
		return nil, fmt.Errorf("pattern repository is required: %w", core.ErrMissingConfiguration)
	}

	defaults := core.DefaultConfig().Supervisor
	if cfg.AutoApproveThreshold <= 0 {
		cfg.AutoApproveThreshold = defaults.AutoApproveThreshold
	}
	if cfg.ConflictSimilarity <= 0 {
		cfg.ConflictSimilarity = defaults.ConflictSimilarity
	}
	if cfg.ManualReviewSeverity <= 0 {
		cfg.ManualReviewSeverity = defaults.ManualReviewSeverity
	}
	if cfg.MaxApprovalSeverity <= 0 {
		cfg.MaxApprovalSeverity = defaults.MaxApprovalSeverity
	}

	s := &Supervisor{
		patterns: patterns,
		config:   cfg,
		logger:   core.ComponentLogger(logger, "learning/supervisor"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the effective thresholds.
func (s *Supervisor) Config() core.SupervisorConfig {
	return s.config
}

// AutoApprove reports whether confidence reaches threshold. Both values
// must lie in [0,1].
func AutoApprove(confidence, threshold float64) (bool, error) {
	if !(confidence >= 0 && confidence <= 1) {
		return false, core.NewValidationError("supervisor.AutoApprove",
			fmt.Sprintf("confidence must be within [0,1], got %v", confidence))
	}
	if !(threshold >= 0 && threshold <= 1) {
		return false, core.NewValidationError("supervisor.AutoApprove",
			fmt.Sprintf("threshold must be within [0,1], got %v", threshold))
	}
	return confidence >= threshold, nil
}

// AutoApprove checks confidence against the configured threshold.
func (s *Supervisor) AutoApprove(confidence float64) (bool, error) {
	return AutoApprove(confidence, s.config.AutoApproveThreshold)
}

// ValidatePatternConflicts compares the trigger of p with every existing
// pattern. Keyword overlap above ConflictSimilarity is a conflict whose
// severity is the overlap.
func (s *Supervisor) ValidatePatternConflicts(p *core.Pattern, existing []*core.Pattern) core.ConflictAnalysis {
	return ValidatePatternConflicts(p, existing, s.config.ConflictSimilarity, s.config.ManualReviewSeverity)
}

// ValidatePatternConflicts is the threshold-explicit form of
// Supervisor.ValidatePatternConflicts. A pattern never conflicts with itself.
func ValidatePatternConflicts(p *core.Pattern, existing []*core.Pattern, similarity, manualReview float64) core.ConflictAnalysis {
	analysis := core.ConflictAnalysis{
		ConflictDetails: []core.ConflictDetail{},
		Recommendations: []string{},
	}
	if p == nil {
		return analysis
	}

	trigger := textutil.KeywordSet(p.Trigger)
	for _, e := range existing {
		if e == nil || e.ID == p.ID {
			continue
		}
		overlap := textutil.Jaccard(trigger, textutil.KeywordSet(e.Trigger))
		if overlap <= similarity {
			continue
		}
		analysis.ConflictDetails = append(analysis.ConflictDetails, core.ConflictDetail{
			Type:              ConflictTriggerSimilarity,
			Severity:          core.Clamp01(overlap),
			ExistingPatternID: e.ID,
			OverlapScore:      overlap,
		})
		if overlap > analysis.SeverityScore {
			analysis.SeverityScore = core.Clamp01(overlap)
		}
	}

	if len(analysis.ConflictDetails) > 0 {
		analysis.HasConflicts = true
		if analysis.SeverityScore > manualReview {
			analysis.Recommendations = append(analysis.Recommendations, RecommendManualReview)
		} else {
			analysis.Recommendations = append(analysis.Recommendations, RecommendReviewConflicts)
		}
	}
	return analysis
}

// ReviewProposal runs the automatic review of a pending proposal: the
// threshold check first, then the conflict check against approved
// patterns. The proposal is persisted in its terminal state and, on
// approval, its pattern is marked approved.
func (s *Supervisor) ReviewProposal(ctx context.Context, proposalID string) (*ReviewDecision, error) {
	const op = "supervisor.ReviewProposal"

	ctx, end := telemetry.StartSpan(ctx, "supervisor.review", map[string]string{
		"proposal_id": proposalID,
	})
	defer end()

	proposal, pattern, err := s.load(ctx, op, proposalID)
	if err != nil {
		telemetry.RecordSpanError(ctx, err)
		return nil, err
	}

	decision := &ReviewDecision{Proposal: proposal, Pattern: pattern}

	passes, err := s.AutoApprove(core.Clamp01(proposal.ConfidenceScore))
	if err != nil {
		return nil, err
	}

	if !passes {
		decision.Reason = core.ReasonBelowConfidenceThreshold
	} else {
		approved, err := s.patterns.ListPatterns(ctx, core.PatternStatusApproved)
		if err != nil {
			telemetry.RecordSpanError(ctx, err)
			return nil, err
		}
		decision.Conflict = s.ValidatePatternConflicts(pattern, approved)
		if decision.Conflict.HasConflicts && decision.Conflict.SeverityScore > s.config.MaxApprovalSeverity {
			decision.Reason = core.ReasonPatternConflicts
		} else {
			decision.Approved = true
		}
	}

	if err := s.finish(ctx, decision); err != nil {
		telemetry.RecordSpanError(ctx, err)
		return nil, err
	}

	s.logger.InfoWithContext(ctx, "Proposal reviewed", map[string]interface{}{
		"proposal_id":    proposal.ID,
		"pattern_id":     pattern.ID,
		"approved":       decision.Approved,
		"reason":         decision.Reason,
		"confidence":     proposal.ConfidenceScore,
		"severity_score": decision.Conflict.SeverityScore,
	})
	return decision, nil
}

// ManualReview applies an operator decision to a pending proposal. An
// empty rejection reason is recorded as manual_rejection.
func (s *Supervisor) ManualReview(ctx context.Context, proposalID string, approve bool, reason string) (*ReviewDecision, error) {
	const op = "supervisor.ManualReview"

	proposal, pattern, err := s.load(ctx, op, proposalID)
	if err != nil {
		return nil, err
	}

	decision := &ReviewDecision{Proposal: proposal, Pattern: pattern, Approved: approve}
	if !approve {
		if reason == "" {
			reason = core.ReasonManualRejection
		}
		decision.Reason = reason
	}

	if err := s.finish(ctx, decision); err != nil {
		return nil, err
	}

	s.logger.InfoWithContext(ctx, "Proposal manually reviewed", map[string]interface{}{
		"proposal_id": proposal.ID,
		"approved":    approve,
		"reason":      decision.Reason,
	})
	return decision, nil
}

// PendingProposals lists proposals awaiting review, oldest first.
func (s *Supervisor) PendingProposals(ctx context.Context) ([]*core.LearningProposal, error) {
	return s.patterns.ListProposals(ctx, core.ProposalPending)
}

func (s *Supervisor) load(ctx context.Context, op, proposalID string) (*core.LearningProposal, *core.Pattern, error) {
	if proposalID == "" {
		return nil, nil, core.NewValidationError(op, "proposal ID cannot be empty")
	}

	proposal, err := s.patterns.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, nil, err
	}
	if proposal.Status.IsTerminal() {
		return nil, nil, &core.FrameworkError{
			Op:      op,
			Kind:    "proposal",
			ID:      proposalID,
			Message: "proposal already " + string(proposal.Status),
			Err:     core.ErrInvalidTransition,
		}
	}

	pattern, err := s.patterns.GetPattern(ctx, proposal.PatternID)
	if err != nil {
		return nil, nil, err
	}
	return proposal, pattern, nil
}

// finish transitions and persists the proposal, then the pattern.
func (s *Supervisor) finish(ctx context.Context, d *ReviewDecision) error {
	to := core.ProposalRejected
	if d.Approved {
		to = core.ProposalApproved
	}
	if err := d.Proposal.Transition(to, d.Reason, s.now()); err != nil {
		return err
	}
	if err := s.patterns.SaveProposal(ctx, d.Proposal); err != nil {
		return err
	}

	telemetry.Counter("learning.supervisor.reviewed", "status", string(to))
	if !d.Approved {
		return nil
	}

	d.Pattern.Status = core.PatternStatusApproved
	return s.patterns.SavePattern(ctx, d.Pattern)
}
