package learning

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/itsneelabh/gomind-learning/core"
	"github.com/itsneelabh/gomind-learning/internal/textutil"
)

// LearningTypeOf classifies what accepting p would do: a pattern seen in
// more than one conversation is a merge, one observed before is an update,
// anything else is new.
func LearningTypeOf(p *core.Pattern) core.LearningType {
	switch {
	case len(p.Contexts) > 1:
		return core.LearningTypePatternMerge
	case observations(p) > 1:
		return core.LearningTypePatternUpdate
	default:
		return core.LearningTypeNewPattern
	}
}

// GenerateLearningLog builds a pending proposal for p. Its confidence blends
// the pattern confidence with the consistency of the evidence (mean pairwise
// keyword overlap); evidence is capped at MaxEvidence excerpts.
func (l *Learner) GenerateLearningLog(ctx context.Context, p *core.Pattern, evidence []core.Fragment) (*core.LearningProposal, error) {
	const op = "learning.GenerateLearningLog"

	if p == nil || p.ID == "" {
		return nil, core.NewValidationError(op, "pattern cannot be empty")
	}

	texts := evidenceTexts(evidence)
	consistency := textutil.MeanPairwiseJaccard(texts)
	w := l.config.PatternConfidenceWeight
	confidence := core.Clamp01(w*core.Clamp01(p.Confidence) + (1-w)*consistency)

	refs := make([]core.MemoryRef, 0, min(len(evidence), l.config.MaxEvidence))
	for _, f := range evidence {
		if len(refs) >= l.config.MaxEvidence {
			break
		}
		if strings.TrimSpace(f.Content) == "" {
			continue
		}
		refs = append(refs, core.MemoryRef{
			MemoryID:       f.ID,
			ConversationID: f.ConversationID,
			Excerpt:        textutil.Excerpt(f.Content, l.config.ExcerptLength),
			CreatedAt:      f.CreatedAt,
		})
	}

	learningType := LearningTypeOf(p)
	proposal := &core.LearningProposal{
		ID:              uuid.New().String(),
		PatternID:       p.ID,
		Type:            learningType,
		Description:     describe(learningType, p),
		ConfidenceScore: confidence,
		Evidence:        refs,
		ProposedChanges: map[string]interface{}{
			"pattern_type": string(p.Type),
			"trigger":      p.Trigger,
			"action":       p.Action,
			"confidence":   p.Confidence,
			"frequency":    p.Frequency,
			"status":       string(core.PatternStatusApproved),
		},
		Status:    core.ProposalPending,
		CreatedAt: l.now(),
	}

	l.logger.DebugWithContext(ctx, "Learning proposal generated", map[string]interface{}{
		"proposal_id":   proposal.ID,
		"pattern_id":    p.ID,
		"learning_type": string(learningType),
		"confidence":    confidence,
		"consistency":   consistency,
		"evidence":      len(refs),
	})
	return proposal, nil
}

func describe(t core.LearningType, p *core.Pattern) string {
	convs := len(p.Contexts)
	plural := "s"
	if convs == 1 {
		plural = ""
	}
	label := string(p.Type)
	if cat := p.Metadata["category"]; cat != "" {
		label += " (" + cat + ")"
	}

	switch t {
	case core.LearningTypePatternMerge:
		return fmt.Sprintf("Merge %s pattern %q seen %d times across %d conversation%s",
			label, p.Trigger, p.Frequency, convs, plural)
	case core.LearningTypePatternUpdate:
		return fmt.Sprintf("Update %s pattern %q, now seen %d times",
			label, p.Trigger, p.Frequency)
	default:
		return fmt.Sprintf("New %s pattern %q observed %d times in %d conversation%s",
			label, p.Trigger, p.Frequency, convs, plural)
	}
}

func evidenceTexts(evidence []core.Fragment) []string {
	texts := make([]string, 0, len(evidence))
	for _, f := range evidence {
		if s := strings.TrimSpace(f.Content); s != "" {
			texts = append(texts, s)
		}
	}
	return texts
}
