package engine

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/itsneelabh/gomind-learning/core"
	"github.com/itsneelabh/gomind-learning/intelligence"
	"github.com/itsneelabh/gomind-learning/learning"
)

// Task types registered on the processor.
const (
	TaskAnalyzeConversation = "analyze_conversation"
	TaskCleanupMemories     = "cleanup_memories"
	TaskDecayRelevance      = "decay_relevance"
	TaskDeprecatePatterns   = "deprecate_patterns"
)

const defaultDecayFactor = 0.95

func (e *Engine) registerJobs() error {
	jobs := map[string]core.TaskHandler{
		TaskAnalyzeConversation: e.analyzeConversation,
		TaskCleanupMemories:     e.cleanupMemories,
		TaskDecayRelevance:      e.decayRelevance,
		TaskDeprecatePatterns:   e.deprecatePatterns,
	}
	for taskType, handler := range jobs {
		if err := e.processor.RegisterHandler(taskType, handler); err != nil {
			return err
		}
	}
	return nil
}

// AnalysisResult summarises one analyze_conversation run.
type AnalysisResult struct {
	ConversationID string   `json:"conversation_id"`
	Detected       int      `json:"detected"`
	Proposals      []string `json:"proposals"`
	Approved       int      `json:"approved"`
	Rejected       int      `json:"rejected"`
	Templates      int      `json:"templates"`
	Skipped        int      `json:"skipped"`
	Failures       int      `json:"failures"`
}

// AnalyzeConversation runs the learning pipeline for one conversation:
// detection, observation into the repository, a learning proposal per
// pattern, template extraction and the supervisor review. Only a failed
// analysis is an error; failures on individual patterns are logged and
// counted so a retry never observes the same evidence twice. Patterns whose
// evidence was already merged by an earlier run are counted as skipped.
func (e *Engine) AnalyzeConversation(ctx context.Context, conversationID string, windowDays int) (*AnalysisResult, error) {
	detections, err := e.learner.AnalyzeConversation(ctx, conversationID, windowDays)
	if err != nil {
		return nil, err
	}

	result := &AnalysisResult{
		ConversationID: conversationID,
		Detected:       len(detections),
		Proposals:      []string{},
	}
	for _, d := range detections {
		err := e.learnFrom(ctx, d, result)
		if errors.Is(err, learning.ErrAlreadyObserved) {
			result.Skipped++
			e.logger.DebugWithContext(ctx, "Pattern evidence already observed", map[string]interface{}{
				"conversation_id": conversationID,
				"trigger":         d.Pattern.Trigger,
			})
			continue
		}
		if err != nil {
			result.Failures++
			e.logger.WarnWithContext(ctx, "Pattern not learned", map[string]interface{}{
				"conversation_id": conversationID,
				"trigger":         d.Pattern.Trigger,
				"error":           err.Error(),
			})
		}
	}

	e.logger.InfoWithContext(ctx, "Conversation analyzed", map[string]interface{}{
		"conversation_id": conversationID,
		"detected":        result.Detected,
		"approved":        result.Approved,
		"rejected":        result.Rejected,
		"skipped":         result.Skipped,
		"failures":        result.Failures,
	})
	return result, nil
}

func (e *Engine) learnFrom(ctx context.Context, d learning.Detection, result *AnalysisResult) error {
	p, err := e.learner.Observe(ctx, d.Pattern)
	if err != nil {
		return err
	}

	proposal, err := e.learner.GenerateLearningLog(ctx, p, d.Evidence)
	if err != nil {
		return err
	}
	if err := e.patterns.SaveProposal(ctx, proposal); err != nil {
		return err
	}
	result.Proposals = append(result.Proposals, proposal.ID)

	tmpl, err := e.learner.ExtractResponseTemplate(ctx, p, d.Evidence)
	switch {
	case err != nil:
		e.logger.DebugWithContext(ctx, "Template extraction failed", map[string]interface{}{
			"pattern_id": p.ID,
			"error":      err.Error(),
		})
	case tmpl != nil:
		if err := e.patterns.SaveTemplate(ctx, tmpl); err != nil {
			return err
		}
		result.Templates++
	}

	decision, err := e.supervisor.ReviewProposal(ctx, proposal.ID)
	if err != nil {
		return err
	}

	accuracy := 0.0
	if decision.Approved {
		accuracy = 1
		result.Approved++
		e.record(intelligence.MetricInput{
			Type:      intelligence.MetricPatternLearned,
			Value:     1,
			AgentType: intelligence.AgentLearner,
			PatternID: p.ID,
			Context:   map[string]string{"pattern_type": string(p.Type)},
		})
	} else {
		result.Rejected++
	}
	e.record(intelligence.MetricInput{
		Type:      intelligence.MetricLearningAccuracy,
		Value:     accuracy,
		AgentType: intelligence.AgentSupervisor,
		PatternID: p.ID,
		Context:   map[string]string{"reason": decision.Reason},
	})
	return nil
}

func (e *Engine) record(m intelligence.MetricInput) {
	if err := e.reporter.RecordMetric(m); err != nil {
		e.logger.Debug("Metric rejected", map[string]interface{}{
			"type":  m.Type,
			"error": err.Error(),
		})
	}
}

func (e *Engine) analyzeConversation(ctx context.Context, task *core.ProcessingTask) error {
	conversationID, _ := task.Data["conversation_id"].(string)
	if conversationID == "" {
		return core.NewValidationError("engine.analyzeConversation", "task has no conversation_id")
	}
	_, err := e.AnalyzeConversation(ctx, conversationID, intValue(task.Data["window_days"]))
	return err
}

func (e *Engine) cleanupMemories(ctx context.Context, task *core.ProcessingTask) error {
	days := intValue(task.Data["retention_days"])
	if days <= 0 {
		days = e.config.Memory.RetentionDays
	}
	removed, err := e.memory.CleanupOldMemories(ctx, days)
	if err != nil {
		return err
	}
	e.logger.Debug("Memory cleanup finished", map[string]interface{}{
		"task_id": task.ID,
		"removed": removed,
	})
	return nil
}

func (e *Engine) decayRelevance(ctx context.Context, task *core.ProcessingTask) error {
	factor, ok := floatValue(task.Data["factor"])
	if !ok {
		factor = defaultDecayFactor
	}
	updated, err := e.memory.DecayRelevance(ctx, factor)
	if err != nil {
		return err
	}
	e.logger.Debug("Relevance decay finished", map[string]interface{}{
		"task_id": task.ID,
		"updated": updated,
		"factor":  factor,
	})
	return nil
}

// DeprecatePatterns retires approved patterns that have not been seen
// within the recency window or whose recorded success rate fell below the
// configured floor. Patterns without outcomes keep the neutral rate and are
// judged on recency alone. It returns the IDs it deprecated.
func (e *Engine) DeprecatePatterns(ctx context.Context, now time.Time) ([]string, error) {
	approved, err := e.patterns.ListPatterns(ctx, core.PatternStatusApproved)
	if err != nil {
		return nil, err
	}

	cutoff := now.Add(-e.config.Behavior.RecencyWindow)
	floor := e.config.Behavior.DeprecationSuccessFloor
	deprecated := []string{}
	for _, p := range approved {
		reason := ""
		if !p.LastSeen.IsZero() && p.LastSeen.Before(cutoff) {
			reason = "stale"
		} else if floor > 0 {
			rate, err := e.patterns.SuccessRate(ctx, p.ID)
			if err != nil {
				return deprecated, err
			}
			if rate < floor {
				reason = "low_success"
			}
		}
		if reason == "" {
			continue
		}

		retired := p.Clone()
		retired.Status = core.PatternStatusDeprecated
		if retired.Metadata == nil {
			retired.Metadata = make(map[string]string)
		}
		retired.Metadata["deprecated_reason"] = reason
		if err := e.patterns.SavePattern(ctx, retired); err != nil {
			return deprecated, err
		}
		deprecated = append(deprecated, p.ID)
		e.logger.InfoWithContext(ctx, "Pattern deprecated", map[string]interface{}{
			"pattern_id": p.ID,
			"reason":     reason,
			"last_seen":  p.LastSeen,
		})
	}
	return deprecated, nil
}

func (e *Engine) deprecatePatterns(ctx context.Context, task *core.ProcessingTask) error {
	ids, err := e.DeprecatePatterns(ctx, time.Now())
	if err != nil {
		return err
	}
	e.logger.Debug("Pattern deprecation finished", map[string]interface{}{
		"task_id":    task.ID,
		"deprecated": len(ids),
	})
	return nil
}

// intValue accepts the numeric shapes task data takes in memory and after
// a JSON round trip.
func intValue(v interface{}) int {
	f, ok := floatValue(v)
	if !ok {
		return 0
	}
	return int(f)
}

func floatValue(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}
