// Package patternstore persists patterns, learning proposals, response
// templates and usage outcomes. MemoryRepository keeps everything in
// process; RedisRepository shares it across processes.
package patternstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/itsneelabh/gomind-learning/core"
)

// NeutralSuccessRate is reported for patterns with no recorded outcomes.
const NeutralSuccessRate = 0.5

var _ core.PatternRepository = (*MemoryRepository)(nil)

type outcome struct {
	success int64
	total   int64
}

// MemoryRepository is an in-process core.PatternRepository. Values are
// cloned on the way in and out so callers cannot mutate stored state.
type MemoryRepository struct {
	mu        sync.RWMutex
	patterns  map[string]*core.Pattern
	triggers  map[string]string // triggerKey -> pattern id
	proposals map[string]*core.LearningProposal
	templates map[string]*core.ResponseTemplate // by pattern id
	outcomes  map[string]outcome

	generation int64
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		patterns:  make(map[string]*core.Pattern),
		triggers:  make(map[string]string),
		proposals: make(map[string]*core.LearningProposal),
		templates: make(map[string]*core.ResponseTemplate),
		outcomes:  make(map[string]outcome),
	}
}

// triggerKey identifies a pattern by type and normalised trigger.
func triggerKey(t core.PatternType, trigger string) string {
	return string(t) + "|" + strings.ToLower(strings.TrimSpace(trigger))
}

func (r *MemoryRepository) SavePattern(ctx context.Context, p *core.Pattern) error {
	if err := validatePattern("MemoryRepository.SavePattern", p); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.patterns[p.ID]; ok {
		delete(r.triggers, triggerKey(old.Type, old.Trigger))
	}
	r.patterns[p.ID] = p.Clone()
	r.triggers[triggerKey(p.Type, p.Trigger)] = p.ID
	r.generation++
	return nil
}

func (r *MemoryRepository) GetPattern(ctx context.Context, id string) (*core.Pattern, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.patterns[id]
	if !ok {
		return nil, core.NewNotFoundError("MemoryRepository.GetPattern", "pattern", id)
	}
	return p.Clone(), nil
}

// ListPatterns returns patterns with the given status, or all of them when
// status is empty, oldest first.
func (r *MemoryRepository) ListPatterns(ctx context.Context, status core.PatternStatus) ([]*core.Pattern, error) {
	r.mu.RLock()
	out := make([]*core.Pattern, 0, len(r.patterns))
	for _, p := range r.patterns {
		if status == "" || p.Status == status {
			out = append(out, p.Clone())
		}
	}
	r.mu.RUnlock()

	sortPatterns(out)
	return out, nil
}

func (r *MemoryRepository) FindPattern(ctx context.Context, patternType core.PatternType, trigger string) (*core.Pattern, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.triggers[triggerKey(patternType, trigger)]
	if !ok {
		return nil, core.NewNotFoundError("MemoryRepository.FindPattern", "pattern", triggerKey(patternType, trigger))
	}
	return r.patterns[id].Clone(), nil
}

func (r *MemoryRepository) SaveProposal(ctx context.Context, p *core.LearningProposal) error {
	if p == nil || p.ID == "" {
		return core.NewValidationError("MemoryRepository.SaveProposal", "proposal ID cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.patterns[p.PatternID]; !ok {
		return core.NewNotFoundError("MemoryRepository.SaveProposal", "pattern", p.PatternID)
	}
	r.proposals[p.ID] = cloneProposal(p)
	return nil
}

func (r *MemoryRepository) GetProposal(ctx context.Context, id string) (*core.LearningProposal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.proposals[id]
	if !ok {
		return nil, core.NewNotFoundError("MemoryRepository.GetProposal", "proposal", id)
	}
	return cloneProposal(p), nil
}

// ListProposals returns proposals with the given status (all when empty), oldest first.
func (r *MemoryRepository) ListProposals(ctx context.Context, status core.ProposalStatus) ([]*core.LearningProposal, error) {
	r.mu.RLock()
	out := make([]*core.LearningProposal, 0, len(r.proposals))
	for _, p := range r.proposals {
		if status == "" || p.Status == status {
			out = append(out, cloneProposal(p))
		}
	}
	r.mu.RUnlock()

	sortProposals(out)
	return out, nil
}

func (r *MemoryRepository) SaveTemplate(ctx context.Context, t *core.ResponseTemplate) error {
	if t == nil || t.PatternID == "" {
		return core.NewValidationError("MemoryRepository.SaveTemplate", "template pattern ID cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.templates[t.PatternID] = cloneTemplate(t)
	r.generation++
	return nil
}

func (r *MemoryRepository) GetTemplate(ctx context.Context, patternID string) (*core.ResponseTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.templates[patternID]
	if !ok {
		return nil, core.NewNotFoundError("MemoryRepository.GetTemplate", "template", patternID)
	}
	return cloneTemplate(t), nil
}

func (r *MemoryRepository) RecordOutcome(ctx context.Context, patternID string, success bool) error {
	if patternID == "" {
		return core.NewValidationError("MemoryRepository.RecordOutcome", "pattern ID cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	o := r.outcomes[patternID]
	o.total++
	if success {
		o.success++
	}
	r.outcomes[patternID] = o
	r.generation++
	return nil
}

func (r *MemoryRepository) Generation(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation, nil
}

// SuccessRate is successes/total, or NeutralSuccessRate without data.
func (r *MemoryRepository) SuccessRate(ctx context.Context, patternID string) (float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o := r.outcomes[patternID]
	return rate(o.success, o.total), nil
}

func rate(success, total int64) float64 {
	if total <= 0 {
		return NeutralSuccessRate
	}
	return core.Clamp01(float64(success) / float64(total))
}

func validatePattern(op string, p *core.Pattern) error {
	if p == nil || p.ID == "" {
		return core.NewValidationError(op, "pattern ID cannot be empty")
	}
	if _, err := core.ParsePatternType(string(p.Type)); err != nil {
		return err
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return core.NewValidationError(op, "pattern confidence must be within [0,1]")
	}
	return nil
}

func sortPatterns(ps []*core.Pattern) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].CreatedAt.Equal(ps[j].CreatedAt) {
			return ps[i].ID < ps[j].ID
		}
		return ps[i].CreatedAt.Before(ps[j].CreatedAt)
	})
}

func sortProposals(ps []*core.LearningProposal) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].CreatedAt.Equal(ps[j].CreatedAt) {
			return ps[i].ID < ps[j].ID
		}
		return ps[i].CreatedAt.Before(ps[j].CreatedAt)
	})
}

func cloneProposal(p *core.LearningProposal) *core.LearningProposal {
	cp := *p
	cp.Evidence = append([]core.MemoryRef(nil), p.Evidence...)
	if p.ProposedChanges != nil {
		cp.ProposedChanges = make(map[string]interface{}, len(p.ProposedChanges))
		for k, v := range p.ProposedChanges {
			cp.ProposedChanges[k] = v
		}
	}
	if p.ReviewedAt != nil {
		at := *p.ReviewedAt
		cp.ReviewedAt = &at
	}
	return &cp
}

func cloneTemplate(t *core.ResponseTemplate) *core.ResponseTemplate {
	cp := *t
	cp.Placeholders = append([]string(nil), t.Placeholders...)
	cp.CommonPhrases = append([]string(nil), t.CommonPhrases...)
	return &cp
}
