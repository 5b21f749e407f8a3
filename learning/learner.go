// Package learning mines behavioral patterns from conversation transcripts
// and turns them into learning proposals and response templates.
package learning

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/itsneelabh/gomind-learning/core"
	"github.com/itsneelabh/gomind-learning/telemetry"
	"golang.org/x/sync/errgroup"
)

// Detection is a pattern together with the fragments that support it.
type Detection struct {
	Pattern  *core.Pattern
	Evidence []core.Fragment
}

// ErrAlreadyObserved is returned by Observe when the pattern's evidence from
// every one of its conversations has been merged before.
var ErrAlreadyObserved = errors.New("pattern evidence already observed")

// Detector finds patterns of a single type in a conversation.
type Detector interface {
	Type() core.PatternType
	Detect(ctx context.Context, conversationID string, fragments []core.Fragment) ([]Detection, error)
}

// Learner runs the registered detectors over conversation transcripts.
type Learner struct {
	source    core.TranscriptSource
	generator core.TextGenerator
	repo      core.PatternRepository
	config    core.LearningConfig
	logger    core.Logger
	detectors map[core.PatternType]Detector
	now       func() time.Time
}

// LearnerOption configures a Learner.
type LearnerOption func(*Learner)

// WithDetector registers d for its pattern type, replacing any existing one.
func WithDetector(d Detector) LearnerOption {
	return func(l *Learner) {
		if d != nil {
			l.detectors[d.Type()] = d
		}
	}
}

// WithRepository enables Observe, which merges detections into stored patterns.
func WithRepository(repo core.PatternRepository) LearnerOption {
	return func(l *Learner) {
		l.repo = repo
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) LearnerOption {
	return func(l *Learner) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLearner creates a learner. generator may be nil, in which case
// templates always use the statistical fallback.
func NewLearner(source core.TranscriptSource, generator core.TextGenerator, cfg core.LearningConfig, logger core.Logger, opts ...LearnerOption) (*Learner, error) {
	if source == nil {
		return nil, fmt.Errorf("transcript source is required: %w", core.ErrMissingConfiguration)
	}

	defaults := core.DefaultConfig().Learning
	if cfg.MinFragments <= 0 {
		cfg.MinFragments = defaults.MinFragments
	}
	if cfg.MinOccurrences <= 0 {
		cfg.MinOccurrences = defaults.MinOccurrences
	}
	if cfg.MaxPatternConfidence <= 0 || cfg.MaxPatternConfidence > 1 {
		cfg.MaxPatternConfidence = defaults.MaxPatternConfidence
	}
	if cfg.MaxEvidence <= 0 {
		cfg.MaxEvidence = defaults.MaxEvidence
	}
	if cfg.ExcerptLength <= 0 {
		cfg.ExcerptLength = defaults.ExcerptLength
	}
	if cfg.DefaultWindowDays <= 0 {
		cfg.DefaultWindowDays = defaults.DefaultWindowDays
	}
	if cfg.PatternConfidenceWeight <= 0 || cfg.PatternConfidenceWeight > 1 {
		cfg.PatternConfidenceWeight = defaults.PatternConfidenceWeight
	}
	if cfg.TemplateMaxTokens <= 0 {
		cfg.TemplateMaxTokens = defaults.TemplateMaxTokens
	}
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = defaults.GenerateTimeout
	}

	l := &Learner{
		source:    source,
		generator: generator,
		config:    cfg,
		logger:    core.ComponentLogger(logger, "learning/learner"),
		detectors: make(map[core.PatternType]Detector, len(core.PatternTypes)),
		now:       time.Now,
	}

	l.detectors[core.PatternTypeResponse] = &ResponseDetector{
		MinOccurrences: cfg.MinOccurrences,
		MaxConfidence:  cfg.MaxPatternConfidence,
		Now:            func() time.Time { return l.now() },
	}
	for _, t := range core.PatternTypes[1:] {
		l.detectors[t] = emptyDetector{patternType: t}
	}

	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// AnalyzeConversationPatterns returns the patterns found in the last
// windowDays of a conversation. It returns an empty slice when the window
// holds fewer than MinFragments fragments.
func (l *Learner) AnalyzeConversationPatterns(ctx context.Context, conversationID string, windowDays int) ([]*core.Pattern, error) {
	detections, err := l.AnalyzeConversation(ctx, conversationID, windowDays)
	if err != nil {
		return nil, err
	}
	patterns := make([]*core.Pattern, len(detections))
	for i, d := range detections {
		patterns[i] = d.Pattern
	}
	return patterns, nil
}

// AnalyzeConversation is AnalyzeConversationPatterns with the supporting
// evidence of each pattern. Detectors run concurrently; results are merged
// in pattern-type order.
func (l *Learner) AnalyzeConversation(ctx context.Context, conversationID string, windowDays int) ([]Detection, error) {
	const op = "learning.AnalyzeConversation"

	if strings.TrimSpace(conversationID) == "" {
		return nil, core.NewValidationError(op, "conversation ID cannot be empty")
	}
	if windowDays <= 0 {
		windowDays = l.config.DefaultWindowDays
	}

	ctx, end := telemetry.StartSpan(ctx, "learning.analyze", map[string]string{
		"conversation_id": conversationID,
	})
	defer end()

	since := l.now().Add(-time.Duration(windowDays) * 24 * time.Hour)
	fragments, err := l.source.Fragments(ctx, conversationID, since)
	if err != nil {
		telemetry.RecordSpanError(ctx, err)
		return nil, fmt.Errorf("failed to load transcript for %s: %w", conversationID, err)
	}

	if len(fragments) < l.config.MinFragments {
		l.logger.DebugWithContext(ctx, "Not enough fragments to analyze", map[string]interface{}{
			"conversation_id": conversationID,
			"fragments":       len(fragments),
			"min_fragments":   l.config.MinFragments,
		})
		return []Detection{}, nil
	}

	types := make([]core.PatternType, 0, len(l.detectors))
	for _, t := range core.PatternTypes {
		if _, ok := l.detectors[t]; ok {
			types = append(types, t)
		}
	}

	results := make([][]Detection, len(types))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range types {
		d := l.detectors[t]
		g.Go(func() error {
			found, err := d.Detect(gctx, conversationID, fragments)
			if err != nil {
				return fmt.Errorf("%s detector: %w", d.Type(), err)
			}
			results[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		telemetry.RecordSpanError(ctx, err)
		return nil, err
	}

	var merged []Detection
	for i, found := range results {
		for _, d := range found {
			if d.Pattern == nil {
				continue
			}
			d.Pattern.Confidence = core.Clamp01(d.Pattern.Confidence)
			stampEvidence(d)
			merged = append(merged, d)
		}
		telemetry.Counter("learning.patterns.detected", "pattern_type", string(types[i]))
	}
	if merged == nil {
		merged = []Detection{}
	}

	l.logger.InfoWithContext(ctx, "Conversation analyzed", map[string]interface{}{
		"conversation_id": conversationID,
		"fragments":       len(fragments),
		"patterns":        len(merged),
	})
	return merged, nil
}

// Observe stores a detected pattern, merging it into an existing pattern
// with the same type and trigger. The merged pattern accumulates frequency
// and contexts, keeps its status, and blends its confidence with the
// frequency-based estimate. Patterns produced by AnalyzeConversation carry
// the timestamp of their newest evidence; re-observing evidence no newer
// than what was already merged for the same conversations returns the
// stored pattern with ErrAlreadyObserved.
func (l *Learner) Observe(ctx context.Context, p *core.Pattern) (*core.Pattern, error) {
	const op = "learning.Observe"

	if p == nil || p.ID == "" {
		return nil, core.NewValidationError(op, "pattern cannot be empty")
	}
	if l.repo == nil {
		return nil, fmt.Errorf("%s: pattern repository is required: %w", op, core.ErrMissingConfiguration)
	}

	existing, err := l.repo.FindPattern(ctx, p.Type, p.Trigger)
	if err != nil && !core.IsNotFound(err) {
		return nil, err
	}

	through, marked := evidenceThrough(p)

	if existing == nil {
		fresh := p.Clone()
		if fresh.Status == "" {
			fresh.Status = core.PatternStatusCandidate
		}
		delete(fresh.Metadata, metaEvidenceThrough)
		setObservations(fresh, 1)
		if marked {
			markObserved(fresh, p.Contexts, through)
		}
		if err := l.repo.SavePattern(ctx, fresh); err != nil {
			return nil, err
		}
		return fresh, nil
	}

	if marked && alreadyObserved(existing, p.Contexts, through) {
		return existing, ErrAlreadyObserved
	}

	merged := existing.Clone()
	add := p.Frequency
	if add < 1 {
		add = 1
	}
	merged.Frequency += add
	for _, c := range p.Contexts {
		merged.AddContext(c)
	}
	if p.LastSeen.After(merged.LastSeen) {
		merged.LastSeen = p.LastSeen
	} else {
		merged.LastSeen = l.now()
	}
	estimate := float64(merged.Frequency) / 10
	if estimate > l.config.MaxPatternConfidence {
		estimate = l.config.MaxPatternConfidence
	}
	merged.Confidence = core.Clamp01(0.5*existing.Confidence + 0.5*estimate)
	setObservations(merged, observations(existing)+1)
	if marked {
		markObserved(merged, p.Contexts, through)
	}

	if err := l.repo.SavePattern(ctx, merged); err != nil {
		return nil, err
	}

	l.logger.DebugWithContext(ctx, "Pattern merged", map[string]interface{}{
		"pattern_id": merged.ID,
		"frequency":  merged.Frequency,
		"confidence": merged.Confidence,
	})
	return merged, nil
}

const (
	metaObservations    = "observations"
	metaEvidenceThrough = "evidence_through"
	// followed by a conversation ID; holds the newest evidence merged from it
	metaObservedPrefix = "observed:"
)

// stampEvidence records the newest evidence timestamp on the detected
// pattern.
func stampEvidence(d Detection) {
	var latest time.Time
	for _, f := range d.Evidence {
		if f.CreatedAt.After(latest) {
			latest = f.CreatedAt
		}
	}
	if latest.IsZero() {
		return
	}
	if d.Pattern.Metadata == nil {
		d.Pattern.Metadata = make(map[string]string)
	}
	d.Pattern.Metadata[metaEvidenceThrough] = latest.UTC().Format(time.RFC3339Nano)
}

func evidenceThrough(p *core.Pattern) (time.Time, bool) {
	v, ok := p.Metadata[metaEvidenceThrough]
	if !ok || len(p.Contexts) == 0 {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

func alreadyObserved(p *core.Pattern, conversations []string, through time.Time) bool {
	for _, c := range conversations {
		seen, err := time.Parse(time.RFC3339Nano, p.Metadata[metaObservedPrefix+c])
		if err != nil || seen.Before(through) {
			return false
		}
	}
	return true
}

func markObserved(p *core.Pattern, conversations []string, through time.Time) {
	if p.Metadata == nil {
		p.Metadata = make(map[string]string)
	}
	for _, c := range conversations {
		p.Metadata[metaObservedPrefix+c] = through.UTC().Format(time.RFC3339Nano)
	}
}

func observations(p *core.Pattern) int {
	n, err := strconv.Atoi(p.Metadata[metaObservations])
	if err != nil {
		return 0
	}
	return n
}

func setObservations(p *core.Pattern, n int) {
	if p.Metadata == nil {
		p.Metadata = make(map[string]string)
	}
	p.Metadata[metaObservations] = strconv.Itoa(n)
}

// emptyDetector is the extension point for pattern types without an
// algorithm; it never reports anything.
type emptyDetector struct {
	patternType core.PatternType
}

func (d emptyDetector) Type() core.PatternType { return d.patternType }

func (d emptyDetector) Detect(context.Context, string, []core.Fragment) ([]Detection, error) {
	return nil, nil
}
