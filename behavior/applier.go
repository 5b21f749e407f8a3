// Package behavior applies approved patterns to live conversation turns:
// it finds the patterns relevant to a message, ranks them, and renders a
// personalised response. Nothing here ever blocks the conversation on a
// failing dependency.
package behavior

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/itsneelabh/gomind-learning/core"
	"github.com/itsneelabh/gomind-learning/internal/textutil"
	"github.com/itsneelabh/gomind-learning/telemetry"
)

const (
	usageBuffer = 256

	// neutralScore stands in for unknown context match and success rate.
	neutralScore = 0.5

	defaultResponse = "Thanks for your message. Let me look into that for you."
)

// Response methods reported in ResponseResult.
const (
	MethodTemplate  = "template"
	MethodGenerated = "generated"
	MethodAction    = "action"
	MethodDefault   = "default"
)

// UsageEvent describes one application of a pattern.
type UsageEvent struct {
	PatternID      string        `json:"pattern_id"`
	ContextType    string        `json:"context_type"`
	RelevanceScore float64       `json:"relevance_score"`
	Confidence     float64       `json:"confidence"`
	Method         string        `json:"method"`
	Latency        time.Duration `json:"latency"`
	At             time.Time     `json:"at"`
}

// UsageRecorder receives pattern usage and outcomes for reporting.
type UsageRecorder interface {
	RecordPatternUsage(event UsageEvent)
	RecordPatternOutcome(patternID string, success bool)
}

// ResponseResult is the outcome of applying a pattern.
type ResponseResult struct {
	Text         string  `json:"text"`
	PatternID    string  `json:"pattern_id,omitempty"`
	Confidence   float64 `json:"confidence"`
	Method       string  `json:"method"`
	TemplateUsed bool    `json:"template_used"`
	Degraded     bool    `json:"degraded"`
}

// Applier finds, ranks and applies approved patterns.
type Applier struct {
	patterns  core.PatternRepository
	generator core.TextGenerator
	recorder  UsageRecorder
	config    core.BehaviorConfig
	logger    core.Logger
	cache     *core.TTLCache
	now       func() time.Time

	usage     chan UsageEvent
	done      chan struct{}
	closeOnce sync.Once
}

// Option configures an Applier.
type Option func(*Applier)

// WithClock overrides time.Now for recency scoring.
func WithClock(now func() time.Time) Option {
	return func(a *Applier) {
		if now != nil {
			a.now = now
		}
	}
}

// NewApplier creates an applier. generator and recorder may be nil.
// Close must be called to stop the usage recorder loop.
func NewApplier(patterns core.PatternRepository, generator core.TextGenerator, recorder UsageRecorder, cfg core.BehaviorConfig, logger core.Logger, opts ...Option) (*Applier, error) {
	if patterns == nil {
		return nil, fmt.Errorf("pattern repository is required: %w", core.ErrMissingConfiguration)
	}

	defaults := core.DefaultConfig().Behavior
	if cfg.MinRelevance <= 0 {
		cfg.MinRelevance = defaults.MinRelevance
	}
	if cfg.MaxPatterns <= 0 {
		cfg.MaxPatterns = defaults.MaxPatterns
	}
	if cfg.RecencyWindow <= 0 {
		cfg.RecencyWindow = defaults.RecencyWindow
	}
	if cfg.FrequencyNormalizer <= 0 {
		cfg.FrequencyNormalizer = defaults.FrequencyNormalizer
	}
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = defaults.GenerateTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaults.MaxTokens
	}
	if cfg.DefaultResponse == "" {
		cfg.DefaultResponse = defaultResponse
	}

	a := &Applier{
		patterns:  patterns,
		generator: generator,
		recorder:  recorder,
		config:    cfg,
		logger:    core.ComponentLogger(logger, "learning/behavior"),
		now:       time.Now,
		usage:     make(chan UsageEvent, usageBuffer),
		done:      make(chan struct{}),
	}

	if cfg.CacheSize > 0 {
		cache, err := core.NewTTLCache(cfg.CacheSize, cfg.CacheTTL)
		if err != nil {
			return nil, err
		}
		a.cache = cache
	}

	for _, opt := range opts {
		opt(a)
	}

	go a.recordLoop()
	return a, nil
}

// DefaultResponse is the text used when no pattern applies.
func (a *Applier) DefaultResponse() string {
	return a.config.DefaultResponse
}

// Close stops the usage loop after draining pending events.
func (a *Applier) Close() {
	a.closeOnce.Do(func() {
		close(a.usage)
		<-a.done
		a.cache.Close()
	})
}

func (a *Applier) recordLoop() {
	defer close(a.done)
	for event := range a.usage {
		if a.recorder == nil {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					a.logger.Error("Usage recorder panicked", map[string]interface{}{
						"pattern_id": event.PatternID,
						"panic":      fmt.Sprint(r),
					})
				}
			}()
			a.recorder.RecordPatternUsage(event)
		}()
	}
}

// FindApplicablePatterns scores every approved pattern against message:
//
//	relevance = 0.4·text similarity + 0.3·context match + 0.2·keyword overlap + 0.1·success rate
//
// Patterns below MinRelevance are dropped; the rest come back most
// relevant first, capped at MaxPatterns, each with its template when one
// exists. Repository failures yield an empty list.
func (a *Applier) FindApplicablePatterns(ctx context.Context, message string, appCtx *core.ApplicationContext) ([]core.ApplicablePattern, error) {
	const op = "behavior.FindApplicablePatterns"

	if strings.TrimSpace(message) == "" {
		return nil, core.NewValidationError(op, "message cannot be empty")
	}
	if appCtx == nil {
		return nil, core.NewValidationError(op, "application context is required")
	}

	// The key covers every input of the relevance score plus the repository
	// generation, so approvals and new templates are visible immediately.
	var key string
	if a.cache != nil {
		generation, err := a.patterns.Generation(ctx)
		if err == nil {
			key = cacheKey(message, appCtx, generation)
			if cached, ok := a.cache.Get(key); ok {
				telemetry.Counter("learning.behavior.cache", "result", "hit")
				return withContext(cached.([]core.ApplicablePattern), *appCtx), nil
			}
		}
	}

	ctx, end := telemetry.StartSpan(ctx, "behavior.find", map[string]string{
		"context_type": appCtx.ContextType,
	})
	defer end()

	approved, err := a.patterns.ListPatterns(ctx, core.PatternStatusApproved)
	if err != nil {
		telemetry.RecordSpanError(ctx, err)
		telemetry.RecordError("learning.behavior.errors", "repository")
		a.logger.WarnWithContext(ctx, "Pattern lookup failed, continuing without patterns", map[string]interface{}{
			"error": err.Error(),
		})
		return []core.ApplicablePattern{}, nil
	}

	messageKeywords := textutil.KeywordSet(message)
	found := make([]core.ApplicablePattern, 0)
	for _, p := range approved {
		if ctx.Err() != nil {
			break
		}

		successRate, err := a.patterns.SuccessRate(ctx, p.ID)
		if err != nil {
			successRate = neutralScore
		}

		relevance := core.Clamp01(
			0.4*textutil.CosineText(p.Trigger, message) +
				0.3*contextMatch(p, appCtx) +
				0.2*textutil.Jaccard(messageKeywords, textutil.KeywordSet(p.Trigger)) +
				0.1*core.Clamp01(successRate))
		if relevance < a.config.MinRelevance {
			continue
		}

		ap := core.ApplicablePattern{
			Pattern:            p,
			RelevanceScore:     relevance,
			ApplicationContext: *appCtx,
		}
		tmpl, err := a.patterns.GetTemplate(ctx, p.ID)
		switch {
		case err == nil:
			ap.Template = tmpl
		case !core.IsNotFound(err):
			a.logger.DebugWithContext(ctx, "Template lookup failed", map[string]interface{}{
				"pattern_id": p.ID,
				"error":      err.Error(),
			})
		}
		found = append(found, ap)
	}

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].RelevanceScore > found[j].RelevanceScore
	})
	if len(found) > a.config.MaxPatterns {
		found = found[:a.config.MaxPatterns]
	}

	if key != "" {
		a.cache.Set(key, found)
	}
	telemetry.Histogram("learning.behavior.applicable", float64(len(found)))
	return withContext(found, *appCtx), nil
}

// contextMatch is 1 when the pattern was seen in this conversation or is
// tagged with the same context type, 0 when tagged with another type, the
// keyword overlap when the caller supplied keywords, and neutral otherwise.
func contextMatch(p *core.Pattern, appCtx *core.ApplicationContext) float64 {
	if appCtx.ConversationID != "" && p.HasContext(appCtx.ConversationID) {
		return 1
	}
	if ct := p.Metadata["context_type"]; ct != "" {
		if strings.EqualFold(ct, appCtx.ContextType) {
			return 1
		}
		return 0
	}
	if len(appCtx.Keywords) > 0 {
		kw := make(map[string]struct{}, len(appCtx.Keywords))
		for _, k := range appCtx.Keywords {
			kw[strings.ToLower(k)] = struct{}{}
		}
		return textutil.Jaccard(kw, textutil.KeywordSet(p.Trigger+" "+p.Action))
	}
	return neutralScore
}

func withContext(in []core.ApplicablePattern, appCtx core.ApplicationContext) []core.ApplicablePattern {
	out := make([]core.ApplicablePattern, len(in))
	for i, ap := range in {
		ap.ApplicationContext = appCtx
		out[i] = ap
	}
	return out
}

// cacheKey hashes the message together with the context fields that
// contextMatch reads. Keywords are lowercased and sorted.
func cacheKey(message string, appCtx *core.ApplicationContext, generation int64) string {
	keywords := make([]string, len(appCtx.Keywords))
	for i, k := range appCtx.Keywords {
		keywords[i] = strings.ToLower(k)
	}
	sort.Strings(keywords)

	h := fnv.New64a()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(message))))
	h.Write([]byte{0})
	h.Write([]byte(appCtx.ConversationID))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(keywords, "\x1f")))
	return fmt.Sprintf("%x|%s|%d", h.Sum64(), strings.ToLower(appCtx.ContextType), generation)
}

// PriorityScore combines confidence, relevance, frequency and recency:
//
//	0.4·confidence + 0.3·relevance + 0.2·min(1, frequency/100) + 0.1·recency
//
// Recency decays linearly from 1 at LastSeen to 0 after RecencyWindow.
func (a *Applier) PriorityScore(ap core.ApplicablePattern) float64 {
	if ap.Pattern == nil {
		return 0
	}
	p := ap.Pattern

	freq := float64(p.Frequency) / a.config.FrequencyNormalizer
	if freq > 1 {
		freq = 1
	}

	recency := 0.0
	if !p.LastSeen.IsZero() {
		age := a.now().Sub(p.LastSeen)
		if age < 0 {
			age = 0
		}
		recency = 1 - float64(age)/float64(a.config.RecencyWindow)
		if recency < 0 {
			recency = 0
		}
	}

	return core.Clamp01(0.4*core.Clamp01(p.Confidence) + 0.3*core.Clamp01(ap.RelevanceScore) + 0.2*freq + 0.1*recency)
}

// PrioritizePatterns returns the patterns ordered by PriorityScore, highest first.
func (a *Applier) PrioritizePatterns(patterns []core.ApplicablePattern) []core.ApplicablePattern {
	type scored struct {
		ap    core.ApplicablePattern
		score float64
	}
	list := make([]scored, len(patterns))
	for i, ap := range patterns {
		list[i] = scored{ap: ap, score: a.PriorityScore(ap)}
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].score > list[j].score
	})

	out := make([]core.ApplicablePattern, len(list))
	for i, s := range list {
		out[i] = s.ap
	}
	return out
}

// ApplyPattern renders a response for ap: its template when present, else
// a generated response, else the pattern action, else the default
// response. The text is then personalised with AdaptResponse. Usage is
// recorded in the background.
func (a *Applier) ApplyPattern(ctx context.Context, ap core.ApplicablePattern, appCtx *core.ApplicationContext) (*ResponseResult, error) {
	const op = "behavior.ApplyPattern"

	if ap.Pattern == nil {
		return nil, core.NewValidationError(op, "applicable pattern has no pattern")
	}
	if appCtx == nil {
		appCtx = &ap.ApplicationContext
	}

	start := time.Now()
	ctx, end := telemetry.StartSpan(ctx, "behavior.apply", map[string]string{
		"pattern_id": ap.Pattern.ID,
	})
	defer end()

	result := &ResponseResult{PatternID: ap.Pattern.ID}
	var raw string

	switch {
	case ap.Template != nil && strings.TrimSpace(ap.Template.Text) != "":
		raw = ap.Template.Text
		result.Method = MethodTemplate
		result.TemplateUsed = true
	default:
		raw, result.Method = a.generate(ctx, ap, appCtx)
	}
	if raw == "" {
		raw = ap.Pattern.Action
		result.Method = MethodAction
	}
	if strings.TrimSpace(raw) == "" {
		raw = a.config.DefaultResponse
		result.Method = MethodDefault
		result.Degraded = true
	}

	result.Text = AdaptResponse(raw, appCtx)
	if result.Text == "" {
		result.Text = strings.TrimSpace(raw)
		result.Degraded = true
	}

	templateBonus := 0.0
	if result.TemplateUsed {
		templateBonus = 1
	}
	result.Confidence = core.Clamp01(
		0.4*core.Clamp01(ap.Pattern.Confidence) +
			0.3*core.Clamp01(ap.RelevanceScore) +
			0.2*lengthScore(result.Text) +
			0.1*templateBonus)

	a.recordUsage(UsageEvent{
		PatternID:      ap.Pattern.ID,
		ContextType:    appCtx.ContextType,
		RelevanceScore: ap.RelevanceScore,
		Confidence:     result.Confidence,
		Method:         result.Method,
		Latency:        time.Since(start),
		At:             a.now(),
	})
	telemetry.Counter("learning.behavior.applied", "method", result.Method)
	return result, nil
}

func (a *Applier) generate(ctx context.Context, ap core.ApplicablePattern, appCtx *core.ApplicationContext) (string, string) {
	if a.generator == nil {
		return "", ""
	}

	genCtx, cancel := context.WithTimeout(ctx, a.config.GenerateTimeout)
	defer cancel()

	prompt := fmt.Sprintf(
		"A customer wrote in a %s conversation. Reply the way this pattern prescribes.\n"+
			"Situation: %s\nExpected response: %s\n"+
			"Keep it short. You may use {greeting}, {name} and {closing} placeholders.",
		nonEmpty(appCtx.ContextType, "general"), ap.Pattern.Trigger, textutil.Excerpt(ap.Pattern.Action, 300))

	text, err := a.generator.GenerateText(genCtx, prompt, core.GenerateOptions{
		MaxTokens:   a.config.MaxTokens,
		Temperature: a.config.Temperature,
	})
	if err != nil {
		telemetry.RecordError("learning.behavior.errors", "generate")
		a.logger.WarnWithContext(ctx, "Response generation failed, falling back", map[string]interface{}{
			"pattern_id": ap.Pattern.ID,
			"error":      err.Error(),
		})
		return "", ""
	}
	return strings.TrimSpace(text), MethodGenerated
}

// RecordOutcome feeds the historical success rate used in relevance
// scoring and forwards the outcome to the usage recorder.
func (a *Applier) RecordOutcome(ctx context.Context, patternID string, success bool) error {
	if err := a.patterns.RecordOutcome(ctx, patternID, success); err != nil {
		return err
	}
	a.cache.Clear()
	if a.recorder != nil {
		a.recorder.RecordPatternOutcome(patternID, success)
	}
	return nil
}

// recordUsage never blocks; events are dropped when the buffer is full.
func (a *Applier) recordUsage(event UsageEvent) {
	defer func() {
		// send on a closed channel after Close
		_ = recover()
	}()
	select {
	case a.usage <- event:
	default:
		telemetry.Counter("learning.behavior.usage_dropped")
	}
}

// lengthScore favours responses long enough to be useful but not rambling.
func lengthScore(text string) float64 {
	n := utf8.RuneCountInString(text)
	switch {
	case n == 0:
		return 0
	case n < 20:
		return 0.5
	case n <= 500:
		return 1
	default:
		return 0.7
	}
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
