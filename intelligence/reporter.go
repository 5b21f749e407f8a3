// Package intelligence aggregates the metrics produced by the learning
// components into rolling statistics, trends and alerts.
package intelligence

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/itsneelabh/gomind-learning/behavior"
	"github.com/itsneelabh/gomind-learning/core"
)

// MetricInput is one observation passed to RecordMetric. A zero At means now.
type MetricInput struct {
	Type      string            `json:"type"`
	Value     float64           `json:"value"`
	Context   map[string]string `json:"context,omitempty"`
	AgentType string            `json:"agent_type,omitempty"`
	PatternID string            `json:"pattern_id,omitempty"`
	At        time.Time         `json:"at,omitempty"`
}

// MetricRecord is a stored observation.
type MetricRecord struct {
	Type      string            `json:"type"`
	Value     float64           `json:"value"`
	Context   map[string]string `json:"context,omitempty"`
	AgentType string            `json:"agent_type,omitempty"`
	PatternID string            `json:"pattern_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// AgentStats holds the rolling statistics of one agent type.
type AgentStats struct {
	AgentType       string    `json:"agent_type"`
	SuccessRate     float64   `json:"success_rate"`
	AvgResponseTime float64   `json:"avg_response_time"`
	PatternsLearned int       `json:"patterns_learned"`
	PatternsPerHour float64   `json:"patterns_per_hour"`
	MetricCount     int       `json:"metric_count"`
	LastActivity    time.Time `json:"last_activity"`
	hasSuccess      bool
	hasResponse     bool
}

// MetricStats summarises the values of one metric type.
type MetricStats struct {
	Count  int     `json:"count"`
	Avg    float64 `json:"avg"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Median float64 `json:"median"`
}

// PerformanceStats is the result of GetPerformanceStats.
type PerformanceStats struct {
	AgentType   string                 `json:"agent_type,omitempty"`
	WindowHours int                    `json:"window_hours"`
	From        time.Time              `json:"from"`
	To          time.Time              `json:"to"`
	Metrics     map[string]MetricStats `json:"metrics"`
}

// maxLearnedPerMetric caps the count a single pattern_learned metric may carry.
const maxLearnedPerMetric = 1000

// learnEvent is one pattern_learned observation.
type learnEvent struct {
	at    time.Time
	count int
}

// Reporter keeps a bounded metric history and per-agent rolling stats.
// It is safe for concurrent use.
type Reporter struct {
	config core.ReporterConfig
	logger core.Logger
	now    func() time.Time

	mu           sync.RWMutex
	history      []MetricRecord
	agents       map[string]*AgentStats
	learned      []learnEvent
	totalLearned int
	recorded     int64
}

var _ behavior.UsageRecorder = (*Reporter)(nil)

// Option configures a Reporter.
type Option func(*Reporter)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) {
		if now != nil {
			r.now = now
		}
	}
}

// NewReporter creates a reporter. Zero config values fall back to defaults.
func NewReporter(cfg core.ReporterConfig, logger core.Logger, opts ...Option) *Reporter {
	defaults := core.DefaultConfig().Reporter
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaults.HistorySize
	}
	if cfg.EMAWeight <= 0 || cfg.EMAWeight >= 1 {
		cfg.EMAWeight = defaults.EMAWeight
	}
	if cfg.MinMetrics <= 0 {
		cfg.MinMetrics = defaults.MinMetrics
	}
	if cfg.InactivityThreshold <= 0 {
		cfg.InactivityThreshold = defaults.InactivityThreshold
	}
	if cfg.SlowResponseThreshold <= 0 {
		cfg.SlowResponseThreshold = defaults.SlowResponseThreshold
	}
	if cfg.LowSuccessThreshold <= 0 {
		cfg.LowSuccessThreshold = defaults.LowSuccessThreshold
	}
	if cfg.TrendThreshold <= 0 {
		cfg.TrendThreshold = defaults.TrendThreshold
	}

	r := &Reporter{
		config: cfg,
		logger: core.ComponentLogger(logger, "learning/intelligence"),
		now:    time.Now,
		agents: make(map[string]*AgentStats),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RecordMetric appends m to the history and updates the stats of its
// agent. Success rate and response time are smoothed with an exponential
// moving average (EMAWeight on the old value).
func (r *Reporter) RecordMetric(m MetricInput) error {
	const op = "intelligence.RecordMetric"

	metricType := strings.TrimSpace(m.Type)
	if metricType == "" {
		return core.NewValidationError(op, "metric type cannot be empty")
	}
	if math.IsNaN(m.Value) || math.IsInf(m.Value, 0) {
		return core.NewValidationError(op, "metric value must be finite")
	}
	learned := 0
	if metricType == MetricPatternLearned {
		if m.Value < 1 || m.Value != math.Trunc(m.Value) || m.Value > maxLearnedPerMetric {
			return core.NewValidationError(op, fmt.Sprintf("pattern_learned value must be an integer between 1 and %d", maxLearnedPerMetric))
		}
		learned = int(m.Value)
	}

	at := m.At
	if at.IsZero() {
		at = r.now()
	}
	rec := MetricRecord{
		Type:      metricType,
		Value:     m.Value,
		Context:   copyContext(m.Context),
		AgentType: m.AgentType,
		PatternID: m.PatternID,
		Timestamp: at,
	}

	r.mu.Lock()
	r.history = append(r.history, rec)
	if over := len(r.history) - r.config.HistorySize; over > 0 {
		r.history = r.history[over:]
	}
	r.recorded++

	var success float64
	var hasSuccess bool
	if m.AgentType != "" {
		stats := r.agentLocked(m.AgentType)
		stats.MetricCount++
		if at.After(stats.LastActivity) {
			stats.LastActivity = at
		}
		switch metricType {
		case MetricSuccessRate:
			stats.SuccessRate = r.ema(stats.SuccessRate, core.Clamp01(m.Value), stats.hasSuccess)
			stats.hasSuccess = true
			success, hasSuccess = stats.SuccessRate, true
		case MetricResponseTime:
			stats.AvgResponseTime = r.ema(stats.AvgResponseTime, math.Max(0, m.Value), stats.hasResponse)
			stats.hasResponse = true
		case MetricPatternLearned:
			stats.PatternsLearned += learned
		}
	}
	if learned > 0 {
		r.totalLearned += learned
		r.learned = append(r.learned, learnEvent{at: at, count: learned})
		r.pruneLearnedLocked()
	}
	r.mu.Unlock()

	emitRecorded(metricType, m.AgentType)
	if hasSuccess {
		emitAgentSuccess(m.AgentType, success)
	}
	return nil
}

func (r *Reporter) ema(old, value float64, seeded bool) float64 {
	if !seeded {
		return value
	}
	w := r.config.EMAWeight
	return w*old + (1-w)*value
}

func (r *Reporter) agentLocked(agentType string) *AgentStats {
	stats, ok := r.agents[agentType]
	if !ok {
		stats = &AgentStats{AgentType: agentType}
		r.agents[agentType] = stats
	}
	return stats
}

// pruneLearnedLocked drops learn events older than two days, since only the
// last two 24h windows are ever consulted, and keeps at most HistorySize
// events.
func (r *Reporter) pruneLearnedLocked() {
	cutoff := r.now().Add(-48 * time.Hour)
	kept := r.learned[:0]
	for _, e := range r.learned {
		if !e.at.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	if over := len(kept) - r.config.HistorySize; over > 0 {
		kept = kept[over:]
	}
	r.learned = kept
}

// RecordPatternUsage records an applied pattern as usage and response time.
func (r *Reporter) RecordPatternUsage(event behavior.UsageEvent) {
	ctx := map[string]string{"method": event.Method}
	if event.ContextType != "" {
		ctx["context_type"] = event.ContextType
	}
	r.record(MetricInput{
		Type:      MetricPatternUsage,
		Value:     event.Confidence,
		Context:   ctx,
		AgentType: AgentBehavior,
		PatternID: event.PatternID,
		At:        event.At,
	})
	if event.Latency > 0 {
		r.record(MetricInput{
			Type:      MetricResponseTime,
			Value:     event.Latency.Seconds(),
			AgentType: AgentBehavior,
			PatternID: event.PatternID,
			At:        event.At,
		})
	}
}

// RecordPatternOutcome records the outcome of an applied pattern as a
// success rate sample.
func (r *Reporter) RecordPatternOutcome(patternID string, success bool) {
	v := 0.0
	if success {
		v = 1
	}
	r.record(MetricInput{
		Type:      MetricSuccessRate,
		Value:     v,
		AgentType: AgentBehavior,
		PatternID: patternID,
	})
}

func (r *Reporter) record(m MetricInput) {
	if err := r.RecordMetric(m); err != nil {
		r.logger.Warn("Metric dropped", map[string]interface{}{
			"type":  m.Type,
			"error": err.Error(),
		})
	}
}

// GetPerformanceStats aggregates count/avg/min/max/median per metric type
// over the last windowHours. An empty agentType covers every agent.
func (r *Reporter) GetPerformanceStats(agentType string, windowHours int) (*PerformanceStats, error) {
	if windowHours <= 0 {
		return nil, core.NewValidationError("intelligence.GetPerformanceStats", "window hours must be positive")
	}

	to := r.now()
	from := to.Add(-time.Duration(windowHours) * time.Hour)

	values := make(map[string][]float64)
	r.mu.RLock()
	for _, rec := range r.history {
		if rec.Timestamp.Before(from) || rec.Timestamp.After(to) {
			continue
		}
		if agentType != "" && rec.AgentType != agentType {
			continue
		}
		values[rec.Type] = append(values[rec.Type], rec.Value)
	}
	r.mu.RUnlock()

	stats := &PerformanceStats{
		AgentType:   agentType,
		WindowHours: windowHours,
		From:        from,
		To:          to,
		Metrics:     make(map[string]MetricStats, len(values)),
	}
	for t, vs := range values {
		stats.Metrics[t] = summarize(vs)
	}
	return stats, nil
}

// Agent returns a copy of the rolling stats for agentType.
func (r *Reporter) Agent(agentType string) (AgentStats, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats, ok := r.agents[agentType]
	if !ok {
		return AgentStats{}, false
	}
	return *stats, true
}

// History returns up to limit of the most recent records, oldest first.
// A non-positive limit returns everything retained.
func (r *Reporter) History(limit int) []MetricRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	start := 0
	if limit > 0 && len(r.history) > limit {
		start = len(r.history) - limit
	}
	out := make([]MetricRecord, len(r.history)-start)
	copy(out, r.history[start:])
	return out
}

func summarize(vs []float64) MetricStats {
	if len(vs) == 0 {
		return MetricStats{}
	}
	sorted := append([]float64(nil), vs...)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	n := len(sorted)
	median := sorted[n/2]
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return MetricStats{
		Count:  n,
		Avg:    sum / float64(n),
		Min:    sorted[0],
		Max:    sorted[n-1],
		Median: median,
	}
}

func copyContext(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
