package intelligence

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/itsneelabh/gomind-learning/behavior"
	"github.com/itsneelabh/gomind-learning/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestReporter(mutate ...func(*core.ReporterConfig)) *Reporter {
	cfg := core.DefaultConfig().Reporter
	for _, m := range mutate {
		m(&cfg)
	}
	return NewReporter(cfg, nil, WithClock(func() time.Time { return testNow }))
}

func TestRecordMetric_Validation(t *testing.T) {
	r := newTestReporter()

	assert.True(t, core.IsValidation(r.RecordMetric(MetricInput{Type: " ", Value: 1})))
	assert.True(t, core.IsValidation(r.RecordMetric(MetricInput{Type: MetricSuccessRate, Value: math.NaN()})))
	assert.True(t, core.IsValidation(r.RecordMetric(MetricInput{Type: MetricSuccessRate, Value: math.Inf(1)})))
	assert.Empty(t, r.History(0))
}

func TestRecordMetric_MovingAverages(t *testing.T) {
	r := newTestReporter()

	for _, v := range []float64{1, 0, 0} {
		require.NoError(t, r.RecordMetric(MetricInput{Type: MetricSuccessRate, Value: v, AgentType: "support"}))
	}
	require.NoError(t, r.RecordMetric(MetricInput{Type: MetricResponseTime, Value: 2, AgentType: "support"}))
	require.NoError(t, r.RecordMetric(MetricInput{Type: MetricResponseTime, Value: 4, AgentType: "support"}))

	stats, ok := r.Agent("support")
	require.True(t, ok)
	assert.InDelta(t, 0.64, stats.SuccessRate, 1e-9)
	assert.InDelta(t, 2.4, stats.AvgResponseTime, 1e-9)
	assert.Equal(t, 5, stats.MetricCount)
	assert.Equal(t, testNow, stats.LastActivity)

	_, ok = r.Agent("unknown")
	assert.False(t, ok)
}

func TestRecordMetric_BoundedHistory(t *testing.T) {
	r := newTestReporter(func(c *core.ReporterConfig) { c.HistorySize = 3 })

	for i := 1; i <= 5; i++ {
		require.NoError(t, r.RecordMetric(MetricInput{Type: MetricPatternUsage, Value: float64(i)}))
	}

	history := r.History(0)
	require.Len(t, history, 3)
	assert.Equal(t, 3.0, history[0].Value)
	assert.Equal(t, 5.0, history[2].Value)

	last := r.History(1)
	require.Len(t, last, 1)
	assert.Equal(t, 5.0, last[0].Value)

	report := r.GenerateIntelligenceReport()
	assert.Equal(t, int64(5), report.MetricsRecorded)
	assert.Equal(t, 3, report.MetricsRetained)
}

func TestGetPerformanceStats(t *testing.T) {
	r := newTestReporter()
	for _, v := range []float64{4, 1, 3, 2} {
		require.NoError(t, r.RecordMetric(MetricInput{Type: MetricResponseTime, Value: v, AgentType: "support", At: testNow.Add(-time.Hour)}))
	}
	require.NoError(t, r.RecordMetric(MetricInput{Type: MetricResponseTime, Value: 100, AgentType: "support", At: testNow.Add(-25 * time.Hour)}))
	require.NoError(t, r.RecordMetric(MetricInput{Type: MetricResponseTime, Value: 50, AgentType: "sales", At: testNow.Add(-time.Hour)}))
	require.NoError(t, r.RecordMetric(MetricInput{Type: MetricSuccessRate, Value: 1, AgentType: "support", At: testNow.Add(-time.Hour)}))

	stats, err := r.GetPerformanceStats("support", 24)
	require.NoError(t, err)
	assert.Equal(t, MetricStats{Count: 4, Avg: 2.5, Min: 1, Max: 4, Median: 2.5}, stats.Metrics[MetricResponseTime])
	assert.Equal(t, MetricStats{Count: 1, Avg: 1, Min: 1, Max: 1, Median: 1}, stats.Metrics[MetricSuccessRate])
	assert.Equal(t, testNow.Add(-24*time.Hour), stats.From)

	all, err := r.GetPerformanceStats("", 48)
	require.NoError(t, err)
	assert.Equal(t, 6, all.Metrics[MetricResponseTime].Count)
	assert.Equal(t, 3.5, all.Metrics[MetricResponseTime].Median)

	_, err = r.GetPerformanceStats("support", 0)
	assert.True(t, core.IsValidation(err))
}

func TestGenerateIntelligenceReport(t *testing.T) {
	r := newTestReporter()
	record := func(m MetricInput) {
		t.Helper()
		require.NoError(t, r.RecordMetric(m))
	}

	record(MetricInput{Type: MetricPatternLearned, Value: 1, AgentType: AgentLearner, At: testNow.Add(-30 * time.Hour)})
	record(MetricInput{Type: MetricSuccessRate, Value: 0.5, AgentType: AgentBehavior, At: testNow.Add(-30 * time.Hour)})
	record(MetricInput{Type: MetricPatternLearned, Value: 2, AgentType: AgentLearner, At: testNow.Add(-time.Hour)})
	record(MetricInput{Type: MetricLearningAccuracy, Value: 0.8, AgentType: AgentSupervisor, At: testNow.Add(-time.Hour)})
	record(MetricInput{Type: MetricLearningAccuracy, Value: 0.6, AgentType: AgentSupervisor, At: testNow.Add(-time.Hour)})
	record(MetricInput{Type: MetricSuccessRate, Value: 0.9, AgentType: AgentBehavior, At: testNow.Add(-time.Hour)})

	report := r.GenerateIntelligenceReport()

	assert.Equal(t, testNow, report.GeneratedAt)
	assert.Equal(t, 3, report.TotalPatternsLearned)
	assert.InDelta(t, 2.0/24.0, report.LearningRate, 1e-9)
	assert.InDelta(t, 0.7, report.SystemAccuracy, 1e-9)
	assert.Equal(t, TrendImproving, report.Trend)
	assert.InDelta(t, 0.8, report.TrendChange, 1e-9)

	assert.Equal(t, AgentBehavior, report.TopAgent)
	assert.InDelta(t, 0.58, report.TopAgentScore, 1e-9)

	require.Len(t, report.Agents, 3)
	assert.Equal(t, []string{AgentBehavior, AgentLearner, AgentSupervisor},
		[]string{report.Agents[0].AgentType, report.Agents[1].AgentType, report.Agents[2].AgentType})
	assert.InDelta(t, 2.0/24.0, report.Agents[1].PatternsPerHour, 1e-9)
	assert.Equal(t, 3, report.Agents[1].PatternsLearned)

	require.Len(t, report.Alerts, 1)
	assert.Equal(t, AlertInsufficientData, report.Alerts[0].Type)
	assert.Equal(t, SeverityCritical, report.Alerts[0].Severity)
	assert.NotNil(t, report.Recommendations)
	assert.Empty(t, report.Recommendations)
}

func TestGenerateIntelligenceReport_EmptyReporterIsCritical(t *testing.T) {
	report := newTestReporter().GenerateIntelligenceReport()

	require.Len(t, report.Alerts, 1)
	assert.Equal(t, AlertInsufficientData, report.Alerts[0].Type)
	assert.Equal(t, SeverityCritical, report.Alerts[0].Severity)
}

func TestRecordMetric_PatternLearnedBounds(t *testing.T) {
	r := newTestReporter(func(c *core.ReporterConfig) { c.HistorySize = 5 })

	for _, v := range []float64{0, -5, 1.5, maxLearnedPerMetric + 1, 2e7} {
		err := r.RecordMetric(MetricInput{Type: MetricPatternLearned, Value: v, AgentType: AgentLearner, At: testNow})
		assert.True(t, core.IsValidation(err), "value %v", v)
	}
	report := r.GenerateIntelligenceReport()
	assert.Equal(t, 0, report.TotalPatternsLearned)
	assert.Equal(t, int64(0), report.MetricsRecorded, "rejected metrics are not stored")

	require.NoError(t, r.RecordMetric(MetricInput{Type: MetricPatternLearned, Value: maxLearnedPerMetric, AgentType: AgentLearner, At: testNow}))
	for i := 0; i < 10; i++ {
		require.NoError(t, r.RecordMetric(MetricInput{Type: MetricPatternLearned, Value: 1, AgentType: AgentLearner, At: testNow}))
	}

	r.mu.RLock()
	events := len(r.learned)
	r.mu.RUnlock()
	assert.Equal(t, 5, events, "learn events are bounded by the history size")

	report = r.GenerateIntelligenceReport()
	assert.Equal(t, maxLearnedPerMetric+10, report.TotalPatternsLearned)
	assert.InDelta(t, 5.0/24.0, report.LearningRate, 1e-9)
}

func TestGenerateIntelligenceReport_Alerts(t *testing.T) {
	r := newTestReporter(func(c *core.ReporterConfig) { c.MinMetrics = 1 })

	require.NoError(t, r.RecordMetric(MetricInput{Type: MetricSuccessRate, Value: 0.9, AgentType: "idle", At: testNow.Add(-3 * time.Hour)}))
	require.NoError(t, r.RecordMetric(MetricInput{Type: MetricResponseTime, Value: 6, AgentType: "slow", At: testNow.Add(-10 * time.Minute)}))
	require.NoError(t, r.RecordMetric(MetricInput{Type: MetricSuccessRate, Value: 0.2, AgentType: "weak", At: testNow.Add(-10 * time.Minute)}))

	report := r.GenerateIntelligenceReport()

	types := make([]string, 0, len(report.Alerts))
	for _, a := range report.Alerts {
		assert.Equal(t, SeverityCritical, a.Severity)
		types = append(types, a.Type)
	}
	assert.Equal(t, []string{AlertInactiveAgent, AlertSlowResponse, AlertLowSuccessRate}, types)
	assert.Equal(t, "idle", report.Alerts[0].AgentType)
	assert.InDelta(t, 3.0, report.Alerts[0].Value, 1e-9)

	assert.Len(t, report.Recommendations, 4)
	assert.Contains(t, report.Recommendations[3], "No patterns learned")
	assert.Equal(t, TrendStable, report.Trend)
	assert.Equal(t, "idle", report.TopAgent)
}

func TestTrend(t *testing.T) {
	tests := []struct {
		name     string
		current  []float64
		previous []float64
		want     Trend
	}{
		{"no previous window", []float64{0.9}, nil, TrendStable},
		{"no current window", nil, []float64{0.9}, TrendStable},
		{"improving", []float64{0.8}, []float64{0.7}, TrendImproving},
		{"declining", []float64{0.6}, []float64{0.7}, TrendDeclining},
		{"within band", []float64{0.72}, []float64{0.7}, TrendStable},
		{"from zero", []float64{0.5}, []float64{0}, TrendImproving},
		{"zero to zero", []float64{0}, []float64{0}, TrendStable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := trend(tt.current, tt.previous, 0.05)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReporter_UsageRecorder(t *testing.T) {
	r := newTestReporter()

	r.RecordPatternUsage(behavior.UsageEvent{
		PatternID:   "p-1",
		ContextType: "support",
		Confidence:  0.7,
		Method:      behavior.MethodTemplate,
		Latency:     2 * time.Second,
		At:          testNow,
	})
	r.RecordPatternOutcome("p-1", true)
	r.RecordPatternOutcome("p-1", false)

	history := r.History(0)
	require.Len(t, history, 4)
	assert.Equal(t, MetricPatternUsage, history[0].Type)
	assert.Equal(t, "support", history[0].Context["context_type"])
	assert.Equal(t, behavior.MethodTemplate, history[0].Context["method"])
	assert.Equal(t, MetricResponseTime, history[1].Type)
	assert.Equal(t, "p-1", history[3].PatternID)

	stats, ok := r.Agent(AgentBehavior)
	require.True(t, ok)
	assert.InDelta(t, 2.0, stats.AvgResponseTime, 1e-9)
	assert.InDelta(t, 0.8, stats.SuccessRate, 1e-9)
}

func TestReporter_ConcurrentRecording(t *testing.T) {
	r := newTestReporter()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = r.RecordMetric(MetricInput{Type: MetricSuccessRate, Value: 1, AgentType: "support"})
				if i%25 == 0 {
					r.GenerateIntelligenceReport()
				}
			}
		}()
	}
	wg.Wait()

	stats, ok := r.Agent("support")
	require.True(t, ok)
	assert.Equal(t, 800, stats.MetricCount)
	assert.Len(t, r.History(0), 800)
}
