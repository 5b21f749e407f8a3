package intelligence

import (
	"fmt"
	"sort"
	"time"
)

// Trend is the direction of the success rate between the last two 24h
// windows.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// Alert severities.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// Alert types.
const (
	AlertLowSuccessRate   = "low_success_rate"
	AlertSlowResponse     = "slow_response"
	AlertInactiveAgent    = "inactive_agent"
	AlertInsufficientData = "insufficient_data"
)

const reportWindow = 24 * time.Hour

// Alert is a condition an operator should act on.
type Alert struct {
	Severity  string  `json:"severity"`
	Type      string  `json:"type"`
	AgentType string  `json:"agent_type,omitempty"`
	Message   string  `json:"message"`
	Value     float64 `json:"value"`
}

// IntelligenceReport describes the health of the learning system.
type IntelligenceReport struct {
	GeneratedAt          time.Time    `json:"generated_at"`
	TotalPatternsLearned int          `json:"total_patterns_learned"`
	LearningRate         float64      `json:"learning_rate"`
	SystemAccuracy       float64      `json:"system_accuracy"`
	TopAgent             string       `json:"top_agent,omitempty"`
	TopAgentScore        float64      `json:"top_agent_score"`
	Trend                Trend        `json:"trend"`
	TrendChange          float64      `json:"trend_change"`
	MetricsRecorded      int64        `json:"metrics_recorded"`
	MetricsRetained      int          `json:"metrics_retained"`
	Agents               []AgentStats `json:"agents"`
	Recommendations      []string     `json:"recommendations"`
	Alerts               []Alert      `json:"alerts"`
}

// GenerateIntelligenceReport summarises everything recorded so far:
// learning rate over the last 24h in patterns per hour, accuracy as the
// mean learning_accuracy, the top agent by success_rate × (1 + patterns
// per hour / 10), the success rate trend, recommendations and alerts.
func (r *Reporter) GenerateIntelligenceReport() *IntelligenceReport {
	now := r.now()
	dayAgo := now.Add(-reportWindow)
	twoDaysAgo := now.Add(-2 * reportWindow)

	r.mu.RLock()
	history := make([]MetricRecord, len(r.history))
	copy(history, r.history)
	agents := make([]AgentStats, 0, len(r.agents))
	for _, a := range r.agents {
		agents = append(agents, *a)
	}
	learnedToday := 0
	for _, e := range r.learned {
		if e.at.After(dayAgo) && !e.at.After(now) {
			learnedToday += e.count
		}
	}
	report := &IntelligenceReport{
		GeneratedAt:          now,
		TotalPatternsLearned: r.totalLearned,
		MetricsRecorded:      r.recorded,
		MetricsRetained:      len(r.history),
	}
	r.mu.RUnlock()

	report.LearningRate = float64(learnedToday) / reportWindow.Hours()

	perAgentLearned := make(map[string]int)
	var accuracySum float64
	var accuracyN int
	var current, previous []float64
	for _, rec := range history {
		switch rec.Type {
		case MetricLearningAccuracy:
			accuracySum += rec.Value
			accuracyN++
		case MetricPatternLearned:
			if rec.Timestamp.After(dayAgo) && !rec.Timestamp.After(now) {
				perAgentLearned[rec.AgentType] += int(rec.Value)
			}
		case MetricSuccessRate:
			switch {
			case rec.Timestamp.After(now):
			case rec.Timestamp.After(dayAgo):
				current = append(current, rec.Value)
			case rec.Timestamp.After(twoDaysAgo):
				previous = append(previous, rec.Value)
			}
		}
	}
	if accuracyN > 0 {
		report.SystemAccuracy = accuracySum / float64(accuracyN)
	}
	report.Trend, report.TrendChange = trend(current, previous, r.config.TrendThreshold)

	sort.Slice(agents, func(i, j int) bool {
		return agents[i].AgentType < agents[j].AgentType
	})
	for i := range agents {
		a := &agents[i]
		a.PatternsPerHour = float64(perAgentLearned[a.AgentType]) / reportWindow.Hours()
		if score := a.SuccessRate * (1 + a.PatternsPerHour/10); score > report.TopAgentScore {
			report.TopAgent = a.AgentType
			report.TopAgentScore = score
		}
	}
	report.Agents = agents

	report.Alerts, report.Recommendations = r.assess(now, agents, len(history))
	if report.Trend == TrendDeclining {
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("Success rate fell %s in the last 24h; review recently approved patterns", percent(-report.TrendChange)))
	}
	if report.LearningRate == 0 && len(history) >= r.config.MinMetrics {
		report.Recommendations = append(report.Recommendations,
			"No patterns learned in the last 24h; check that finished conversations are being analyzed")
	}

	emitReport(report)
	r.logger.Info("Intelligence report generated", map[string]interface{}{
		"patterns_learned": report.TotalPatternsLearned,
		"learning_rate":    report.LearningRate,
		"accuracy":         report.SystemAccuracy,
		"trend":            string(report.Trend),
		"alerts":           len(report.Alerts),
	})
	return report
}

func (r *Reporter) assess(now time.Time, agents []AgentStats, retained int) ([]Alert, []string) {
	alerts := []Alert{}
	recs := []string{}

	slow := r.config.SlowResponseThreshold.Seconds()
	for _, a := range agents {
		if a.hasSuccess && a.SuccessRate < r.config.LowSuccessThreshold {
			alerts = append(alerts, Alert{
				Severity:  SeverityCritical,
				Type:      AlertLowSuccessRate,
				AgentType: a.AgentType,
				Message:   fmt.Sprintf("%s success rate is %s", a.AgentType, percent(a.SuccessRate)),
				Value:     a.SuccessRate,
			})
			recs = append(recs, fmt.Sprintf("%s: success rate %s is below target; raise the auto-approval threshold or deprecate weak patterns",
				a.AgentType, percent(a.SuccessRate)))
		}
		if a.hasResponse && a.AvgResponseTime > slow {
			alerts = append(alerts, Alert{
				Severity:  SeverityCritical,
				Type:      AlertSlowResponse,
				AgentType: a.AgentType,
				Message:   fmt.Sprintf("%s average response time is %.1fs", a.AgentType, a.AvgResponseTime),
				Value:     a.AvgResponseTime,
			})
			recs = append(recs, fmt.Sprintf("%s: average response time %.1fs; prefer templates over generation or use a faster model",
				a.AgentType, a.AvgResponseTime))
		}
		if idle := now.Sub(a.LastActivity); !a.LastActivity.IsZero() && idle > r.config.InactivityThreshold {
			alerts = append(alerts, Alert{
				Severity:  SeverityCritical,
				Type:      AlertInactiveAgent,
				AgentType: a.AgentType,
				Message:   fmt.Sprintf("%s has been inactive for %s", a.AgentType, idle.Truncate(time.Minute)),
				Value:     idle.Hours(),
			})
			recs = append(recs, fmt.Sprintf("%s: no activity for %s; verify it still receives traffic",
				a.AgentType, idle.Truncate(time.Minute)))
		}
	}

	if retained < r.config.MinMetrics {
		alerts = append(alerts, Alert{
			Severity: SeverityCritical,
			Type:     AlertInsufficientData,
			Message:  fmt.Sprintf("only %d metrics recorded, at least %d are needed for reliable statistics", retained, r.config.MinMetrics),
			Value:    float64(retained),
		})
	}
	return alerts, recs
}

// trend compares the mean of current with the mean of previous. A relative
// change beyond threshold in either direction is a trend; no data on
// either side is stable.
func trend(current, previous []float64, threshold float64) (Trend, float64) {
	if len(current) == 0 || len(previous) == 0 {
		return TrendStable, 0
	}
	cur, prev := mean(current), mean(previous)
	if prev == 0 {
		if cur > 0 {
			return TrendImproving, 1
		}
		return TrendStable, 0
	}
	change := (cur - prev) / prev
	switch {
	case change > threshold:
		return TrendImproving, change
	case change < -threshold:
		return TrendDeclining, change
	default:
		return TrendStable, change
	}
}

func mean(vs []float64) float64 {
	sum := 0.0
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}
