package intelligence

import (
	"fmt"

	"github.com/itsneelabh/gomind-learning/telemetry"
)

// Metric types accepted by RecordMetric.
const (
	// MetricSuccessRate values are in [0,1]; an outcome is 1 or 0.
	MetricSuccessRate = "success_rate"
	// MetricResponseTime values are seconds.
	MetricResponseTime = "response_time"
	// MetricPatternLearned values count newly learned patterns.
	MetricPatternLearned = "pattern_learned"
	// MetricLearningAccuracy values are in [0,1].
	MetricLearningAccuracy = "learning_accuracy"
	MetricPatternUsage     = "pattern_usage"
)

// Agent types used when the reporter records on behalf of a component.
const (
	AgentBehavior   = "behavior"
	AgentLearner    = "learner"
	AgentSupervisor = "supervisor"
)

// Exported instrument names.
const (
	instrumentRecorded     = "learning.intelligence.metrics_recorded_total"
	instrumentAlerts       = "learning.intelligence.alerts"
	instrumentLearningRate = "learning.intelligence.learning_rate"
	instrumentAccuracy     = "learning.intelligence.accuracy"
	instrumentSuccessRate  = "learning.intelligence.agent_success_rate"
)

func emitRecorded(metricType, agentType string) {
	telemetry.Counter(instrumentRecorded,
		"metric_type", metricType,
		"agent_type", agentOrUnknown(agentType),
	)
}

func emitAgentSuccess(agentType string, rate float64) {
	telemetry.Gauge(instrumentSuccessRate, rate, "agent_type", agentOrUnknown(agentType))
}

func emitReport(r *IntelligenceReport) {
	telemetry.Gauge(instrumentLearningRate, r.LearningRate)
	telemetry.Gauge(instrumentAccuracy, r.SystemAccuracy)
	telemetry.Gauge(instrumentAlerts, float64(len(r.Alerts)), "trend", string(r.Trend))
}

func agentOrUnknown(agentType string) string {
	if agentType == "" {
		return "unknown"
	}
	return agentType
}

func percent(v float64) string {
	return fmt.Sprintf("%.0f%%", v*100)
}
