// Package telemetry provides simple metrics emission and trace helpers over
// OpenTelemetry. With no SDK installed every call is a cheap no-op, so
// components emit unconditionally.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope for every metric emitted here.
const MeterName = "gomind-learning"

var (
	instruments  = NewMetricInstruments(MeterName)
	labelLimiter = NewCardinalityLimiter(defaultLabelLimits)
)

// Counter increments a counter metric by 1.
// Labels should be provided as key-value pairs.
// Example: Counter("learning.memory.stored", "backend", "sqlite")
func Counter(name string, labels ...string) {
	_ = instruments.RecordCounter(context.Background(), name, 1, metric.WithAttributes(toAttributes(name, labels)...))
}

// Histogram records a value in a distribution.
// Example: Histogram("learning.tasks.duration_ms", 125.3, "task_type", "analyze")
func Histogram(name string, value float64, labels ...string) {
	_ = instruments.RecordHistogram(context.Background(), name, value, metric.WithAttributes(toAttributes(name, labels)...))
}

// Gauge records a current value. Gauges are recorded as histograms so no
// observable callback has to be registered.
func Gauge(name string, value float64, labels ...string) {
	_ = instruments.RecordHistogram(context.Background(), name, value, metric.WithAttributes(toAttributes(name, labels)...))
}

// Duration records elapsed time since startTime in milliseconds.
//
//	start := time.Now()
//	defer telemetry.Duration("learning.search.duration_ms", start, "kind", "hybrid")
func Duration(name string, startTime time.Time, labels ...string) {
	Histogram(name, float64(time.Since(startTime).Milliseconds()), labels...)
}

// RecordError records an error occurrence with type classification
func RecordError(name string, errorType string, labels ...string) {
	Counter(name, append(labels, "error_type", errorType)...)
}

// toAttributes pairs up labels; a trailing key without a value is dropped.
// Identifier labels are capped by labelLimiter.
func toAttributes(name string, labels []string) []attribute.KeyValue {
	if len(labels) < 2 {
		return nil
	}
	attrs := make([]attribute.KeyValue, 0, len(labels)/2)
	for i := 0; i+1 < len(labels); i += 2 {
		attrs = append(attrs, attribute.String(labels[i], labelLimiter.CheckAndLimit(name, labels[i], labels[i+1])))
	}
	return attrs
}
