package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/itsneelabh/gomind-learning/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return recorder
}

func TestToAttributes(t *testing.T) {
	assert.Nil(t, toAttributes("m", nil))
	assert.Nil(t, toAttributes("m", []string{"lonely"}))

	attrs := toAttributes("m", []string{"backend", "sqlite", "kind", "hybrid", "dangling"})
	assert.Equal(t, []attribute.KeyValue{
		attribute.String("backend", "sqlite"),
		attribute.String("kind", "hybrid"),
	}, attrs)
}

func TestCardinalityLimiter(t *testing.T) {
	l := NewCardinalityLimiter(map[string]int{"pattern_id": 2})

	assert.Equal(t, "p-1", l.CheckAndLimit("learning.patterns.applied", "pattern_id", "p-1"))
	assert.Equal(t, "p-2", l.CheckAndLimit("learning.patterns.applied", "pattern_id", "p-2"))
	assert.Equal(t, "other", l.CheckAndLimit("learning.patterns.applied", "pattern_id", "p-3"))
	assert.Equal(t, "p-1", l.CheckAndLimit("learning.patterns.applied", "pattern_id", "p-1"), "known values pass")

	// limits are per metric
	assert.Equal(t, "p-3", l.CheckAndLimit("learning.patterns.rejected", "pattern_id", "p-3"))
	// unlimited labels pass through
	assert.Equal(t, "anything", l.CheckAndLimit("learning.patterns.applied", "backend", "anything"))
	assert.Equal(t, 3, l.CurrentCardinality())

	l.Reset()
	assert.Equal(t, 0, l.CurrentCardinality())
}

func TestMetricInstruments_Caching(t *testing.T) {
	m := NewMetricInstruments("telemetry-test")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, m.RecordCounter(ctx, "learning.test.count", 1))
		require.NoError(t, m.RecordHistogram(ctx, "learning.test.latency_ms", float64(i)))
	}
	assert.Equal(t, 2, m.InstrumentCount())

	require.NoError(t, m.RecordCounter(ctx, "learning.test.other", 1))
	assert.Equal(t, 3, m.InstrumentCount())
}

func TestEmitHelpers(t *testing.T) {
	assert.NotPanics(t, func() {
		Counter("learning.test.counter", "backend", "memory")
		Histogram("learning.test.histogram", 1.5)
		Gauge("learning.test.gauge", 3, "queue", "default")
		Duration("learning.test.duration_ms", time.Now().Add(-time.Millisecond))
		RecordError("learning.test.errors", "timeout", "provider", "gemini")
	})
}

func TestStartSpan(t *testing.T) {
	recorder := recordSpans(t)

	ctx, end := StartSpan(context.Background(), "memory.search", map[string]string{"kind": "hybrid"})
	AddSpanEvent(ctx, "cache.miss", attribute.Int("results", 0))
	RecordSpanError(ctx, errors.New("vector store down"))
	RecordSpanError(ctx, nil)
	end()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "memory.search", span.Name())
	assert.Contains(t, span.Attributes(), attribute.String("kind", "hybrid"))
	assert.Equal(t, codes.Error, span.Status().Code)

	var events []string
	for _, e := range span.Events() {
		events = append(events, e.Name)
	}
	// RecordError adds an "exception" event.
	assert.Equal(t, []string{"cache.miss", "exception"}, events)
}

func TestStartLinkedSpan(t *testing.T) {
	recorder := recordSpans(t)

	parentCtx, endParent := StartSpan(context.Background(), "engine.on_conversation_end", nil)
	submitter := trace.SpanContextFromContext(parentCtx)
	endParent()

	_, end := StartLinkedSpan(context.Background(), "task.analyze", submitter, map[string]string{"task_id": "t-1"})
	end()

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	linked := spans[1]
	assert.False(t, linked.Parent().IsValid(), "linked spans are roots")
	require.Len(t, linked.Links(), 1)
	assert.Equal(t, submitter.TraceID(), linked.Links()[0].SpanContext.TraceID())

	_, endOrphan := StartLinkedSpan(context.Background(), "task.orphan", trace.SpanContext{}, nil)
	endOrphan()
	assert.Empty(t, recorder.Ended()[2].Links())
}

func TestSpanHelpers_NoSpan(t *testing.T) {
	assert.NotPanics(t, func() {
		AddSpanEvent(context.Background(), "ignored")
		RecordSpanError(context.Background(), errors.New("ignored"))
	})
}

func TestInit(t *testing.T) {
	ctx := context.Background()

	p, err := Init(ctx, core.TelemetryConfig{}, "learnerd")
	require.NoError(t, err)
	assert.NoError(t, p.Shutdown(ctx))

	_, err = Init(ctx, core.TelemetryConfig{Enabled: true, Exporter: "zipkin"}, "learnerd")
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)

	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	p, err = Init(ctx, core.TelemetryConfig{Enabled: true, Exporter: "stdout", SamplingRate: 0}, "learnerd")
	require.NoError(t, err)
	assert.Nil(t, p.meterProvider, "no metrics endpoint configured")
	assert.NoError(t, p.Shutdown(ctx))

	p, err = Init(ctx, core.TelemetryConfig{Enabled: true, Exporter: "otlphttp", Endpoint: "localhost:4318", Insecure: true}, "learnerd")
	require.NoError(t, err)
	assert.NotNil(t, p.traceProvider)
	assert.NoError(t, p.Shutdown(ctx))

	var nilProvider *Provider
	assert.NoError(t, nilProvider.Shutdown(ctx))
}

func findMetric(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func TestMeterProvider_CollectsEmittedMetrics(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := newMeterProvider(resource.Default(), reader)
	otel.SetMeterProvider(mp)
	t.Cleanup(func() { _ = mp.Shutdown(ctx) })

	Counter("learning.test.collected", "backend", "sqlite")
	Counter("learning.test.collected", "backend", "sqlite")
	Histogram("learning.test.latency_ms", 12.5, "kind", "hybrid")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	m, ok := findMetric(rm, "learning.test.collected")
	require.True(t, ok, "counter not collected")
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "unexpected aggregation %T", m.Data)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(2), sum.DataPoints[0].Value)
	backend, _ := sum.DataPoints[0].Attributes.Value("backend")
	assert.Equal(t, "sqlite", backend.AsString())

	m, ok = findMetric(rm, "learning.test.latency_ms")
	require.True(t, ok, "histogram not collected")
	hist, ok := m.Data.(metricdata.Histogram[float64])
	require.True(t, ok, "unexpected aggregation %T", m.Data)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
	assert.Equal(t, 12.5, hist.DataPoints[0].Sum)
}

func TestNewHTTPClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	client := NewHTTPClient(time.Second)
	assert.Equal(t, time.Second, client.Timeout)

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
