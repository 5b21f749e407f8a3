package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope for spans started here.
const TracerName = "gomind-learning"

// StartSpan starts a span named name and returns the derived context and an
// end function. Attributes are attached as strings.
func StartSpan(ctx context.Context, name string, attributes map[string]string) (context.Context, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	attrs := make([]attribute.KeyValue, 0, len(attributes))
	for k, v := range attributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	ctx, span := otel.Tracer(TracerName).Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, func() { span.End() }
}

// StartLinkedSpan starts a root span for background work that links back to
// the span that submitted it, so the submitting trace stays navigable
// without the worker inheriting its deadline.
func StartLinkedSpan(ctx context.Context, name string, submitter trace.SpanContext, attributes map[string]string) (context.Context, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	opts := []trace.SpanStartOption{trace.WithNewRoot()}
	if submitter.IsValid() {
		opts = append(opts, trace.WithLinks(trace.Link{SpanContext: submitter}))
	}
	attrs := make([]attribute.KeyValue, 0, len(attributes))
	for k, v := range attributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	opts = append(opts, trace.WithAttributes(attrs...))

	ctx, span := otel.Tracer(TracerName).Start(ctx, name, opts...)
	return ctx, func() { span.End() }
}

// AddSpanEvent adds an event to the current span if it is recording.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}

// RecordSpanError records an error on the current span and marks it failed.
func RecordSpanError(ctx context.Context, err error) {
	if ctx == nil || err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
