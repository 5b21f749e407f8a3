package core

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ProductionLogger is the zap-backed Logger used outside of tests.
// Entries carry service and component names plus trace ids when present.
type ProductionLogger struct {
	zl        *zap.Logger
	level     zap.AtomicLevel
	service   string
	component string
}

// NewProductionLogger builds a logger from LoggingConfig.
// Format "json" uses the production encoder, anything else the console encoder.
func NewProductionLogger(cfg LoggingConfig, service string) (*ProductionLogger, error) {
	level := zap.NewAtomicLevelAt(parseLevel(cfg.Level))

	zcfg := zap.NewProductionConfig()
	zcfg.Level = level
	if cfg.Format != "json" {
		zcfg.Encoding = "console"
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	zcfg.EncoderConfig.TimeKey = "timestamp"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.Output != "" {
		zcfg.OutputPaths = []string{cfg.Output}
	}

	zl, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build zap logger: %w", err)
	}

	return &ProductionLogger{
		zl:      zl.With(zap.String("service", service)),
		level:   level,
		service: service,
	}, nil
}

// NewLoggerFromZap wraps an existing zap logger (zap.NewNop in tests).
func NewLoggerFromZap(zl *zap.Logger, service string) *ProductionLogger {
	return &ProductionLogger{
		zl:      zl,
		level:   zap.NewAtomicLevelAt(zapcore.DebugLevel),
		service: service,
	}
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// WithComponent returns a child logger tagged with the component name.
func (l *ProductionLogger) WithComponent(component string) Logger {
	return &ProductionLogger{
		zl:        l.zl.With(zap.String("component", component)),
		level:     l.level,
		service:   l.service,
		component: component,
	}
}

// SetLevel changes the level at runtime for this logger and its children.
func (l *ProductionLogger) SetLevel(level string) {
	l.level.SetLevel(parseLevel(level))
}

// Sync flushes buffered entries.
func (l *ProductionLogger) Sync() error {
	return l.zl.Sync()
}

func (l *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	l.zl.Info(msg, toZapFields(fields)...)
}

func (l *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	l.zl.Error(msg, toZapFields(fields)...)
}

func (l *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	l.zl.Warn(msg, toZapFields(fields)...)
}

func (l *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	l.zl.Debug(msg, toZapFields(fields)...)
}

func (l *ProductionLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.zl.Info(msg, withTrace(ctx, toZapFields(fields))...)
}

func (l *ProductionLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.zl.Error(msg, withTrace(ctx, toZapFields(fields))...)
}

func (l *ProductionLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.zl.Warn(msg, withTrace(ctx, toZapFields(fields))...)
}

func (l *ProductionLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.zl.Debug(msg, withTrace(ctx, toZapFields(fields))...)
}

func toZapFields(fields map[string]interface{}) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		if err, ok := v.(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, v))
	}
	return out
}

func withTrace(ctx context.Context, fields []zap.Field) []zap.Field {
	if ctx == nil {
		return fields
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return fields
	}
	return append(fields,
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	)
}
