package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/itsneelabh/gomind-learning/core"
	"github.com/itsneelabh/gomind-learning/resilience"
	"github.com/itsneelabh/gomind-learning/telemetry"
)

const defaultCallTimeout = 30 * time.Second

// resilientCaller runs provider calls with a per-attempt timeout, retry and
// a circuit breaker, and normalises failures to external-service errors.
type resilientCaller struct {
	name    string
	timeout time.Duration
	retry   *resilience.RetryConfig
	breaker *resilience.CircuitBreaker
	logger  core.Logger
}

func newResilientCaller(name string, timeout time.Duration, opts Options) (*resilientCaller, error) {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	logger := core.ComponentLogger(opts.Logger, "learning/ai")

	var breaker *resilience.CircuitBreaker
	if opts.Resilience.CircuitBreaker.Enabled {
		cbConfig := resilience.ConfigFrom("ai."+name, opts.Resilience.CircuitBreaker)
		cbConfig.Logger = logger
		cb, err := resilience.NewCircuitBreaker(cbConfig)
		if err != nil {
			return nil, err
		}
		breaker = cb
	}

	retry := resilience.RetryConfigFrom(opts.Resilience.Retry)
	retry.ShouldRetry = func(err error) bool {
		// An open circuit will not close during our backoff
		if errors.Is(err, core.ErrCircuitOpen) || errors.Is(err, context.Canceled) {
			return false
		}
		return !core.IsValidation(err) && !core.IsNotFound(err)
	}

	return &resilientCaller{
		name:    name,
		timeout: timeout,
		retry:   retry,
		breaker: breaker,
		logger:  logger,
	}, nil
}

func (c *resilientCaller) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, end := telemetry.StartSpan(ctx, op, map[string]string{"ai.provider": c.name})
	defer end()

	start := time.Now()
	err := resilience.RetryWithCircuitBreaker(ctx, c.retry, c.breaker, func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		err := fn(attemptCtx)
		if err != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s call exceeded %s: %w", c.name, c.timeout, core.ErrTimeout)
		}
		return err
	})
	telemetry.Duration("learning.ai.call_ms", start, "provider", c.name, "op", op, "status", statusOf(err))

	if err == nil {
		return nil
	}
	telemetry.RecordSpanError(ctx, err)
	c.logger.WarnWithContext(ctx, "AI provider call failed", map[string]interface{}{
		"provider": c.name,
		"op":       op,
		"error":    err,
	})
	if core.IsValidation(err) {
		return err
	}
	return core.NewExternalServiceError(op, err)
}

// ResilientEmbedder wraps an Embedder with timeout, retry and circuit breaking.
type ResilientEmbedder struct {
	inner  core.Embedder
	caller *resilientCaller
}

// NewResilientEmbedder wraps inner. A zero timeout uses 30s.
func NewResilientEmbedder(name string, inner core.Embedder, timeout time.Duration, opts Options) (*ResilientEmbedder, error) {
	caller, err := newResilientCaller(name, timeout, opts)
	if err != nil {
		return nil, err
	}
	return &ResilientEmbedder{inner: inner, caller: caller}, nil
}

func (e *ResilientEmbedder) Dimension() int { return e.inner.Dimension() }

func (e *ResilientEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := e.caller.call(ctx, "ai.embed", func(ctx context.Context) error {
		v, err := e.inner.Embed(ctx, text)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// ResilientGenerator wraps a TextGenerator with timeout, retry and circuit breaking.
type ResilientGenerator struct {
	inner  core.TextGenerator
	caller *resilientCaller
}

// NewResilientGenerator wraps inner. A zero timeout uses 30s.
func NewResilientGenerator(name string, inner core.TextGenerator, timeout time.Duration, opts Options) (*ResilientGenerator, error) {
	caller, err := newResilientCaller(name, timeout, opts)
	if err != nil {
		return nil, err
	}
	return &ResilientGenerator{inner: inner, caller: caller}, nil
}

func (g *ResilientGenerator) GenerateText(ctx context.Context, prompt string, opts core.GenerateOptions) (string, error) {
	var out string
	err := g.caller.call(ctx, "ai.generate", func(ctx context.Context) error {
		text, err := g.inner.GenerateText(ctx, prompt, opts)
		if err != nil {
			return err
		}
		out = text
		return nil
	})
	return out, err
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
