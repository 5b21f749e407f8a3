package resilience

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/itsneelabh/gomind-learning/core"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterEnabled bool

	// ShouldRetry decides whether an error is worth another attempt.
	// Nil retries every error except validation and not-found errors.
	ShouldRetry func(error) bool
}

// DefaultRetryConfig provides sensible defaults
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		JitterEnabled: true,
	}
}

// RetryConfigFrom converts the file/env configuration into a RetryConfig.
func RetryConfigFrom(cfg core.RetryConfig) *RetryConfig {
	rc := DefaultRetryConfig()
	if cfg.MaxAttempts > 0 {
		rc.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialInterval > 0 {
		rc.InitialDelay = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		rc.MaxDelay = cfg.MaxInterval
	}
	if cfg.Multiplier > 0 {
		rc.BackoffFactor = cfg.Multiplier
	}
	return rc
}

func (c *RetryConfig) retryable(err error) bool {
	if c.ShouldRetry != nil {
		return c.ShouldRetry(err)
	}
	return !core.IsValidation(err) && !core.IsNotFound(err)
}

// Retry executes a function with retry logic
func Retry(ctx context.Context, config *RetryConfig, fn func() error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var lastErr error
	delay := config.InitialDelay

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !config.retryable(err) {
			return err
		}

		// Don't sleep after the last attempt
		if attempt == config.MaxAttempts {
			break
		}

		if attempt > 1 {
			delay = time.Duration(float64(delay) * config.BackoffFactor)
			if delay > config.MaxDelay {
				delay = config.MaxDelay
			}
		}

		// Jitter keeps concurrent workers from retrying in lockstep
		if config.JitterEnabled {
			jitter := time.Duration(float64(delay) * 0.1 * math.Sin(float64(attempt)))
			delay += jitter
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("max retry attempts (%d) exceeded: %w: %w", config.MaxAttempts, core.ErrMaxRetriesExceeded, lastErr)
}

// RetryWithCircuitBreaker combines retry logic with circuit breaker
func RetryWithCircuitBreaker(ctx context.Context, config *RetryConfig, cb *CircuitBreaker, fn func() error) error {
	if cb == nil {
		return Retry(ctx, config, fn)
	}
	return Retry(ctx, config, func() error {
		return cb.Execute(ctx, fn)
	})
}
