package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/itsneelabh/gomind-learning/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   attempts,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

func TestRetry(t *testing.T) {
	transient := errors.New("temporary error")

	tests := []struct {
		name         string
		failures     int
		failWith     error
		wantAttempts int
		wantErr      error
	}{
		{"first attempt succeeds", 0, transient, 1, nil},
		{"eventual success", 2, transient, 3, nil},
		{"attempts exhausted", 5, transient, 3, core.ErrMaxRetriesExceeded},
		{"validation is not retried", 5, core.NewValidationError("op", "bad"), 1, core.ErrValidation},
		{"not found is not retried", 5, core.NewNotFoundError("op", "pattern", "p"), 1, core.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			err := Retry(context.Background(), fastRetry(3), func() error {
				attempts++
				if attempts <= tt.failures {
					return tt.failWith
				}
				return nil
			})
			assert.Equal(t, tt.wantAttempts, attempts)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRetryKeepsLastError(t *testing.T) {
	cause := errors.New("connection refused")
	err := Retry(context.Background(), fastRetry(2), func() error { return cause })
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, core.ErrMaxRetriesExceeded)
}

func TestRetryShouldRetry(t *testing.T) {
	cfg := fastRetry(5)
	cfg.ShouldRetry = core.IsRetryable

	attempts := 0
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return errors.New("not a dependency error")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour, MaxDelay: time.Hour, BackoffFactor: 2}

	attempts := 0
	done := make(chan error, 1)
	go func() {
		done <- Retry(ctx, cfg, func() error {
			attempts++
			return errors.New("temporary")
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, attempts)
	case <-time.After(time.Second):
		t.Fatal("retry did not stop on cancellation")
	}
}

func TestRetryWithCircuitBreaker(t *testing.T) {
	cb, _ := newTestBreaker(t, 2)

	attempts := 0
	err := RetryWithCircuitBreaker(context.Background(), fastRetry(4), cb, func() error {
		attempts++
		return errDependency
	})

	assert.Equal(t, 2, attempts, "breaker opens after two failures")
	assert.ErrorIs(t, err, core.ErrCircuitOpen)
	assert.ErrorIs(t, err, core.ErrMaxRetriesExceeded)

	attempts = 0
	require.NoError(t, RetryWithCircuitBreaker(context.Background(), fastRetry(2), nil, func() error {
		attempts++
		return nil
	}))
	assert.Equal(t, 1, attempts)
}

func TestRetryConfigFrom(t *testing.T) {
	rc := RetryConfigFrom(core.RetryConfig{MaxAttempts: 5, InitialInterval: 200 * time.Millisecond})
	assert.Equal(t, 5, rc.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, rc.InitialDelay)
	assert.Equal(t, 5*time.Second, rc.MaxDelay)
	assert.Equal(t, 2.0, rc.BackoffFactor)
}
