package ai

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/itsneelabh/gomind-learning/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder fails the first failures calls, then succeeds.
type fakeEmbedder struct {
	failures int32
	calls    atomic.Int32
	err      error
	block    bool
}

func (f *fakeEmbedder) Dimension() int { return 3 }

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	n := f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if n <= f.failures {
		return nil, f.err
	}
	return []float32{1, 0, 0}, nil
}

type fakeGenerator struct {
	err  error
	text string
}

func (f *fakeGenerator) GenerateText(ctx context.Context, prompt string, opts core.GenerateOptions) (string, error) {
	return f.text, f.err
}

func testOptions() Options {
	return Options{
		Resilience: core.ResilienceConfig{
			CircuitBreaker: core.CircuitBreakerConfig{Enabled: true, Threshold: 2, Timeout: time.Minute, HalfOpenRequests: 1},
			Retry:          core.RetryConfig{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, Multiplier: 2},
		},
	}
}

func TestResilientEmbedder_RetriesTransientFailures(t *testing.T) {
	inner := &fakeEmbedder{failures: 2, err: errors.New("503 unavailable")}
	opts := testOptions()
	opts.Resilience.CircuitBreaker.Threshold = 5
	e, err := NewResilientEmbedder("fake", inner, time.Second, opts)
	require.NoError(t, err)

	v, err := e.Embed(context.Background(), "olá")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, v)
	assert.Equal(t, int32(3), inner.calls.Load())
	assert.Equal(t, 3, e.Dimension())
}

func TestResilientEmbedder_ExternalServiceError(t *testing.T) {
	inner := &fakeEmbedder{failures: 100, err: errors.New("connection refused")}
	e, err := NewResilientEmbedder("fake", inner, time.Second, testOptions())
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "olá")
	require.Error(t, err)
	assert.True(t, core.IsExternal(err))
	assert.ErrorIs(t, err, core.ErrExternalService)

	// Breaker opened after two failures; the next call is rejected without reaching the provider
	calls := inner.calls.Load()
	_, err = e.Embed(context.Background(), "olá")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrCircuitOpen)
	assert.Equal(t, calls, inner.calls.Load())
}

func TestResilientEmbedder_Timeout(t *testing.T) {
	inner := &fakeEmbedder{block: true}
	opts := testOptions()
	opts.Resilience.Retry.MaxAttempts = 1
	e, err := NewResilientEmbedder("fake", inner, 20*time.Millisecond, opts)
	require.NoError(t, err)

	start := time.Now()
	_, err = e.Embed(context.Background(), "olá")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTimeout)
	assert.True(t, core.IsExternal(err))
	assert.Less(t, time.Since(start), time.Second)
}

func TestResilientGenerator(t *testing.T) {
	g, err := NewResilientGenerator("fake", &fakeGenerator{text: "Olá!"}, time.Second, testOptions())
	require.NoError(t, err)
	text, err := g.GenerateText(context.Background(), "hi", core.GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Olá!", text)

	g, err = NewResilientGenerator("fake", &fakeGenerator{err: core.NewValidationError("fake", "prompt too long")}, time.Second, testOptions())
	require.NoError(t, err)
	_, err = g.GenerateText(context.Background(), "hi", core.GenerateOptions{})
	assert.True(t, core.IsValidation(err), "validation errors pass through unchanged")
}
