package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/itsneelabh/gomind-learning/core"
	"github.com/itsneelabh/gomind-learning/telemetry"
)

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	// StateClosed allows all requests through
	StateClosed CircuitState = iota
	// StateOpen blocks all requests
	StateOpen
	// StateHalfOpen allows limited requests for testing
	StateHalfOpen
)

// String returns the string representation of the state
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrorClassifier determines which errors should count toward circuit breaker thresholds
type ErrorClassifier func(error) bool

// DefaultErrorClassifier only counts dependency errors, not caller errors
func DefaultErrorClassifier(err error) bool {
	if err == nil {
		return false
	}
	if core.IsValidation(err) || core.IsNotFound(err) || core.IsConfigurationError(err) {
		return false
	}
	// Client gave up; says nothing about the dependency
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	// Name identifies the circuit breaker in logs and metrics
	Name string

	// FailureThreshold is the number of consecutive failures before opening
	FailureThreshold int

	// SleepWindow is how long to stay open before allowing a trial request
	SleepWindow time.Duration

	// HalfOpenRequests is the number of concurrent trial requests in half-open state
	HalfOpenRequests int

	// ErrorClassifier determines which errors count as failures
	ErrorClassifier ErrorClassifier

	Logger core.Logger
}

// DefaultConfig returns a default configuration
func DefaultConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:             "default",
		FailureThreshold: 5,
		SleepWindow:      30 * time.Second,
		HalfOpenRequests: 1,
		ErrorClassifier:  DefaultErrorClassifier,
		Logger:           &core.NoOpLogger{},
	}
}

// ConfigFrom converts the file/env configuration for a named dependency.
func ConfigFrom(name string, cfg core.CircuitBreakerConfig) *CircuitBreakerConfig {
	c := DefaultConfig()
	c.Name = name
	if cfg.Threshold > 0 {
		c.FailureThreshold = cfg.Threshold
	}
	if cfg.Timeout > 0 {
		c.SleepWindow = cfg.Timeout
	}
	if cfg.HalfOpenRequests > 0 {
		c.HalfOpenRequests = cfg.HalfOpenRequests
	}
	return c
}

// Validate checks the configuration values.
func (c *CircuitBreakerConfig) Validate() error {
	if c.FailureThreshold <= 0 {
		return fmt.Errorf("failure threshold must be positive: %w", core.ErrInvalidConfiguration)
	}
	if c.SleepWindow <= 0 {
		return fmt.Errorf("sleep window must be positive: %w", core.ErrInvalidConfiguration)
	}
	if c.HalfOpenRequests <= 0 {
		return fmt.Errorf("half-open requests must be positive: %w", core.ErrInvalidConfiguration)
	}
	return nil
}

// CircuitBreaker fails fast once a dependency keeps failing, then probes it
// again after SleepWindow.
type CircuitBreaker struct {
	config *CircuitBreakerConfig
	logger core.Logger

	mu               sync.Mutex
	state            CircuitState
	stateChangedAt   time.Time
	consecutiveFails int
	halfOpenInFlight int

	// now is swapped in tests
	now func() time.Time
}

// NewCircuitBreaker creates a circuit breaker
func NewCircuitBreaker(config *CircuitBreakerConfig) (*CircuitBreaker, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid circuit breaker config: %w", err)
	}
	if config.ErrorClassifier == nil {
		config.ErrorClassifier = DefaultErrorClassifier
	}

	cb := &CircuitBreaker{
		config:         config,
		logger:         core.ComponentLogger(config.Logger, "learning/resilience"),
		state:          StateClosed,
		stateChangedAt: time.Now(),
		now:            time.Now,
	}
	return cb, nil
}

// SetLogger sets the logger for state change events.
func (cb *CircuitBreaker) SetLogger(logger core.Logger) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.logger = core.ComponentLogger(logger, "learning/resilience")
}

// Execute runs fn unless the circuit is open.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	halfOpen, ok := cb.admit()
	if !ok {
		telemetry.Counter("learning.circuit.rejected", "name", cb.config.Name)
		return fmt.Errorf("%s: %w", cb.config.Name, core.ErrCircuitOpen)
	}

	err := fn()
	cb.record(err, halfOpen)
	return err
}

// admit decides whether a call may proceed and whether it is a half-open probe.
func (cb *CircuitBreaker) admit() (halfOpen bool, ok bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return false, true
	case StateOpen:
		if cb.now().Sub(cb.stateChangedAt) < cb.config.SleepWindow {
			return false, false
		}
		cb.transitionLocked(StateHalfOpen)
		fallthrough
	case StateHalfOpen:
		if cb.halfOpenInFlight >= cb.config.HalfOpenRequests {
			return false, false
		}
		cb.halfOpenInFlight++
		return true, true
	}
	return false, false
}

func (cb *CircuitBreaker) record(err error, halfOpen bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if halfOpen && cb.halfOpenInFlight > 0 {
		cb.halfOpenInFlight--
	}

	failed := cb.config.ErrorClassifier(err)
	if !failed {
		cb.consecutiveFails = 0
		if cb.state == StateHalfOpen {
			cb.transitionLocked(StateClosed)
		}
		return
	}

	cb.consecutiveFails++
	if cb.state == StateHalfOpen || cb.consecutiveFails >= cb.config.FailureThreshold {
		if cb.state != StateOpen {
			cb.transitionLocked(StateOpen)
		}
	}
}

func (cb *CircuitBreaker) transitionLocked(to CircuitState) {
	from := cb.state
	cb.state = to
	cb.stateChangedAt = cb.now()
	if to == StateClosed {
		cb.consecutiveFails = 0
		cb.halfOpenInFlight = 0
	}

	telemetry.Counter("learning.circuit.state_change",
		"name", cb.config.Name, "from", from.String(), "to", to.String())
	cb.logger.Warn("Circuit breaker state changed", map[string]interface{}{
		"name": cb.config.Name,
		"from": from.String(),
		"to":   to.String(),
	})
}

// GetState returns the current state name.
func (cb *CircuitBreaker) GetState() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state.String()
}

// Reset forces the breaker back to closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != StateClosed {
		cb.transitionLocked(StateClosed)
	}
	cb.consecutiveFails = 0
}
