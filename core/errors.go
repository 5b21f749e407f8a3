package core

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for comparison using errors.Is()
// These are generic errors that can be wrapped with additional context
var (
	// Input errors, always surfaced to the immediate caller
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")

	// Dependency errors (embedding, persistence, text generation)
	ErrExternalService = errors.New("external service failure")
	ErrTimeout         = errors.New("operation timeout")
	ErrCircuitOpen     = errors.New("circuit breaker is open")

	// Task processing errors
	ErrTaskExecution    = errors.New("task execution failed")
	ErrTaskRejected     = errors.New("task rejected")
	ErrQueueFull        = fmt.Errorf("queue is full: %w", ErrTaskRejected)
	ErrProcessorStopped = fmt.Errorf("processor is stopped: %w", ErrTaskRejected)
	ErrNoHandler        = errors.New("no handler registered for task type")

	// State errors
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrAlreadyStarted    = errors.New("already started")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingConfiguration = errors.New("missing required configuration")

	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
)

// FrameworkError provides structured error information with context
// It implements the error interface and supports error wrapping
type FrameworkError struct {
	Op      string // Operation that failed (e.g., "memory.StoreMemory")
	Kind    string // Error kind (e.g., "validation", "external", "config")
	ID      string // Optional ID of the entity involved
	Message string // Human-readable message
	Err     error  // Underlying error for wrapping
}

// Error returns the string representation of the error
func (e *FrameworkError) Error() string {
	if e.Op != "" && e.Message != "" {
		if e.ID != "" {
			return fmt.Sprintf("%s [%s]: %s", e.Op, e.ID, e.Message)
		}
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	if e.Op != "" && e.Err != nil {
		if e.ID != "" {
			return fmt.Sprintf("%s [%s]: %v", e.Op, e.ID, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

// Unwrap returns the underlying error for use with errors.Is/As
func (e *FrameworkError) Unwrap() error {
	return e.Err
}

// NewFrameworkError creates a new FrameworkError
func NewFrameworkError(op, kind string, err error) *FrameworkError {
	return &FrameworkError{
		Op:   op,
		Kind: kind,
		Err:  err,
	}
}

// NewValidationError reports malformed or out-of-range input.
func NewValidationError(op, message string) *FrameworkError {
	return &FrameworkError{Op: op, Kind: "validation", Message: message, Err: ErrValidation}
}

// NewNotFoundError reports a referenced entity that does not exist.
func NewNotFoundError(op, kind, id string) *FrameworkError {
	return &FrameworkError{Op: op, Kind: kind, ID: id, Message: kind + " not found", Err: ErrNotFound}
}

// NewExternalServiceError wraps a dependency failure. Timeouts keep
// ErrTimeout in the chain so callers can tell the two apart.
func NewExternalServiceError(op string, err error) *FrameworkError {
	if errors.Is(err, ErrTimeout) {
		return &FrameworkError{Op: op, Kind: "timeout", Err: err}
	}
	return &FrameworkError{Op: op, Kind: "external", Err: fmt.Errorf("%w: %w", ErrExternalService, err)}
}

// NewTaskExecutionError wraps a handler failure for the given task.
func NewTaskExecutionError(taskID string, err error) *FrameworkError {
	return &FrameworkError{Op: "task.Execute", Kind: "task", ID: taskID, Err: fmt.Errorf("%w: %v", ErrTaskExecution, err)}
}

// IsValidation checks if an error was caused by bad input
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound checks if an error represents a "not found" condition
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsExternal checks if an error came from a dependency (including timeouts)
func IsExternal(err error) bool {
	return errors.Is(err, ErrExternalService) || errors.Is(err, ErrTimeout)
}

// IsRetryable checks if an error is retryable
// Retryable errors are typically transient dependency or availability issues
func IsRetryable(err error) bool {
	if err == nil || IsValidation(err) || IsNotFound(err) {
		return false
	}
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrCircuitOpen)
}

// IsConfigurationError checks if an error is configuration-related
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) ||
		errors.Is(err, ErrMissingConfiguration)
}
