package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrameworkError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *FrameworkError
		want string
	}{
		{"op and message", &FrameworkError{Op: "memory.StoreMemory", Message: "content cannot be empty"}, "memory.StoreMemory: content cannot be empty"},
		{"op id and message", &FrameworkError{Op: "repo.GetPattern", ID: "p-1", Message: "pattern not found"}, "repo.GetPattern [p-1]: pattern not found"},
		{"op and cause", &FrameworkError{Op: "ai.Embed", Err: errors.New("boom")}, "ai.Embed: boom"},
		{"op id and cause", &FrameworkError{Op: "task.Execute", ID: "t-1", Err: errors.New("boom")}, "task.Execute [t-1]: boom"},
		{"message only", &FrameworkError{Message: "plain"}, "plain"},
		{"cause only", &FrameworkError{Err: errors.New("inner")}, "inner"},
		{"kind only", &FrameworkError{Kind: "config"}, "config error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestErrorPredicates(t *testing.T) {
	validation := NewValidationError("op", "bad input")
	notFound := NewNotFoundError("op", "proposal", "x")
	external := NewExternalServiceError("ai.Generate", errors.New("503"))
	timeout := NewExternalServiceError("ai.Generate", fmt.Errorf("deadline: %w", ErrTimeout))
	wrapped := fmt.Errorf("outer: %w", validation)

	assert.True(t, IsValidation(validation))
	assert.True(t, IsValidation(wrapped))
	assert.False(t, IsValidation(notFound))

	assert.True(t, IsNotFound(notFound))
	assert.Equal(t, "proposal not found", notFound.Message)
	assert.Equal(t, "x", notFound.ID)

	assert.True(t, IsExternal(external))
	assert.True(t, IsExternal(timeout))
	assert.Equal(t, "timeout", timeout.Kind)
	assert.ErrorIs(t, timeout, ErrTimeout)
	assert.NotErrorIs(t, timeout, ErrExternalService)

	assert.True(t, IsRetryable(external))
	assert.True(t, IsRetryable(timeout))
	assert.True(t, IsRetryable(fmt.Errorf("gemini: %w", ErrCircuitOpen)))
	assert.False(t, IsRetryable(validation))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(nil))

	assert.True(t, IsConfigurationError(configError("x", ErrMissingConfiguration)))
	assert.False(t, IsConfigurationError(external))
}

func TestErrorWrapping(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewExternalServiceError("patternstore.Save", cause)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrExternalService)

	var fe *FrameworkError
	assert.ErrorAs(t, fmt.Errorf("ctx: %w", err), &fe)
	assert.Equal(t, "external", fe.Kind)

	taskErr := NewTaskExecutionError("t-9", cause)
	assert.ErrorIs(t, taskErr, ErrTaskExecution)
	assert.Contains(t, taskErr.Error(), "connection reset")

	assert.ErrorIs(t, ErrQueueFull, ErrTaskRejected)
	assert.ErrorIs(t, ErrProcessorStopped, ErrTaskRejected)

	assert.Nil(t, NewFrameworkError("op", "kind", nil).Unwrap())
}
