// Package core provides the shared types, interfaces, errors and configuration
// of the learning subsystem.
//
// This file defines the background task model used by the task processor.
// Tasks move through an explicit lifecycle:
//
//	pending → processing → completed
//	                     → failed → pending (retry, while RetryCount < MaxRetries)
//
// A failed task with no retries left is terminal.
//
// Processing a task (in a worker):
//
//	func handleAnalyze(ctx context.Context, task *core.ProcessingTask) error {
//	    convID, _ := task.Data["conversation_id"].(string)
//	    // ... do work ...
//	    return nil
//	}
package core

import (
	"context"
	"fmt"
	"time"
)

// TaskPriority orders tasks in the queue. Higher values are dequeued first.
type TaskPriority int

const (
	PriorityLow      TaskPriority = 1
	PriorityNormal   TaskPriority = 2
	PriorityHigh     TaskPriority = 3
	PriorityCritical TaskPriority = 4
)

// String returns the upper-case priority name.
func (p TaskPriority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityNormal:
		return "NORMAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityCritical:
		return "CRITICAL"
	default:
		return fmt.Sprintf("PRIORITY(%d)", int(p))
	}
}

// Valid reports whether p is one of the four defined priorities.
func (p TaskPriority) Valid() bool {
	return p >= PriorityLow && p <= PriorityCritical
}

// TaskStatus represents the state of a background task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// CanTransition reports whether s → to is a legal lifecycle step.
func (s TaskStatus) CanTransition(to TaskStatus) bool {
	switch s {
	case TaskStatusPending:
		return to == TaskStatusProcessing
	case TaskStatusProcessing:
		return to == TaskStatusCompleted || to == TaskStatusFailed
	case TaskStatusFailed:
		return to == TaskStatusPending
	default:
		return false
	}
}

// ProcessingTask is a unit of background work.
type ProcessingTask struct {
	ID           string                 `json:"task_id"`
	Type         string                 `json:"task_type"`
	Priority     TaskPriority           `json:"priority"`
	Data         map[string]interface{} `json:"data,omitempty"`
	Status       TaskStatus             `json:"status"`
	RetryCount   int                    `json:"retry_count"`
	MaxRetries   int                    `json:"max_retries"`
	CreatedAt    time.Time              `json:"created_at"`
	StartedAt    *time.Time             `json:"started_at,omitempty"`
	CompletedAt  *time.Time             `json:"completed_at,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
}

// Transition moves the task to a new status or returns ErrInvalidTransition.
func (t *ProcessingTask) Transition(to TaskStatus) error {
	if !t.Status.CanTransition(to) {
		return &FrameworkError{
			Op:      "ProcessingTask.Transition",
			Kind:    "task",
			ID:      t.ID,
			Message: fmt.Sprintf("cannot move from %s to %s", t.Status, to),
			Err:     ErrInvalidTransition,
		}
	}
	t.Status = to
	return nil
}

// IsTerminal reports whether the task will not run again.
func (t *ProcessingTask) IsTerminal() bool {
	return t.Status == TaskStatusCompleted ||
		(t.Status == TaskStatusFailed && t.RetryCount >= t.MaxRetries)
}

// Snapshot returns a copy that is safe to hand to callers.
func (t *ProcessingTask) Snapshot() *ProcessingTask {
	cp := *t
	if t.Data != nil {
		cp.Data = make(map[string]interface{}, len(t.Data))
		for k, v := range t.Data {
			cp.Data[k] = v
		}
	}
	if t.StartedAt != nil {
		s := *t.StartedAt
		cp.StartedAt = &s
	}
	if t.CompletedAt != nil {
		c := *t.CompletedAt
		cp.CompletedAt = &c
	}
	return &cp
}

// TaskHandler executes one task. A returned error triggers the retry policy.
type TaskHandler func(ctx context.Context, task *ProcessingTask) error

// TaskCallback is invoked once a task reaches a terminal state.
// err is nil on success and the last handler error on permanent failure.
type TaskCallback func(task *ProcessingTask, err error)

// TaskStatusStore optionally mirrors task status records outside the process.
type TaskStatusStore interface {
	Save(ctx context.Context, task *ProcessingTask) error
	Get(ctx context.Context, taskID string) (*ProcessingTask, error)
}
