// Package orchestration provides the background task processor: a bounded
// priority queue drained by a restartable worker pool with retry.
//
// This file provides centralized functions for emitting task-related metrics
// and span events, keeping processor observability consistent.
package orchestration

import (
	"context"
	"time"

	"github.com/itsneelabh/gomind-learning/core"
	"github.com/itsneelabh/gomind-learning/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// ═══════════════════════════════════════════════════════════════════════════
// Task Lifecycle Span Events
// ═══════════════════════════════════════════════════════════════════════════

// EmitTaskSubmitted emits span event and metric when a task is submitted.
func EmitTaskSubmitted(ctx context.Context, task *core.ProcessingTask) {
	telemetry.Counter("learning.tasks.submitted",
		"task_type", task.Type,
		"priority", task.Priority.String(),
	)

	telemetry.AddSpanEvent(ctx, "task.submitted",
		attribute.String("task_id", task.ID),
		attribute.String("task_type", task.Type),
		attribute.String("priority", task.Priority.String()),
	)
}

// EmitTaskRejected emits a metric when a submission is refused.
func EmitTaskRejected(taskType string, reason string) {
	telemetry.Counter("learning.tasks.rejected",
		"task_type", taskType,
		"reason", reason,
	)
}

// EmitTaskStarted emits span event and metric when a worker starts processing a task.
func EmitTaskStarted(ctx context.Context, task *core.ProcessingTask, workerID string) {
	telemetry.Counter("learning.tasks.started",
		"task_type", task.Type,
	)

	attrs := []attribute.KeyValue{
		attribute.String("task_id", task.ID),
		attribute.String("task_type", task.Type),
		attribute.Int("retry_count", task.RetryCount),
	}
	if workerID != "" {
		attrs = append(attrs, attribute.String("worker_id", workerID))
	}
	telemetry.AddSpanEvent(ctx, "task.started", attrs...)
}

// EmitTaskCompleted emits span event and metrics when a task completes successfully.
func EmitTaskCompleted(ctx context.Context, task *core.ProcessingTask, duration time.Duration) {
	telemetry.Counter("learning.tasks.completed",
		"task_type", task.Type,
		"status", "completed",
	)
	telemetry.Histogram("learning.tasks.duration_ms", float64(duration.Milliseconds()),
		"task_type", task.Type,
		"status", "completed",
	)
	telemetry.AddSpanEvent(ctx, "task.completed",
		attribute.String("task_id", task.ID),
		attribute.Int64("duration_ms", duration.Milliseconds()),
	)
}

// EmitTaskRetried emits span event and metric when a failed task is requeued.
func EmitTaskRetried(ctx context.Context, task *core.ProcessingTask, err error) {
	telemetry.Counter("learning.tasks.retried",
		"task_type", task.Type,
	)

	attrs := []attribute.KeyValue{
		attribute.String("task_id", task.ID),
		attribute.Int("retry_count", task.RetryCount),
		attribute.Int("max_retries", task.MaxRetries),
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error", err.Error()))
	}
	telemetry.AddSpanEvent(ctx, "task.retried", attrs...)
}

// EmitTaskFailed emits span event and metrics when a task fails permanently.
func EmitTaskFailed(ctx context.Context, task *core.ProcessingTask, duration time.Duration, err error) {
	telemetry.Counter("learning.tasks.completed",
		"task_type", task.Type,
		"status", "failed",
	)
	telemetry.Histogram("learning.tasks.duration_ms", float64(duration.Milliseconds()),
		"task_type", task.Type,
		"status", "failed",
	)

	attrs := []attribute.KeyValue{
		attribute.String("task_id", task.ID),
		attribute.String("task_type", task.Type),
		attribute.Int("retry_count", task.RetryCount),
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error", err.Error()))
	}
	telemetry.AddSpanEvent(ctx, "task.failed", attrs...)

	if err != nil {
		telemetry.RecordSpanError(ctx, err)
	}
}

// EmitQueueWaitTime records how long a task waited before a worker picked it up.
func EmitQueueWaitTime(task *core.ProcessingTask, waitTime time.Duration) {
	telemetry.Histogram("learning.tasks.queue_wait_ms", float64(waitTime.Milliseconds()),
		"priority", task.Priority.String(),
	)
}

// EmitQueueDepth records the current queue depth.
func EmitQueueDepth(depth int) {
	telemetry.Gauge("learning.tasks.queue_depth", float64(depth))
}

// ═══════════════════════════════════════════════════════════════════════════
// Worker Lifecycle
// ═══════════════════════════════════════════════════════════════════════════

// EmitWorkerStarted emits metric when a worker starts.
func EmitWorkerStarted(workerID string, workerCount int) {
	telemetry.Counter("learning.tasks.worker.started",
		"worker_id", workerID,
	)
	telemetry.Gauge("learning.tasks.workers.active", float64(workerCount))
}

// EmitWorkerStopped emits metric when a worker stops.
func EmitWorkerStopped(workerID string, workerCount int) {
	telemetry.Counter("learning.tasks.worker.stopped",
		"worker_id", workerID,
	)
	telemetry.Gauge("learning.tasks.workers.active", float64(workerCount))
}

// EmitWorkerPanic emits metric and span event when a handler panics.
func EmitWorkerPanic(ctx context.Context, workerID string, panicValue interface{}) {
	telemetry.Counter("learning.tasks.worker.panic",
		"worker_id", workerID,
	)
	telemetry.AddSpanEvent(ctx, "worker.panic",
		attribute.String("worker_id", workerID),
	)
}
