package orchestration

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/itsneelabh/gomind-learning/core"
	"github.com/itsneelabh/gomind-learning/telemetry"
	"go.opentelemetry.io/otel/trace"
)

// TaskProcessor runs background tasks from a bounded priority queue on a
// pool of workers. Submission never waits for execution.
//
// Failed tasks are requeued at LOW priority until RetryCount reaches
// MaxRetries; after that they fail permanently and their callback receives
// the last error. The processor can be stopped and started again; queued
// tasks survive a restart.
type TaskProcessor struct {
	queue    *priorityQueue
	config   core.TaskConfig
	logger   core.Logger
	store    core.TaskStatusStore
	handlers map[string]core.TaskHandler

	handlersLock sync.RWMutex

	// mu guards tasks, callbacks, links, history and stats
	mu        sync.RWMutex
	tasks     map[string]*core.ProcessingTask
	callbacks map[string]core.TaskCallback
	links     map[string]trace.SpanContext
	completed *taskHistory
	failed    *taskHistory
	stats     processorStats

	// Lifecycle management
	lifecycleLock sync.Mutex
	run           *processorRun
	running       atomic.Bool
	activeCount   atomic.Int32

	// Worker identification
	workerIDCounter atomic.Int32
}

// processorRun is the state of one Start/Stop cycle.
type processorRun struct {
	stop   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type processorStats struct {
	submitted      int64
	processed      int64
	failed         int64
	retried        int64
	executions     int64
	avgProcessing  float64 // milliseconds, incremental mean over executions
	workerStats    map[string]*WorkerStats
	lastActivityAt time.Time
}

// WorkerStats counts executions per worker.
type WorkerStats struct {
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
}

// ServiceStats is a point-in-time view of the processor.
type ServiceStats struct {
	Running               bool                   `json:"running"`
	ActiveWorkers         int                    `json:"active_workers"`
	QueueDepth            int                    `json:"queue_depth"`
	InFlight              int                    `json:"in_flight"`
	TotalSubmitted        int64                  `json:"total_submitted"`
	TotalProcessed        int64                  `json:"total_processed"`
	TotalFailed           int64                  `json:"total_failed"`
	TotalRetried          int64                  `json:"total_retried"`
	AverageProcessingTime time.Duration          `json:"average_processing_time"`
	Workers               map[string]WorkerStats `json:"workers"`
	LastActivityAt        time.Time              `json:"last_activity_at"`
}

// ProcessorOption configures a TaskProcessor.
type ProcessorOption func(*TaskProcessor)

// WithLogger sets the logger for processor operations.
func WithLogger(logger core.Logger) ProcessorOption {
	return func(p *TaskProcessor) {
		p.logger = core.ComponentLogger(logger, "learning/orchestration")
	}
}

// WithStatusStore mirrors status changes into store from the moment a
// worker picks a task up. Pending tasks live only in memory.
func WithStatusStore(store core.TaskStatusStore) ProcessorOption {
	return func(p *TaskProcessor) {
		p.store = store
	}
}

// NewTaskProcessor creates a stopped processor. Zero config values fall back to defaults.
func NewTaskProcessor(config core.TaskConfig, opts ...ProcessorOption) *TaskProcessor {
	defaults := core.DefaultConfig().Tasks
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = defaults.MaxWorkers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.TaskTimeout <= 0 {
		config.TaskTimeout = defaults.TaskTimeout
	}
	if config.HistorySize <= 0 {
		config.HistorySize = defaults.HistorySize
	}
	if config.StopTimeout <= 0 {
		config.StopTimeout = defaults.StopTimeout
	}

	p := &TaskProcessor{
		queue:     newPriorityQueue(config.QueueSize),
		config:    config,
		logger:    &core.NoOpLogger{},
		handlers:  make(map[string]core.TaskHandler),
		tasks:     make(map[string]*core.ProcessingTask),
		callbacks: make(map[string]core.TaskCallback),
		links:     make(map[string]trace.SpanContext),
		completed: newTaskHistory(config.HistorySize),
		failed:    newTaskHistory(config.HistorySize),
		stats:     processorStats{workerStats: make(map[string]*WorkerStats)},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RegisterHandler registers a handler for a task type.
// Handlers may be registered while the processor is running.
func (p *TaskProcessor) RegisterHandler(taskType string, handler core.TaskHandler) error {
	if taskType == "" {
		return core.NewValidationError("TaskProcessor.RegisterHandler", "task type cannot be empty")
	}
	if handler == nil {
		return core.NewValidationError("TaskProcessor.RegisterHandler", "handler cannot be nil")
	}

	p.handlersLock.Lock()
	p.handlers[taskType] = handler
	p.handlersLock.Unlock()

	p.logger.Info("Handler registered", map[string]interface{}{
		"task_type": taskType,
	})
	return nil
}

// SubmitTask enqueues a task and returns its id without waiting for it to run.
// It fails with ErrProcessorStopped when the processor is not running and
// ErrQueueFull when the queue is at capacity. A zero priority means NORMAL.
func (p *TaskProcessor) SubmitTask(ctx context.Context, taskType string, data map[string]interface{}, priority core.TaskPriority, callback core.TaskCallback) (string, error) {
	if taskType == "" {
		return "", core.NewValidationError("TaskProcessor.SubmitTask", "task type cannot be empty")
	}
	if priority == 0 {
		priority = core.PriorityNormal
	}
	if !priority.Valid() {
		return "", core.NewValidationError("TaskProcessor.SubmitTask", fmt.Sprintf("invalid priority %d", priority))
	}
	if !p.running.Load() {
		EmitTaskRejected(taskType, "stopped")
		return "", core.ErrProcessorStopped
	}

	task := &core.ProcessingTask{
		ID:         uuid.New().String(),
		Type:       taskType,
		Priority:   priority,
		Data:       data,
		Status:     core.TaskStatusPending,
		MaxRetries: p.config.MaxRetries,
		CreatedAt:  time.Now(),
	}

	p.mu.Lock()
	p.tasks[task.ID] = task
	if callback != nil {
		p.callbacks[task.ID] = callback
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		p.links[task.ID] = sc
	}
	p.mu.Unlock()

	if !p.queue.Push(task) {
		p.mu.Lock()
		delete(p.tasks, task.ID)
		delete(p.callbacks, task.ID)
		delete(p.links, task.ID)
		p.mu.Unlock()
		EmitTaskRejected(taskType, "queue_full")
		return "", core.ErrQueueFull
	}

	p.mu.Lock()
	p.stats.submitted++
	snapshot := task.Snapshot()
	p.mu.Unlock()

	EmitTaskSubmitted(ctx, task)
	p.logger.DebugWithContext(ctx, "Task submitted", map[string]interface{}{
		"task_id":   snapshot.ID,
		"task_type": snapshot.Type,
		"priority":  snapshot.Priority.String(),
	})

	return task.ID, nil
}

// GetTaskStatus returns a copy of the task's current record.
// Tasks evicted from the bounded history are looked up in the status store, if any.
func (p *TaskProcessor) GetTaskStatus(ctx context.Context, taskID string) (*core.ProcessingTask, bool) {
	p.mu.RLock()
	if t, ok := p.tasks[taskID]; ok {
		snap := t.Snapshot()
		p.mu.RUnlock()
		return snap, true
	}
	if t, ok := p.completed.get(taskID); ok {
		snap := t.Snapshot()
		p.mu.RUnlock()
		return snap, true
	}
	if t, ok := p.failed.get(taskID); ok {
		snap := t.Snapshot()
		p.mu.RUnlock()
		return snap, true
	}
	p.mu.RUnlock()

	if p.store != nil {
		t, err := p.store.Get(ctx, taskID)
		if err == nil && t != nil {
			return t, true
		}
	}
	return nil, false
}

// Start launches maxWorkers workers. Values ≤ 0 use the configured count.
func (p *TaskProcessor) Start(ctx context.Context, maxWorkers int) error {
	p.lifecycleLock.Lock()
	defer p.lifecycleLock.Unlock()

	if p.running.Load() {
		return fmt.Errorf("task processor: %w", core.ErrAlreadyStarted)
	}
	if maxWorkers <= 0 {
		maxWorkers = p.config.MaxWorkers
	}

	workerCtx, cancel := context.WithCancel(ctx)
	run := &processorRun{
		stop:   make(chan struct{}),
		cancel: cancel,
	}
	p.run = run
	p.running.Store(true)

	p.logger.Info("Starting task processor", map[string]interface{}{
		"worker_count": maxWorkers,
		"queue_depth":  p.queue.Len(),
	})

	for i := 0; i < maxWorkers; i++ {
		workerID := fmt.Sprintf("worker-%d", p.workerIDCounter.Add(1))
		run.wg.Add(1)
		go p.runWorker(workerCtx, run, workerID)
	}

	return nil
}

// Stop stops accepting tasks, lets in-flight tasks finish for up to timeout,
// then cancels the stragglers. Stop returns once workers exit or timeout
// elapses, whichever is first. Queued tasks stay queued for the next Start.
func (p *TaskProcessor) Stop(timeout time.Duration) error {
	p.lifecycleLock.Lock()
	defer p.lifecycleLock.Unlock()

	if !p.running.Load() || p.run == nil {
		return nil
	}
	if timeout <= 0 {
		timeout = p.config.StopTimeout
	}

	run := p.run
	p.run = nil
	p.running.Store(false)

	p.logger.Info("Stopping task processor", map[string]interface{}{
		"active_workers": p.activeCount.Load(),
		"timeout_ms":     timeout.Milliseconds(),
	})

	close(run.stop)

	done := make(chan struct{})
	go func() {
		run.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		run.cancel()
		p.logger.Info("Task processor stopped", nil)
		return nil
	case <-timer.C:
		// Force-cancel handlers that are still running
		run.cancel()
		p.logger.Warn("Task processor stop timed out, cancelled in-flight tasks", map[string]interface{}{
			"active_workers": p.activeCount.Load(),
		})
		return fmt.Errorf("task processor stop after %s: %w", timeout, core.ErrTimeout)
	}
}

// IsRunning reports whether workers are accepting tasks.
func (p *TaskProcessor) IsRunning() bool {
	return p.running.Load()
}

// runWorker is the main loop for each worker goroutine.
func (p *TaskProcessor) runWorker(ctx context.Context, run *processorRun, workerID string) {
	defer run.wg.Done()

	count := p.activeCount.Add(1)
	EmitWorkerStarted(workerID, int(count))
	p.logger.Debug("Worker started", map[string]interface{}{
		"worker_id": workerID,
	})

	defer func() {
		count := p.activeCount.Add(-1)
		EmitWorkerStopped(workerID, int(count))
		p.logger.Debug("Worker stopped", map[string]interface{}{
			"worker_id": workerID,
		})
	}()

	for {
		select {
		case <-run.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		task, ok := p.queue.Pop(ctx, run.stop, p.config.PollInterval)
		if !ok {
			continue
		}

		p.processTask(ctx, workerID, task)
	}
}

// processTask executes one task and applies the retry policy.
func (p *TaskProcessor) processTask(workerCtx context.Context, workerID string, task *core.ProcessingTask) {
	p.mu.Lock()
	link := p.links[task.ID]
	startTime := time.Now()
	if err := task.Transition(core.TaskStatusProcessing); err != nil {
		p.mu.Unlock()
		p.logger.Error("Dropping task in unexpected state", map[string]interface{}{
			"task_id": task.ID,
			"status":  string(task.Status),
		})
		return
	}
	task.StartedAt = &startTime
	task.ErrorMessage = ""
	snapshot := task.Snapshot()
	p.mu.Unlock()

	ctx, endSpan := telemetry.StartLinkedSpan(workerCtx, "task.process", link, map[string]string{
		"task.id":   task.ID,
		"task.type": task.Type,
		"worker.id": workerID,
	})
	defer endSpan()

	EmitQueueWaitTime(task, startTime.Sub(task.CreatedAt))
	EmitTaskStarted(ctx, task, workerID)
	p.persist(ctx, snapshot)

	p.handlersLock.RLock()
	handler, exists := p.handlers[task.Type]
	p.handlersLock.RUnlock()

	var err error
	if !exists {
		err = fmt.Errorf("%w: %s", core.ErrNoHandler, task.Type)
	} else {
		taskCtx, cancel := context.WithTimeout(ctx, p.config.TaskTimeout)
		err = p.executeHandler(taskCtx, workerID, handler, snapshot)
		if err != nil && errors.Is(taskCtx.Err(), context.DeadlineExceeded) && workerCtx.Err() == nil {
			err = fmt.Errorf("task exceeded %s: %w", p.config.TaskTimeout, core.ErrTimeout)
		}
		cancel()
	}

	duration := time.Since(startTime)

	if err == nil {
		p.completeTask(ctx, workerID, task, duration)
		return
	}

	// Forced shutdown: put the task back untouched so the next Start picks it up.
	if workerCtx.Err() != nil && exists {
		p.requeueAfterShutdown(task)
		return
	}

	p.handleFailure(ctx, workerID, task, duration, err, exists)
}

// executeHandler runs the handler with panic recovery.
func (p *TaskProcessor) executeHandler(ctx context.Context, workerID string, handler core.TaskHandler, task *core.ProcessingTask) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := string(debug.Stack())
			err = fmt.Errorf("handler panic: %v", r)

			EmitWorkerPanic(ctx, workerID, r)
			p.logger.ErrorWithContext(ctx, "Handler panicked", map[string]interface{}{
				"task_id": task.ID,
				"panic":   fmt.Sprintf("%v", r),
				"stack":   stack,
			})
		}
	}()

	return handler(ctx, task)
}

func (p *TaskProcessor) completeTask(ctx context.Context, workerID string, task *core.ProcessingTask, duration time.Duration) {
	p.mu.Lock()
	_ = task.Transition(core.TaskStatusCompleted)
	completedAt := time.Now()
	task.CompletedAt = &completedAt
	p.recordExecutionLocked(workerID, duration, true)
	p.stats.processed++
	delete(p.tasks, task.ID)
	delete(p.links, task.ID)
	p.completed.add(task)
	callback := p.callbacks[task.ID]
	delete(p.callbacks, task.ID)
	snapshot := task.Snapshot()
	p.mu.Unlock()

	EmitTaskCompleted(ctx, task, duration)
	p.persist(ctx, snapshot)

	p.logger.InfoWithContext(ctx, "Task completed", map[string]interface{}{
		"task_id":     task.ID,
		"task_type":   task.Type,
		"duration_ms": duration.Milliseconds(),
		"retry_count": task.RetryCount,
	})

	p.invokeCallback(callback, snapshot, nil)
}

// handleFailure requeues the task at LOW priority while retries remain,
// otherwise marks it permanently failed. Missing handlers never retry.
func (p *TaskProcessor) handleFailure(ctx context.Context, workerID string, task *core.ProcessingTask, duration time.Duration, cause error, retryable bool) {
	execErr := core.NewTaskExecutionError(task.ID, cause)

	p.mu.Lock()
	_ = task.Transition(core.TaskStatusFailed)
	task.ErrorMessage = cause.Error()
	p.recordExecutionLocked(workerID, duration, false)

	if retryable && task.RetryCount < task.MaxRetries {
		task.RetryCount++
		task.Priority = core.PriorityLow
		_ = task.Transition(core.TaskStatusPending)
		task.StartedAt = nil
		p.stats.retried++
		snapshot := task.Snapshot()
		p.mu.Unlock()

		p.persist(ctx, snapshot)
		if p.queue.Push(task) {
			EmitTaskRetried(ctx, snapshot, cause)
			p.logger.WarnWithContext(ctx, "Task failed, requeued", map[string]interface{}{
				"task_id":     task.ID,
				"task_type":   task.Type,
				"retry_count": snapshot.RetryCount,
				"max_retries": snapshot.MaxRetries,
				"error":       cause.Error(),
			})
			return
		}

		// Queue full: nowhere to retry, fail permanently.
		p.mu.Lock()
		task.Status = core.TaskStatusFailed
		cause = fmt.Errorf("%v (retry dropped: %w)", cause, core.ErrQueueFull)
		task.ErrorMessage = cause.Error()
		execErr = core.NewTaskExecutionError(task.ID, cause)
	}

	completedAt := time.Now()
	task.CompletedAt = &completedAt
	p.stats.failed++
	delete(p.tasks, task.ID)
	delete(p.links, task.ID)
	p.failed.add(task)
	callback := p.callbacks[task.ID]
	delete(p.callbacks, task.ID)
	snapshot := task.Snapshot()
	p.mu.Unlock()

	EmitTaskFailed(ctx, task, duration, execErr)
	p.persist(ctx, snapshot)

	p.logger.ErrorWithContext(ctx, "Task failed permanently", map[string]interface{}{
		"task_id":     task.ID,
		"task_type":   task.Type,
		"retry_count": snapshot.RetryCount,
		"error":       cause.Error(),
	})

	p.invokeCallback(callback, snapshot, execErr)
}

func (p *TaskProcessor) requeueAfterShutdown(task *core.ProcessingTask) {
	p.mu.Lock()
	task.Status = core.TaskStatusPending
	task.StartedAt = nil
	p.mu.Unlock()

	if !p.queue.Push(task) {
		p.logger.Error("Could not requeue task interrupted by shutdown", map[string]interface{}{
			"task_id": task.ID,
		})
	}
}

func (p *TaskProcessor) recordExecutionLocked(workerID string, duration time.Duration, ok bool) {
	ws := p.stats.workerStats[workerID]
	if ws == nil {
		ws = &WorkerStats{}
		p.stats.workerStats[workerID] = ws
	}
	if ok {
		ws.Processed++
	} else {
		ws.Failed++
	}
	p.stats.executions++
	ms := float64(duration) / float64(time.Millisecond)
	p.stats.avgProcessing += (ms - p.stats.avgProcessing) / float64(p.stats.executions)
	p.stats.lastActivityAt = time.Now()
}

func (p *TaskProcessor) invokeCallback(callback core.TaskCallback, task *core.ProcessingTask, err error) {
	if callback == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Task callback panicked", map[string]interface{}{
				"task_id": task.ID,
				"panic":   fmt.Sprintf("%v", r),
			})
		}
	}()
	callback(task, err)
}

// GetServiceStats returns processor counters and per-worker statistics.
func (p *TaskProcessor) GetServiceStats() ServiceStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	workers := make(map[string]WorkerStats, len(p.stats.workerStats))
	for id, ws := range p.stats.workerStats {
		workers[id] = *ws
	}
	depth := p.queue.Len()
	EmitQueueDepth(depth)

	return ServiceStats{
		Running:               p.running.Load(),
		ActiveWorkers:         int(p.activeCount.Load()),
		QueueDepth:            depth,
		InFlight:              len(p.tasks) - depth,
		TotalSubmitted:        p.stats.submitted,
		TotalProcessed:        p.stats.processed,
		TotalFailed:           p.stats.failed,
		TotalRetried:          p.stats.retried,
		AverageProcessingTime: time.Duration(p.stats.avgProcessing * float64(time.Millisecond)),
		Workers:               workers,
		LastActivityAt:        p.stats.lastActivityAt,
	}
}

// FailedTasks returns the bounded history of permanently failed tasks, oldest first.
func (p *TaskProcessor) FailedTasks() []*core.ProcessingTask {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.failed.list()
}

// persist mirrors a status record into the store, if configured.
func (p *TaskProcessor) persist(ctx context.Context, task *core.ProcessingTask) {
	if p.store == nil {
		return
	}
	if err := p.store.Save(ctx, task); err != nil {
		p.logger.WarnWithContext(ctx, "Failed to persist task status", map[string]interface{}{
			"task_id": task.ID,
			"status":  string(task.Status),
			"error":   err.Error(),
		})
	}
}

// taskHistory keeps the most recent terminal tasks up to limit.
type taskHistory struct {
	limit int
	order []string
	items map[string]*core.ProcessingTask
}

func newTaskHistory(limit int) *taskHistory {
	return &taskHistory{limit: limit, items: make(map[string]*core.ProcessingTask)}
}

func (h *taskHistory) add(task *core.ProcessingTask) {
	if _, ok := h.items[task.ID]; !ok {
		h.order = append(h.order, task.ID)
	}
	h.items[task.ID] = task
	for len(h.order) > h.limit {
		delete(h.items, h.order[0])
		h.order = h.order[1:]
	}
}

func (h *taskHistory) get(id string) (*core.ProcessingTask, bool) {
	t, ok := h.items[id]
	return t, ok
}

func (h *taskHistory) list() []*core.ProcessingTask {
	out := make([]*core.ProcessingTask, 0, len(h.order))
	for _, id := range h.order {
		out = append(out, h.items[id].Snapshot())
	}
	return out
}
