package orchestration

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/itsneelabh/gomind-learning/core"
)

// RedisTaskStatusStore mirrors task status records into Redis so they outlive
// the in-process history. Each task is a JSON string at {prefix}:task:{task_id}.
type RedisTaskStatusStore struct {
	client *redis.Client
	config RedisTaskStatusStoreConfig
	logger core.Logger
}

// RedisTaskStatusStoreConfig configures the Redis status store.
type RedisTaskStatusStoreConfig struct {
	// KeyPrefix is the prefix for all task keys
	// Default: "gomind:learning"
	KeyPrefix string `json:"key_prefix"`

	// TTL is how long a status record is kept after its last update
	// Default: 24 hours
	TTL time.Duration `json:"ttl"`

	// Logger is an optional logger for store operations
	Logger core.Logger `json:"-"`
}

// DefaultRedisTaskStatusStoreConfig returns default configuration.
func DefaultRedisTaskStatusStoreConfig() RedisTaskStatusStoreConfig {
	return RedisTaskStatusStoreConfig{
		KeyPrefix: "gomind:learning",
		TTL:       24 * time.Hour,
	}
}

// NewRedisTaskStatusStore creates a store over an already connected client.
func NewRedisTaskStatusStore(client *redis.Client, config *RedisTaskStatusStoreConfig) *RedisTaskStatusStore {
	if config == nil {
		defaultConfig := DefaultRedisTaskStatusStoreConfig()
		config = &defaultConfig
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "gomind:learning"
	}
	if config.TTL <= 0 {
		config.TTL = 24 * time.Hour
	}

	s := &RedisTaskStatusStore{
		client: client,
		config: *config,
		logger: &core.NoOpLogger{},
	}
	s.SetLogger(config.Logger)
	return s
}

// SetLogger sets the logger for store operations.
func (s *RedisTaskStatusStore) SetLogger(logger core.Logger) {
	if logger != nil {
		s.logger = core.ComponentLogger(logger, "learning/orchestration")
	}
}

func (s *RedisTaskStatusStore) taskKey(taskID string) string {
	return fmt.Sprintf("%s:task:%s", s.config.KeyPrefix, taskID)
}

// Save writes the task record and refreshes its TTL.
func (s *RedisTaskStatusStore) Save(ctx context.Context, task *core.ProcessingTask) error {
	if task == nil || task.ID == "" {
		return core.NewValidationError("RedisTaskStatusStore.Save", "task ID cannot be empty")
	}

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to serialize task: %w", err)
	}

	if err := s.client.Set(ctx, s.taskKey(task.ID), data, s.config.TTL).Err(); err != nil {
		s.logger.ErrorWithContext(ctx, "Failed to save task status", map[string]interface{}{
			"task_id": task.ID,
			"error":   err.Error(),
		})
		return core.NewExternalServiceError("RedisTaskStatusStore.Save", err)
	}

	s.logger.DebugWithContext(ctx, "Task status saved", map[string]interface{}{
		"task_id": task.ID,
		"status":  string(task.Status),
	})
	return nil
}

// Get retrieves a task record. Missing keys return a not-found error.
func (s *RedisTaskStatusStore) Get(ctx context.Context, taskID string) (*core.ProcessingTask, error) {
	if taskID == "" {
		return nil, core.NewValidationError("RedisTaskStatusStore.Get", "task ID cannot be empty")
	}

	data, err := s.client.Get(ctx, s.taskKey(taskID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, core.NewNotFoundError("RedisTaskStatusStore.Get", "task", taskID)
		}
		s.logger.ErrorWithContext(ctx, "Failed to get task status", map[string]interface{}{
			"task_id": taskID,
			"error":   err.Error(),
		})
		return nil, core.NewExternalServiceError("RedisTaskStatusStore.Get", err)
	}

	var task core.ProcessingTask
	if err := json.Unmarshal([]byte(data), &task); err != nil {
		return nil, fmt.Errorf("failed to deserialize task: %w", err)
	}
	return &task, nil
}
