package orchestration

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/itsneelabh/gomind-learning/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis starts an in-process miniredis and returns a client for it.
func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestRedisTaskStatusStore_SaveGet(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewRedisTaskStatusStore(client, &RedisTaskStatusStoreConfig{KeyPrefix: "gomind:learning:test", TTL: time.Minute})
	ctx := context.Background()

	started := time.Now().Truncate(time.Millisecond)
	task := &core.ProcessingTask{
		ID:         "task-1",
		Type:       "analyze_conversation",
		Priority:   core.PriorityHigh,
		Data:       map[string]interface{}{"conversation_id": "conv-1"},
		Status:     core.TaskStatusProcessing,
		MaxRetries: 3,
		CreatedAt:  started,
		StartedAt:  &started,
	}
	require.NoError(t, store.Save(ctx, task))

	got, err := store.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.Type, got.Type)
	assert.Equal(t, task.Priority, got.Priority)
	assert.Equal(t, "conv-1", got.Data["conversation_id"])
	require.NotNil(t, got.StartedAt)
	assert.True(t, started.Equal(*got.StartedAt))

	assert.Equal(t, time.Minute, mr.TTL(store.taskKey(task.ID)))

	mr.FastForward(2 * time.Minute)
	_, err = store.Get(ctx, task.ID)
	assert.True(t, core.IsNotFound(err), "records expire with the TTL")

	_, err = store.Get(ctx, "missing")
	assert.True(t, core.IsNotFound(err))
}

func TestRedisTaskStatusStore_Validation(t *testing.T) {
	store := NewRedisTaskStatusStore(redis.NewClient(&redis.Options{Addr: "localhost:0"}), nil)
	defer store.client.Close()

	assert.True(t, core.IsValidation(store.Save(context.Background(), &core.ProcessingTask{})))
	_, err := store.Get(context.Background(), "")
	assert.True(t, core.IsValidation(err))
	assert.Equal(t, "gomind:learning:task:abc", store.taskKey("abc"))
}
