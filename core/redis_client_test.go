package core

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisClient_Configuration(t *testing.T) {
	ctx := context.Background()

	_, err := NewRedisClient(ctx, RedisClientOptions{})
	assert.ErrorIs(t, err, ErrMissingConfiguration)

	_, err = NewRedisClient(ctx, RedisClientOptions{RedisURL: "http://localhost:6379"})
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
	assert.True(t, IsConfigurationError(err))
}

func TestRedisClient_Key(t *testing.T) {
	r := &RedisClient{namespace: "gomind:learning"}
	assert.Equal(t, "gomind:learning:pattern:p-1", r.Key("pattern", "p-1"))

	bare := &RedisClient{}
	assert.Equal(t, "task:t-1", bare.Key("task", "t-1"))
}

func TestNewRedisClient_Connect(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	client, err := NewRedisClient(ctx, RedisClientOptions{
		RedisURL:  "redis://" + mr.Addr(),
		DB:        -1,
		Namespace: "gomind:learning:test:",
	})
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, "gomind:learning:test", client.GetNamespace())
	assert.Equal(t, 0, client.GetDB())
	assert.NoError(t, client.HealthCheck(ctx))

	require.NoError(t, client.Client().Set(ctx, client.Key("probe"), "1", 0).Err())
	assert.True(t, mr.Exists("gomind:learning:test:probe"))
	assert.NoError(t, client.Client().Del(ctx, client.Key("probe")).Err())
	assert.False(t, mr.Exists("gomind:learning:test:probe"))
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisClient(context.Background(), RedisClientOptions{RedisURL: "redis://" + addr, DB: -1})
	require.Error(t, err)
	assert.True(t, IsExternal(err))
}
