package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisClient is a namespaced connection shared by the Redis-backed
// pattern repository and task status mirror.
type RedisClient struct {
	client    *redis.Client
	dbID      int
	namespace string
	logger    Logger
}

// RedisClientOptions configures the Redis client.
type RedisClientOptions struct {
	RedisURL  string
	DB        int    // -1 keeps the DB from the URL
	Namespace string // key prefix, e.g. "gomind:learning"
	Logger    Logger
}

// NewRedisClient parses the URL, selects the DB and pings the server.
func NewRedisClient(ctx context.Context, opts RedisClientOptions) (*RedisClient, error) {
	if opts.RedisURL == "" {
		return nil, fmt.Errorf("redis URL is required: %w", ErrMissingConfiguration)
	}

	redisOpt, err := redis.ParseURL(opts.RedisURL)
	if err != nil {
		return nil, NewFrameworkError("core.NewRedisClient", "config",
			fmt.Errorf("%w: invalid redis URL: %v", ErrInvalidConfiguration, err))
	}
	if opts.DB >= 0 {
		redisOpt.DB = opts.DB
	}

	logger := ComponentLogger(opts.Logger, "learning/redis")
	client := redis.NewClient(redisOpt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Error("Failed to connect to Redis", map[string]interface{}{
			"error":      err,
			"error_type": fmt.Sprintf("%T", err),
			"db":         redisOpt.DB,
			"namespace":  opts.Namespace,
		})
		_ = client.Close()
		return nil, NewExternalServiceError("core.NewRedisClient", err)
	}

	logger.Info("Redis client connected", map[string]interface{}{
		"db":        redisOpt.DB,
		"namespace": opts.Namespace,
	})

	return &RedisClient{
		client:    client,
		dbID:      redisOpt.DB,
		namespace: strings.TrimSuffix(opts.Namespace, ":"),
		logger:    logger,
	}, nil
}

// Client exposes the underlying go-redis client.
func (r *RedisClient) Client() *redis.Client {
	return r.client
}

// GetDB returns the DB number being used
func (r *RedisClient) GetDB() int {
	return r.dbID
}

// GetNamespace returns the namespace being used
func (r *RedisClient) GetNamespace() string {
	return r.namespace
}

// Key joins parts under the namespace: Key("pattern", id) -> "ns:pattern:id".
func (r *RedisClient) Key(parts ...string) string {
	key := strings.Join(parts, ":")
	if r.namespace != "" {
		return r.namespace + ":" + key
	}
	return key
}

// HealthCheck verifies Redis connectivity
func (r *RedisClient) HealthCheck(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		r.logger.ErrorWithContext(ctx, "Redis health check failed", map[string]interface{}{
			"error":     err,
			"db":        r.dbID,
			"namespace": r.namespace,
		})
		return NewExternalServiceError("RedisClient.HealthCheck", err)
	}
	return nil
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	r.logger.Info("Closing Redis client connection", map[string]interface{}{
		"db":        r.dbID,
		"namespace": r.namespace,
	})
	return r.client.Close()
}
