package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ideaforge/vote-engine/voting"
)

// =============================================================================
// REDIS STORE - Shared session cache for multi-instance deployments
// =============================================================================

const redisKeyPrefix = "session:"

type Redis struct {
	client *redis.Client
}

// NewRedis connects to the Redis instance behind addr (a redis:// URL)
// and verifies the connection with a ping.
func NewRedis(ctx context.Context, addr string) (*Redis, error) {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		return nil, fmt.Errorf("error parsing redis URL: %w", err)
	}

	c := redis.NewClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("error connecting to redis: %w", err)
	}

	return &Redis{client: c}, nil
}

func (r *Redis) Create(ctx context.Context, token string, userID voting.UserID, ttl time.Duration) error {
	return r.client.Set(ctx, redisKeyPrefix+token, string(userID), ttl).Err()
}

func (r *Redis) Lookup(ctx context.Context, token string) (voting.UserID, error) {
	val, err := r.client.Get(ctx, redisKeyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return voting.UserID(val), nil
}

func (r *Redis) Delete(ctx context.Context, token string) error {
	return r.client.Del(ctx, redisKeyPrefix+token).Err()
}

// Close releases the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
