package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	statusCompleted = "COMPLETED"
	// Bitmarket redelivers for at most a day, so completed markers do not
	// need to outlive that.
	completedExpiry = 24 * time.Hour
)

// CompletionCache is a fast path for spotting redelivered "completed"
// callbacks before touching the database. It is advisory only: the guarded
// status update in the order repo is what actually enforces at-most-once.
type CompletionCache interface {
	AlreadyCompleted(ctx context.Context, orderID string) (bool, error)
	MarkCompleted(ctx context.Context, orderID string) error
}

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr string, password string, db int) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisStore{
		client: rdb,
	}
}

func (r *RedisStore) AlreadyCompleted(ctx context.Context, orderID string) (bool, error) {
	status, err := r.client.Get(ctx, key(orderID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis GET error: %w", err)
	}
	return status == statusCompleted, nil
}

func (r *RedisStore) MarkCompleted(ctx context.Context, orderID string) error {
	return r.client.Set(ctx, key(orderID), statusCompleted, completedExpiry).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func key(orderID string) string {
	return fmt.Sprintf("bitmarket:done:%s", orderID)
}
