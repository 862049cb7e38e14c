package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueueConfig holds redis queue settings.
type RedisQueueConfig struct {
	Address  string
	Password string
	DB       int
	Key      string
	// BlockTimeout bounds each BRPOP so shutdown and context
	// cancellation are observed promptly.
	BlockTimeout time.Duration
}

// RedisQueue is a Queue backed by a redis list (LPUSH/BRPOP).
type RedisQueue struct {
	client   redis.Cmdable
	queueKey string
	block    time.Duration
	closed   atomic.Bool
}

// NewRedisQueue creates a redis-backed work queue.
func NewRedisQueue(cfg RedisQueueConfig) (*RedisQueue, error) {
	if cfg.Key == "" {
		cfg.Key = "wayfare:work"
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("%w: redis ping: %v", ErrHubUnavailable, err)
	}
	return &RedisQueue{
		client:   client,
		queueKey: cfg.Key,
		block:    cfg.BlockTimeout,
	}, nil
}

// Enqueue pushes one JSON-encoded work item.
func (q *RedisQueue) Enqueue(ctx context.Context, item WorkItem) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	data, err := json.Marshal(item)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.queueKey, data).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrHubUnavailable, err)
	}
	return nil
}

// Dequeue blocks on BRPOP until an item arrives.
func (q *RedisQueue) Dequeue(ctx context.Context) (WorkItem, error) {
	for {
		if q.closed.Load() {
			return WorkItem{}, ErrQueueClosed
		}
		result, err := q.client.BRPop(ctx, q.block, q.queueKey).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return WorkItem{}, ctx.Err()
			}
			return WorkItem{}, fmt.Errorf("%w: %v", ErrHubUnavailable, err)
		}
		if len(result) != 2 {
			continue
		}
		var item WorkItem
		if err := json.Unmarshal([]byte(result[1]), &item); err != nil {
			// Skip malformed payloads rather than wedging the worker.
			continue
		}
		return item, nil
	}
}

// Close marks the queue closed.
func (q *RedisQueue) Close() error {
	q.closed.Store(true)
	if closer, ok := q.client.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
