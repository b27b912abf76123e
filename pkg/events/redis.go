package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zjoart/paystack-settlements/pkg/config"
	"github.com/zjoart/paystack-settlements/pkg/logger"
)

const (
	JobQueue    = "settlement_jobs"
	FailedQueue = "failed_settlement_jobs"
)

var ErrQueueEmpty = errors.New("queue empty")

type RedisClient struct {
	Client *redis.Client
}

func NewRedisClient(cfg config.Config) *RedisClient {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("Failed to parse Redis url", logger.Fields{"error": err.Error(), "url": cfg.RedisURL})
		opt = &redis.Options{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       0,
		}
	}

	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		logger.Error("Failed to connect to Redis", logger.Fields{"error": err.Error(), "url": cfg.RedisURL})
	} else {
		logger.Info("Connected to Redis", logger.Fields{"url": cfg.RedisURL})
	}

	return &RedisClient{Client: rdb}
}

// Dispatch enqueues the job for the worker, which makes RedisClient the
// queued Dispatcher.
func (r *RedisClient) Dispatch(ctx context.Context, job Job) error {
	if job.Timestamp.IsZero() {
		job.Timestamp = time.Now()
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	if err := r.Client.RPush(ctx, JobQueue, data).Err(); err != nil {
		return fmt.Errorf("failed to push job to redis: %w", err)
	}

	return nil
}

// Pop blocks for up to timeout waiting for the next job.
func (r *RedisClient) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	result, err := r.Client.BLPop(ctx, timeout, JobQueue).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrQueueEmpty
	}
	if err != nil {
		return nil, err
	}
	return []byte(result[1]), nil
}

func (r *RedisClient) PushToDLQ(ctx context.Context, data []byte) error {
	if err := r.Client.RPush(ctx, FailedQueue, data).Err(); err != nil {
		return fmt.Errorf("failed to push job to DLQ: %w", err)
	}
	return nil
}

// AcquireLock takes a best-effort lock shared by every replica. The returned
// release func is safe to call when ok is false.
func (r *RedisClient) AcquireLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := fmt.Sprintf("%d", time.Now().UnixNano())
	ok, err := r.Client.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return func() {}, false, err
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if current, err := r.Client.Get(ctx, key).Result(); err == nil && current == token {
			r.Client.Del(ctx, key)
		}
	}
	return release, true, nil
}
