package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisPrefix = "calcomb:"

// RedisKV keeps the durable tier and handoff queue in Redis
type RedisKV struct {
	client *redis.Client
}

func NewRedisKV(ctx context.Context, addr string) (*RedisKV, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	slog.Info("Connected to Redis", "addr", addr)

	return &RedisKV{client: client}, nil
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, redisPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return val, true, nil
}

func (r *RedisKV) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, redisPrefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

func (r *RedisKV) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, redisPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

func (r *RedisKV) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, redisPrefix+prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val()[len(redisPrefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan keys with prefix %s: %w", prefix, err)
	}
	return keys, nil
}

func (r *RedisKV) Append(ctx context.Context, list string, value []byte) error {
	if err := r.client.RPush(ctx, redisPrefix+list, value).Err(); err != nil {
		return fmt.Errorf("failed to append to list %s: %w", list, err)
	}
	return nil
}

func (r *RedisKV) List(ctx context.Context, list string) ([][]byte, error) {
	vals, err := r.client.LRange(ctx, redisPrefix+list, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read list %s: %w", list, err)
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

func (r *RedisKV) TrimFront(ctx context.Context, list string, n int) error {
	if n <= 0 {
		return nil
	}
	if err := r.client.LTrim(ctx, redisPrefix+list, int64(n), -1).Err(); err != nil {
		return fmt.Errorf("failed to trim list %s: %w", list, err)
	}
	return nil
}

func (r *RedisKV) Close() error {
	return r.client.Close()
}
