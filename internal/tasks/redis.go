package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Verify interface compliance
var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)

const redisKeyPrefix = "docqa:task:"

// RedisStore is a Redis-backed Store. Eviction rides on Redis TTLs, so
// results survive process restarts and are shared between processes.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a RedisStore around an existing client.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Put stores the result for id with the configured TTL.
func (s *RedisStore) Put(ctx context.Context, id string, result Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshaling task result: %w", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+id, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("storing task result: %w", err)
	}
	return nil
}

// Get returns the stored result for id.
func (s *RedisStore) Get(ctx context.Context, id string) (Result, bool, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, fmt.Errorf("reading task result: %w", err)
	}
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return Result{}, false, fmt.Errorf("unmarshaling task result: %w", err)
	}
	return result, true, nil
}
