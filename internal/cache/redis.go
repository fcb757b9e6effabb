package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/bobarin/imagetiming/internal/models"
)

// RedisHashKey is the hash holding every cached allocation.
const RedisHashKey = "imagetiming:allocations"

// RedisStore shares allocations between workers through a Redis hash.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]models.Assignment, bool, error) {
	raw, err := s.client.HGet(ctx, RedisHashKey, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached allocation: %w", err)
	}

	var a []models.Assignment
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached allocation: %w", err)
	}
	return a, true, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, assignments []models.Assignment) error {
	if assignments == nil {
		assignments = []models.Assignment{}
	}
	data, err := json.Marshal(assignments)
	if err != nil {
		return fmt.Errorf("failed to encode allocation: %w", err)
	}
	if err := s.client.HSet(ctx, RedisHashKey, key, data).Err(); err != nil {
		return fmt.Errorf("failed to store allocation: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, RedisHashKey).Err(); err != nil {
		return fmt.Errorf("failed to clear allocation cache: %w", err)
	}
	return nil
}
