package repositories

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisKVStore stores each profile value under "profile:<scope>:<key>".
type RedisKVStore struct {
	redis *redis.Client
}

func NewRedisKVStore(client *redis.Client) *RedisKVStore {
	return &RedisKVStore{redis: client}
}

func (r *RedisKVStore) Get(ctx context.Context, scope, key string) (string, error) {
	v, err := r.redis.Get(ctx, r.key(scope, key)).Result()
	if err == redis.Nil {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, nil
}

func (r *RedisKVStore) Set(ctx context.Context, scope, key, value string) error {
	if err := r.redis.Set(ctx, r.key(scope, key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *RedisKVStore) Ping(ctx context.Context) error {
	return r.redis.Ping(ctx).Err()
}

func (r *RedisKVStore) key(scope, key string) string {
	return "profile:" + scope + ":" + key
}
