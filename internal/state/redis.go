package state

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a durable store backed by a prefixed Redis keyspace, for headless
// deployments where several workers share one client identity.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis connects to redisURL and verifies the connection.
func NewRedis(redisURL string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Redis{client: client, prefix: "hmq:"}, nil
}

// NewRedisWithClient creates a store from an existing Redis client.
func NewRedisWithClient(client *redis.Client) *Redis {
	return &Redis{client: client, prefix: "hmq:"}
}

func (s *Redis) key(key string) string {
	return s.prefix + key
}

func (s *Redis) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, s.key(key)).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

func (s *Redis) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *Redis) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Clear removes every key under the store's prefix.
func (s *Redis) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("clear keys: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *Redis) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable.
func (s *Redis) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
