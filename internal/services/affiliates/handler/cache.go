package handler

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

var errCacheMiss = errors.New("cache miss")

// Cache is the slice of redis the affiliate handler relies on. Get returns
// errCacheMiss when the key does not exist.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

type redisCache struct {
	client *redis.Client
}

// NewRedisCache wraps client. A nil client disables caching.
func NewRedisCache(client *redis.Client) Cache {
	if client == nil {
		return nopCache{}
	}
	return &redisCache{client: client}
}

func (c *redisCache) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", errCacheMiss
	}
	return val, err
}

func (c *redisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *redisCache) Del(ctx context.Context, keys ...string) error {
	return c.client.Del(ctx, keys...).Err()
}

type nopCache struct{}

func (nopCache) Get(context.Context, string) (string, error)                   { return "", errCacheMiss }
func (nopCache) Set(context.Context, string, interface{}, time.Duration) error { return nil }
func (nopCache) Del(context.Context, ...string) error                          { return nil }
