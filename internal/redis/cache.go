package redisclient

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by Get when the key does not exist.
var ErrCacheMiss = errors.New("cache miss")

// Cache stores JSON values under a common key prefix.
type Cache struct {
	redis  *redis.Client
	prefix string
}

func NewCache(client *redis.Client, prefix string) *Cache {
	return &Cache{
		redis:  client,
		prefix: prefix,
	}
}

func (c *Cache) Get(ctx context.Context, key string, dest any) error {
	data, err := c.redis.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return errors.Wrap(err, "failed to get from cache")
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return errors.Wrap(err, "failed to unmarshal cached data")
	}
	return nil
}

func (c *Cache) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "failed to marshal data for cache")
	}

	if err := c.redis.Set(ctx, c.prefix+key, data, expiration).Err(); err != nil {
		return errors.Wrap(err, "failed to set cache")
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.redis.Del(ctx, c.prefix+key).Err(); err != nil {
		return errors.Wrap(err, "failed to delete from cache")
	}
	return nil
}

// IsMiss reports whether err is a cache miss.
func IsMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}
