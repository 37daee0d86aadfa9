package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// DefaultRedisPrefix namespaces keys in a shared Redis.
const DefaultRedisPrefix = "food-access:"

// Redis is a cache shared between processes.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis wraps an existing client. A zero ttl never expires entries.
func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

// NewRedisFromURL connects to a redis:// URL and verifies the connection.
func NewRedisFromURL(ctx context.Context, url, prefix string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, eris.Wrap(err, "cache: parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, eris.Wrap(err, "cache: redis ping")
	}
	return NewRedis(client, prefix, ttl), nil
}

// Get implements Cache.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrapf(err, "cache: redis get %s", key)
	}
	value, err := decode(data)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Set implements Cache.
func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	err := r.client.Set(ctx, r.prefix+key, encode(value), r.ttl).Err()
	return eris.Wrapf(err, "cache: redis set %s", key)
}

// Delete implements Cache.
func (r *Redis) Delete(ctx context.Context, key string) error {
	err := r.client.Del(ctx, r.prefix+key).Err()
	return eris.Wrapf(err, "cache: redis delete %s", key)
}

// Close implements Cache.
func (r *Redis) Close() error {
	return r.client.Close()
}
