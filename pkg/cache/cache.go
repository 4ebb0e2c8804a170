// Package cache defines a common interface for cache implementations that can
// be used by PrimeServer to remember primality verdicts.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/gomodule/redigo/redis"
)

// The default prefix prepended to every key written to Redis.
const DefaultKeyPrefix = "primegen:"

// Cache defines an interface for a cache implementation that can be used to
// store the results of a verification for subsequent lookup requests.
type Cache interface {
	// Return the string that was set for key (or "" if unset) and an Error
	// if the implementation failed.
	// NOTE: a cache miss *should not* return an error.
	GetValue(ctx context.Context, key string) (string, error)
	// Store the value string with the provided key, returning an error if
	// the implementation failed.
	SetValue(ctx context.Context, key string, value string) error
}

// NoopCache implements Cache interface without any real cacheing.
type NoopCache struct{}

// Always returns an empty string and no error for every key.
func (n *NoopCache) GetValue(_ context.Context, _ string) (string, error) {
	return "", nil
}

// Ignores the value and returns nil error.
func (n *NoopCache) SetValue(_ context.Context, _ string, _ string) error {
	return nil
}

// Creates a no-operation Cache implementation that satisfies the interface
// requirements without performing any real caching. All values are silently
// dropped by SetValue and calls to GetValue always return an empty string.
func NewNoopCache() *NoopCache {
	return &NoopCache{}
}

// RedisCache implements Cache interface backed by a Redis store.
type RedisCache struct {
	*redis.Pool
	logger     logr.Logger
	keyPrefix  string
	expiration time.Duration
}

type RedisCacheOption func(*RedisCache)

// Return a new Cache implementation using Redis at endpoint.
func NewRedisCache(_ context.Context, endpoint string, options ...RedisCacheOption) *RedisCache {
	cache := &RedisCache{
		Pool: &redis.Pool{
			MaxIdle:     3,
			IdleTimeout: 240 * time.Second,
			DialContext: func(ctx context.Context) (redis.Conn, error) {
				return redis.DialContext(ctx, "tcp", endpoint)
			},
		},
		logger:    logr.Discard(),
		keyPrefix: DefaultKeyPrefix,
	}
	for _, option := range options {
		option(cache)
	}
	return cache
}

// Use the supplied logger.
func WithLogger(logger logr.Logger) RedisCacheOption {
	return func(r *RedisCache) {
		r.logger = logger
	}
}

// Prepend prefix to every key; the default is DefaultKeyPrefix.
func WithKeyPrefix(prefix string) RedisCacheOption {
	return func(r *RedisCache) {
		r.keyPrefix = prefix
	}
}

// Expire cached values after the duration; zero, the default, keeps values
// until Redis evicts them.
func WithExpiration(expiration time.Duration) RedisCacheOption {
	return func(r *RedisCache) {
		if expiration >= 0 {
			r.expiration = expiration
		}
	}
}

// Returns the string value stored in Redis under key, if present, or an empty string.
func (r *RedisCache) GetValue(ctx context.Context, key string) (string, error) {
	l := r.logger.V(2).WithValues("key", key)
	l.Info("GetValue: enter")
	conn, err := r.GetContext(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get Redis connection: %w", err)
	}
	defer conn.Close()

	value, err := redis.String(conn.Do("GET", r.keyPrefix+key))
	if errors.Is(err, redis.ErrNil) {
		// A cache miss is *NOT* an error to propagate
		l.Info("Value is not cached")
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %s from Redis: %w", key, err)
	}
	l.Info("GetValue: exit", "value", value)
	return value, nil
}

// Store the string key:value pair in Redis.
func (r *RedisCache) SetValue(ctx context.Context, key string, value string) error {
	l := r.logger.V(2).WithValues("key", key, "value", value)
	l.Info("SetValue: enter")
	conn, err := r.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to get Redis connection: %w", err)
	}
	defer conn.Close()

	args := redis.Args{}.Add(r.keyPrefix+key, value)
	if r.expiration > 0 {
		args = args.Add("PX", r.expiration.Milliseconds())
	}
	if _, err := conn.Do("SET", args...); err != nil {
		return fmt.Errorf("failed to set %s in Redis: %w", key, err)
	}
	return nil
}
