package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/gomodule/redigo/redis"
	"github.com/memes/primegen"
)

// The default Redis pub/sub channel for results.
const DefaultRedisChannel = "primegen"

// RedisSink publishes results to a Redis pub/sub channel. Delivery is fire and
// forget; results are not stored.
type RedisSink struct {
	*redis.Pool
	logger  logr.Logger
	channel string
}

type RedisSinkOption func(*RedisSink)

// Create a new RedisSink that publishes to the Redis server at endpoint.
func NewRedisSink(endpoint string, options ...RedisSinkOption) *RedisSink {
	sink := &RedisSink{
		Pool: &redis.Pool{
			MaxIdle:     1,
			IdleTimeout: 240 * time.Second,
			DialContext: func(ctx context.Context) (redis.Conn, error) {
				return redis.DialContext(ctx, "tcp", endpoint)
			},
		},
		logger:  logr.Discard(),
		channel: DefaultRedisChannel,
	}
	for _, option := range options {
		option(sink)
	}
	return sink
}

// Use the supplied logger.
func WithRedisLogger(logger logr.Logger) RedisSinkOption {
	return func(s *RedisSink) {
		s.logger = logger
	}
}

// Publish to channel instead of DefaultRedisChannel.
func WithRedisChannel(channel string) RedisSinkOption {
	return func(s *RedisSink) {
		if channel != "" {
			s.channel = channel
		}
	}
}

// Channel returns the pub/sub channel name.
func (s *RedisSink) Channel() string {
	return s.channel
}

func (s *RedisSink) Publish(ctx context.Context, result primegen.PrimeResult) error {
	l := s.logger.V(2).WithValues("channel", s.channel, "index", result.Index)
	l.Info("Publish: enter")
	body, err := marshal(result)
	if err != nil {
		return err
	}
	conn, err := s.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to get Redis connection: %w", err)
	}
	defer conn.Close()
	receivers, err := redis.Int(conn.Do("PUBLISH", s.channel, body))
	if err != nil {
		return fmt.Errorf("failed to publish result %d to %s: %w", result.Index, s.channel, err)
	}
	l.Info("Publish: exit", "receivers", receivers)
	return nil
}

func (s *RedisSink) Close() error {
	if err := s.Pool.Close(); err != nil {
		return fmt.Errorf("failed to close Redis pool: %w", err)
	}
	return nil
}
