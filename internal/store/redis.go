package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore owns the connection backing the stream transport.
type RedisStore struct {
	client *redis.Client
}

// NewRedis connects and pings. A poolSize of zero keeps the driver default.
func NewRedis(ctx context.Context, redisURL string, poolSize int) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	if poolSize > 0 {
		opts.PoolSize = poolSize
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Client() *redis.Client {
	return s.client
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// StreamLengths returns the entry count of each stream key in one round trip.
// A missing stream counts as zero.
func (s *RedisStore) StreamLengths(ctx context.Context, keys []string) (map[string]int64, error) {
	pipe := s.client.Pipeline()
	cmds := make(map[string]*redis.IntCmd, len(keys))
	for _, k := range keys {
		cmds[k] = pipe.XLen(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("reading stream lengths: %w", err)
	}

	out := make(map[string]int64, len(keys))
	for k, cmd := range cmds {
		n, err := cmd.Result()
		if err != nil && err != redis.Nil {
			return nil, fmt.Errorf("reading length of %s: %w", k, err)
		}
		out[k] = n
	}
	return out, nil
}
