package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore owns the Redis connection. Redis holds only delivery
// counters here; the durable state all lives in Postgres.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	s := &RedisStore{client: redis.NewClient(opts)}
	if err := s.client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return s, nil
}

// Metrics returns the delivery counters backed by this connection.
func (s *RedisStore) Metrics() *MetricsStore {
	return NewMetricsStore(s.client)
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
