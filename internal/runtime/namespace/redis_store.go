package namespace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each variable under its own key.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// OpenRedisStore connects to the redis:// URL in dsn and checks the
// connection.
func OpenRedisStore(ctx context.Context, dsn, namespace string) (*RedisStore, error) {
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisStore(client, namespace), nil
}

// NewRedisStore wraps a client. Close closes it.
func NewRedisStore(client *redis.Client, namespace string) *RedisStore {
	return &RedisStore{client: client, prefix: "probeflow:" + namespace + ":"}
}

// Key returns the redis key holding variable name.
func (s *RedisStore) Key(name string) string {
	return s.prefix + name
}

func (s *RedisStore) Get(ctx context.Context, name string) (json.RawMessage, bool, error) {
	value, err := s.client.Get(ctx, s.Key(name)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("get variable %q: %w", name, err)
	}
	return json.RawMessage(value), true, nil
}

// Set uses SET ... GET so the swap is atomic on the server.
func (s *RedisStore) Set(ctx context.Context, name string, value json.RawMessage) (json.RawMessage, error) {
	previous, err := s.client.SetArgs(ctx, s.Key(name), string(value), redis.SetArgs{Get: true}).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("set variable %q: %w", name, err)
	}
	return json.RawMessage(previous), nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
