package state

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// StateStore is a minimal interface for ephemeral state (cached records, counters).
// Get returns (nil, nil) when the key is absent.
type StateStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// RedisStore keeps state in Redis with a fixed TTL per key.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration // zero means no expiry
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(opts RedisOptions) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewRedisStoreWithClient(client, opts.Prefix, opts.TTL)
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	return s.client.Set(ctx, s.prefix+key, value, s.ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

type noopStore struct{}

// NewNoopStore returns a store that remembers nothing.
func NewNoopStore() StateStore { return &noopStore{} }

func (n *noopStore) Get(ctx context.Context, key string) ([]byte, error)     { return nil, nil }
func (n *noopStore) Set(ctx context.Context, key string, value []byte) error { return nil }
func (n *noopStore) Delete(ctx context.Context, key string) error            { return nil }
func (n *noopStore) Close() error                                            { return nil }
