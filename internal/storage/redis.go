package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/claimflow/internal/common"
	redis "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "claimflow"

// RedisOptions configures the Redis-backed store.
type RedisOptions struct {
	Addr      string
	Username  string
	Password  string
	Namespace string
	DB        int
	// TTL bounds how long workflow state survives without writes. Zero keeps it forever.
	TTL time.Duration
}

// RedisStorage implements service.Store on Redis strings.
type RedisStorage struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

// NewRedisStorage connects to Redis and verifies the connection.
func NewRedisStorage(ctx context.Context, opts RedisOptions) (*RedisStorage, error) {
	addr := opts.Addr
	if addr == "" {
		addr = "127.0.0.1:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: opts.Username,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return NewRedisStorageFromClient(client, opts.Namespace, opts.TTL), nil
}

// NewRedisStorageFromClient wraps an existing client.
func NewRedisStorageFromClient(client *redis.Client, namespace string, ttl time.Duration) *RedisStorage {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &RedisStorage{client: client, namespace: namespace, ttl: ttl}
}

func (r *RedisStorage) key(key string) string {
	return fmt.Sprintf("%s:%s:%s", redisKeyPrefix, r.namespace, key)
}

// Get returns the value stored under key.
func (r *RedisStorage) Get(ctx context.Context, key string) ([]byte, error) {
	if err := validateString(key, "key"); err != nil {
		return nil, err
	}

	value, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", common.ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return value, nil
}

// Set stores value under key.
func (r *RedisStorage) Set(ctx context.Context, key string, value []byte) error {
	if err := validateString(key, "key"); err != nil {
		return err
	}
	if value == nil {
		return fmt.Errorf("%w: value", ErrNilParameter)
	}

	if err := r.client.Set(ctx, r.key(key), value, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (r *RedisStorage) Delete(ctx context.Context, key string) error {
	if err := validateString(key, "key"); err != nil {
		return err
	}
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// DeleteAll removes every key inside one MULTI/EXEC block.
func (r *RedisStorage) DeleteAll(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	full := make([]string, 0, len(keys))
	for _, key := range keys {
		if err := validateString(key, "key"); err != nil {
			return err
		}
		full = append(full, r.key(key))
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, full...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}

// Close closes the client.
func (r *RedisStorage) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}
