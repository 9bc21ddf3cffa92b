package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis stores each document as a plain string value under prefix+key.
type Redis struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
}

var _ Store = (*Redis)(nil)

// NewRedis wraps an existing client. A zero timeout defaults to 3s.
func NewRedis(client redis.UniversalClient, prefix string, timeout time.Duration) *Redis {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Redis{client: client, prefix: prefix, timeout: timeout}
}

// DialRedis connects to addr and pings it.
func DialRedis(addr, password string, db int, prefix string, timeout time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	s := NewRedis(client, prefix, timeout)

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return s, nil
}

// Client exposes the underlying client for collaborators sharing the
// connection (the redis notifier).
func (r *Redis) Client() redis.UniversalClient { return r.client }

func (r *Redis) key(key string) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}
	return r.prefix + key, nil
}

func (r *Redis) Get(key string) ([]byte, bool, error) {
	k, err := r.key(key)
	if err != nil {
		return nil, false, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	raw, err := r.client.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", k, err)
	}
	return raw, true, nil
}

func (r *Redis) Set(key string, value []byte) error {
	k, err := r.key(key)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.client.Set(ctx, k, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", k, err)
	}
	return nil
}

func (r *Redis) Delete(key string) error {
	k, err := r.key(key)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.client.Del(ctx, k).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", k, err)
	}
	return nil
}

// Close releases the client.
func (r *Redis) Close() error { return r.client.Close() }
