// Package lock provides a Redis-backed core.Locker so that maintenance jobs
// run by several server processes do not overlap.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/poflow/internal/core"
)

// RedisLocker obtains non-blocking leases through redislock.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
}

// NewRedisLocker wraps rdb. ttl is used when Obtain is called without one.
func NewRedisLocker(rdb redis.UniversalClient, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: redislock.New(rdb), ttl: ttl}
}

// Open parses a redis:// URL, pings the server and returns the client with a
// locker over it. Callers close the client.
func Open(ctx context.Context, url string, ttl time.Duration) (*redis.Client, *RedisLocker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, NewRedisLocker(rdb, ttl), nil
}

// Obtain takes key for ttl. A key held by another process fails with
// core.ErrLockHeld.
func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	if ttl <= 0 {
		ttl = l.ttl
	}
	lk, err := l.client.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, core.ErrLockHeld
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	return func(ctx context.Context) error {
		err := lk.Release(ctx)
		if errors.Is(err, redislock.ErrLockNotHeld) {
			// Lease expired before release.
			return nil
		}
		return err
	}, nil
}

var _ core.Locker = (*RedisLocker)(nil)
