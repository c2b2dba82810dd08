package cron

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultLockTTL = 4 * time.Minute

// ErrLockLost is returned by Refresh when another worker took over the cycle lock.
var ErrLockLost = errors.New("cron lock lost")

// Lock makes sure only one cron worker runs the maintenance cycle at a time.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Refresh(ctx context.Context) error
	Release(ctx context.Context) error
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
}

// RedisLock holds the cycle lock as a Redis key whose value names the owning
// worker, so a worker only ever extends or deletes its own lock.
type RedisLock struct {
	client lockStore
	key    string
	ttl    time.Duration
	worker string
	token  string
}

// NewRedisLock builds the cycle lock on key. A non-positive ttl uses the default.
func NewRedisLock(client lockStore, key string, ttl time.Duration) (*RedisLock, error) {
	if client == nil {
		return nil, errors.New("redis client required for cron lock")
	}
	if key == "" {
		return nil, errors.New("cron lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	worker, err := os.Hostname()
	if err != nil || worker == "" {
		worker = "cron-worker"
	}
	return &RedisLock{client: client, key: key, ttl: ttl, worker: worker}, nil
}

// Acquire takes the lock for one cycle.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	token := fmt.Sprintf("%s/%d/%s", l.worker, os.Getpid(), uuid.NewString())
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire cron lock: %w", err)
	}
	if ok {
		l.token = token
	}
	return ok, nil
}

// Refresh extends the lock between jobs so a long cycle keeps it.
func (l *RedisLock) Refresh(ctx context.Context) error {
	owned, err := l.owned(ctx)
	if err != nil {
		return err
	}
	if !owned {
		l.token = ""
		return ErrLockLost
	}
	if _, err := l.client.Expire(ctx, l.key, l.ttl); err != nil {
		return fmt.Errorf("extend cron lock: %w", err)
	}
	return nil
}

// Release deletes the lock if this worker still owns it.
func (l *RedisLock) Release(ctx context.Context) error {
	owned, err := l.owned(ctx)
	if err != nil {
		return err
	}
	if owned {
		if err := l.client.Del(ctx, l.key); err != nil {
			return fmt.Errorf("delete cron lock: %w", err)
		}
	}
	l.token = ""
	return nil
}

// Held reports whether the last Acquire succeeded and has not been released.
func (l *RedisLock) Held() bool {
	return l.token != ""
}

func (l *RedisLock) owned(ctx context.Context) (bool, error) {
	if l.token == "" {
		return false, nil
	}
	value, err := l.client.Get(ctx, l.key)
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read cron lock owner: %w", err)
	}
	return value == l.token, nil
}
