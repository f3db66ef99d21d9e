// Package lock serializes work on a single payroll record across workers.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrNotObtained is returned when another holder owns the key.
var ErrNotObtained = errors.New("lock not obtained")

type Locker interface {
	// Acquire blocks until the key is held, the context ends, or the holder gives up.
	// The returned func releases the key.
	Acquire(ctx context.Context, key string) (func(), error)
}

// Memory is an in-process Locker keyed by record id.
type Memory struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

func NewMemory() *Memory {
	return &Memory{held: make(map[string]chan struct{})}
}

func (m *Memory) Acquire(ctx context.Context, key string) (func(), error) {
	for {
		m.mu.Lock()
		wait, busy := m.held[key]
		if !busy {
			done := make(chan struct{})
			m.held[key] = done
			m.mu.Unlock()
			var once sync.Once
			return func() {
				once.Do(func() {
					m.mu.Lock()
					delete(m.held, key)
					m.mu.Unlock()
					close(done)
				})
			}, nil
		}
		m.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		}
	}
}

// Redis holds keys in Redis so several worker processes can share one store.
// A held key is refreshed every half TTL until it is released.
type Redis struct {
	client *redislock.Client
	prefix string
	ttl    time.Duration
	retry  redislock.RetryStrategy
}

func NewRedis(rdb redis.UniversalClient, prefix string, ttl time.Duration) *Redis {
	return &Redis{
		client: redislock.New(rdb),
		prefix: prefix,
		ttl:    ttl,
		retry:  redislock.LimitRetry(redislock.ExponentialBackoff(10*time.Millisecond, 250*time.Millisecond), 40),
	}
}

func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	l, err := r.client.Obtain(ctx, r.prefix+key, r.ttl, &redislock.Options{RetryStrategy: r.retry})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrNotObtained
	}
	if err != nil {
		return nil, err
	}
	stop := make(chan struct{})
	go r.keepAlive(l, stop)
	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			_ = l.Release(context.WithoutCancel(ctx))
		})
	}, nil
}

func (r *Redis) keepAlive(l *redislock.Lock, stop <-chan struct{}) {
	interval := r.ttl / 2
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := l.Refresh(context.Background(), r.ttl, nil); err != nil {
				return
			}
		}
	}
}
