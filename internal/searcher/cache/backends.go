package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/flight-search/pkg/resilience"
	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoryBackend is an in-process LRU.
type MemoryBackend struct {
	lru *lru.Cache[string, []byte]
}

func NewMemoryBackend(size int) (*MemoryBackend, error) {
	c, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("creating lru cache: %w", err)
	}
	return &MemoryBackend{lru: c}, nil
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.lru.Get(key)
	return v, ok, nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, value []byte) error {
	m.lru.Add(key, value)
	return nil
}

func (m *MemoryBackend) Purge(context.Context) error {
	m.lru.Purge()
	return nil
}

func (m *MemoryBackend) Len() int {
	return m.lru.Len()
}

// RedisStore is the subset of the Redis client the backend uses.
type RedisStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// redisOpTimeout bounds every cache round trip; a slow cache is a miss.
const redisOpTimeout = 100 * time.Millisecond

// RedisBackend shares results between processes that serve the same index.
// Calls go through a circuit breaker: while Redis is failing, lookups miss
// and stores are skipped without touching the network.
type RedisBackend struct {
	client  RedisStore
	ttl     time.Duration
	breaker *resilience.Breaker
}

func NewRedisBackend(client RedisStore, ttl time.Duration) *RedisBackend {
	return &RedisBackend{
		client:  client,
		ttl:     ttl,
		breaker: resilience.NewBreaker("redis-cache", resilience.BreakerConfig{FailureThreshold: 3, Cooldown: 10 * time.Second}),
	}
}

func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	var found bool
	err := r.breaker.Do(func() error {
		ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
		defer cancel()
		var err error
		value, found, err = r.client.Get(ctx, key)
		return err
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, false, nil
	}
	return value, found, err
}

func (r *RedisBackend) Set(ctx context.Context, key string, value []byte) error {
	err := r.breaker.Do(func() error {
		ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
		defer cancel()
		return r.client.Set(ctx, key, value, r.ttl)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil
	}
	return err
}

// Purge is not guarded by the breaker: a skipped purge would leave stale
// entries behind.
func (r *RedisBackend) Purge(ctx context.Context) error {
	_, err := r.client.FlushByPattern(ctx, keyPrefix+"*")
	return err
}

func (r *RedisBackend) State() resilience.State {
	return r.breaker.State()
}
