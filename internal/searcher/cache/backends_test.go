package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/flight-search/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	mu    sync.Mutex
	data  map[string][]byte
	err   error
	calls int
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string][]byte)}
}

func (f *fakeRedis) Get(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, false, f.err
	}
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeRedis) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.data[key] = value
	return nil
}

func (f *fakeRedis) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var n int64
	for k := range f.data {
		if strings.HasPrefix(k, prefix) {
			delete(f.data, k)
			n++
		}
	}
	return n, nil
}

func TestRedisBackendRoundTrip(t *testing.T) {
	store := newFakeRedis()
	c := New(NewRedisBackend(store, time.Minute), nil)
	ctx := context.Background()
	k := Key{Query: "India", Limit: 10}

	c.Set(ctx, k, result(1, 4))
	got, ok := c.Get(ctx, k)
	require.True(t, ok)
	assert.Len(t, got.Hits, 2)

	require.NoError(t, c.Invalidate(ctx))
	_, ok = c.Get(ctx, k)
	assert.False(t, ok)
}

func TestRedisBackendStopsCallingAFailingServer(t *testing.T) {
	store := newFakeRedis()
	store.err = errors.New("connection refused")
	backend := NewRedisBackend(store, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := backend.Get(ctx, "search:x")
		require.Error(t, err)
	}
	assert.Equal(t, resilience.StateOpen, backend.State())

	calls := store.calls
	v, found, err := backend.Get(ctx, "search:x")
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, v)
	assert.NoError(t, backend.Set(ctx, "search:x", []byte("{}")))
	assert.Equal(t, calls, store.calls)
}

func TestQueryCacheComputesWhenRedisFails(t *testing.T) {
	store := newFakeRedis()
	store.err = errors.New("connection refused")
	c := New(NewRedisBackend(store, time.Minute), nil)

	res, hit, err := c.GetOrCompute(context.Background(), Key{Query: "India"}, func() (*executor.SearchResult, error) {
		return result(1), nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Len(t, res.Hits, 1)
}
