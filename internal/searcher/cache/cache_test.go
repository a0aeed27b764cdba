package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/searcher/ranker"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCache(t *testing.T) (*QueryCache, *MemoryBackend) {
	t.Helper()
	backend, err := NewMemoryBackend(16)
	require.NoError(t, err)
	return New(backend, nil), backend
}

func result(ids ...int64) *executor.SearchResult {
	r := &executor.SearchResult{Query: "q", Hits: []executor.Hit{}, TermStats: map[string]int{}}
	for _, id := range ids {
		r.Hits = append(r.Hits, executor.Hit{Document: store.Document{ID: id, Fields: map[string]string{}}, Score: 1})
	}
	r.TotalHits = len(ids)
	return r
}

func v(version uint64) indexer.State {
	return indexer.State{Version: version}
}

func TestGetOrComputeCachesResult(t *testing.T) {
	c, _ := newCache(t)
	ctx := context.Background()
	k := Key{Query: "India", Limit: 10, State: v(1)}
	calls := 0
	compute := func() (*executor.SearchResult, error) {
		calls++
		return result(1), nil
	}

	got, hit, err := c.GetOrCompute(ctx, k, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, int64(1), got.Hits[0].Document.ID)

	got, hit, err = c.GetOrCompute(ctx, k, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, int64(1), got.Hits[0].Document.ID)
	assert.Equal(t, 1, calls)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestKeyDependsOnEveryComponent(t *testing.T) {
	base := Key{Query: "India", Field: "name", Limit: 10, Order: ranker.OrderRelevance, State: v(3)}
	variants := []Key{
		{Query: "Indigo", Field: "name", Limit: 10, State: v(3)},
		{Query: "India", Field: "destination", Limit: 10, State: v(3)},
		{Query: "India", Field: "name", Limit: 11, State: v(3)},
		{Query: "India", Field: "name", Limit: 10, Order: ranker.OrderNatural, State: v(3)},
		{Query: "India", Field: "name", Limit: 10, State: v(4)},
		{Query: "India", Field: "name", Limit: 10, State: indexer.State{Generation: 1, Version: 3}},
		{Query: "india", Field: "name", Limit: 10, State: v(3)},
		{Query: "India", Field: "name", Limit: 10, State: indexer.State{CommitID: uuid.New(), Version: 3}},
		{Query: "India", Field: "name", Limit: 10, State: indexer.State{Session: uuid.New(), Version: 3}},
	}
	for _, v := range variants {
		assert.NotEqual(t, buildKey(base), buildKey(v), "%+v", v)
	}
	assert.Equal(t, buildKey(base), buildKey(Key{Query: "  India ", Field: "name", Limit: 10, State: v(3)}))
}

func TestNewVersionMisses(t *testing.T) {
	c, _ := newCache(t)
	ctx := context.Background()
	c.Set(ctx, Key{Query: "India", State: v(1)}, result(1))

	_, ok := c.Get(ctx, Key{Query: "India", State: v(2)})
	assert.False(t, ok)
	_, ok = c.Get(ctx, Key{Query: "India", State: v(1)})
	assert.True(t, ok)
}

func TestComputeErrorIsNotCached(t *testing.T) {
	c, backend := newCache(t)
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), Key{Query: "x"}, func() (*executor.SearchResult, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, backend.Len())
}

func TestConcurrentMissesShareComputation(t *testing.T) {
	c, _ := newCache(t)
	var calls atomic.Int32
	release := make(chan struct{})
	compute := func() (*executor.SearchResult, error) {
		calls.Add(1)
		<-release
		return result(5), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, _, err := c.GetOrCompute(context.Background(), Key{Query: "Lufthansa"}, compute)
			assert.NoError(t, err)
			assert.Equal(t, int64(5), got.Hits[0].Document.ID)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, calls.Load(), int32(8))
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestInvalidate(t *testing.T) {
	c, backend := newCache(t)
	ctx := context.Background()
	c.Set(ctx, Key{Query: "a"}, result(1))
	c.Set(ctx, Key{Query: "b"}, result(2))
	require.Equal(t, 2, backend.Len())

	require.NoError(t, c.Invalidate(ctx))
	assert.Equal(t, 0, backend.Len())
}

func TestLRUEvicts(t *testing.T) {
	backend, err := NewMemoryBackend(2)
	require.NoError(t, err)
	c := New(backend, nil)
	ctx := context.Background()
	c.Set(ctx, Key{Query: "a"}, result(1))
	c.Set(ctx, Key{Query: "b"}, result(2))
	c.Set(ctx, Key{Query: "c"}, result(3))

	_, ok := c.Get(ctx, Key{Query: "a"})
	assert.False(t, ok)
	_, ok = c.Get(ctx, Key{Query: "c"})
	assert.True(t, ok)
}
