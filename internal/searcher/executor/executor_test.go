package executor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/flight-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/flight-search/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	engine   *indexer.Engine
	parser   *parser.Parser
	executor *Executor
}

func newFixture(t *testing.T, records ...schema.Record) *fixture {
	t.Helper()
	analyzer := tokenizer.New(true)
	s := schema.Flights()
	engine, err := indexer.Open(context.Background(), config.IndexConfig{
		DataDir:        t.TempDir(),
		LockRetries:    1,
		LockRetryDelay: time.Millisecond,
	}, analyzer, s, nil)
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	require.NoError(t, engine.UpsertAll(context.Background(), records))

	ex, err := New(engine, config.Default().Search)
	require.NoError(t, err)
	return &fixture{engine: engine, parser: parser.New(analyzer, s), executor: ex}
}

func (f *fixture) search(t *testing.T, raw, scope string, opts Options) *SearchResult {
	t.Helper()
	q, err := f.parser.Parse(raw, scope)
	require.NoError(t, err)
	res, err := f.executor.Execute(context.Background(), q, opts)
	require.NoError(t, err)
	return res
}

func hitIDs(res *SearchResult) []int64 {
	out := make([]int64, len(res.Hits))
	for i, h := range res.Hits {
		out[i] = h.Document.ID
	}
	return out
}

func flight(id int64, name, destination string) schema.Record {
	return schema.Record{ID: id, Fields: map[string]string{"name": name, "destination": destination}}
}

func scenario() []schema.Record {
	return []schema.Record{
		flight(1, "Air India", "Serbia"),
		flight(2, "Jet Airways", "Russia"),
		flight(3, "Indigo", "USA"),
	}
}

func TestIndiaDoesNotMatchIndigo(t *testing.T) {
	f := newFixture(t, scenario()...)
	res := f.search(t, "India", "", Options{})
	assert.Equal(t, []int64{1}, hitIDs(res))
	assert.Equal(t, "Air India", res.Hits[0].Document.Fields["name"])
}

func TestPrefixWildcardMatchesBoth(t *testing.T) {
	f := newFixture(t, scenario()...)
	assert.Equal(t, []int64{1, 3}, hitIDs(f.search(t, "Ind*", "", Options{})))
	assert.Equal(t, []int64{3}, hitIDs(f.search(t, "Ind?go", "", Options{})))
}

func TestSearchByIdentifierRoundTrips(t *testing.T) {
	f := newFixture(t, scenario()...)
	res := f.search(t, "2", "", Options{})
	require.Equal(t, []int64{2}, hitIDs(res))
	assert.Equal(t, map[string]string{"name": "Jet Airways", "destination": "Russia"}, res.Hits[0].Document.Fields)
}

func TestFieldScope(t *testing.T) {
	f := newFixture(t,
		flight(1, "Air India", "Serbia"),
		flight(4, "Emirats", "India"),
	)
	assert.Equal(t, []int64{1, 4}, hitIDs(f.search(t, "India", "", Options{})))
	assert.Equal(t, []int64{4}, hitIDs(f.search(t, "India", "destination", Options{})))
	assert.Equal(t, []int64{1}, hitIDs(f.search(t, "name:India", "", Options{})))
}

func TestRelevanceOrderingByFrequency(t *testing.T) {
	f := newFixture(t,
		flight(1, "Delta", "Paris"),
		flight(2, "Delta Delta", "Rome"),
		flight(5, "Delta Delta Delta Delta Delta", "Oslo"),
		flight(7, "Delta Delta", "Lima"),
	)
	res := f.search(t, "delta", "", Options{})
	assert.Equal(t, []int64{5, 2, 7, 1}, hitIDs(res))
	assert.Equal(t, 5.0, res.Hits[0].Score)

	natural := f.search(t, "delta", "", Options{Order: ranker.OrderNatural})
	assert.Equal(t, []int64{1, 2, 5, 7}, hitIDs(natural))
}

func TestPhraseRequiresAdjacentTerms(t *testing.T) {
	f := newFixture(t,
		flight(1, "Air India", "Serbia"),
		flight(2, "India Air", "Russia"),
		flight(3, "Air Lines of India", "USA"),
	)
	assert.Equal(t, []int64{1}, hitIDs(f.search(t, `"Air India"`, "", Options{})))
	assert.Equal(t, []int64{1, 2, 3}, hitIDs(f.search(t, "Air India", "", Options{Order: ranker.OrderNatural})))
}

func TestLimitDefaultsAndCaps(t *testing.T) {
	records := make([]schema.Record, 0, 30)
	for i := int64(1); i <= 30; i++ {
		records = append(records, flight(i, "Shuttle", "Moon"))
	}
	f := newFixture(t, records...)

	assert.Len(t, f.search(t, "shuttle", "", Options{Limit: 5}).Hits, 5)
	res := f.search(t, "shuttle", "", Options{})
	assert.Len(t, res.Hits, 30)
	assert.Equal(t, 30, res.TotalHits)

	assert.Equal(t, 1000, f.executor.Limit(0))
	assert.Equal(t, 1000, f.executor.Limit(5000))
	assert.Equal(t, 10, f.executor.Limit(10))
}

func TestZeroMatchesIsEmptyNotError(t *testing.T) {
	f := newFixture(t, scenario()...)
	res := f.search(t, "Lufthansa", "", Options{})
	assert.Empty(t, res.Hits)
	assert.NotNil(t, res.Hits)
}

func TestReservedCharacterQueryFallsBack(t *testing.T) {
	f := newFixture(t, flight(5, "Lufthansa", "Hong-Kong"))
	res := f.search(t, "Hong-Kong)", "", Options{})
	assert.True(t, res.Literal)
	assert.Equal(t, []int64{5}, hitIDs(res))

	res = f.search(t, "(", "", Options{})
	assert.Empty(t, res.Hits)
}

type countingSource struct {
	reads int
}

func (c *countingSource) Read(ctx context.Context, fn func(indexer.View) error) error {
	c.reads++
	return errors.New("index must not be read")
}

func TestWildcardOnlyQueryNeverReadsIndex(t *testing.T) {
	src := &countingSource{}
	ex, err := New(src, config.Default().Search)
	require.NoError(t, err)
	p := parser.New(tokenizer.New(true), schema.Flights())

	for _, raw := range []string{"*", "?", "*?*", "the"} {
		q, err := p.Parse(raw, "")
		require.NoError(t, err)
		res, err := ex.Execute(context.Background(), q, Options{})
		require.NoError(t, err)
		assert.Empty(t, res.Hits)
	}
	assert.Equal(t, 0, src.reads)
}

func TestStorageErrorsSurface(t *testing.T) {
	f := newFixture(t, scenario()...)
	require.NoError(t, f.engine.Close())

	q, err := f.parser.Parse("India", "")
	require.NoError(t, err)
	_, err = f.executor.Execute(context.Background(), q, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrStorageUnavailable))
	assert.True(t, strings.Contains(err.Error(), "India"))
}

func TestUnknownScoringRejected(t *testing.T) {
	cfg := config.Default().Search
	cfg.Scoring = "tfidf"
	_, err := New(&countingSource{}, cfg)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}
