// Package service is the library boundary of the search core: callers index
// records and run queries through it without touching the engine, parser or
// executor directly.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/flight-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/flight-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/flight-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/flight-search/pkg/metrics"
	"github.com/google/uuid"
)

// Options carries the optional collaborators of a Service.
type Options struct {
	Cache   *cache.QueryCache
	Metrics *metrics.Metrics
}

type Service struct {
	engine   *indexer.Engine
	parser   *parser.Parser
	executor *executor.Executor
	cache    *cache.QueryCache
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Request is a search with every knob exposed.
type Request struct {
	Query string
	// Field restricts unscoped clauses to one field; empty means all indexed
	// fields.
	Field string
	Limit int
	Order ranker.Order
}

// New wires a Service around an open engine. analyzer and s must be the ones
// the engine was opened with.
func New(engine *indexer.Engine, analyzer *tokenizer.Analyzer, s *schema.Schema, cfg config.SearchConfig, opts Options) (*Service, error) {
	ex, err := executor.New(engine, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating executor: %w", err)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(nil)
	}
	return &Service{
		engine:   engine,
		parser:   parser.New(analyzer, s),
		executor: ex,
		cache:    opts.Cache,
		metrics:  opts.Metrics,
		logger:   slog.Default().With("component", "search-service"),
	}, nil
}

// Index upserts every record and commits. Records that fail are reported in a
// *apperrors.BatchError; the others are indexed and committed regardless.
func (s *Service) Index(ctx context.Context, records []schema.Record) error {
	start := time.Now()
	upsertErr := s.engine.UpsertAll(ctx, records)
	var batchErr *apperrors.BatchError
	if upsertErr != nil && !errors.As(upsertErr, &batchErr) {
		return fmt.Errorf("indexing records: %w", upsertErr)
	}
	if err := s.engine.Commit(ctx); err != nil {
		return errors.Join(upsertErr, err)
	}
	failed := 0
	if batchErr != nil {
		failed = len(batchErr.Failures)
	}
	s.logger.Info("records indexed",
		"records", len(records),
		"failed", failed,
		"generation", s.engine.Generation(),
		"duration", time.Since(start),
	)
	return upsertErr
}

// Rebuild replaces the whole index with records and commits once.
func (s *Service) Rebuild(ctx context.Context, records []schema.Record) error {
	if err := s.engine.Reset(ctx); err != nil {
		return fmt.Errorf("resetting index: %w", err)
	}
	return s.Index(ctx, records)
}

// Upsert indexes one record without committing; the engine's commit loop or
// Close persists it.
func (s *Service) Upsert(ctx context.Context, rec schema.Record) error {
	return s.engine.Upsert(ctx, rec)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.engine.Delete(ctx, id)
}

// Search runs query in relevance order and returns the matching records. An
// empty slice, not an error, means nothing matched.
func (s *Service) Search(ctx context.Context, query string, field string, limit int) ([]schema.Record, error) {
	res, err := s.SearchWithOptions(ctx, Request{Query: query, Field: field, Limit: limit})
	if err != nil {
		return nil, err
	}
	return Records(res), nil
}

// SearchWithOptions runs req and returns hits with their scores.
func (s *Service) SearchWithOptions(ctx context.Context, req Request) (*executor.SearchResult, error) {
	start := time.Now()
	ctx = logger.WithQueryID(ctx, uuid.NewString())
	log := logger.FromContext(ctx).With("component", "search-service")

	if parser.IsBlank(req.Query) {
		s.metrics.SearchQueriesTotal.WithLabelValues("blank").Inc()
		log.Debug("blank query answered without index access", "query", req.Query)
		return &executor.SearchResult{Query: req.Query, Hits: []executor.Hit{}, TermStats: map[string]int{}}, nil
	}

	q, err := s.parser.Parse(req.Query, req.Field)
	if err != nil {
		s.metrics.SearchQueriesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("parsing query: %w", err)
	}
	if q.Literal {
		s.metrics.QueryFallbacksTotal.Inc()
		log.Debug("query retried as literal phrase", "query", req.Query)
	}

	compute := func() (*executor.SearchResult, error) {
		return s.executor.Execute(ctx, q, executor.Options{Limit: req.Limit, Order: req.Order})
	}
	cacheStatus := "none"
	var res *executor.SearchResult
	if s.cache != nil {
		key := cache.Key{
			Query: req.Query,
			Field: req.Field,
			Limit: s.executor.Limit(req.Limit),
			Order: req.Order,
			State: s.engine.State(),
		}
		var hit bool
		res, hit, err = s.cache.GetOrCompute(ctx, key, compute)
		cacheStatus = "miss"
		if hit {
			cacheStatus = "hit"
		}
	} else {
		res, err = compute()
	}
	if err != nil {
		s.metrics.SearchQueriesTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	resultType := "hit"
	if len(res.Hits) == 0 {
		resultType = "zero_result"
	}
	s.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	s.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())
	s.metrics.SearchResultsCount.Observe(float64(len(res.Hits)))
	log.Info("search completed",
		"query", req.Query,
		"field", req.Field,
		"results", len(res.Hits),
		"total_hits", res.TotalHits,
		"cache", cacheStatus,
		"duration", time.Since(start),
	)
	return res, nil
}

// Stats reports the engine's current state.
func (s *Service) Stats() indexer.Stats {
	return s.engine.Stats()
}

// CacheStats reports result cache hits and misses since the service was
// created; ok is false when no cache is configured.
func (s *Service) CacheStats() (hits, misses int64, ok bool) {
	if s.cache == nil {
		return 0, 0, false
	}
	hits, misses = s.cache.Stats()
	return hits, misses, true
}

// Records converts hits back into records, keeping their order.
func Records(res *executor.SearchResult) []schema.Record {
	out := make([]schema.Record, 0, len(res.Hits))
	for _, h := range res.Hits {
		out = append(out, schema.Record{ID: h.Document.ID, Fields: h.Document.Fields})
	}
	return out
}
