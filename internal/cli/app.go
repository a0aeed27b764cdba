package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/service"
	"github.com/Adithya-Monish-Kumar-K/flight-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/flight-search/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/flight-search/pkg/redis"
)

// app is an open index plus the service in front of it.
type app struct {
	cfg     *config.Config
	schema  *schema.Schema
	engine  *indexer.Engine
	svc     *service.Service
	redis   *pkgredis.Client
	metrics *metrics.Metrics
	closers []func() error
}

type engineOpener func(ctx context.Context, cfg config.IndexConfig, analyzer *tokenizer.Analyzer, s *schema.Schema, m *metrics.Metrics) (*indexer.Engine, error)

// openApp takes the index write lock; use it for commands that change the
// index.
func openApp(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*app, error) {
	return newApp(ctx, cfg, m, indexer.Open)
}

// openReader loads the last committed index without the write lock, so it
// works while a writer is running.
func openReader(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*app, error) {
	return newApp(ctx, cfg, m, indexer.OpenReadOnly)
}

func newApp(ctx context.Context, cfg *config.Config, m *metrics.Metrics, open engineOpener) (*app, error) {
	if m == nil {
		m = metrics.New(nil)
	}
	s, err := schema.FromConfig(cfg.Schema)
	if err != nil {
		return nil, err
	}
	analyzer := tokenizer.New(cfg.Index.StopWords)
	engine, err := open(ctx, cfg.Index, analyzer, s, m)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, schema: s, engine: engine, metrics: m}
	a.closers = append(a.closers, engine.Close)

	opts := service.Options{Metrics: m}
	switch cfg.Cache.Backend {
	case "memory":
		backend, err := cache.NewMemoryBackend(cfg.Cache.Size)
		if err != nil {
			a.Close()
			return nil, err
		}
		opts.Cache = cache.New(backend, m)
	case "redis":
		client, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("opening redis cache: %w", err)
		}
		a.redis = client
		a.closers = append(a.closers, client.Close)
		opts.Cache = cache.New(cache.NewRedisBackend(client, cfg.Redis.CacheTTL), m)
	}

	svc, err := service.New(engine, analyzer, s, cfg.Search, opts)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.svc = svc
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
