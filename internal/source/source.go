// Package source loads the records the index command feeds to the engine. A
// source always returns the complete record set; the index is rebuilt from
// it, never patched.
package source

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/flight-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/flight-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/flight-search/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/flight-search/pkg/resilience"
)

type Source interface {
	Load(ctx context.Context) ([]schema.Record, error)
	Name() string
}

// New builds the source selected by cfg.Source. The returned close function
// releases any connection the source holds.
func New(ctx context.Context, cfg *config.Config, s *schema.Schema) (Source, func() error, error) {
	switch cfg.Source.Type {
	case "file", "":
		return NewFile(cfg.Source.Path, s), func() error { return nil }, nil
	case "postgres":
		var client *postgres.Client
		err := resilience.Retry(ctx, "connect to postgres", resilience.RetryConfig{MaxAttempts: 3}, func() error {
			var err error
			client, err = postgres.New(ctx, cfg.Postgres)
			return err
		})
		if err != nil {
			return nil, nil, apperrors.Newf(apperrors.ErrStorageUnavailable, "postgres source: %v", err)
		}
		return NewPostgres(client, cfg.Source.Table, s), client.Close, nil
	default:
		return nil, nil, apperrors.Newf(apperrors.ErrInvalidInput, "unknown source type %q", cfg.Source.Type)
	}
}

// toRecord splits a flat field map into a Record using the key field.
func toRecord(s *schema.Schema, row map[string]any) (schema.Record, error) {
	rawID, ok := row[s.KeyField]
	if !ok {
		return schema.Record{}, fmt.Errorf("missing key field %q", s.KeyField)
	}
	id, err := parseID(rawID)
	if err != nil {
		return schema.Record{}, err
	}
	rec := schema.Record{ID: id, Fields: make(map[string]string, len(row)-1)}
	for k, v := range row {
		if k == s.KeyField || v == nil {
			continue
		}
		rec.Fields[k] = fmt.Sprint(v)
	}
	return rec, nil
}

func parseID(v any) (int64, error) {
	switch id := v.(type) {
	case int:
		return int64(id), nil
	case int64:
		return id, nil
	case uint64:
		return int64(id), nil
	case float64:
		if id != float64(int64(id)) {
			return 0, fmt.Errorf("id %v is not an integer", id)
		}
		return int64(id), nil
	case string:
		var n int64
		if _, err := fmt.Sscanf(id, "%d", &n); err != nil {
			return 0, fmt.Errorf("id %q is not an integer", id)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("id has unsupported type %T", v)
	}
}
