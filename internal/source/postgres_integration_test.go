//go:build integration

package source

import (
	"context"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/flight-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/flight-search/pkg/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T, ctx context.Context) *postgres.Client {
	t.Helper()

	container, err := tcpostgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		tcpostgres.WithDatabase("flights"),
		tcpostgres.WithUsername("flights"),
		tcpostgres.WithPassword("localdev"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	client, err := postgres.Open(ctx, dsn, config.Default().Postgres)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Migrate())
	return client
}

func TestPostgresSeedAndLoad(t *testing.T) {
	ctx := context.Background()
	client := startPostgres(t, ctx)
	src := NewPostgres(client, "flights", schema.Flights())

	seed := []schema.Record{
		{ID: 2, Fields: map[string]string{"name": "Jet Airways", "destination": "Russia"}},
		{ID: 1, Fields: map[string]string{"name": "Air India", "destination": "Serbia"}},
	}
	require.NoError(t, src.Seed(ctx, seed))
	require.NoError(t, client.Migrate())

	records, err := src.Load(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(1), records[0].ID)
	assert.Equal(t, "Air India", records[0].Fields["name"])

	require.NoError(t, src.Seed(ctx, []schema.Record{
		{ID: 1, Fields: map[string]string{"name": "Air India Express", "destination": "Serbia"}},
	}))
	records, err = src.Load(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Air India Express", records[0].Fields["name"])
}
