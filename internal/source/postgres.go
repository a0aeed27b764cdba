package source

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/indexer/schema"
	apperrors "github.com/Adithya-Monish-Kumar-K/flight-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/flight-search/pkg/postgres"
	"github.com/lib/pq"
)

// Postgres reads records from a table whose columns are named after the
// schema fields. The key field column must be an integer.
type Postgres struct {
	client *postgres.Client
	table  string
	schema *schema.Schema
}

func NewPostgres(client *postgres.Client, table string, s *schema.Schema) *Postgres {
	return &Postgres{client: client, table: table, schema: s}
}

func (p *Postgres) Name() string {
	return "postgres:" + p.table
}

func (p *Postgres) columns() []string {
	cols := []string{pq.QuoteIdentifier(p.schema.KeyField)}
	for _, f := range p.schema.Fields() {
		if f.Name != p.schema.KeyField {
			cols = append(cols, pq.QuoteIdentifier(f.Name))
		}
	}
	return cols
}

func (p *Postgres) Load(ctx context.Context) ([]schema.Record, error) {
	cols := p.columns()
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		strings.Join(cols, ", "), pq.QuoteIdentifier(p.table), cols[0])
	rows, err := p.client.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrStorageUnavailable, "querying %s: %v", p.table, err)
	}
	defer rows.Close()

	fields := p.schema.Fields()
	records := make([]schema.Record, 0)
	for rows.Next() {
		var id int64
		values := make([]sql.NullString, len(cols)-1)
		dest := []any{&id}
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", p.table, err)
		}
		rec := schema.Record{ID: id, Fields: make(map[string]string, len(values))}
		i := 0
		for _, f := range fields {
			if f.Name == p.schema.KeyField {
				continue
			}
			if values[i].Valid {
				rec.Fields[f.Name] = values[i].String
			}
			i++
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Newf(apperrors.ErrStorageUnavailable, "reading %s: %v", p.table, err)
	}
	return records, nil
}

// Seed upserts records into the table in one transaction.
func (p *Postgres) Seed(ctx context.Context, records []schema.Record) error {
	cols := p.columns()
	placeholders := make([]string, len(cols))
	updates := make([]string, 0, len(cols)-1)
	for i, c := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if i > 0 {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
		}
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		pq.QuoteIdentifier(p.table), strings.Join(cols, ", "), strings.Join(placeholders, ", "),
		cols[0], strings.Join(updates, ", "))

	return p.client.InTx(ctx, func(tx *sql.Tx) error {
		prepared, err := tx.PrepareContext(ctx, stmt)
		if err != nil {
			return fmt.Errorf("preparing seed statement: %w", err)
		}
		defer prepared.Close()
		for _, r := range records {
			args := []any{r.ID}
			for _, f := range p.schema.Fields() {
				if f.Name != p.schema.KeyField {
					args = append(args, r.Fields[f.Name])
				}
			}
			if _, err := prepared.ExecContext(ctx, args...); err != nil {
				return fmt.Errorf("seeding record %d: %w", r.ID, err)
			}
		}
		return nil
	})
}
