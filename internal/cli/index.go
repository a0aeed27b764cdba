package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/source"
	apperrors "github.com/Adithya-Monish-Kumar-K/flight-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/flight-search/pkg/resilience"
	"github.com/spf13/cobra"
)

func newIndexCommand(g *globalFlags) *cobra.Command {
	var (
		sourcePath string
		watch      bool
		debounce   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Rebuild the index from the configured record source",
		Long: `Load every record from the configured source (a YAML/JSON file or a
PostgreSQL table), replace the index contents with them and commit.

With --watch the command keeps running and rebuilds whenever the record file
changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := g.cfg
			if sourcePath != "" {
				cfg.Source.Type = "file"
				cfg.Source.Path = sourcePath
			}
			ctx := cmd.Context()

			a, err := openApp(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			src, closeSrc, err := source.New(ctx, cfg, a.schema)
			if err != nil {
				return err
			}
			defer closeSrc()

			out := cmd.OutOrStdout()
			if err := rebuild(ctx, a, src, out); err != nil {
				return err
			}
			if !watch {
				return nil
			}

			file, ok := src.(*source.File)
			if !ok {
				return apperrors.Newf(apperrors.ErrInvalidInput, "--watch needs a file source, got %s", src.Name())
			}
			logger := slog.Default().With("component", "index-command")
			return source.Watch(ctx, file.Path(), debounce, func(ctx context.Context) {
				if err := rebuild(ctx, a, src, out); err != nil {
					logger.Error("rebuild after change failed", "source", src.Name(), "error", err)
				}
			})
		},
	}
	cmd.Flags().StringVarP(&sourcePath, "source", "s", "", "record file to index (overrides source.path)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "rebuild whenever the record file changes")
	cmd.Flags().DurationVar(&debounce, "debounce", source.DefaultDebounce, "quiet period before a rebuild")
	return cmd
}

// rebuild loads the full record set and replaces the index with it. Records
// the writer rejects are listed; the rest are still committed.
func rebuild(ctx context.Context, a *app, src source.Source, out io.Writer) error {
	records, err := loadWithRetry(ctx, src)
	if err != nil {
		return err
	}
	err = a.svc.Rebuild(ctx, records)
	var batchErr *apperrors.BatchError
	if err != nil && !errors.As(err, &batchErr) {
		return err
	}
	stats := a.svc.Stats()
	fmt.Fprintf(out, "indexed %d record(s) from %s (generation %d)\n", stats.Documents, src.Name(), stats.Generation)
	if batchErr != nil {
		printBatchFailures(out, batchErr)
		return batchErr
	}
	return nil
}

// loadWithRetry retries sources that may be briefly unreachable. Malformed
// input is not retried.
func loadWithRetry(ctx context.Context, src source.Source) ([]schema.Record, error) {
	var records []schema.Record
	err := resilience.Retry(ctx, "load "+src.Name(), resilience.RetryConfig{
		MaxAttempts: 3,
		Retryable: func(err error) bool {
			return errors.Is(err, apperrors.ErrStorageUnavailable)
		},
	}, func() error {
		var err error
		records, err = src.Load(ctx)
		return err
	})
	return records, err
}
