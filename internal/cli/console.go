package cli

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/source"
	apperrors "github.com/Adithya-Monish-Kumar-K/flight-search/pkg/errors"
	"github.com/spf13/cobra"
)

const consolePrompt = "Enter your search query..."

func newConsoleCommand(g *globalFlags) *cobra.Command {
	var (
		reindex bool
		field   string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Interactive search prompt",
		Long: `Index the configured record source, then read one query per line and
print the matching records until "exit", "quit" or end of input. With
--reindex=false the last committed index is opened read-only.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			open := openReader
			if reindex {
				open = openApp
			}
			a, err := open(ctx, g.cfg, nil)
			if err != nil {
				return err
			}
			defer a.Close()
			defer func() {
				if hits, misses, ok := a.svc.CacheStats(); ok {
					slog.Default().With("component", "console").Info("result cache usage", "hits", hits, "misses", misses)
				}
			}()

			out := cmd.OutOrStdout()
			if reindex {
				src, closeSrc, err := source.New(ctx, g.cfg, a.schema)
				if err != nil {
					return err
				}
				err = rebuild(ctx, a, src, out)
				closeSrc()
				var batchErr *apperrors.BatchError
				if err != nil && !errors.As(err, &batchErr) {
					return err
				}
			}

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Fprintln(out, consolePrompt)
				if !scanner.Scan() {
					return scanner.Err()
				}
				line := scanner.Text()
				switch strings.TrimSpace(line) {
				case "exit", "quit":
					return nil
				}
				records, err := a.svc.Search(ctx, line, field, limit)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
					continue
				}
				printRecords(out, a.schema, records)
				fmt.Fprintln(out)
			}
		},
	}
	cmd.Flags().BoolVar(&reindex, "reindex", true, "rebuild the index from the source before prompting")
	cmd.Flags().StringVarP(&field, "field", "f", "", "restrict every query to one field")
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "maximum number of results per query")
	return cmd
}
