package cli

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/service"
	apperrors "github.com/Adithya-Monish-Kumar-K/flight-search/pkg/errors"
	"github.com/spf13/cobra"
)

func newSearchCommand(g *globalFlags) *cobra.Command {
	var (
		field  string
		limit  int
		order  string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the index",
		Long: `Run a free-text query against the index. Terms match whole words
case-insensitively, "quoted text" matches a phrase, field:term scopes a term
to one field and * or ? match within a word. Queries that do not parse are
searched for literally. The last committed index is searched, so search works
while "ingest" or "index --watch" is running.

Examples:
  flightsearch search India
  flightsearch search "Ind*"
  flightsearch search --field destination India
  flightsearch search --order natural --json air`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := ranker.ParseOrder(order)
			if err != nil {
				return apperrors.Newf(apperrors.ErrInvalidInput, "%v", err)
			}
			ctx := cmd.Context()
			a, err := openReader(ctx, g.cfg, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.svc.SearchWithOptions(ctx, service.Request{
				Query: strings.Join(args, " "),
				Field: field,
				Limit: limit,
				Order: o,
			})
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			printRecords(cmd.OutOrStdout(), a.schema, service.Records(res))
			return nil
		},
	}
	cmd.Flags().StringVarP(&field, "field", "f", "", "restrict the query to one field")
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "maximum number of results (default search.defaultLimit)")
	cmd.Flags().StringVarP(&order, "order", "o", "relevance", "result order: relevance or natural")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON with scores")
	return cmd
}
