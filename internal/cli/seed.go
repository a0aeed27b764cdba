package cli

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/source"
	"github.com/Adithya-Monish-Kumar-K/flight-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/flight-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/flight-search/pkg/postgres"
	"github.com/spf13/cobra"
)

func schemaFromConfig(cfg *config.Config) (*schema.Schema, error) {
	return schema.FromConfig(cfg.Schema)
}

func newSeedCommand(g *globalFlags) *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the PostgreSQL flights table and load a record file into it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := g.cfg
			if from == "" {
				from = cfg.Source.Path
			}
			ctx := cmd.Context()
			s, err := schemaFromConfig(cfg)
			if err != nil {
				return err
			}
			records, err := source.NewFile(from, s).Load(ctx)
			if err != nil {
				return err
			}

			client, err := postgres.New(ctx, cfg.Postgres)
			if err != nil {
				return apperrors.Newf(apperrors.ErrStorageUnavailable, "%v", err)
			}
			defer client.Close()
			if err := client.Migrate(); err != nil {
				return err
			}
			if err := source.NewPostgres(client, cfg.Source.Table, s).Seed(ctx, records); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d record(s) into %s\n", len(records), cfg.Source.Table)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "record file to load (default source.path)")
	return cmd
}
