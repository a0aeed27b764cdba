// Package cli implements the flightsearch command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/flight-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/flight-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/flight-search/pkg/logger"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	configPath string
	dataDir    string
	logLevel   string
	cfg        *config.Config
}

// NewRootCommand builds the command tree. Each call returns independent
// commands and flags, so tests can run several in one process.
func NewRootCommand() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "flightsearch",
		Short: "Index and search flight records",
		Long: `flightsearch keeps a full-text index of flight records on local disk and
answers free-text queries against it.

Examples:
  flightsearch index
  flightsearch search "Ind*"
  flightsearch search --field destination India
  flightsearch console`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(g.configPath)
			if err != nil {
				return apperrors.Newf(apperrors.ErrInvalidInput, "%v", err)
			}
			if g.dataDir != "" {
				cfg.Index.DataDir = g.dataDir
			}
			if g.logLevel != "" {
				cfg.Logging.Level = g.logLevel
			}
			logger.SetupWriter(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
			g.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "path to config file")
	root.PersistentFlags().StringVar(&g.dataDir, "data-dir", "", "index directory (overrides index.dataDir)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		newIndexCommand(g),
		newSearchCommand(g),
		newConsoleCommand(g),
		newIngestCommand(g),
		newPublishCommand(g),
		newSeedCommand(g),
		newUnlockCommand(g),
		newStatsCommand(g),
	)
	return root
}

// Execute runs the command line and returns the process exit status.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := NewRootCommand().ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	var batchErr *apperrors.BatchError
	if errors.As(err, &batchErr) {
		return 1
	}
	return apperrors.ExitCode(err)
}
