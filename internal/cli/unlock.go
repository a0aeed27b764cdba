package cli

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/indexer/directory"
	"github.com/spf13/cobra"
)

func newUnlockCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock",
		Short: "Clear a write lock left behind by a crashed writer",
		Long: `Clear the index write lock marker. The command refuses while a running
process still holds the lock.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := g.cfg.Index.DataDir
			if err := directory.ForceUnlock(dir); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "write lock cleared in %s\n", dir)
			return nil
		},
	}
}

func newStatsCommand(g *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index size, generation and whether a writer is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := g.cfg.Index.DataDir
			writerActive, err := directory.IsLocked(dir)
			if err != nil {
				return err
			}
			a, err := openReader(cmd.Context(), g.cfg, nil)
			if err != nil {
				return err
			}
			defer a.Close()
			st := a.svc.Stats()
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"documents":     st.Documents,
					"terms":         st.Terms,
					"generation":    st.Generation,
					"writer_active": writerActive,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "documents: %d\nterms: %d\ngeneration: %d\nwriter active: %t\n",
				st.Documents, st.Terms, st.Generation, writerActive)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
