package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/recallgraph/recall/internal/sweeper"
	"github.com/recallgraph/recall/internal/types"
)

var (
	sweepScope         string
	sweepBudgetSeconds float64
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the time-budgeted maintenance pass (expire, reap, prune, checkpoint)",
	RunE: func(cmd *cobra.Command, args []string) error {
		stores, err := mgr.StoresForScope(cmd.Context(), types.Scope(sweepScope))
		if err != nil {
			return err
		}

		sweepCfg := sweeper.Config{
			BudgetSeconds: sweepBudgetSeconds,
			ProposedTTL:   cfg.ProposedTTL,
			DisputedTTL:   cfg.DisputedTTL,
			ContentTTL:    cfg.ContentTTL,
		}

		for _, store := range stores {
			stats, err := sweeper.New(store).Run(cmd.Context(), sweepCfg)
			if err != nil {
				return fmt.Errorf("sweeping: %w", err)
			}
			if jsonOutput {
				if err := json.NewEncoder(os.Stdout).Encode(stats); err != nil {
					return err
				}
				continue
			}
			fmt.Printf("proposed expired:     %d\n", stats.ProposedFactsExpired)
			fmt.Printf("disputed expired:     %d\n", stats.DisputedFactsExpired)
			fmt.Printf("orphaned provenance:  %d\n", stats.OrphanedProvenanceDeleted)
			fmt.Printf("old content pruned:   %d\n", stats.OldContentPruned)
			fmt.Printf("budget honored:       %v (%.3fs)\n", stats.BudgetHonored, stats.ElapsedSeconds)
		}
		return nil
	},
}

func init() {
	sweepCmd.Flags().StringVar(&sweepScope, "scope", "all", "which store(s) to sweep: project, global, or all")
	sweepCmd.Flags().Float64Var(&sweepBudgetSeconds, "budget-seconds", 5.0, "wall-clock budget for the sweep")
	rootCmd.AddCommand(sweepCmd)
}
