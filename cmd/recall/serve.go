package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/recallgraph/recall/internal/storage"
	"github.com/recallgraph/recall/internal/sweeper"
)

var serveSweepInterval time.Duration

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run as a long-lived process holding both store handles open",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		global, project, err := mgr.EnsureBoth(ctx)
		if err != nil {
			return fmt.Errorf("opening stores: %w", err)
		}
		fmt.Fprintln(os.Stderr, "recall: serving; global and project stores open")

		sweepCfg := sweeper.Config{
			BudgetSeconds: 5.0,
			ProposedTTL:   cfg.ProposedTTL,
			DisputedTTL:   cfg.DisputedTTL,
			ContentTTL:    cfg.ContentTTL,
		}

		ticker := time.NewTicker(serveSweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				fmt.Fprintln(os.Stderr, "recall: shutting down")
				return nil
			case <-ticker.C:
				runScheduledSweep(ctx, global, "global", sweepCfg)
				runScheduledSweep(ctx, project, "project", sweepCfg)
			}
		}
	},
}

func runScheduledSweep(ctx context.Context, store storage.Store, label string, sweepCfg sweeper.Config) {
	if _, err := sweeper.New(store).Run(ctx, sweepCfg); err != nil {
		fmt.Fprintf(os.Stderr, "recall: scheduled sweep (%s) failed: %v\n", label, err)
	}
}

func init() {
	serveCmd.Flags().DurationVar(&serveSweepInterval, "sweep-interval", 10*time.Minute, "how often the daemon runs a background sweep on each store")
	rootCmd.AddCommand(serveCmd)
}
