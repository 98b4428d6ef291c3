package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/recallgraph/recall/internal/resolver"
	"github.com/recallgraph/recall/internal/types"
)

var ingestScope string

var ingestCmd = &cobra.Command{
	Use:   "ingest <extraction.json>",
	Short: "Feed a structured Extraction file to the resolver",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading extraction file: %w", err)
		}
		var ex types.Extraction
		if err := json.Unmarshal(raw, &ex); err != nil {
			return fmt.Errorf("parsing extraction file: %w", err)
		}

		store, err := mgr.StoreForScope(cmd.Context(), types.Scope(ingestScope))
		if err != nil {
			return err
		}

		r := resolver.New(store, policy, cfg.ConfidenceEpsilon)
		counters, err := r.Apply(cmd.Context(), ex)
		if err != nil {
			return fmt.Errorf("applying extraction: %w", err)
		}

		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(counters)
		}
		fmt.Printf("entities created: %d\n", counters.EntitiesCreated)
		fmt.Printf("facts created:    %d\n", counters.FactsCreated)
		fmt.Printf("facts superseded: %d\n", counters.FactsSuperseded)
		fmt.Printf("conflicts opened: %d\n", counters.ConflictsCreated)
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestScope, "scope", "project", "which store to ingest into: project or global")
	rootCmd.AddCommand(ingestCmd)
}
