package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/recallgraph/recall/internal/types"
)

var explainScope string

var explainCmd = &cobra.Command{
	Use:   "explain <fact-id>",
	Short: "Show a fact's receipts, supersession edges, and conflicts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := engine.Explain(cmd.Context(), args[0], types.Scope(explainScope))
		if err != nil {
			return err
		}
		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(res)
		}
		printMarkdown(explainMarkdown(res))
		return nil
	},
}

func init() {
	explainCmd.Flags().StringVar(&explainScope, "scope", "all", "project, global, or all")
	rootCmd.AddCommand(explainCmd)
}
