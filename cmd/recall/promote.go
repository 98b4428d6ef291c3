package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var promoteCmd = &cobra.Command{
	Use:   "promote <project-fact-id>",
	Short: "Copy a project fact (and its entity and receipts) into the global store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		globalID, err := mgr.PromoteFact(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			fmt.Printf("{\"global_fact_id\":%q}\n", globalID)
			return nil
		}
		fmt.Println("promoted to global fact:", globalID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(promoteCmd)
}
