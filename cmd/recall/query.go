package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/recallgraph/recall/internal/types"
)

var (
	queryScope    string
	queryLimit    int
	queryIndexOnly bool
	queryShortcut  string
)

var queryCmd = &cobra.Command{
	Use:   "query [text...]",
	Short: "Query the knowledge graph, or run a registered shortcut",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		scope := types.Scope(queryScope)

		if queryShortcut != "" {
			hits, found, err := engine.QueryShortcut(ctx, queryShortcut)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("no such shortcut: %s", queryShortcut)
			}
			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(hits)
			}
			printMarkdown(fullHitsMarkdown(hits))
			return nil
		}

		if len(args) == 0 {
			return fmt.Errorf("query requires text, or --shortcut <name>")
		}
		text := strings.Join(args, " ")

		if queryIndexOnly {
			hits, err := engine.QueryIndex(ctx, text, queryLimit, scope)
			if err != nil {
				return err
			}
			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(hits)
			}
			printMarkdown(indexHitsMarkdown(hits))
			return nil
		}

		hits, err := engine.Query(ctx, text, queryLimit, scope)
		if err != nil {
			return err
		}
		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(hits)
		}
		printMarkdown(fullHitsMarkdown(hits))
		return nil
	},
}

func init() {
	queryCmd.Flags().StringVar(&queryScope, "scope", "all", "project, global, or all")
	queryCmd.Flags().IntVar(&queryLimit, "limit", 0, "max results (0 uses the configured default)")
	queryCmd.Flags().BoolVar(&queryIndexOnly, "index", false, "return the compact query_index shape instead of full facts")
	queryCmd.Flags().StringVar(&queryShortcut, "shortcut", "", "run a registered shortcut query by name")
	rootCmd.AddCommand(queryCmd)
}
