package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/recallgraph/recall/internal/types"
)

var deltaCursorScope string

var deltaCursorCmd = &cobra.Command{
	Use:   "delta-cursor",
	Short: "Inspect or advance a transcript's consumed-byte-offset cursor",
}

var deltaCursorGetCmd = &cobra.Command{
	Use:   "get <session> <transcript-path>",
	Short: "Print the last consumed byte offset recorded for (session, transcript path)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := mgr.StoreForScope(cmd.Context(), types.Scope(deltaCursorScope))
		if err != nil {
			return err
		}
		cursor, err := store.GetDeltaCursor(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		if cursor == nil {
			if jsonOutput {
				fmt.Println("null")
				return nil
			}
			fmt.Println("no cursor recorded yet")
			return nil
		}
		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(cursor)
		}
		fmt.Printf("offset %d, last updated %s\n", cursor.Offset, cursor.UpdatedAt.Format(time.RFC3339))
		return nil
	},
}

var deltaCursorAdvanceCmd = &cobra.Command{
	Use:   "advance <session> <transcript-path> <offset>",
	Short: "Advance the cursor to offset; refused if offset is not ahead of the recorded one",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		offset, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return fmt.Errorf("parsing offset: %w", err)
		}

		store, err := mgr.StoreForScope(cmd.Context(), types.Scope(deltaCursorScope))
		if err != nil {
			return err
		}

		tx, err := store.Begin(cmd.Context())
		if err != nil {
			return err
		}
		if err := store.UpdateDeltaCursor(cmd.Context(), tx, args[0], args[1], offset); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}

		if jsonOutput {
			fmt.Printf("{\"offset\":%d}\n", offset)
			return nil
		}
		fmt.Println("cursor advanced to", offset)
		return nil
	},
}

func init() {
	deltaCursorCmd.PersistentFlags().StringVar(&deltaCursorScope, "scope", "project", "which store to target: project or global")
	deltaCursorCmd.AddCommand(deltaCursorGetCmd, deltaCursorAdvanceCmd)
	rootCmd.AddCommand(deltaCursorCmd)
}
