// Command recall is the thin CLI front door onto the knowledge-graph
// memory core: a Cobra binary in the teacher's single-binary-many-
// subcommands style, wiring internal/config, internal/storemgr,
// internal/resolver, internal/sweeper, and internal/recall together.
// Transcript reading, distillation, and hook installation are explicit
// external collaborators and have no presence here.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/recallgraph/recall/internal/config"
	"github.com/recallgraph/recall/internal/embedding"
	"github.com/recallgraph/recall/internal/recall"
	"github.com/recallgraph/recall/internal/storage/sqlite"
	"github.com/recallgraph/recall/internal/storemgr"
	"github.com/recallgraph/recall/internal/telemetry"
)

var (
	globalConfigDir string
	projectDir      string
	jsonOutput      bool

	cfg     *config.Config
	mgr     *storemgr.Manager
	policy  *config.PredicatePolicy
	engine  *recall.Engine
	telem   *telemetry.Providers
)

var rootCmd = &cobra.Command{
	Use:           "recall",
	Short:         "Local knowledge-graph memory for an AI coding assistant",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return bootstrap(cmd.Context())
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return shutdown(cmd.Context())
	},
}

func init() {
	home, _ := os.UserHomeDir()
	defaultGlobalDir := filepath.Join(home, ".recall")

	rootCmd.PersistentFlags().StringVar(&globalConfigDir, "global-config-dir", defaultGlobalDir, "directory holding the global config and memory.sqlite3")
	rootCmd.PersistentFlags().StringVar(&projectDir, "project-dir", "", "project root (enables the project-scoped store); defaults to the current directory")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit machine-readable JSON instead of a rendered report")
}

func bootstrap(ctx context.Context) error {
	if projectDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("recall: resolving working directory: %w", err)
		}
		projectDir = wd
	}

	var err error
	cfg, err = config.Load(globalConfigDir, projectDir)
	if err != nil {
		return fmt.Errorf("recall: loading config: %w", err)
	}

	telem, err = telemetry.Setup(cfg.OTelEnabled)
	if err != nil {
		return fmt.Errorf("recall: setting up telemetry: %w", err)
	}

	predicatesPath := filepath.Join(projectDir, ".recall", "predicates.toml")
	policy, err = config.LoadPredicatePolicy(predicatesPath)
	if err != nil {
		return fmt.Errorf("recall: loading predicate policy: %w", err)
	}

	opener := storemgr.DefaultOpener(sqlite.Options{
		VectorMode: cfg.VectorMode,
		VectorDim:  cfg.VectorDim,
	})
	mgr = storemgr.New(cfg, opener)

	gen := embedding.NewLocal(cfg.VectorDim)
	engine = recall.New(mgr, gen, recall.Config{RRFK: cfg.RRFK, DefaultLimit: cfg.DefaultLimit})

	return nil
}

func shutdown(ctx context.Context) error {
	var firstErr error
	if mgr != nil {
		if err := mgr.Close(); err != nil {
			firstErr = err
		}
	}
	if telem != nil {
		if err := telem.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "recall:", err)
		os.Exit(1)
	}
}
