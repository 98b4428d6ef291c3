// Package config loads and validates the global and project configuration
// that every other component depends on: database paths, retention TTLs,
// resolver tuning, and recall ranking weights. It follows the same
// viper-backed, env-override-after-file-load convention the teacher uses
// for its own local configuration layer.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const envPrefix = "RECALL"

// VectorMode names how the Vector Index resolves its storage backend.
type VectorMode string

const (
	VectorModeAuto     VectorMode = "auto"
	VectorModeNative   VectorMode = "native"
	VectorModeFallback VectorMode = "fallback"
)

// Config is the fully-resolved, validated configuration for one process.
// It satisfies the Store Manager's only contract on a configuration
// object: GlobalDBPath() and ProjectDBPath().
type Config struct {
	v *viper.Viper

	globalDBPath  string
	projectDBPath string

	ProposedTTL       time.Duration
	DisputedTTL       time.Duration
	ContentTTL        time.Duration
	ConfidenceEpsilon float64
	RRFK              int
	DefaultLimit      int
	VectorMode        VectorMode
	VectorDim         int
	OTelEnabled       bool
}

func defaults(v *viper.Viper) {
	v.SetDefault("proposed_ttl", "72h")
	v.SetDefault("disputed_ttl", "168h")
	v.SetDefault("content_ttl", "720h")
	v.SetDefault("confidence_epsilon", 0.05)
	v.SetDefault("rrf_k", 60)
	v.SetDefault("default_limit", 10)
	v.SetDefault("vector_mode", string(VectorModeAuto))
	v.SetDefault("vector_dim", 384)
	v.SetDefault("otel_enabled", true)
}

// Load resolves configuration from, in ascending precedence: built-in
// defaults, the global config file, the project config file (if
// projectPath is non-empty), then RECALL_*-prefixed environment
// variables. It mirrors internal/labelmutex's direct viper.New() use
// rather than the package-global viper instance the teacher avoids for
// testability.
func Load(globalConfigDir, projectPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	defaults(v)

	globalFile := filepath.Join(globalConfigDir, "config.yaml")
	if _, err := os.Stat(globalFile); err == nil {
		v.SetConfigFile(globalFile)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading global config: %w", err)
		}
	}

	if projectPath != "" {
		projectFile := filepath.Join(projectPath, ".recall", "config.yaml")
		if _, err := os.Stat(projectFile); err == nil {
			v.SetConfigFile(projectFile)
			if err := v.MergeInConfig(); err != nil {
				return nil, fmt.Errorf("config: reading project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	cfg := &Config{
		v:             v,
		globalDBPath:  filepath.Join(globalConfigDir, "memory.sqlite3"),
		projectDBPath: "",
	}
	if projectPath != "" {
		cfg.projectDBPath = filepath.Join(projectPath, ".recall", "memory.sqlite3")
	}
	if err := cfg.reload(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) reload() error {
	c.ProposedTTL = c.v.GetDuration("proposed_ttl")
	c.DisputedTTL = c.v.GetDuration("disputed_ttl")
	c.ContentTTL = c.v.GetDuration("content_ttl")
	c.ConfidenceEpsilon = c.v.GetFloat64("confidence_epsilon")
	c.RRFK = c.v.GetInt("rrf_k")
	c.DefaultLimit = c.v.GetInt("default_limit")
	c.VectorMode = VectorMode(c.v.GetString("vector_mode"))
	c.VectorDim = c.v.GetInt("vector_dim")
	c.OTelEnabled = c.v.GetBool("otel_enabled")

	if c.globalDBPath == "" {
		return fmt.Errorf("config: global_db_path must not be empty")
	}
	switch c.VectorMode {
	case VectorModeAuto, VectorModeNative, VectorModeFallback:
	default:
		return fmt.Errorf("config: invalid vector_mode %q", c.VectorMode)
	}
	return nil
}

// WatchReload enables viper's file watcher (backed transitively by
// fsnotify) and calls onChange after each successful reload. Intended for
// the long-lived daemon process; one-shot CLI invocations never call this.
func (c *Config) WatchReload(onChange func(*Config, error)) {
	c.v.OnConfigChange(func(_ fsnotify.Event) {
		onChange(c, c.reload())
	})
	c.v.WatchConfig()
}

// GlobalDBPath satisfies the store manager's configuration contract.
func (c *Config) GlobalDBPath() string { return c.globalDBPath }

// ProjectDBPath satisfies the store manager's configuration contract. It is
// empty when no project path was supplied to Load.
func (c *Config) ProjectDBPath() string { return c.projectDBPath }
