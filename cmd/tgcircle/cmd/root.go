// Package cmd implements the CLI commands for tgcircle.
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tgcircle/tgcircle/internal/config"
	"github.com/tgcircle/tgcircle/internal/version"
)

// cfgFile holds the config file path from CLI flag.
var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "tgcircle",
	Short:   "Video to circle-note conversion service",
	Version: version.Short(),
	Long: `tgcircle converts short video clips into square circle notes,
optionally applying playback effects (speed ramp, flash, meme splice,
echo, shake).

It exposes a health endpoint, an admin reporting API over the metrics
store, and a manual conversion endpoint that drives the full pipeline.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	// Accept both --log-level and --log_level spellings.
	rootCmd.PersistentFlags().SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	// These flags are NOT bound to viper. They override the loaded config
	// only when explicitly set, preserving the priority:
	// CLI flag > env var > config file > default.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (text, json)")
}

// loadConfig loads the configuration and applies explicit CLI flag
// overrides on top.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	if rootCmd.PersistentFlags().Changed("log-level") {
		level, _ := rootCmd.PersistentFlags().GetString("log-level")
		level = strings.ToLower(level)
		if level == "warning" {
			level = "warn"
		}
		cfg.Logging.Level = level
	}
	if rootCmd.PersistentFlags().Changed("log-format") {
		format, _ := rootCmd.PersistentFlags().GetString("log-format")
		cfg.Logging.Format = strings.ToLower(format)
	}

	return cfg, nil
}
