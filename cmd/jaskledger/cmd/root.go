// Package cmd provides CLI commands for jaskledger.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jask/jaskledger/internal/config"
)

var (
	cfgFile string
	envFile string
	debug   bool

	cfg    config.Config
	logger *slog.Logger
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "jaskledger",
	Short: "Double-entry personal ledger with duplicate reconciliation",
	Long: `jaskledger keeps a double-entry ledger in SQLite and reconciles
transactions imported from several sources.

It supports:
- A hierarchical chart of accounts addressed by colon paths
- Balanced transactions and balances as of any date
- CSV statement imports with category rules
- Scoring, reviewing and merging duplicate transactions

Example:
  jaskledger demo
  jaskledger import csv statement.csv --target Assets:Bank:Checking --source bank
  jaskledger duplicates list --status pending`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadEnv(envFile); err != nil {
			return err
		}
		if cfgFile != "" {
			if err := os.Setenv("JASKLEDGER_CONFIG", cfgFile); err != nil {
				return err
			}
		}
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded

		logger, err = newLogger(cmd.ErrOrStderr(), cfg.Log, debug)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		return nil
	},
}

// Execute adds all child commands to the root command and runs it with ctx.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/jaskledger/config.toml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "env file loaded before the config (default is .env when present)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	// Add subcommands
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(accountsCmd)
	rootCmd.AddCommand(txCmd)
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(duplicatesCmd)
}

func newLogger(w io.Writer, lc config.LogConfig, debug bool) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(lc.Level))); err != nil {
		return nil, fmt.Errorf("log.level %q: %w", lc.Level, err)
	}
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
