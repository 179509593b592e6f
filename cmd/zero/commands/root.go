package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	env        string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "zero",
	Short: "Zero - market intelligence pipeline",
	Long: `Zero Unified CLI

A multi-service market intelligence pipeline: candle ingest, market
permission regime, candidate scanning, attention monitoring, and
opportunity ranking, all talking through a shared state bus.

Usage:
  go run ./cmd/zero [command]

Examples:
  go run ./cmd/zero start
  go run ./cmd/zero regime
  go run ./cmd/zero backfill
  go run ./cmd/zero status`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().StringVar(&env, "env", "development", "environment (development|staging|production)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
