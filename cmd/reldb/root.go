package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jochuuuu/reldb/internal/logging"
	"github.com/jochuuuu/reldb/pkg/config"
)

// Version is set during build.
var Version = "0.1.0"

var cfgFile string

// rootCmd is the base command for the reldb CLI.
var rootCmd = &cobra.Command{
	Use:   "reldb",
	Short: "A fixed-width relational storage engine with secondary indexes",
	Long: `reldb is a small single-node relational storage engine: records of
user-defined schemas live in a fixed-width slotted heap file with a
free-list of deleted slots, and every indexed column is mirrored in one of
four secondary-index structures (extendible hash, disk-resident AVL, B+
tree, or R-tree).

Examples:
  reldb serve                 # start the REST API
  reldb sql -d ./data "SELECT * FROM Productos WHERE nombre='A';"
  reldb import -d ./data orders 'orders.csv'
  reldb doctor -d ./data       # run preflight checks`,
	Version: Version,
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
}

// loadConfig loads configuration for a subcommand and initializes logging
// from it. It is the shared entry point every subcommand uses before
// touching the engine.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	return cfg, nil
}
