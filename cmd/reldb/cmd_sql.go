package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jochuuuu/reldb/internal/engine"
)

var (
	sqlDataDir string
	sqlFile    string
)

var sqlCmd = &cobra.Command{
	Use:   "sql [statements]",
	Short: "Execute a batch of SQL statements against a data directory",
	Long: `Execute one or more ;-separated CREATE TABLE / INSERT / SELECT /
DELETE / IMPORT FROM CSV statements and print the per-statement result
envelope as JSON.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSQL(args)
	},
}

func init() {
	sqlCmd.Flags().StringVarP(&sqlDataDir, "data-dir", "d", "", "data directory (required)")
	sqlCmd.Flags().StringVarP(&sqlFile, "file", "f", "", "read statements from a file instead of the argument")
	rootCmd.AddCommand(sqlCmd)
}

func runSQL(args []string) error {
	if _, err := loadConfig(); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if sqlDataDir == "" {
		return fmt.Errorf("--data-dir is required")
	}

	var statements string
	switch {
	case sqlFile != "":
		data, err := os.ReadFile(sqlFile)
		if err != nil {
			return fmt.Errorf("reading %s: %w", sqlFile, err)
		}
		statements = string(data)
	case len(args) == 1:
		statements = args[0]
	default:
		return fmt.Errorf("provide statements as an argument or via --file")
	}
	if strings.TrimSpace(statements) == "" {
		return fmt.Errorf("no statements to execute")
	}

	indexDir := filepath.Join(sqlDataDir, "indexes")
	eng, err := engine.Open(sqlDataDir, indexDir)
	if err != nil {
		return fmt.Errorf("opening engine: %w", err)
	}

	result := eng.ExecuteBatch(statements)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}
	if !result.Success {
		os.Exit(1)
	}
	return nil
}
