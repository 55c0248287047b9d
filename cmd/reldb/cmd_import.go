package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jochuuuu/reldb/internal/engine"
)

var (
	importDataDir   string
	importDelimiter string
	importEncoding  string
	importNoHeader  bool
)

var importCmd = &cobra.Command{
	Use:   "import <table> <csv-path>",
	Short: "Bulk-load a CSV file into an existing table",
	Long: `Equivalent to running IMPORT FROM CSV '<csv-path>' INTO <table> through
'reldb sql' — mismatched/unparseable cells fall back to the column's zero
value and the row still inserts unless the primary key itself is bad; rows
that collide on a unique key are reported by row number.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(args[0], args[1])
	},
}

func init() {
	importCmd.Flags().StringVarP(&importDataDir, "data-dir", "d", "", "data directory (required)")
	importCmd.Flags().StringVar(&importDelimiter, "delimiter", "", "CSV delimiter (auto-detected if omitted)")
	importCmd.Flags().StringVar(&importEncoding, "encoding", "", "CSV text encoding")
	importCmd.Flags().BoolVar(&importNoHeader, "no-header", false, "the CSV file has no header row")
	rootCmd.AddCommand(importCmd)
}

func runImport(table, csvPath string) error {
	if _, err := loadConfig(); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if importDataDir == "" {
		return fmt.Errorf("--data-dir is required")
	}

	stmt := fmt.Sprintf("IMPORT FROM CSV '%s' INTO %s", csvPath, table)
	var opts []string
	if importDelimiter != "" {
		opts = append(opts, fmt.Sprintf("DELIMITER '%s'", importDelimiter))
	}
	if importEncoding != "" {
		opts = append(opts, fmt.Sprintf("ENCODING '%s'", importEncoding))
	}
	if importNoHeader {
		opts = append(opts, "NO_HEADER")
	}
	if len(opts) > 0 {
		stmt += " WITH "
		for i, o := range opts {
			if i > 0 {
				stmt += " "
			}
			stmt += o
		}
	}
	stmt += ";"

	indexDir := filepath.Join(importDataDir, "indexes")
	eng, err := engine.Open(importDataDir, indexDir)
	if err != nil {
		return fmt.Errorf("opening engine: %w", err)
	}

	result := eng.ExecuteBatch(stmt)
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
