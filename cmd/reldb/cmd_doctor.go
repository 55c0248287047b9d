package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jochuuuu/reldb/internal/daemon"
	"github.com/jochuuuu/reldb/internal/preflight"
)

var doctorDataDir string

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run preflight checks against a data directory",
	Long: `Checks that the data and index directories are writable, that
there is free disk space, and that every registered table's heap file and
declared index files are present on disk, then reports whether a running
server instance was found.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDoctor()
	},
}

func init() {
	doctorCmd.Flags().StringVarP(&doctorDataDir, "data-dir", "d", "", "data directory (overrides config)")
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	dataDir := cfg.DataDir
	if doctorDataDir != "" {
		dataDir = doctorDataDir
	}

	fmt.Println("reldb doctor")
	fmt.Println("============")
	fmt.Println()

	report := preflight.Run(dataDir, filepath.Join(dataDir, "indexes"))
	fmt.Print(preflight.FormatReport(report))

	fmt.Println()
	d := daemon.New(dataDir, Version)
	status := d.Status()
	if status.Running {
		fmt.Printf("server... RUNNING (PID %d, uptime %s)\n", status.PID, status.Uptime.Round(1e9))
	} else {
		fmt.Println("server... NOT RUNNING")
	}

	if !report.AllOK() {
		os.Exit(1)
	}
	return nil
}
