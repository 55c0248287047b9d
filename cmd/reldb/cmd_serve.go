package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jochuuuu/reldb/internal/api"
	"github.com/jochuuuu/reldb/internal/daemon"
	"github.com/jochuuuu/reldb/internal/engine"
	"github.com/jochuuuu/reldb/internal/logging"
	"github.com/jochuuuu/reldb/internal/preflight"
)

var (
	serveDataDir string
	serveHost    string
	servePort    int
	serveDaemon  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start reldb's REST API: POST /v1/sql executes a batch of
statements against the engine and GET /v1/healthz reports liveness.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveDataDir, "data-dir", "d", "", "data directory (overrides config)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "REST API host (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "REST API port (overrides config)")
	serveCmd.Flags().BoolVar(&serveDaemon, "daemon", false, "run in the background")
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if serveDataDir != "" {
		cfg.DataDir = serveDataDir
	}
	if serveHost != "" {
		cfg.RestAPI.Host = serveHost
	}
	if servePort != 0 {
		cfg.RestAPI.Port = servePort
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return err
	}

	d := daemon.New(cfg.DataDir, Version)
	if serveDaemon {
		if d.IsRunning() {
			status := d.Status()
			return fmt.Errorf("reldb server already running (PID %d)", status.PID)
		}
		// Rebuild args without --daemon to avoid forking forever.
		args := []string{"serve", "--data-dir", cfg.DataDir}
		if serveHost != "" {
			args = append(args, "--host", serveHost)
		}
		if servePort != 0 {
			args = append(args, "--port", fmt.Sprintf("%d", servePort))
		}
		if _, err := d.Daemonize(args); err != nil {
			return fmt.Errorf("daemonizing: %w", err)
		}
		fmt.Println("reldb server started in the background")
		return nil
	}

	indexDir := filepath.Join(cfg.DataDir, "indexes")
	report := preflight.Run(cfg.DataDir, indexDir)
	fmt.Print(preflight.FormatReport(report))
	if !report.AllOK() {
		return fmt.Errorf("preflight checks failed, refusing to start")
	}

	eng, err := engine.Open(cfg.DataDir, indexDir)
	if err != nil {
		return fmt.Errorf("opening engine: %w", err)
	}
	if err := d.WritePID(); err != nil {
		logging.GetLogger("serve").Warn("failed to write pid file", "error", err)
	}
	defer d.RemovePID()
	if err := d.WriteState(&daemon.State{
		PID:         os.Getpid(),
		StartTime:   time.Now(),
		Version:     Version,
		RESTEnabled: cfg.RestAPI.Enabled,
		RESTHost:    cfg.RestAPI.Host,
		RESTPort:    cfg.RestAPI.Port,
	}); err != nil {
		logging.GetLogger("serve").Warn("failed to write state file", "error", err)
	}
	defer d.RemoveState()

	if !cfg.RestAPI.Enabled {
		fmt.Println("REST API disabled in config; nothing to serve")
		return nil
	}

	server := api.NewServer(eng, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	return server.StartWithContext(ctx, 10*time.Second)
}
