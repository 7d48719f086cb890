// Package main provides the rail binary: it drives the agent engine and the
// web worker over JSON-RPC on their stdio.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/rail/pkg/config"
	"github.com/ormasoftchile/rail/pkg/events"
	"github.com/ormasoftchile/rail/pkg/logger"
	"github.com/ormasoftchile/rail/pkg/manager"
	"github.com/ormasoftchile/rail/pkg/telemetry"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "rail",
	Short:         "Drive the agent engine and web worker over JSON-RPC",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// app is what every command that talks to the children needs.
type app struct {
	cfg      *config.Config
	manager  *manager.Manager
	shutdown telemetry.ShutdownFunc
}

// newApp resolves the configuration, opens the log file, installs telemetry
// and builds a manager that reports to emit.
func newApp(emit events.Emitter) (*app, error) {
	cfg, path, err := config.Resolve(configPath)
	if err != nil {
		return nil, err
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		return nil, fmt.Errorf("invalid config %s: %w", path, errs[0])
	}
	if err := logger.Init(cfg.Logging.Path); err != nil {
		return nil, err
	}
	if err := logger.SetLevel(cfg.Logging.Level); err != nil {
		return nil, err
	}
	logger.Get().Info("rail starting", "version", version, "config", path, "dataDir", cfg.DataDir)

	hook, shutdown, err := telemetry.Setup(cfg.Telemetry, version)
	if err != nil {
		return nil, err
	}
	m := manager.New(manager.Options{
		Config:  cfg,
		Emitter: emit,
		Hook:    hook,
		Version: version,
	})
	return &app{cfg: cfg, manager: m, shutdown: shutdown}, nil
}

// Close stops both children and flushes telemetry.
func (a *app) Close() {
	if err := a.manager.Shutdown(); err != nil {
		logger.Get().Warn("shutdown failed", "error", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.shutdown(ctx); err != nil {
		logger.Get().Warn("telemetry shutdown failed", "error", err)
	}
	logger.Close()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "rail %s (build: %s)\n", version, commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to rail.yaml (default: ./rail.yaml, then the data directory)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(whichCmd)
	rootCmd.AddCommand(versionCmd)
}
