package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/ormasoftchile/rail/pkg/config"
	"github.com/ormasoftchile/rail/pkg/engine"
	"github.com/ormasoftchile/rail/pkg/process"
	"github.com/ormasoftchile/rail/pkg/worker"
)

var whichCmd = &cobra.Command{
	Use:   "which",
	Short: "Show the executables, script and directories rail would use",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := config.Resolve(configPath)
		if err != nil {
			return err
		}
		return printWhich(cmd, cfg, path, process.Resolver{})
	},
}

func printWhich(cmd *cobra.Command, cfg *config.Config, cfgPath string, r process.Resolver) error {
	w := cmd.OutOrStdout()
	row := func(name, value string, err error) {
		if err != nil {
			value = "✗ " + err.Error()
		}
		fmt.Fprintf(w, "%s  %s\n", runewidth.FillRight(name, 13), value)
	}

	if cfgPath == "" {
		cfgPath = "(defaults)"
	}
	row("config", cfgPath, nil)
	row("data dir", cfg.DataDir, nil)

	exe, err := engine.ResolveExecutables(cfg, r)
	if err != nil {
		row("engine", "", err)
	} else {
		row("engine", exe.Engine, nil)
		row("interpreter", exe.Interpreter, nil)
	}

	home, err := os.UserHomeDir()
	if err == nil {
		home, err = engine.ResolveHome(cfg, home)
	}
	row("engine home", home, err)

	exeDir := ""
	if p, err := os.Executable(); err == nil {
		exeDir = filepath.Dir(p)
	}
	cwd, _ := os.Getwd()
	script, err := worker.ResolveScript(worker.ScriptCandidates(cfg, exeDir, cwd))
	row("worker script", script, err)
	row("log file", cfg.Logging.Path, nil)
	return nil
}
