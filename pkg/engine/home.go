package engine

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/ormasoftchile/rail/pkg/config"
	"github.com/ormasoftchile/rail/pkg/logger"
	"github.com/ormasoftchile/rail/pkg/process"
)

// ResolveHome picks the engine home directory (CODEX_HOME). An explicit
// home wins. In global mode the user's ~/.codex is used when it already
// holds a config or credentials; otherwise an app-private home under the
// data directory is prepared and seeded from ~/.codex.
func ResolveHome(cfg *config.Config, userHome string) (string, error) {
	if home := strings.TrimSpace(cfg.Engine.Home); home != "" {
		if err := process.EnsurePrivateDir(home, "override codex home"); err != nil {
			return "", err
		}
		return home, nil
	}

	if cfg.Engine.HomeMode != config.HomeModeIsolated && userHome != "" {
		global := filepath.Join(userHome, ".codex")
		if err := process.EnsurePrivateDir(global, "global codex home"); err != nil {
			return "", err
		}
		if isFile(filepath.Join(global, "config.toml")) || isFile(filepath.Join(global, "auth.json")) {
			return global, nil
		}
	}

	if err := process.EnsurePrivateDir(cfg.DataDir, "app data"); err != nil {
		return "", err
	}
	home := filepath.Join(cfg.DataDir, "codex-home")
	if err := process.EnsurePrivateDir(home, "codex home"); err != nil {
		return "", err
	}
	if userHome != "" {
		if err := syncGlobalConfig(filepath.Join(userHome, ".codex"), home); err != nil {
			logger.WithComponent("engine").Warn("failed to sync global codex config into app codex-home", "error", err)
		}
	}
	return home, nil
}

// syncGlobalConfig copies config.toml and agents/*.toml from global into
// home when they are newer.
func syncGlobalConfig(global, home string) error {
	if info, err := os.Stat(global); err != nil || !info.IsDir() {
		return nil
	}
	if _, err := process.CopyIfNewer(filepath.Join(global, "config.toml"), filepath.Join(home, "config.toml")); err != nil {
		return err
	}

	agents, err := filepath.Glob(filepath.Join(global, "agents", "*.toml"))
	if err != nil {
		return err
	}
	for _, src := range agents {
		if !isFile(src) {
			continue
		}
		if _, err := process.CopyIfNewer(src, filepath.Join(home, "agents", filepath.Base(src))); err != nil {
			return err
		}
	}
	return nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
