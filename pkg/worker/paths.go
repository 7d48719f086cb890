package worker

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ormasoftchile/rail/pkg/config"
	"github.com/ormasoftchile/rail/pkg/process"
)

// Paths are the per-installation locations the worker writes to.
type Paths struct {
	ProfileRoot string `json:"profileRoot"`
	LogPath     string `json:"logPath"`
}

// PrepareDirs creates the data directory, the browser profile root and the
// log directory, all private to the current user.
func PrepareDirs(dataDir string) (Paths, error) {
	if err := process.EnsurePrivateDir(dataDir, "app data"); err != nil {
		return Paths{}, err
	}
	p := Paths{
		ProfileRoot: filepath.Join(dataDir, "providers"),
		LogPath:     filepath.Join(dataDir, "web-worker.log"),
	}
	if err := process.EnsurePrivateDir(p.ProfileRoot, "provider profile root"); err != nil {
		return Paths{}, err
	}
	if err := process.EnsurePrivateDir(filepath.Dir(p.LogPath), "worker log"); err != nil {
		return Paths{}, err
	}
	return p, nil
}

// ScriptCandidates lists where the worker script is looked for: the
// configured path alone when set, otherwise next to the executable and
// then under the working directory.
func ScriptCandidates(cfg *config.Config, exeDir, cwd string) []string {
	if cfg.Worker.Script != "" {
		return []string{cfg.Worker.Script}
	}
	var out []string
	if exeDir != "" {
		out = append(out,
			filepath.Join(exeDir, config.DefaultWorkerScript),
			filepath.Join(exeDir, "..", config.DefaultWorkerScript))
	}
	if cwd != "" {
		out = append(out, filepath.Join(cwd, config.DefaultWorkerScript))
	}
	return out
}

// ResolveScript returns the first existing candidate.
func ResolveScript(candidates []string) (string, error) {
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.Mode().IsRegular() {
			abs, err := filepath.Abs(c)
			if err != nil {
				return c, nil
			}
			return abs, nil
		}
	}
	return "", &process.SpawnError{Op: "resolve", Binary: config.DefaultWorkerScript,
		Err: fmt.Errorf("web worker script not found in install directory or working directory (tried %d locations)", len(candidates))}
}
