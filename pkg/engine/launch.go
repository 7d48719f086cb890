package engine

import (
	"path/filepath"

	"github.com/ormasoftchile/rail/pkg/config"
	"github.com/ormasoftchile/rail/pkg/process"
)

// Executables are the resolved paths the engine is launched with.
type Executables struct {
	Engine      string
	Interpreter string
}

// ResolveExecutables locates the engine binary and the interpreter it
// shells out to. Both are required.
func ResolveExecutables(cfg *config.Config, r process.Resolver) (Executables, error) {
	engineBin, err := r.Resolve(cfg.Engine.Binary, cfg.Engine.BinaryEnv)
	if err != nil {
		return Executables{}, err
	}
	interp, err := r.Resolve(cfg.Engine.Interpreter, cfg.Engine.InterpreterEnv)
	if err != nil {
		return Executables{}, err
	}
	return Executables{Engine: engineBin, Interpreter: interp}, nil
}

// Command builds the spawn spec for the engine running in cwd with the
// given home directory.
func Command(cfg *config.Config, exe Executables, cwd, home string, r process.Resolver) process.Spec {
	env := []string{"CODEX_HOME=" + home}
	if path := r.BuildPath(filepath.Dir(exe.Engine), filepath.Dir(exe.Interpreter)); path != "" {
		env = append(env, "PATH="+path)
	}
	return process.Spec{
		Path: exe.Engine,
		Args: append([]string(nil), cfg.Engine.Args...),
		Dir:  cwd,
		Env:  env,
	}
}
