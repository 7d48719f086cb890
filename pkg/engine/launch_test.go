package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/ormasoftchile/rail/pkg/config"
	"github.com/ormasoftchile/rail/pkg/events"
	"github.com/ormasoftchile/rail/pkg/jsonrpc"
	"github.com/ormasoftchile/rail/pkg/process"
	"github.com/ormasoftchile/rail/pkg/process/processtest"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestResolveHome(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(t *testing.T, cfg *config.Config, userHome string)
		want   func(cfg *config.Config, userHome string) string
		synced bool
	}{
		{
			name: "explicit home",
			setup: func(t *testing.T, cfg *config.Config, _ string) {
				cfg.Engine.Home = filepath.Join(cfg.DataDir, "custom")
			},
			want: func(cfg *config.Config, _ string) string { return filepath.Join(cfg.DataDir, "custom") },
		},
		{
			name: "global home with credentials",
			setup: func(t *testing.T, _ *config.Config, userHome string) {
				writeFile(t, filepath.Join(userHome, ".codex", "auth.json"), "{}")
			},
			want: func(_ *config.Config, userHome string) string { return filepath.Join(userHome, ".codex") },
		},
		{
			name:  "empty global home falls back to app home",
			setup: func(*testing.T, *config.Config, string) {},
			want:  func(cfg *config.Config, _ string) string { return filepath.Join(cfg.DataDir, "codex-home") },
		},
		{
			name: "isolated mode ignores global config and syncs it",
			setup: func(t *testing.T, cfg *config.Config, userHome string) {
				cfg.Engine.HomeMode = config.HomeModeIsolated
				writeFile(t, filepath.Join(userHome, ".codex", "config.toml"), "model = \"x\"\n")
				writeFile(t, filepath.Join(userHome, ".codex", "agents", "review.toml"), "name = \"review\"\n")
				writeFile(t, filepath.Join(userHome, ".codex", "agents", "notes.md"), "ignored")
			},
			want:   func(cfg *config.Config, _ string) string { return filepath.Join(cfg.DataDir, "codex-home") },
			synced: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.DataDir = t.TempDir()
			userHome := t.TempDir()
			tt.setup(t, cfg, userHome)

			got, err := ResolveHome(cfg, userHome)
			if err != nil {
				t.Fatal(err)
			}
			if want := tt.want(cfg, userHome); got != want {
				t.Errorf("home = %q, want %q", got, want)
			}
			info, err := os.Stat(got)
			if err != nil || info.Mode().Perm() != 0o700 {
				t.Errorf("home not a private dir: %v %v", info, err)
			}
			if tt.synced {
				if _, err := os.Stat(filepath.Join(got, "config.toml")); err != nil {
					t.Error("config.toml not synced")
				}
				if _, err := os.Stat(filepath.Join(got, "agents", "review.toml")); err != nil {
					t.Error("agent not synced")
				}
				if _, err := os.Stat(filepath.Join(got, "agents", "notes.md")); err == nil {
					t.Error("non-toml agent file synced")
				}
			}
		})
	}
}

func fakeResolver(t *testing.T) (process.Resolver, string) {
	t.Helper()
	bin := t.TempDir()
	return process.Resolver{
		LookupEnv: func(key string) (string, bool) {
			if key == "PATH" {
				return "/usr/bin", true
			}
			return "", false
		},
		LookPath: func(name string) (string, error) {
			if name == "codex" || name == "node" {
				return filepath.Join(bin, name), nil
			}
			return "", errors.New("not found")
		},
		HomeDir:   t.TempDir(),
		Fallbacks: []string{},
	}, bin
}

func TestResolveExecutables(t *testing.T) {
	r, bin := fakeResolver(t)
	exe, err := ResolveExecutables(config.Default(), r)
	if err != nil {
		t.Fatal(err)
	}
	if exe.Engine != filepath.Join(bin, "codex") || exe.Interpreter != filepath.Join(bin, "node") {
		t.Errorf("executables = %+v", exe)
	}

	cfg := config.Default()
	cfg.Engine.Interpreter = "missing-node"
	_, err = ResolveExecutables(cfg, r)
	if err == nil || !strings.Contains(err.Error(), "failed to resolve executable `missing-node`; set RAIL_NODE_BIN to an absolute path") {
		t.Errorf("err = %v", err)
	}
}

func TestStart_SpawnsWithCommand(t *testing.T) {
	r, bin := fakeResolver(t)
	rec := events.NewRecorder()
	opts := testOptions(t, rec)
	opts.Config.Engine.HomeMode = config.HomeModeIsolated
	opts.Resolver = r
	opts.Cwd = t.TempDir()

	child := processtest.NewChild()
	var spec process.Spec
	opts.Spawner = func(_ context.Context, s process.Spec) (process.Handle, error) {
		spec = s
		return child, nil
	}
	child.Serve(func(*jsonrpc.Envelope) (any, error) { return map[string]any{}, nil })

	rt, err := Start(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Stop()

	if spec.Path != filepath.Join(bin, "codex") || spec.Dir != opts.Cwd {
		t.Errorf("spec = %+v", spec)
	}
	if !slices.Equal(spec.Args, config.DefaultEngineArgs) {
		t.Errorf("args = %v", spec.Args)
	}
	wantHome := filepath.Join(opts.Config.DataDir, "codex-home")
	if !slices.Contains(spec.Env, "CODEX_HOME="+wantHome) || rt.Home() != wantHome {
		t.Errorf("env = %v, home = %s", spec.Env, rt.Home())
	}
	var path string
	for _, kv := range spec.Env {
		if strings.HasPrefix(kv, "PATH=") {
			path = strings.TrimPrefix(kv, "PATH=")
		}
	}
	if !strings.HasPrefix(path, bin) {
		t.Errorf("PATH = %q, want binary dir first", path)
	}
}

func TestStart_SpawnFailure(t *testing.T) {
	r, _ := fakeResolver(t)
	opts := testOptions(t, events.NewRecorder())
	opts.Resolver = r
	opts.Spawner = func(context.Context, process.Spec) (process.Handle, error) {
		return nil, &process.SpawnError{Op: "start", Binary: "codex", Err: errors.New("exec format error")}
	}
	_, err := Start(context.Background(), opts)
	var se *process.SpawnError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v", err)
	}
}
