// Package config loads rail's YAML configuration, applies environment
// overrides and validates the result.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for fields left unset.
const (
	DefaultEngineBinary    = "codex"
	DefaultEngineBinaryEnv = "RAIL_CODEX_BIN"
	DefaultInterpreter     = "node"
	DefaultInterpreterEnv  = "RAIL_NODE_BIN"
	DefaultClientName      = "rail"
	DefaultEngineTimeout   = 90 * time.Second
	DefaultWorkerTimeout   = 240 * time.Second
	DefaultWorkerScript    = "scripts/web_worker/index.mjs"

	HomeModeGlobal   = "global"
	HomeModeIsolated = "isolated"

	DecisionPrompt  = "prompt"
	DecisionAccept  = "accept"
	DecisionDecline = "decline"
)

// DefaultEngineArgs are passed to the engine binary.
var DefaultEngineArgs = []string{"app-server", "--listen", "stdio://"}

// Config is the top-level configuration document.
type Config struct {
	DataDir   string          `yaml:"dataDir,omitempty"   json:"dataDir,omitempty"`
	Engine    EngineConfig    `yaml:"engine,omitempty"    json:"engine,omitempty"`
	Worker    WorkerConfig    `yaml:"worker,omitempty"    json:"worker,omitempty"`
	Approvals ApprovalConfig  `yaml:"approvals,omitempty" json:"approvals,omitempty"`
	Logging   LoggingConfig   `yaml:"logging,omitempty"   json:"logging,omitempty"`
	Telemetry TelemetryConfig `yaml:"telemetry,omitempty" json:"telemetry,omitempty"`
}

// EngineConfig describes how the agent engine is launched.
type EngineConfig struct {
	Binary         string   `yaml:"binary,omitempty"         json:"binary,omitempty"`
	BinaryEnv      string   `yaml:"binaryEnv,omitempty"      json:"binaryEnv,omitempty"`
	Interpreter    string   `yaml:"interpreter,omitempty"    json:"interpreter,omitempty"`
	InterpreterEnv string   `yaml:"interpreterEnv,omitempty" json:"interpreterEnv,omitempty"`
	Args           []string `yaml:"args,omitempty"           json:"args,omitempty"`
	RequestTimeout string   `yaml:"requestTimeout,omitempty" json:"requestTimeout,omitempty" jsonschema:"pattern=^[0-9]+(ms|s|m|h)$"`
	ClientName     string   `yaml:"clientName,omitempty"     json:"clientName,omitempty"`
	HomeMode       string   `yaml:"homeMode,omitempty"       json:"homeMode,omitempty"       jsonschema:"enum=global,enum=isolated"`
	Home           string   `yaml:"home,omitempty"           json:"home,omitempty"`
}

// WorkerConfig describes how the web automation worker is launched.
type WorkerConfig struct {
	Script                 string `yaml:"script,omitempty"                 json:"script,omitempty"`
	RequestTimeout         string `yaml:"requestTimeout,omitempty"         json:"requestTimeout,omitempty" jsonschema:"pattern=^[0-9]+(ms|s|m|h)$"`
	UseSystemChromeProfile bool   `yaml:"useSystemChromeProfile,omitempty" json:"useSystemChromeProfile,omitempty"`
}

// ApprovalConfig holds the policy answering approval requests.
type ApprovalConfig struct {
	Default string         `yaml:"default,omitempty" json:"default,omitempty" jsonschema:"enum=prompt,enum=accept,enum=decline"`
	Rules   []ApprovalRule `yaml:"rules,omitempty"   json:"rules,omitempty"`
}

// ApprovalRule decides requests for which When evaluates to true.
type ApprovalRule struct {
	Name     string `yaml:"name"     json:"name"     jsonschema:"required"`
	When     string `yaml:"when"     json:"when"     jsonschema:"required"`
	Decision string `yaml:"decision" json:"decision" jsonschema:"required,enum=prompt,enum=accept,enum=decline"`
}

// LoggingConfig controls the log file.
type LoggingConfig struct {
	Path  string `yaml:"path,omitempty"  json:"path,omitempty"`
	Level string `yaml:"level,omitempty" json:"level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// TelemetryConfig controls trace and metric export.
type TelemetryConfig struct {
	Enabled bool   `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Output  string `yaml:"output,omitempty"  json:"output,omitempty"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.DataDir == "" {
		c.DataDir = defaultDataDir()
	}
	c.DataDir = ExpandHome(c.DataDir)

	e := &c.Engine
	if e.Binary == "" {
		e.Binary = DefaultEngineBinary
	}
	if e.BinaryEnv == "" {
		e.BinaryEnv = DefaultEngineBinaryEnv
	}
	if e.Interpreter == "" {
		e.Interpreter = DefaultInterpreter
	}
	if e.InterpreterEnv == "" {
		e.InterpreterEnv = DefaultInterpreterEnv
	}
	if len(e.Args) == 0 {
		e.Args = append([]string(nil), DefaultEngineArgs...)
	}
	if e.ClientName == "" {
		e.ClientName = DefaultClientName
	}
	if e.HomeMode == "" {
		e.HomeMode = HomeModeGlobal
	}
	e.Home = ExpandHome(e.Home)

	c.Worker.Script = ExpandHome(c.Worker.Script)

	if c.Approvals.Default == "" {
		c.Approvals.Default = DecisionPrompt
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Path == "" {
		c.Logging.Path = filepath.Join(c.DataDir, "logs", "rail.log")
	}
	c.Logging.Path = ExpandHome(c.Logging.Path)
	if c.Telemetry.Output == "" {
		c.Telemetry.Output = "stderr"
	}
}

// ApplyEnv overrides fields from the environment. lookup defaults to
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	if v, ok := get("RAIL_DATA_DIR"); ok {
		c.DataDir = v
	}
	if v, ok := get("RAIL_LOG_LEVEL"); ok {
		c.Logging.Level = strings.ToLower(v)
	}
	if v, ok := get("RAIL_CODEX_HOME"); ok {
		c.Engine.Home = v
	}
	if v, ok := get("RAIL_CODEX_HOME_MODE"); ok {
		c.Engine.HomeMode = strings.ToLower(v)
	}
}

// EngineTimeout returns the engine request timeout.
func (c *Config) EngineTimeout() time.Duration {
	return parseDurationOr(c.Engine.RequestTimeout, DefaultEngineTimeout)
}

// WorkerTimeout returns the worker request timeout.
func (c *Config) WorkerTimeout() time.Duration {
	return parseDurationOr(c.Worker.RequestTimeout, DefaultWorkerTimeout)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Load parses a configuration with strict unknown-field rejection. Defaults
// are not applied.
func Load(r io.Reader) (*Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var c Config
	if err := dec.Decode(&c); err != nil {
		if errors.Is(err, io.EOF) {
			return &c, nil
		}
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &c, nil
}

// LoadFile opens and parses path.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Resolve loads the configuration used by commands: the explicit path if
// given, else the first of ./rail.yaml and <dataDir>/config.yaml that
// exists, else defaults. Environment overrides and defaults are applied.
func Resolve(path string) (*Config, string, error) {
	if path == "" {
		for _, candidate := range []string{"rail.yaml", filepath.Join(defaultDataDir(), "config.yaml")} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	c := &Config{}
	if path != "" {
		loaded, err := LoadFile(path)
		if err != nil {
			return nil, path, err
		}
		c = loaded
	}
	c.ApplyEnv(nil)
	c.ApplyDefaults()
	return c, path, nil
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "rail")
	}
	return filepath.Join(os.TempDir(), "rail")
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
