package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleConfig = `
dataDir: /tmp/rail-data
engine:
  binary: /usr/local/bin/codex
  requestTimeout: 30s
  homeMode: isolated
worker:
  requestTimeout: 5m
approvals:
  default: decline
  rules:
    - name: listing
      when: 'method == "item/commandExecution/requestApproval"'
      decision: accept
logging:
  level: debug
`

func TestLoad(t *testing.T) {
	c, err := Load(strings.NewReader(sampleConfig))
	if err != nil {
		t.Fatal(err)
	}
	c.ApplyDefaults()

	if c.Engine.Binary != "/usr/local/bin/codex" {
		t.Errorf("binary = %q", c.Engine.Binary)
	}
	if c.EngineTimeout() != 30*time.Second {
		t.Errorf("engine timeout = %v", c.EngineTimeout())
	}
	if c.WorkerTimeout() != 5*time.Minute {
		t.Errorf("worker timeout = %v", c.WorkerTimeout())
	}
	if c.Engine.HomeMode != HomeModeIsolated {
		t.Errorf("home mode = %q", c.Engine.HomeMode)
	}
	if c.Engine.BinaryEnv != DefaultEngineBinaryEnv || c.Engine.ClientName != "rail" {
		t.Errorf("defaults not applied: %+v", c.Engine)
	}
	if c.Logging.Path != filepath.Join("/tmp/rail-data", "logs", "rail.log") {
		t.Errorf("log path = %q", c.Logging.Path)
	}
	if len(c.Approvals.Rules) != 1 || c.Approvals.Rules[0].Decision != DecisionAccept {
		t.Errorf("rules = %+v", c.Approvals.Rules)
	}
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	_, err := Load(strings.NewReader("engine:\n  bianry: codex\n"))
	if err == nil || !strings.Contains(err.Error(), "bianry") {
		t.Fatalf("err = %v, want unknown field error", err)
	}
}

func TestLoad_Empty(t *testing.T) {
	c, err := Load(strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}
	c.ApplyDefaults()
	if c.EngineTimeout() != DefaultEngineTimeout || c.WorkerTimeout() != DefaultWorkerTimeout {
		t.Errorf("timeouts = %v, %v", c.EngineTimeout(), c.WorkerTimeout())
	}
	if strings.Join(c.Engine.Args, " ") != "app-server --listen stdio://" {
		t.Errorf("args = %v", c.Engine.Args)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"RAIL_DATA_DIR":        "/data",
		"RAIL_LOG_LEVEL":       "DEBUG",
		"RAIL_CODEX_HOME":      "/codex",
		"RAIL_CODEX_HOME_MODE": " Isolated ",
	}
	c := &Config{}
	c.ApplyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok })

	if c.DataDir != "/data" || c.Logging.Level != "debug" || c.Engine.Home != "/codex" || c.Engine.HomeMode != "isolated" {
		t.Errorf("env not applied: %+v", c)
	}
}

func TestResolve_ExplicitFile(t *testing.T) {
	t.Setenv("RAIL_DATA_DIR", "")
	t.Setenv("RAIL_LOG_LEVEL", "")
	t.Setenv("RAIL_CODEX_HOME", "")
	t.Setenv("RAIL_CODEX_HOME_MODE", "")

	path := filepath.Join(t.TempDir(), "rail.yaml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	c, used, err := Resolve(path)
	if err != nil {
		t.Fatal(err)
	}
	if used != path || c.DataDir != "/tmp/rail-data" {
		t.Errorf("used %q, dataDir %q", used, c.DataDir)
	}
}

func TestGenerateJSONSchema(t *testing.T) {
	data, err := GenerateJSONSchema()
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}
	if doc["$id"] != "https://github.com/ormasoftchile/rail/schemas/config-v0.json" {
		t.Errorf("$id = %v", doc["$id"])
	}
	if !strings.Contains(string(data), "requestTimeout") {
		t.Error("schema missing engine fields")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		yaml      string
		wantPhase string
	}{
		{"valid", sampleConfig, ""},
		{"bad enum", "engine:\n  homeMode: shared\n", "semantic"},
		{"bad duration pattern", "worker:\n  requestTimeout: soon\n", "semantic"},
		{"rule missing decision", "approvals:\n  rules:\n    - name: a\n      when: 'true'\n", "semantic"},
		{"duplicate rule", "approvals:\n  rules:\n    - {name: a, when: 'true', decision: accept}\n    - {name: a, when: 'false', decision: decline}\n", "domain"},
		{"zero duration", "engine:\n  requestTimeout: 0s\n", "domain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Load(strings.NewReader(tt.yaml))
			if err != nil {
				t.Fatal(err)
			}
			errs := Validate(c)
			if tt.wantPhase == "" {
				if len(errs) != 0 {
					t.Fatalf("unexpected errors: %v", errs)
				}
				return
			}
			if len(errs) == 0 {
				t.Fatal("expected validation errors")
			}
			found := false
			for _, e := range errs {
				if e.Phase == tt.wantPhase {
					found = true
				}
			}
			if !found {
				t.Errorf("no %s error in %v", tt.wantPhase, errs)
			}
		})
	}
}

func TestValidateFile_Structural(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("engine: [\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, errs := ValidateFile(path)
	if len(errs) != 1 || errs[0].Phase != "structural" {
		t.Fatalf("errs = %v", errs)
	}
}
