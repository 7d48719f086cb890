package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setupTestLogger(t *testing.T) string {
	t.Helper()
	Reset()
	t.Cleanup(Reset)

	path := filepath.Join(t.TempDir(), "logs", "rail.log")
	if err := Init(path); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return path
}

func TestInit_CreatesFileAndDirectory(t *testing.T) {
	path := setupTestLogger(t)

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("log file missing: %v", err)
	}
	if Path() != path {
		t.Errorf("Path() = %q, want %q", Path(), path)
	}
}

func TestWithComponent(t *testing.T) {
	path := setupTestLogger(t)

	WithComponent("engine").Info("handshake complete", "instance", "abc")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	for _, want := range []string{"handshake complete", "component=engine", "instance=abc"} {
		if !strings.Contains(string(content), want) {
			t.Errorf("log missing %q:\n%s", want, content)
		}
	}
}

func TestSetLevel(t *testing.T) {
	path := setupTestLogger(t)

	tests := []struct {
		level   string
		wantErr bool
	}{
		{"debug", false},
		{"INFO", false},
		{"warning", false},
		{"error", false},
		{"", false},
		{"verbose", true},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			err := SetLevel(tt.level)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SetLevel(%q) error = %v, wantErr %v", tt.level, err, tt.wantErr)
			}
		})
	}

	if err := SetLevel("warn"); err != nil {
		t.Fatal(err)
	}
	Get().Info("hidden message")
	content, _ := os.ReadFile(path)
	if strings.Contains(string(content), "hidden message") {
		t.Error("info message written at warn level")
	}
}

func TestGet_FallsBackWithoutInit(t *testing.T) {
	Reset()
	t.Cleanup(Reset)
	if Get() == nil {
		t.Fatal("Get() returned nil before Init")
	}
}

func TestLineSampler(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	var buf bytes.Buffer
	InitWriter(&buf)
	if err := SetLevel("debug"); err != nil {
		t.Fatal(err)
	}

	s := NewLineSampler(WithComponent("worker"), 3, time.Hour)
	for i := 0; i < 10; i++ {
		s.Log("noise")
	}
	if got := strings.Count(buf.String(), "child stderr"); got != 3 {
		t.Errorf("sampled %d lines, want 3", got)
	}
}
