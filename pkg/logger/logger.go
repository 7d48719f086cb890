// Package logger holds the process-wide structured logger. Until Init is
// called every accessor falls back to slog.Default().
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

var (
	root     *slog.Logger
	levelVar = new(slog.LevelVar)
	logFile  *os.File
	mu       sync.Mutex
	logPath  string
)

// Init opens (or creates) the log file at path and routes all loggers to it.
// Calling Init again is a no-op until Reset.
func Init(path string) error {
	mu.Lock()
	defer mu.Unlock()

	if root != nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	logFile = f
	logPath = path
	root = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: levelVar}))
	root.Info("logger initialized", "path", path)
	return nil
}

// InitWriter routes all loggers to w. Used by commands that log to stderr.
func InitWriter(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	root = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: levelVar}))
}

// Path returns the active log file path, or "" when logging elsewhere.
func Path() string {
	mu.Lock()
	defer mu.Unlock()
	return logPath
}

// SetLevel accepts debug, info, warn or error.
func SetLevel(level string) error {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "", "info":
		levelVar.Set(slog.LevelInfo)
	case "warn", "warning":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level %q", level)
	}
	return nil
}

// Get returns the root logger.
func Get() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if root == nil {
		return slog.Default()
	}
	return root
}

// WithComponent returns a logger tagged with the component name.
//
//	log := logger.WithComponent("engine")
//	log.Info("handshake complete", "instance", id)
//	// level=INFO msg="handshake complete" component=engine instance=...
func WithComponent(component string) *slog.Logger {
	return Get().With("component", component)
}

// Close closes the log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	root = nil
}

// Reset clears all state so Init can run again. Tests only.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	logPath = ""
	root = nil
	levelVar = new(slog.LevelVar)
}

// LineSampler logs child stderr lines at debug level, keeping the first
// burst and then at most one line per interval.
type LineSampler struct {
	log       *slog.Logger
	sometimes rate.Sometimes
}

// NewLineSampler returns a sampler that logs the first burst lines and then
// one line per interval.
func NewLineSampler(log *slog.Logger, burst int, interval time.Duration) *LineSampler {
	return &LineSampler{log: log, sometimes: rate.Sometimes{First: burst, Interval: interval}}
}

// Log records line if the sampler allows it.
func (s *LineSampler) Log(line string) {
	s.sometimes.Do(func() {
		s.log.Debug("child stderr", "line", line)
	})
}
