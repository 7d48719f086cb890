// Package worker runs the web automation worker: a script under the
// JavaScript interpreter speaking line-delimited JSON-RPC on stdio.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ormasoftchile/rail/pkg/config"
	"github.com/ormasoftchile/rail/pkg/events"
	"github.com/ormasoftchile/rail/pkg/jsonrpc"
	"github.com/ormasoftchile/rail/pkg/logger"
	"github.com/ormasoftchile/rail/pkg/process"
)

// Notifications emitted on behalf of the worker.
const (
	NotifyReady            = "web/worker/ready"
	NotifyStopped          = "web/worker/stopped"
	NotifyParseError       = "web/worker/parseError"
	NotifyReadError        = "web/worker/readError"
	NotifyStderr           = "web/worker/stderr"
	NotifyStderrError      = "web/worker/stderrError"
	NotifyUnhandledRequest = "web/worker/unhandledServerRequest"
)

// Stop reasons reported in NotifyStopped.
const (
	ReasonStdoutClosed = "stdout closed"
	ReasonStopped      = "engine command stop"
)

// Options configures a worker runtime.
type Options struct {
	Config   *config.Config
	Emitter  events.Emitter
	Hook     jsonrpc.Hook
	Spawner  process.Spawner
	Resolver process.Resolver
	// ExeDir and Cwd seed the script search; they default to the running
	// executable's directory and the process working directory.
	ExeDir string
	Cwd    string
}

func (o *Options) defaults() {
	if o.Config == nil {
		o.Config = config.Default()
	}
	if o.Emitter == nil {
		o.Emitter = events.Discard
	}
	if o.Spawner == nil {
		o.Spawner = process.Spawn
	}
	if o.ExeDir == "" {
		if exe, err := os.Executable(); err == nil {
			o.ExeDir = filepath.Dir(exe)
		}
	}
	if o.Cwd == "" {
		o.Cwd, _ = os.Getwd()
	}
}

// Runtime is one running worker process.
type Runtime struct {
	id    string
	paths Paths
	log   *slog.Logger
	emit  events.Emitter

	child  process.Handle
	conn   *jsonrpc.Conn
	stderr *process.LineReader

	stopOnce sync.Once
	stopErr  error
}

// Command builds the spawn spec for the worker.
func Command(cfg *config.Config, interpreter, script string, p Paths) process.Spec {
	chrome := "0"
	if cfg.Worker.UseSystemChromeProfile {
		chrome = "1"
	}
	return process.Spec{
		Path: interpreter,
		Args: []string{script},
		Dir:  cfg.DataDir,
		Env: []string{
			"RAIL_WEB_PROFILE_ROOT=" + p.ProfileRoot,
			"RAIL_WEB_LOG_PATH=" + p.LogPath,
			"RAIL_WEB_USE_SYSTEM_CHROME_PROFILE=" + chrome,
			"RAIL_PARENT_PID=" + strconv.Itoa(os.Getpid()),
		},
	}
}

// Start resolves the interpreter and script, prepares the worker's
// directories and launches it.
func Start(ctx context.Context, opts Options) (*Runtime, error) {
	opts.defaults()
	cfg := opts.Config

	interp, err := opts.Resolver.Resolve(cfg.Engine.Interpreter, cfg.Engine.InterpreterEnv)
	if err != nil {
		return nil, err
	}
	script, err := ResolveScript(ScriptCandidates(cfg, opts.ExeDir, opts.Cwd))
	if err != nil {
		return nil, err
	}
	paths, err := PrepareDirs(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	child, err := opts.Spawner(ctx, Command(cfg, interp, script, paths))
	if err != nil {
		return nil, err
	}
	return Open(child, paths, opts), nil
}

// Open attaches a runtime to a running worker child. The worker has no
// handshake, so it is usable immediately.
func Open(child process.Handle, paths Paths, opts Options) *Runtime {
	opts.defaults()
	id := uuid.NewString()
	r := &Runtime{
		id:    id,
		paths: paths,
		log:   logger.WithComponent("worker").With("instance", id, "pid", child.Pid()),
		emit:  opts.Emitter,
		child: child,
	}

	r.conn = jsonrpc.NewConn(child.Stdout(), child.Stdin(), jsonrpc.Options{
		Peer:    "web worker",
		Timeout: opts.Config.WorkerTimeout(),
		Hook:    opts.Hook,
		Logger:  r.log,
		Handler: jsonrpc.Handler{
			OnRequest: func(env *jsonrpc.Envelope) {
				r.notify(NotifyUnhandledRequest, map[string]any{
					"requestId": env.ID,
					"method":    env.Method,
					"params":    orNull(env.Params),
				})
			},
			OnNotification: func(env *jsonrpc.Envelope) {
				events.EmitNotification(r.emit, env.Method, env.Params)
			},
			OnParseError: func(err *jsonrpc.FramingError) {
				r.log.Warn("unparseable line from worker", "error", err.Err)
				r.notify(NotifyParseError, map[string]string{"error": err.Error()})
			},
			OnClosed: func(err error) {
				if err == nil {
					r.notify(NotifyStopped, map[string]string{"reason": ReasonStdoutClosed})
					return
				}
				r.notify(NotifyReadError, map[string]string{"error": err.Error()})
			},
		},
	})
	r.conn.Start()

	sampler := logger.NewLineSampler(r.log, 10, time.Second)
	r.stderr = process.ReadLines(child.Stderr(),
		func(line string) {
			sampler.Log(line)
			r.notify(NotifyStderr, map[string]string{"line": line})
		},
		func(err error) {
			r.notify(NotifyStderrError, map[string]string{"error": err.Error()})
		})

	r.log.Info("web worker started", "profileRoot", paths.ProfileRoot, "logPath", paths.LogPath)
	r.notify(NotifyReady, paths)
	return r
}

func (r *Runtime) notify(method string, params any) {
	events.EmitNotification(r.emit, method, params)
}

// ID identifies this runtime instance.
func (r *Runtime) ID() string { return r.id }

// Paths returns the directories prepared for the worker.
func (r *Runtime) Paths() Paths { return r.paths }

// Pid returns the child's process id.
func (r *Runtime) Pid() int { return r.child.Pid() }

// Alive reports whether the child and its output stream are still up.
func (r *Runtime) Alive() bool {
	select {
	case <-r.child.Done():
		return false
	case <-r.conn.Done():
		return false
	default:
		return true
	}
}

// Request calls method on the worker.
func (r *Runtime) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	return r.conn.Request(ctx, method, params)
}

// Notify sends a notification to the worker.
func (r *Runtime) Notify(ctx context.Context, method string, params any) error {
	return r.conn.Notify(ctx, method, params)
}

// Stop aborts both loops, kills the child and fails outstanding calls with
// "web worker stopped". Only the first call does anything.
func (r *Runtime) Stop() error {
	r.stopOnce.Do(func() {
		r.conn.Abort()
		r.stderr.Stop()
		if err := r.child.Kill(); err != nil {
			r.log.Warn("killing web worker", "error", err)
			r.stopErr = fmt.Errorf("stop web worker: %w", err)
		}
		if n := r.conn.Close(jsonrpc.ErrStopped); n > 0 {
			r.log.Debug("failed pending calls on stop", "count", n)
		}
		r.log.Info("web worker stopped")
		r.notify(NotifyStopped, map[string]string{"reason": ReasonStopped})
	})
	return r.stopErr
}

func orNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}
