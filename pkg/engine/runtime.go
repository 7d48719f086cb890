// Package engine runs the agent engine child process: it launches it,
// performs the initialize handshake, gates traffic until the handshake is
// done and routes the engine's approval requests to the host.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ormasoftchile/rail/pkg/config"
	"github.com/ormasoftchile/rail/pkg/events"
	"github.com/ormasoftchile/rail/pkg/jsonrpc"
	"github.com/ormasoftchile/rail/pkg/logger"
	"github.com/ormasoftchile/rail/pkg/process"
)

// Approval request methods the engine sends to the host.
const (
	MethodCommandApproval    = "item/commandExecution/requestApproval"
	MethodFileChangeApproval = "item/fileChange/requestApproval"
)

// Synthetic notifications emitted by the runtime.
const (
	NotifyStderr               = "engine/stderr"
	NotifyUnhandledRequest     = "engine/unhandledServerRequest"
	NotifyApprovalResponseSent = "engine/approvalResponseSent"
)

// IsApprovalMethod reports whether method is a server request that waits
// for a host decision.
func IsApprovalMethod(method string) bool {
	return method == MethodCommandApproval || method == MethodFileChangeApproval
}

// Options configures a Runtime.
type Options struct {
	// Cwd is the engine's working directory.
	Cwd     string
	Config  *config.Config
	Emitter events.Emitter
	Hook    jsonrpc.Hook
	// Spawner defaults to process.Spawn.
	Spawner  process.Spawner
	Resolver process.Resolver
	// Version is reported in clientInfo.
	Version string
	// UserHome defaults to os.UserHomeDir.
	UserHome string
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
	if o.Version == "" {
		o.Version = "dev"
	}
	if o.UserHome == "" {
		o.UserHome, _ = os.UserHomeDir()
	}
}

// Runtime is one running engine process.
type Runtime struct {
	id   string
	opts Options
	home string
	log  *slog.Logger
	emit events.Emitter

	child     process.Handle
	conn      *jsonrpc.Conn
	stderr    *process.LineReader
	approvals *jsonrpc.ApprovalTable

	initialized atomic.Bool
	stopOnce    sync.Once
	stopErr     error
}

// Start launches the engine in opts.Cwd and completes the handshake. The
// runtime is only returned once it is ready.
func Start(ctx context.Context, opts Options) (*Runtime, error) {
	opts.defaults()

	home, err := ResolveHome(opts.Config, opts.UserHome)
	if err != nil {
		return nil, fmt.Errorf("resolve engine home: %w", err)
	}
	exe, err := ResolveExecutables(opts.Config, opts.Resolver)
	if err != nil {
		return nil, err
	}
	spec := Command(opts.Config, exe, opts.Cwd, home, opts.Resolver)

	child, err := opts.Spawner(ctx, spec)
	if err != nil {
		return nil, err
	}
	return open(ctx, child, home, opts)
}

// Open attaches a runtime to an already running child and performs the
// handshake.
func Open(ctx context.Context, child process.Handle, opts Options) (*Runtime, error) {
	opts.defaults()
	return open(ctx, child, opts.Config.Engine.Home, opts)
}

func open(ctx context.Context, child process.Handle, home string, opts Options) (*Runtime, error) {
	id := uuid.NewString()
	r := &Runtime{
		id:        id,
		opts:      opts,
		home:      home,
		log:       logger.WithComponent("engine").With("instance", id, "pid", child.Pid()),
		emit:      opts.Emitter,
		child:     child,
		approvals: jsonrpc.NewApprovalTable(),
	}

	r.conn = jsonrpc.NewConn(child.Stdout(), child.Stdin(), jsonrpc.Options{
		Peer:    "engine",
		Timeout: opts.Config.EngineTimeout(),
		Hook:    opts.Hook,
		Logger:  r.log,
		Handler: jsonrpc.Handler{
			OnRequest:      r.onRequest,
			OnNotification: r.onNotification,
			OnParseError:   r.onParseError,
			OnClosed:       r.onClosed,
		},
	})
	r.conn.Start()

	sampler := logger.NewLineSampler(r.log, 10, time.Second)
	r.stderr = process.ReadLines(child.Stderr(),
		func(line string) {
			sampler.Log(line)
			events.EmitNotification(r.emit, NotifyStderr, map[string]string{"line": line})
		},
		func(err error) {
			events.EmitLifecycle(r.emit, events.StateStderrError, fmt.Sprintf("failed while reading stderr: %v", err))
		})

	r.log.Info("engine starting", "cwd", opts.Cwd, "home", home)
	events.EmitLifecycle(r.emit, events.StateStarting, "")

	if err := r.handshake(ctx); err != nil {
		_ = r.Stop()
		return nil, err
	}

	r.log.Info("engine ready")
	events.EmitLifecycle(r.emit, events.StateReady, "")
	return r, nil
}

func (r *Runtime) handshake(ctx context.Context) error {
	params := map[string]any{
		"clientInfo": map[string]string{
			"name":    r.opts.Config.Engine.ClientName,
			"version": r.opts.Version,
		},
		"capabilities": map[string]any{},
	}
	if _, err := r.conn.Request(ctx, "initialize", params); err != nil {
		return &HandshakeError{Step: "initialize", Err: err}
	}
	if err := r.conn.Notify(ctx, "initialized", map[string]any{}); err != nil {
		return &HandshakeError{Step: "initialized", Err: err}
	}
	r.initialized.Store(true)
	return nil
}

// ID identifies this runtime instance.
func (r *Runtime) ID() string { return r.id }

// Home is the engine home directory the child was started with.
func (r *Runtime) Home() string { return r.home }

// Pid returns the child's process id.
func (r *Runtime) Pid() int { return r.child.Pid() }

// Initialized reports whether the handshake completed and the runtime has
// not been stopped.
func (r *Runtime) Initialized() bool { return r.initialized.Load() }

// Alive reports whether the runtime is initialized and both the child and
// its output stream are still up.
func (r *Runtime) Alive() bool {
	if !r.initialized.Load() {
		return false
	}
	select {
	case <-r.child.Done():
		return false
	case <-r.conn.Done():
		return false
	default:
		return true
	}
}

// Request calls method on the engine and returns the raw result.
func (r *Runtime) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !r.initialized.Load() {
		return nil, ErrNotInitialized
	}
	return r.conn.Request(ctx, method, params)
}

// Notify sends a notification to the engine.
func (r *Runtime) Notify(ctx context.Context, method string, params any) error {
	if !r.initialized.Load() {
		return ErrNotInitialized
	}
	return r.conn.Notify(ctx, method, params)
}

// Respond answers a pending approval request. The entry is consumed even
// if the write fails.
func (r *Runtime) Respond(ctx context.Context, requestID uint64, result any) error {
	method, ok := r.approvals.Take(requestID)
	if !ok {
		return fmt.Errorf("%w: %d", jsonrpc.ErrUnknownApproval, requestID)
	}
	if err := r.conn.Respond(ctx, requestID, result); err != nil {
		return err
	}
	r.log.Info("approval response sent", "requestId", requestID, "method", method)
	events.EmitNotification(r.emit, NotifyApprovalResponseSent, map[string]any{
		"requestId":      requestID,
		"approvalMethod": method,
	})
	return nil
}

// PendingApprovals lists approval requests still waiting for a response.
func (r *Runtime) PendingApprovals() []jsonrpc.PendingApproval {
	return r.approvals.List()
}

// Stop tears the runtime down: traffic is gated, both loops are aborted
// without waiting for a blocked read, the child is killed and reaped, and
// every outstanding call fails with "engine stopped". Only the first call
// does anything.
func (r *Runtime) Stop() error {
	r.stopOnce.Do(func() {
		r.initialized.Store(false)
		r.conn.Abort()
		r.stderr.Stop()

		if err := r.child.Kill(); err != nil {
			r.log.Warn("killing engine", "error", err)
			r.stopErr = fmt.Errorf("stop engine: %w", err)
		}
		if n := r.conn.Close(jsonrpc.ErrStopped); n > 0 {
			r.log.Debug("failed pending calls on stop", "count", n)
		}
		r.approvals.Clear()

		r.log.Info("engine stopped")
		events.EmitLifecycle(r.emit, events.StateStopped, "")
	})
	return r.stopErr
}

func (r *Runtime) onRequest(env *jsonrpc.Envelope) {
	if IsApprovalMethod(env.Method) {
		r.approvals.Put(env.ID, env.Method)
		r.log.Debug("approval requested", "requestId", env.ID, "method", env.Method)
		events.EmitApprovalRequest(r.emit, env.ID, env.Method, env.Params)
		events.EmitNotification(r.emit, env.Method, env.Params)
		return
	}
	r.log.Debug("unhandled server request", "requestId", env.ID, "method", env.Method)
	events.EmitNotification(r.emit, NotifyUnhandledRequest, map[string]any{
		"requestId": env.ID,
		"method":    env.Method,
		"params":    orNull(env.Params),
	})
}

func (r *Runtime) onNotification(env *jsonrpc.Envelope) {
	events.EmitNotification(r.emit, env.Method, env.Params)
}

func (r *Runtime) onParseError(err *jsonrpc.FramingError) {
	r.log.Warn("unparseable line from engine", "error", err.Err)
	events.EmitLifecycle(r.emit, events.StateParseError, err.Error())
}

func (r *Runtime) onClosed(err error) {
	if err == nil {
		events.EmitLifecycle(r.emit, events.StateDisconnected, "stdout closed")
		return
	}
	events.EmitLifecycle(r.emit, events.StateReadError, fmt.Sprintf("failed while reading stdout: %v", err))
}

func orNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}
