// Package manager owns the engine and worker runtimes of one application
// instance and restarts the worker after transient failures.
package manager

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/ormasoftchile/rail/pkg/config"
	"github.com/ormasoftchile/rail/pkg/engine"
	"github.com/ormasoftchile/rail/pkg/events"
	"github.com/ormasoftchile/rail/pkg/jsonrpc"
	"github.com/ormasoftchile/rail/pkg/logger"
	"github.com/ormasoftchile/rail/pkg/process"
	"github.com/ormasoftchile/rail/pkg/worker"
)

var (
	ErrEngineNotStarted     = errors.New("engine is not started")
	ErrEngineAlreadyStarted = errors.New("engine already started")
	ErrWorkerNotStarted     = errors.New("web worker is not started")
)

// EngineStarter launches a ready engine in cwd.
type EngineStarter func(ctx context.Context, cwd string) (*engine.Runtime, error)

// WorkerStarter launches a worker.
type WorkerStarter func(ctx context.Context) (*worker.Runtime, error)

// Options configures a Manager. The starters default to launching real
// processes from Config.
type Options struct {
	Config   *config.Config
	Emitter  events.Emitter
	Hook     jsonrpc.Hook
	Resolver process.Resolver
	Spawner  process.Spawner
	Version  string

	StartEngine EngineStarter
	StartWorker WorkerStarter
}

// Manager holds one engine slot and one worker slot.
type Manager struct {
	cfg         *config.Config
	startEngine EngineStarter
	startWorker WorkerStarter
	log         *slog.Logger

	engine Slot[*engine.Runtime]
	worker Slot[*worker.Runtime]
}

// New returns a manager with both slots empty.
func New(opts Options) *Manager {
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Emitter == nil {
		opts.Emitter = events.Discard
	}
	m := &Manager{
		cfg:         opts.Config,
		startEngine: opts.StartEngine,
		startWorker: opts.StartWorker,
		log:         logger.WithComponent("manager"),
	}
	if m.startEngine == nil {
		m.startEngine = func(ctx context.Context, cwd string) (*engine.Runtime, error) {
			return engine.Start(ctx, engine.Options{
				Cwd:      cwd,
				Config:   opts.Config,
				Emitter:  opts.Emitter,
				Hook:     opts.Hook,
				Spawner:  opts.Spawner,
				Resolver: opts.Resolver,
				Version:  opts.Version,
			})
		}
	}
	if m.startWorker == nil {
		m.startWorker = func(ctx context.Context) (*worker.Runtime, error) {
			return worker.Start(ctx, worker.Options{
				Config:   opts.Config,
				Emitter:  opts.Emitter,
				Hook:     opts.Hook,
				Spawner:  opts.Spawner,
				Resolver: opts.Resolver,
			})
		}
	}
	return m
}

// Config returns the configuration the manager launches runtimes with.
func (m *Manager) Config() *config.Config { return m.cfg }

// StartEngine launches the engine in cwd. A running engine is an error; an
// installed engine that has died is replaced.
func (m *Manager) StartEngine(ctx context.Context, cwd string) error {
	if cur, ok := m.engine.Get(); ok {
		if cur.Alive() {
			return ErrEngineAlreadyStarted
		}
		if m.engine.EvictIf(cur) {
			m.log.Info("replacing dead engine", "instance", cur.ID())
			_ = cur.Stop()
		}
	}

	rt, err := m.startEngine(ctx, cwd)
	if err != nil {
		return err
	}
	if _, installed := m.engine.InstallIfEmpty(rt); !installed {
		m.log.Warn("engine start lost a race; stopping the new runtime", "instance", rt.ID())
		_ = rt.Stop()
		return ErrEngineAlreadyStarted
	}
	m.log.Info("engine installed", "instance", rt.ID(), "cwd", cwd)
	return nil
}

// StopEngine stops the engine if one is installed.
func (m *Manager) StopEngine() error {
	rt, ok := m.engine.Take()
	if !ok {
		return nil
	}
	return rt.Stop()
}

// Engine returns the installed engine.
func (m *Manager) Engine() (*engine.Runtime, error) {
	rt, ok := m.engine.Get()
	if !ok {
		return nil, ErrEngineNotStarted
	}
	return rt, nil
}

// EngineRequest calls method on the engine.
func (m *Manager) EngineRequest(ctx context.Context, method string, params any) (json.RawMessage, error) {
	rt, err := m.Engine()
	if err != nil {
		return nil, err
	}
	return rt.Request(ctx, method, params)
}

// EngineNotify sends a notification to the engine.
func (m *Manager) EngineNotify(ctx context.Context, method string, params any) error {
	rt, err := m.Engine()
	if err != nil {
		return err
	}
	return rt.Notify(ctx, method, params)
}

// RespondApproval answers an approval request of the installed engine.
func (m *Manager) RespondApproval(ctx context.Context, requestID uint64, result any) error {
	rt, err := m.Engine()
	if err != nil {
		return err
	}
	return rt.Respond(ctx, requestID, result)
}

// PendingApprovals lists the engine's unanswered approval requests.
func (m *Manager) PendingApprovals() []jsonrpc.PendingApproval {
	rt, ok := m.engine.Get()
	if !ok {
		return nil
	}
	return rt.PendingApprovals()
}

// EnsureWorker returns the installed worker, starting one if the slot is
// empty. When two callers race, the loser stops its runtime and gets the
// winner's.
func (m *Manager) EnsureWorker(ctx context.Context) (*worker.Runtime, error) {
	if rt, ok := m.worker.Get(); ok {
		return rt, nil
	}
	rt, err := m.startWorker(ctx)
	if err != nil {
		return nil, err
	}
	if cur, installed := m.worker.InstallIfEmpty(rt); !installed {
		_ = rt.Stop()
		return cur, nil
	}
	m.log.Info("web worker installed", "instance", rt.ID())
	return rt, nil
}

// StopWorker stops the worker if one is installed.
func (m *Manager) StopWorker() error {
	rt, ok := m.worker.Take()
	if !ok {
		return nil
	}
	return rt.Stop()
}

// Worker returns the installed worker without starting one.
func (m *Manager) Worker() (*worker.Runtime, error) {
	rt, ok := m.worker.Get()
	if !ok {
		return nil, ErrWorkerNotStarted
	}
	return rt, nil
}

// WorkerRequest calls method on the worker, starting it if needed. If the
// call fails because the worker or its stream went away, the worker is
// replaced and the call retried once; the retry's outcome is returned as is.
func (m *Manager) WorkerRequest(ctx context.Context, method string, params any) (json.RawMessage, error) {
	rt, err := m.EnsureWorker(ctx)
	if err != nil {
		return nil, err
	}
	return m.requestWithRecovery(ctx, rt, method, params)
}

func (m *Manager) requestWithRecovery(ctx context.Context, rt *worker.Runtime, method string, params any) (json.RawMessage, error) {
	res, err := rt.Request(ctx, method, params)
	if err == nil || !worker.IsRecoverable(err) {
		return res, err
	}

	m.log.Warn("web worker call failed; restarting worker", "method", method, "instance", rt.ID(), "error", err)
	m.worker.EvictIf(rt)
	_ = rt.Stop()

	restarted, err := m.EnsureWorker(ctx)
	if err != nil {
		return nil, err
	}
	return restarted.Request(ctx, method, params)
}

// Shutdown stops both runtimes. Both slots are drained even if stopping
// one of them fails; the first failure is returned.
func (m *Manager) Shutdown() error {
	var g errgroup.Group
	g.Go(m.StopEngine)
	g.Go(m.StopWorker)
	err := g.Wait()
	if err != nil {
		m.log.Warn("shutdown", "error", err)
	}
	return err
}
