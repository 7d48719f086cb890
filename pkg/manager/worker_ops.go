package manager

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ormasoftchile/rail/pkg/worker"
)

// Provider run defaults.
const (
	DefaultProviderTimeoutMs = 90_000
	DefaultProviderMode      = "auto"
)

// ProviderRun asks the worker to run prompt against provider. A zero
// timeout and an empty mode take the defaults.
func (m *Manager) ProviderRun(ctx context.Context, provider, prompt string, timeoutMs uint64, mode string) (*worker.ProviderRunResult, error) {
	if timeoutMs == 0 {
		timeoutMs = DefaultProviderTimeoutMs
	}
	if mode == "" {
		mode = DefaultProviderMode
	}
	raw, err := m.WorkerRequest(ctx, "provider/run", map[string]any{
		"provider":  provider,
		"prompt":    prompt,
		"timeoutMs": timeoutMs,
		"mode":      mode,
	})
	if err != nil {
		return nil, err
	}
	var res worker.ProviderRunResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("invalid web provider run response: %w", err)
	}
	return &res, nil
}

// OpenSession opens an interactive session for provider.
func (m *Manager) OpenSession(ctx context.Context, provider string) (json.RawMessage, error) {
	return m.WorkerRequest(ctx, "provider/openSession", map[string]string{"provider": provider})
}

// ResetSession discards provider's session state.
func (m *Manager) ResetSession(ctx context.Context, provider string) error {
	_, err := m.WorkerRequest(ctx, "provider/resetSession", map[string]string{"provider": provider})
	return err
}

// Cancel aborts provider's run in progress.
func (m *Manager) Cancel(ctx context.Context, provider string) error {
	_, err := m.WorkerRequest(ctx, "provider/cancel", map[string]string{"provider": provider})
	return err
}

// BridgeStatus reports the worker's browser bridge state.
func (m *Manager) BridgeStatus(ctx context.Context) (json.RawMessage, error) {
	return m.WorkerRequest(ctx, "bridge/status", map[string]any{})
}

// BridgeRotateToken issues a new bridge token.
func (m *Manager) BridgeRotateToken(ctx context.Context) (json.RawMessage, error) {
	return m.WorkerRequest(ctx, "bridge/tokenRotate", map[string]any{})
}

// WorkerHealth reports on the worker without starting one. A running
// worker is asked for its health, with recovery; otherwise the prepared
// paths are reported with running false.
func (m *Manager) WorkerHealth(ctx context.Context) (worker.Health, error) {
	rt, ok := m.worker.Get()
	if !ok {
		paths, err := worker.PrepareDirs(m.cfg.DataDir)
		if err != nil {
			return worker.Health{}, err
		}
		return worker.StoppedHealth(paths), nil
	}

	raw, err := m.requestWithRecovery(ctx, rt, "health", map[string]any{})
	if err != nil {
		return worker.Health{}, err
	}
	paths := rt.Paths()
	if cur, ok := m.worker.Get(); ok {
		paths = cur.Paths()
	}
	return worker.ParseHealth(raw, paths), nil
}
