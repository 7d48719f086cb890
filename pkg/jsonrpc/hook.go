package jsonrpc

import "context"

// CallInfo describes one outgoing message for observers.
type CallInfo struct {
	Peer   string
	Method string
	ID     uint64
	// Kind is "request", "notify" or "respond".
	Kind string
}

// HookToken is opaque per-call state returned by OnCallStart and handed
// back to OnCallEnd.
type HookToken any

// Hook observes outgoing traffic. Implementations must be safe for
// concurrent use; they run on the caller's goroutine.
type Hook interface {
	OnCallStart(ctx context.Context, info CallInfo) (context.Context, HookToken)
	OnCallEnd(ctx context.Context, token HookToken, info CallInfo, err error)
}

type nopHook struct{}

func (nopHook) OnCallStart(ctx context.Context, _ CallInfo) (context.Context, HookToken) {
	return ctx, nil
}

func (nopHook) OnCallEnd(context.Context, HookToken, CallInfo, error) {}
