package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ormasoftchile/rail/pkg/jsonrpc"
)

// ThreadResult identifies a conversation thread created on the engine.
type ThreadResult struct {
	ThreadID string          `json:"threadId"`
	Raw      json.RawMessage `json:"raw"`
}

// ThreadStart opens a read-only sandboxed thread using model in cwd.
func (r *Runtime) ThreadStart(ctx context.Context, model, cwd string) (*ThreadResult, error) {
	raw, err := r.Request(ctx, "thread/start", map[string]any{
		"model":   model,
		"cwd":     cwd,
		"sandbox": "read-only",
	})
	if err != nil {
		return nil, err
	}
	v, err := jsonrpc.DecodeAny(raw)
	if err != nil {
		return nil, fmt.Errorf("decode thread/start response: %w", err)
	}
	id, ok := jsonrpc.FirstString(v, "threadId", "thread_id", "id", "thread.id", "thread.threadId", "thread.thread_id")
	if !ok {
		return nil, fmt.Errorf("thread id not found in response: %s", raw)
	}
	return &ThreadResult{ThreadID: id, Raw: raw}, nil
}

// TurnStart sends text as a new user turn on the thread.
func (r *Runtime) TurnStart(ctx context.Context, threadID, text string) (json.RawMessage, error) {
	return r.Request(ctx, "turn/start", map[string]any{
		"threadId": threadID,
		"text":     text,
		"input": []map[string]string{
			{"type": "text", "text": text},
		},
		"sandboxPolicy": map[string]string{"type": "readOnly"},
	})
}

// TurnInterrupt cancels the turn in progress on the thread.
func (r *Runtime) TurnInterrupt(ctx context.Context, threadID string) (json.RawMessage, error) {
	return r.Request(ctx, "turn/interrupt", map[string]string{"threadId": threadID})
}
