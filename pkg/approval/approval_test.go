package approval

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ormasoftchile/rail/pkg/config"
	"github.com/ormasoftchile/rail/pkg/events"
)

func testPolicy(t *testing.T) *Policy {
	t.Helper()
	p, err := NewPolicy(config.ApprovalConfig{
		Default: config.DecisionPrompt,
		Rules: []config.ApprovalRule{
			{Name: "ls", When: `method == "item/commandExecution/requestApproval" && params.command startsWith "ls"`, Decision: config.DecisionAccept},
			{Name: "no-writes-outside-cwd", When: `method == "item/fileChange/requestApproval" && !(params.path startsWith cwd)`, Decision: config.DecisionDecline},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestPolicy_Decide(t *testing.T) {
	p := testPolicy(t)

	tests := []struct {
		name     string
		method   string
		params   string
		want     string
		wantRule string
	}{
		{"listing accepted", "item/commandExecution/requestApproval", `{"command":"ls -la"}`, config.DecisionAccept, "ls"},
		{"other command prompts", "item/commandExecution/requestApproval", `{"command":"rm -rf /"}`, config.DecisionPrompt, ""},
		{"missing field skips rule", "item/commandExecution/requestApproval", `{}`, config.DecisionPrompt, ""},
		{"write outside cwd declined", "item/fileChange/requestApproval", `{"path":"/etc/passwd"}`, config.DecisionDecline, "no-writes-outside-cwd"},
		{"write inside cwd prompts", "item/fileChange/requestApproval", `{"path":"/work/a.go"}`, config.DecisionPrompt, ""},
		{"non object params", "item/fileChange/requestApproval", `[1,2]`, config.DecisionPrompt, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := p.Decide(events.ApprovalRequest{RequestID: 1, Method: tt.method, Params: json.RawMessage(tt.params)}, "/work")
			if v.Decision != tt.want || v.Rule != tt.wantRule {
				t.Errorf("got %+v, want %s/%s", v, tt.want, tt.wantRule)
			}
		})
	}
}

func TestNewPolicy_CompileError(t *testing.T) {
	_, err := NewPolicy(config.ApprovalConfig{Rules: []config.ApprovalRule{{Name: "bad", When: `method ==`, Decision: "accept"}}})
	if err == nil {
		t.Fatal("expected compile error")
	}
	_, err = NewPolicy(config.ApprovalConfig{Rules: []config.ApprovalRule{{Name: "notbool", When: `method`, Decision: "accept"}}})
	if err == nil {
		t.Fatal("expected non-bool condition to be rejected")
	}
}

type respondCall struct {
	id     uint64
	result any
}

func TestResponder(t *testing.T) {
	var mu sync.Mutex
	var calls []respondCall
	prompted := make(chan events.ApprovalRequest, 1)
	decided := make(chan error, 2)

	r := &Responder{
		Policy: testPolicy(t),
		Cwd:    "/work",
		Respond: func(_ context.Context, id uint64, result any) error {
			mu.Lock()
			defer mu.Unlock()
			calls = append(calls, respondCall{id, result})
			if id == 3 {
				return errors.New("unknown approval request id: 3")
			}
			return nil
		},
		OnPrompt:  func(req events.ApprovalRequest) { prompted <- req },
		OnDecided: func(_ events.ApprovalRequest, _ Verdict, err error) { decided <- err },
	}

	in := make(chan events.Event, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { r.Run(ctx, in); close(done) }()

	events.EmitLifecycle(events.EmitterFunc(func(e events.Event) { in <- e }), events.StateReady, "")
	events.EmitApprovalRequest(events.EmitterFunc(func(e events.Event) { in <- e }), 1, "item/commandExecution/requestApproval", json.RawMessage(`{"command":"ls"}`))
	events.EmitApprovalRequest(events.EmitterFunc(func(e events.Event) { in <- e }), 2, "item/commandExecution/requestApproval", json.RawMessage(`{"command":"make"}`))
	events.EmitApprovalRequest(events.EmitterFunc(func(e events.Event) { in <- e }), 3, "item/fileChange/requestApproval", json.RawMessage(`{"path":"/etc/x"}`))

	select {
	case req := <-prompted:
		if req.RequestID != 2 {
			t.Errorf("prompted for %d", req.RequestID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no prompt")
	}
	for i := 0; i < 2; i++ {
		select {
		case <-decided:
		case <-time.After(2 * time.Second):
			t.Fatal("decision not reported")
		}
	}
	close(in)
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 2 || calls[0].id != 1 || calls[1].id != 3 {
		t.Fatalf("calls = %+v", calls)
	}
	if got := calls[0].result.(map[string]any)["decision"]; got != config.DecisionAccept {
		t.Errorf("decision = %v", got)
	}
}
