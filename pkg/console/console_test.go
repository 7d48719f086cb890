package console

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/ormasoftchile/rail/pkg/events"
	"github.com/ormasoftchile/rail/pkg/jsonrpc"
	"github.com/ormasoftchile/rail/pkg/worker"
)

type call struct {
	op     string
	method string
	id     uint64
	params string
}

type fakeBackend struct {
	calls   []call
	err     error
	pending []jsonrpc.PendingApproval
}

func paramText(v any) string {
	if v == nil {
		return ""
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func (f *fakeBackend) EngineRequest(_ context.Context, method string, params any) (json.RawMessage, error) {
	f.calls = append(f.calls, call{op: "request", method: method, params: paramText(params)})
	return json.RawMessage(`{"ok":true}`), f.err
}

func (f *fakeBackend) EngineNotify(_ context.Context, method string, params any) error {
	f.calls = append(f.calls, call{op: "notify", method: method, params: paramText(params)})
	return f.err
}

func (f *fakeBackend) RespondApproval(_ context.Context, id uint64, result any) error {
	f.calls = append(f.calls, call{op: "approve", id: id, params: paramText(result)})
	return f.err
}

func (f *fakeBackend) PendingApprovals() []jsonrpc.PendingApproval { return f.pending }

func (f *fakeBackend) WorkerRequest(_ context.Context, method string, params any) (json.RawMessage, error) {
	f.calls = append(f.calls, call{op: "worker", method: method, params: paramText(params)})
	return json.RawMessage(`"done"`), f.err
}

func (f *fakeBackend) WorkerHealth(context.Context) (worker.Health, error) {
	f.calls = append(f.calls, call{op: "health"})
	return worker.StoppedHealth(worker.Paths{LogPath: "/l", ProfileRoot: "/p"}), f.err
}

func TestConsole_Exec(t *testing.T) {
	tests := []struct {
		line string
		want []call
		out  string
		quit bool
	}{
		{line: "request thread/list", want: []call{{op: "request", method: "thread/list"}}, out: `{"ok":true}`},
		{line: `r turn/start {"threadId":"t1"}`, want: []call{{op: "request", method: "turn/start", params: `{"threadId":"t1"}`}}},
		{line: "request", out: "method is required"},
		{line: "request x {bad", out: "not valid JSON"},
		{line: `notify ping {}`, want: []call{{op: "notify", method: "ping", params: `{}`}}},
		{line: "approve 3", want: []call{{op: "approve", id: 3, params: `{"decision":"accept"}`}}},
		{line: "approve 4 decline", want: []call{{op: "approve", id: 4, params: `{"decision":"decline"}`}}},
		{line: `approve 5 {"decision":"acceptForSession"}`, want: []call{{op: "approve", id: 5, params: `{"decision":"acceptForSession"}`}}},
		{line: "approve x", out: `invalid approval id "x"`},
		{line: `worker bridge/status`, want: []call{{op: "worker", method: "bridge/status"}}, out: `"done"`},
		{line: "health", want: []call{{op: "health"}}, out: `"running":false`},
		{line: "approvals", out: "no pending approvals"},
		{line: "bogus", out: `Unknown command: "bogus"`},
		{line: "   "},
		{line: "help", out: "approve <id>"},
		{line: "quit", quit: true},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			var out bytes.Buffer
			b := &fakeBackend{}
			c := New(b, NewPrinter(&out, 200))

			if quit := c.Exec(context.Background(), tt.line); quit != tt.quit {
				t.Errorf("quit = %v", quit)
			}
			if len(b.calls) != len(tt.want) {
				t.Fatalf("calls = %+v, want %+v", b.calls, tt.want)
			}
			for i := range tt.want {
				if b.calls[i] != tt.want[i] {
					t.Errorf("call %d = %+v, want %+v", i, b.calls[i], tt.want[i])
				}
			}
			if !strings.Contains(out.String(), tt.out) {
				t.Errorf("output %q does not contain %q", out.String(), tt.out)
			}
		})
	}
}

func TestConsole_BackendErrorAndApprovals(t *testing.T) {
	var out bytes.Buffer
	b := &fakeBackend{
		err:     errors.New("engine is not started"),
		pending: []jsonrpc.PendingApproval{{ID: 2, Method: "item/fileChange/requestApproval"}},
	}
	c := New(b, NewPrinter(&out, 200))

	c.Exec(context.Background(), "request thread/list")
	c.Exec(context.Background(), "approvals")
	if !strings.Contains(out.String(), "engine is not started") {
		t.Errorf("error not shown: %q", out.String())
	}
	if !strings.Contains(out.String(), "#2 item/fileChange/requestApproval") {
		t.Errorf("approvals not listed: %q", out.String())
	}
}

func TestConsole_RunReturnsWhenContextDone(t *testing.T) {
	stdin, feed := io.Pipe()
	defer feed.Close()
	var out bytes.Buffer
	c := New(&fakeBackend{}, NewPrinter(&out, 200))
	c.Stdin = stdin

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- c.Run(ctx) }()

	// Let Run park in its read before cancelling.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Run = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run still blocked in readline after cancellation")
	}
}

func TestPrinter_Render(t *testing.T) {
	msg := "stdout closed"
	long := json.RawMessage(`{"line":"` + strings.Repeat("x", 300) + `"}`)
	tests := []struct {
		name  string
		event events.Event
		quiet bool
		want  string
		shown bool
	}{
		{"lifecycle", events.Event{Topic: events.TopicLifecycle, Payload: events.Lifecycle{State: events.StateDisconnected, Message: &msg}}, false, "stdout closed", true},
		{"notification", events.Event{Topic: events.TopicNotification, Payload: events.Notification{Method: "turn/completed", Params: json.RawMessage(`{ "a" : 1 }`)}}, false, `{"a":1}`, true},
		{"approval", events.Event{Topic: events.TopicApprovalRequest, Payload: events.ApprovalRequest{RequestID: 7, Method: "item/commandExecution/requestApproval"}}, false, "approval #7", true},
		{"long params truncated", events.Event{Payload: events.Notification{Method: "engine/stderr", Params: long}}, false, "…", true},
		{"stderr hidden when quiet", events.Event{Payload: events.Notification{Method: "web/worker/stderr", Params: long}}, true, "", false},
		{"unknown payload", events.Event{Payload: 42}, false, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPrinter(&bytes.Buffer{}, 80)
			p.Quiet = tt.quiet
			got, shown := p.Render(tt.event)
			if shown != tt.shown {
				t.Fatalf("shown = %v", shown)
			}
			if !strings.Contains(got, tt.want) {
				t.Errorf("render = %q, want substring %q", got, tt.want)
			}
		})
	}
}
