package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ormasoftchile/rail/pkg/events"
	"github.com/ormasoftchile/rail/pkg/jsonrpc"
	"github.com/ormasoftchile/rail/pkg/process/processtest"
)

// serveEngine opens a runtime whose fake child answers methods from table.
// Methods missing from the table fail with "method not found".
func serveEngine(t *testing.T, table map[string]any) *Runtime {
	t.Helper()
	child := processtest.NewChild()
	child.Serve(func(env *jsonrpc.Envelope) (any, error) {
		if env.Method == "initialize" {
			return map[string]any{}, nil
		}
		if v, ok := table[env.Method]; ok {
			if err, isErr := v.(error); isErr {
				return nil, err
			}
			return v, nil
		}
		return nil, &jsonrpc.RemoteError{Code: -32601, Message: "method not found"}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	rt, err := Open(ctx, child, testOptions(t, events.NewRecorder()))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { rt.Stop() })
	return rt
}

func TestLoginChatGPT(t *testing.T) {
	rt := serveEngine(t, map[string]any{
		"account/login/start": map[string]any{"auth_url": "https://auth.example/login", "loginId": "l1"},
	})
	res, err := rt.LoginChatGPT(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.AuthURL != "https://auth.example/login" {
		t.Errorf("url = %q", res.AuthURL)
	}

	rt = serveEngine(t, map[string]any{"account/login/start": map[string]any{"loginId": "l1"}})
	if _, err := rt.LoginChatGPT(context.Background()); err == nil || !strings.Contains(err.Error(), "authUrl not found") {
		t.Errorf("err = %v", err)
	}
}

func TestUsageCheck(t *testing.T) {
	rt := serveEngine(t, map[string]any{
		"account/usage": map[string]any{"used": 3},
	})
	res, err := rt.UsageCheck(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.SourceMethod != "account/usage" || string(res.Raw) != `{"used":3}` {
		t.Errorf("res = %+v", res)
	}

	rt = serveEngine(t, nil)
	_, err = rt.UsageCheck(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	for _, m := range []string{"account/rateLimits/read", "account/read", "account/status"} {
		if !strings.Contains(err.Error(), m+": rpc error -32601") {
			t.Errorf("error does not list %s: %v", m, err)
		}
	}
}

func TestAuthProbe(t *testing.T) {
	tests := []struct {
		name       string
		table      map[string]any
		wantState  string
		wantMethod string
		wantMode   string
	}{
		{
			name:       "auth mode nested in account",
			table:      map[string]any{"account/read": map[string]any{"account": map[string]any{"authMode": "ChatGPT"}}},
			wantState:  AuthAuthenticated,
			wantMethod: "account/read",
			wantMode:   "chatgpt",
		},
		{
			name:       "api key mode",
			table:      map[string]any{"account/read": map[string]any{"auth_mode": "api-key"}},
			wantState:  AuthAuthenticated,
			wantMethod: "account/read",
			wantMode:   "apikey",
		},
		{
			name:       "explicit logged out flag",
			table:      map[string]any{"account/status": map[string]any{"loggedIn": false}},
			wantState:  AuthLoginRequired,
			wantMethod: "account/status",
		},
		{
			name:       "requires openai auth",
			table:      map[string]any{"account/get": map[string]any{"account": map[string]any{"requiresOpenaiAuth": true}}},
			wantState:  AuthLoginRequired,
			wantMethod: "account/get",
		},
		{
			name:       "account endpoint success implies auth",
			table:      map[string]any{"account/rateLimits/read": map[string]any{"primary": 10}},
			wantState:  AuthAuthenticated,
			wantMethod: "account/rateLimits/read",
		},
		{
			name:       "status without hints is unknown",
			table:      map[string]any{"account/status": map[string]any{"ok": true}},
			wantState:  AuthUnknown,
			wantMethod: "account/status",
		},
		{
			name:      "login required errors",
			table:     map[string]any{"account/read": &jsonrpc.RemoteError{Code: 401, Message: "Login required"}},
			wantState: AuthLoginRequired,
		},
		{
			name:      "everything fails",
			table:     nil,
			wantState: AuthUnknown,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := serveEngine(t, tt.table)
			res, err := rt.AuthProbe(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if res.State != tt.wantState || res.SourceMethod != tt.wantMethod || res.AuthMode != tt.wantMode {
				t.Errorf("res = %+v", res)
			}
			if tt.wantMethod == "" && res.Detail == "" {
				t.Error("failed probe should carry detail")
			}
		})
	}
}

func TestLogout(t *testing.T) {
	rt := serveEngine(t, map[string]any{"account/logout": map[string]any{}})
	if err := rt.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
}

func TestLogout_SendsObjectThenNullParams(t *testing.T) {
	var sent []string
	child := processtest.NewChild()
	child.Serve(func(env *jsonrpc.Envelope) (any, error) {
		if env.Kind != jsonrpc.KindRequest {
			return nil, nil
		}
		if env.Method == "initialize" {
			return map[string]any{}, nil
		}
		sent = append(sent, env.Method+" "+string(env.Params))
		if len(sent) == 3 {
			return map[string]any{}, nil
		}
		return nil, &jsonrpc.RemoteError{Code: -32601, Message: "method not found"}
	})
	rt, err := Open(context.Background(), child, testOptions(t, events.NewRecorder()))
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Stop()

	if err := rt.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	want := []string{"logoutChatGpt {}", "logoutChatGpt null", "account/logout null"}
	if strings.Join(sent, "|") != strings.Join(want, "|") {
		t.Errorf("sent %q, want %q", sent, want)
	}
}

func TestLogout_FallsBackToRemovingCredentials(t *testing.T) {
	rt := serveEngine(t, nil)
	rt.home = t.TempDir()
	writeFile(t, filepath.Join(rt.home, "auth.json"), "{}")
	writeFile(t, filepath.Join(rt.opts.UserHome, ".codex", "credentials.json"), "{}")
	writeFile(t, filepath.Join(rt.opts.UserHome, ".codex", "config.toml"), "")

	if err := rt.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	for _, p := range []string{
		filepath.Join(rt.home, "auth.json"),
		filepath.Join(rt.opts.UserHome, ".codex", "credentials.json"),
	} {
		if _, err := os.Stat(p); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("%s not removed", p)
		}
	}
	if _, err := os.Stat(filepath.Join(rt.opts.UserHome, ".codex", "config.toml")); err != nil {
		t.Error("config.toml must survive logout")
	}
}

func TestThreadAndTurns(t *testing.T) {
	var turnParams []byte
	child := processtest.NewChild()
	child.Serve(func(env *jsonrpc.Envelope) (any, error) {
		switch env.Method {
		case "initialize":
			return map[string]any{}, nil
		case "thread/start":
			return map[string]any{"thread": map[string]any{"id": "th_1"}}, nil
		case "turn/start":
			turnParams = append([]byte(nil), env.Params...)
			return map[string]any{"turnId": "tu_1"}, nil
		case "turn/interrupt":
			return map[string]any{}, nil
		}
		return nil, processtest.ErrNoReply
	})
	rt, err := Open(context.Background(), child, testOptions(t, events.NewRecorder()))
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Stop()

	th, err := rt.ThreadStart(context.Background(), "gpt-5", "/work")
	if err != nil || th.ThreadID != "th_1" {
		t.Fatalf("ThreadStart = %+v, %v", th, err)
	}
	if _, err := rt.TurnStart(context.Background(), th.ThreadID, "hello"); err != nil {
		t.Fatal(err)
	}
	want := `{"input":[{"text":"hello","type":"text"}],"sandboxPolicy":{"type":"readOnly"},"text":"hello","threadId":"th_1"}`
	if string(turnParams) != want {
		t.Errorf("turn/start params = %s", turnParams)
	}
	if _, err := rt.TurnInterrupt(context.Background(), th.ThreadID); err != nil {
		t.Fatal(err)
	}
}
