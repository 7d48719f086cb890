package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ormasoftchile/rail/pkg/jsonrpc"
)

// Auth states reported by AuthProbe.
const (
	AuthAuthenticated = "authenticated"
	AuthLoginRequired = "login_required"
	AuthUnknown       = "unknown"
)

// LoginResult carries the browser URL that completes a ChatGPT login.
type LoginResult struct {
	AuthURL string          `json:"authUrl"`
	Raw     json.RawMessage `json:"raw"`
}

// UsageResult is the first account endpoint that answered a usage check.
type UsageResult struct {
	SourceMethod string          `json:"sourceMethod"`
	Raw          json.RawMessage `json:"raw"`
}

// AuthProbeResult summarizes whether the engine holds usable credentials.
type AuthProbeResult struct {
	State        string          `json:"state"`
	SourceMethod string          `json:"sourceMethod,omitempty"`
	AuthMode     string          `json:"authMode,omitempty"`
	Raw          json.RawMessage `json:"raw,omitempty"`
	Detail       string          `json:"detail,omitempty"`
}

type attempt struct {
	method string
	params any
}

var (
	emptyObject = map[string]any{}
	nullParams  = json.RawMessage("null")
)

var usageAttempts = []attempt{
	{"account/rateLimits/read", nullParams},
	{"account/read", emptyObject},
	{"account/usage/get", emptyObject},
	{"account/usage", emptyObject},
	{"account/get", emptyObject},
	{"account/status", emptyObject},
}

var probeAttempts = []attempt{
	{"account/read", emptyObject},
	{"account/rateLimits/read", nullParams},
	{"account/status", emptyObject},
	{"account/get", emptyObject},
	{"account/usage/get", emptyObject},
	{"account/usage", emptyObject},
}

var logoutAttempts = []attempt{
	{"logoutChatGpt", emptyObject},
	{"logoutChatGpt", nullParams},
	{"account/logout", nullParams},
	{"account/logout", emptyObject},
}

var (
	authBoolPaths     = []string{"authenticated", "isAuthenticated", "loggedIn", "isLoggedIn", "account.authenticated", "account.loggedIn"}
	requiresAuthPaths = []string{"requiresOpenaiAuth", "account.requiresOpenaiAuth"}
)

// LoginChatGPT starts a ChatGPT login and returns the URL to open.
func (r *Runtime) LoginChatGPT(ctx context.Context) (*LoginResult, error) {
	raw, err := r.Request(ctx, "account/login/start", map[string]string{"type": "chatgpt"})
	if err != nil {
		return nil, err
	}
	v, err := jsonrpc.DecodeAny(raw)
	if err != nil {
		return nil, fmt.Errorf("decode login response: %w", err)
	}
	url, ok := jsonrpc.FirstString(v, "authUrl", "auth_url", "url")
	if !ok {
		return nil, fmt.Errorf("authUrl not found in response: %s", raw)
	}
	return &LoginResult{AuthURL: url, Raw: raw}, nil
}

// UsageCheck returns the first successful answer among the account
// endpoints engine versions have exposed usage under.
func (r *Runtime) UsageCheck(ctx context.Context) (*UsageResult, error) {
	var failures []string
	for _, a := range usageAttempts {
		raw, err := r.Request(ctx, a.method, a.params)
		if err == nil {
			return &UsageResult{SourceMethod: a.method, Raw: raw}, nil
		}
		if errors.Is(err, ErrNotInitialized) {
			return nil, err
		}
		failures = append(failures, fmt.Sprintf("%s: %v", a.method, err))
	}
	return nil, fmt.Errorf("failed to fetch usage info from engine; attempted methods: %s", strings.Join(failures, " | "))
}

// AuthProbe works out whether the engine is logged in. It never fails
// because of an engine error; those end up in Detail.
func (r *Runtime) AuthProbe(ctx context.Context) (*AuthProbeResult, error) {
	var failures []string
	loginRequired := false

	for _, a := range probeAttempts {
		raw, err := r.Request(ctx, a.method, a.params)
		if err != nil {
			if errors.Is(err, ErrNotInitialized) {
				return nil, err
			}
			if isLoginRequired(err.Error()) {
				loginRequired = true
			}
			failures = append(failures, fmt.Sprintf("%s: %v", a.method, err))
			continue
		}

		v, _ := jsonrpc.DecodeAny(raw)
		mode := authMode(v, 0)
		res := &AuthProbeResult{SourceMethod: a.method, AuthMode: mode, Raw: raw}
		switch {
		case mode != "":
			res.State = AuthAuthenticated
		default:
			if flag, ok := jsonrpc.FirstBool(v, authBoolPaths...); ok {
				res.State = AuthLoginRequired
				if flag {
					res.State = AuthAuthenticated
				}
			} else if required, _ := jsonrpc.FirstBool(v, requiresAuthPaths...); required {
				res.State = AuthLoginRequired
			} else if strings.HasPrefix(a.method, "account/usage") || a.method == "account/rateLimits/read" || a.method == "account/read" {
				res.State = AuthAuthenticated
			} else {
				res.State = AuthUnknown
			}
		}
		return res, nil
	}

	res := &AuthProbeResult{State: AuthUnknown, Detail: strings.Join(failures, " | ")}
	if loginRequired {
		res.State = AuthLoginRequired
	}
	return res, nil
}

// Logout asks the engine to log out. When no logout method is accepted the
// credential files are removed from disk instead.
func (r *Runtime) Logout(ctx context.Context) error {
	var failures []string
	for _, a := range logoutAttempts {
		_, err := r.Request(ctx, a.method, a.params)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrNotInitialized) {
			return err
		}
		failures = append(failures, fmt.Sprintf("%s: %v", a.method, err))
	}

	removed, err := ClearAuthFiles(r.home, r.opts.UserHome)
	if err != nil {
		return fmt.Errorf("failed to logout from engine; attempted methods: %s; local cleanup failed: %w",
			strings.Join(failures, " | "), err)
	}
	r.log.Info("logged out by removing local credentials", "removed", removed)
	return nil
}

// ClearAuthFiles removes cached credentials under home and the user's
// global engine directory and returns the paths it deleted.
func ClearAuthFiles(home, userHome string) ([]string, error) {
	var candidates []string
	if home != "" {
		candidates = append(candidates,
			filepath.Join(home, "auth.json"),
			filepath.Join(home, "credentials.json"),
			filepath.Join(home, ".auth.json"))
	}
	if userHome != "" {
		global := filepath.Join(userHome, ".codex")
		candidates = append(candidates,
			filepath.Join(global, "auth.json"),
			filepath.Join(global, "credentials.json"))
	}

	var removed []string
	var errs []error
	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := os.Remove(path); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		removed = append(removed, path)
	}
	return removed, errors.Join(errs...)
}

// authMode finds an auth mode in v, looking through a few common wrapper
// objects. Only "chatgpt" and API-key modes count.
func authMode(v any, depth int) string {
	if depth > 4 {
		return ""
	}
	switch x := v.(type) {
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "chatgpt":
			return "chatgpt"
		case "apikey", "api_key", "api-key":
			return "apikey"
		}
	case []any:
		for _, item := range x {
			if m := authMode(item, depth+1); m != "" {
				return m
			}
		}
	case map[string]any:
		for _, key := range []string{"authMode", "auth_mode"} {
			if candidate, ok := x[key]; ok {
				if m := authMode(candidate, depth+1); m != "" {
					return m
				}
			}
		}
		for _, key := range []string{"account", "user", "data", "payload"} {
			if candidate, ok := x[key]; ok {
				if m := authMode(candidate, depth+1); m != "" {
					return m
				}
			}
		}
	}
	return ""
}

func isLoginRequired(msg string) bool {
	lower := strings.ToLower(msg)
	return (strings.Contains(lower, "login") || strings.Contains(lower, "auth")) &&
		(strings.Contains(lower, "required") || strings.Contains(lower, "unauthorized") || strings.Contains(lower, "forbidden"))
}
