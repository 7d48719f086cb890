// Package console implements the interactive prompt of `rail run`: it sends
// requests to the engine and the worker and answers approval requests.
package console

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/chzyer/readline"

	"github.com/ormasoftchile/rail/pkg/approval"
	"github.com/ormasoftchile/rail/pkg/config"
	"github.com/ormasoftchile/rail/pkg/jsonrpc"
	"github.com/ormasoftchile/rail/pkg/worker"
)

// Backend is what the console drives. *manager.Manager implements it.
type Backend interface {
	EngineRequest(ctx context.Context, method string, params any) (json.RawMessage, error)
	EngineNotify(ctx context.Context, method string, params any) error
	RespondApproval(ctx context.Context, requestID uint64, result any) error
	PendingApprovals() []jsonrpc.PendingApproval
	WorkerRequest(ctx context.Context, method string, params any) (json.RawMessage, error)
	WorkerHealth(ctx context.Context) (worker.Health, error)
}

var commands = []string{"request", "notify", "approve", "approvals", "worker", "health", "help", "quit"}

// Console reads commands and prints their results through a Printer.
type Console struct {
	// Stdin replaces the terminal as the input of Run when set.
	Stdin io.ReadCloser

	backend Backend
	printer *Printer
}

// New returns a console over b.
func New(b Backend, p *Printer) *Console {
	return &Console{backend: b, printer: p}
}

// Run reads lines until quit, EOF, interrupt or ctx is done.
func (c *Console) Run(ctx context.Context) error {
	completer := readline.NewPrefixCompleter()
	for _, cmd := range commands {
		completer.Children = append(completer.Children, readline.PcItem(cmd))
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "rail> ",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
		Stdin:           c.Stdin,
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	closeOnce := sync.OnceFunc(func() { rl.Close() })
	defer closeOnce()

	stop := context.AfterFunc(ctx, closeOnce)
	defer stop()

	c.printer.Printf("Type 'help' for available commands.\n")
	for {
		line, err := rl.Readline()
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if c.Exec(ctx, line) {
			return nil
		}
	}
}

// Exec runs one command line and reports whether the console should exit.
func (c *Console) Exec(ctx context.Context, line string) bool {
	cmd, rest := splitWord(strings.TrimSpace(line))
	switch cmd {
	case "":
	case "request", "r":
		method, params, err := methodAndParams(rest)
		if err != nil {
			c.printer.Result(nil, err)
			break
		}
		c.printer.Result(c.backend.EngineRequest(ctx, method, params))
	case "notify", "n":
		method, params, err := methodAndParams(rest)
		if err == nil {
			err = c.backend.EngineNotify(ctx, method, params)
		}
		c.printer.Result(json.RawMessage("null"), err)
	case "approve", "a":
		id, result, err := parseApproval(rest)
		if err == nil {
			err = c.backend.RespondApproval(ctx, id, result)
		}
		c.printer.Result(json.RawMessage("null"), err)
	case "approvals":
		pending := c.backend.PendingApprovals()
		if len(pending) == 0 {
			c.printer.Printf("no pending approvals\n")
		}
		for _, p := range pending {
			c.printer.Printf("  #%d %s\n", p.ID, p.Method)
		}
	case "worker", "w":
		method, params, err := methodAndParams(rest)
		if err != nil {
			c.printer.Result(nil, err)
			break
		}
		c.printer.Result(c.backend.WorkerRequest(ctx, method, params))
	case "health":
		h, err := c.backend.WorkerHealth(ctx)
		if err != nil {
			c.printer.Result(nil, err)
			break
		}
		raw, _ := json.Marshal(h)
		c.printer.Result(raw, nil)
	case "help", "?":
		c.help()
	case "quit", "q", "exit":
		return true
	default:
		c.printer.Printf("Unknown command: %q. Type 'help' for available commands.\n", cmd)
	}
	return false
}

func (c *Console) help() {
	c.printer.Printf(`Commands:
  request <method> [json]        send a request to the engine
  notify <method> [json]         send a notification to the engine
  approve <id> [decision|json]   answer an approval request (default: accept)
  approvals                      list pending approval requests
  worker <method> [json]         send a request to the web worker
  health                         show web worker health
  help                           show this help
  quit                           stop both processes and exit
`)
}

func splitWord(s string) (string, string) {
	word, rest, _ := strings.Cut(s, " ")
	return word, strings.TrimSpace(rest)
}

func methodAndParams(s string) (string, any, error) {
	method, rest := splitWord(s)
	if method == "" {
		return "", nil, errors.New("method is required")
	}
	if rest == "" {
		return method, nil, nil
	}
	if !json.Valid([]byte(rest)) {
		return "", nil, fmt.Errorf("params are not valid JSON: %s", rest)
	}
	return method, json.RawMessage(rest), nil
}

func parseApproval(s string) (uint64, any, error) {
	idText, rest := splitWord(s)
	id, err := strconv.ParseUint(idText, 10, 64)
	if err != nil {
		return 0, nil, fmt.Errorf("invalid approval id %q", idText)
	}
	switch {
	case rest == "":
		return id, approval.Result(config.DecisionAccept), nil
	case strings.HasPrefix(rest, "{"):
		if !json.Valid([]byte(rest)) {
			return 0, nil, fmt.Errorf("result is not valid JSON: %s", rest)
		}
		return id, json.RawMessage(rest), nil
	}
	return id, approval.Result(rest), nil
}
