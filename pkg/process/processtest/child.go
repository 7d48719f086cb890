// Package processtest provides an in-memory child process for exercising
// runtimes without spawning anything.
package processtest

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ormasoftchile/rail/pkg/jsonrpc"
	"github.com/ormasoftchile/rail/pkg/process"
)

// Child implements process.Handle over io.Pipe. The test drives the far
// side: it reads what the runtime wrote to stdin and writes stdout and
// stderr lines.
type Child struct {
	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
	stderrR *io.PipeReader
	stderrW *io.PipeWriter

	inbox chan inbound

	once   sync.Once
	done   chan struct{}
	mu     sync.Mutex
	killed bool
}

var _ process.Handle = (*Child)(nil)

// NewChild returns a running fake child.
func NewChild() *Child {
	c := &Child{done: make(chan struct{})}
	c.stdinR, c.stdinW = io.Pipe()
	c.stdoutR, c.stdoutW = io.Pipe()
	c.stderrR, c.stderrW = io.Pipe()
	c.inbox = make(chan inbound, 256)
	go c.drainStdin()
	return c
}

type inbound struct {
	line []byte
	err  error
}

// drainStdin consumes stdin like a real pipe buffer would, so writes from
// the runtime never block on the test.
func (c *Child) drainStdin() {
	br := bufio.NewReader(c.stdinR)
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 || err != nil {
			c.inbox <- inbound{line, err}
		}
		if err != nil {
			close(c.inbox)
			return
		}
	}
}

func (c *Child) Stdin() io.WriteCloser { return c.stdinW }
func (c *Child) Stdout() io.ReadCloser { return c.stdoutR }
func (c *Child) Stderr() io.ReadCloser { return c.stderrR }
func (c *Child) Done() <-chan struct{} { return c.done }
func (c *Child) Pid() int              { return 4242 }

// Kill simulates termination: every stream is closed and Done fires.
func (c *Child) Kill() error {
	c.mu.Lock()
	c.killed = true
	c.mu.Unlock()
	c.Exit()
	return nil
}

// Killed reports whether Kill was called.
func (c *Child) Killed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.killed
}

// Exit simulates the child exiting on its own.
func (c *Child) Exit() {
	c.once.Do(func() {
		c.stdoutW.Close()
		c.stderrW.Close()
		c.stdinR.CloseWithError(errors.New("process exited"))
		close(c.done)
	})
}

// CloseStdout ends the output stream while the child keeps running.
func (c *Child) CloseStdout() { c.stdoutW.Close() }

// BreakStdin makes further writes from the runtime fail.
func (c *Child) BreakStdin() { c.stdinR.CloseWithError(errors.New("broken pipe")) }

// FailStdout makes the runtime's next stdout read fail with err.
func (c *Child) FailStdout(err error) { c.stdoutW.CloseWithError(err) }

// FailStderr makes the runtime's next stderr read fail with err.
func (c *Child) FailStderr(err error) { c.stderrW.CloseWithError(err) }

// Read returns the next envelope the runtime wrote, failing the test after
// a few seconds.
func (c *Child) Read(t testing.TB) *jsonrpc.Envelope {
	t.Helper()
	env, err := c.ReadTimeout(3 * time.Second)
	if err != nil {
		t.Fatalf("processtest: %v", err)
	}
	return env
}

// ReadTimeout is Read without a testing.TB, for use off the test goroutine.
func (c *Child) ReadTimeout(d time.Duration) (*jsonrpc.Envelope, error) {
	select {
	case r, ok := <-c.inbox:
		if !ok {
			return nil, errors.New("child stdin closed")
		}
		if r.err != nil && len(r.line) == 0 {
			return nil, fmt.Errorf("reading child stdin: %w", r.err)
		}
		return jsonrpc.Decode(r.line)
	case <-time.After(d):
		return nil, errors.New("timed out reading child stdin")
	}
}

// Send writes v as one stdout line.
func (c *Child) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.SendLine(string(data))
}

// SendLine writes a raw stdout line.
func (c *Child) SendLine(line string) error {
	_, err := io.WriteString(c.stdoutW, line+"\n")
	return err
}

// Reply answers the call env with result.
func (c *Child) Reply(env *jsonrpc.Envelope, result any) error {
	return c.Send(map[string]any{"jsonrpc": jsonrpc.Version, "id": env.ID, "result": result})
}

// ReplyError answers the call env with an error object.
func (c *Child) ReplyError(env *jsonrpc.Envelope, code int64, message string) error {
	return c.Send(map[string]any{
		"jsonrpc": jsonrpc.Version,
		"id":      env.ID,
		"error":   map[string]any{"code": code, "message": message},
	})
}

// Notify emits a notification from the child.
func (c *Child) Notify(method string, params any) error {
	return c.Send(map[string]any{"jsonrpc": jsonrpc.Version, "method": method, "params": params})
}

// Call emits a server-initiated request from the child.
func (c *Child) Call(id uint64, method string, params any) error {
	return c.Send(map[string]any{"jsonrpc": jsonrpc.Version, "id": id, "method": method, "params": params})
}

// WriteStderr writes one stderr line.
func (c *Child) WriteStderr(line string) error {
	_, err := io.WriteString(c.stderrW, line+"\n")
	return err
}

// Serve answers every request with handle on its own goroutine until the
// child exits. Notifications are passed to handle too; their result is
// discarded.
func (c *Child) Serve(handle func(env *jsonrpc.Envelope) (any, error)) {
	go func() {
		for {
			env, err := c.ReadTimeout(time.Hour)
			if err != nil {
				return
			}
			res, herr := handle(env)
			if env.Kind != jsonrpc.KindRequest {
				continue
			}
			if herr != nil {
				var re *jsonrpc.RemoteError
				if errors.As(herr, &re) {
					_ = c.ReplyError(env, re.Code, re.Message)
					continue
				}
				if errors.Is(herr, ErrNoReply) {
					continue
				}
				_ = c.ReplyError(env, -32000, herr.Error())
				continue
			}
			_ = c.Reply(env, res)
		}
	}()
}

// ErrNoReply tells Serve to leave a request unanswered.
var ErrNoReply = errors.New("no reply")
