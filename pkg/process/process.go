// Package process spawns and supervises the stdio child processes the
// runtimes talk to.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

// SpawnError reports a failure to locate, prepare or start a child.
type SpawnError struct {
	Op     string
	Binary string
	Err    error
}

func (e *SpawnError) Error() string {
	if e.Op == "resolve" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Binary, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Spec describes a child to start.
type Spec struct {
	Path string
	Args []string
	Dir  string
	// Env entries are appended to the inherited environment and win over it.
	Env []string
}

// Handle is a running child with piped stdio.
type Handle interface {
	Stdin() io.WriteCloser
	Stdout() io.ReadCloser
	Stderr() io.ReadCloser
	// Kill terminates the child and waits for it to be reaped.
	Kill() error
	// Done is closed once the child has exited.
	Done() <-chan struct{}
	Pid() int
}

// Spawner starts a child for spec.
type Spawner func(ctx context.Context, spec Spec) (Handle, error)

// Child is a Handle backed by an os/exec command.
type Child struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser
	done   chan struct{}

	mu      sync.Mutex
	waitErr error
}

// Spawn starts spec with all three stdio streams piped. The child's lifetime
// is independent of ctx, which only bounds the start itself.
func Spawn(ctx context.Context, spec Spec) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, &SpawnError{Op: "start", Binary: spec.Path, Err: err}
	}

	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &SpawnError{Op: "create stdin pipe", Binary: spec.Path, Err: err}
	}
	// Output pipes are owned here rather than by cmd so Wait does not close
	// them before the reader loops have drained the last lines.
	stdout, stdoutW, err := os.Pipe()
	if err != nil {
		stdin.Close()
		return nil, &SpawnError{Op: "create stdout pipe", Binary: spec.Path, Err: err}
	}
	stderr, stderrW, err := os.Pipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		stdoutW.Close()
		return nil, &SpawnError{Op: "create stderr pipe", Binary: spec.Path, Err: err}
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	err = cmd.Start()
	stdoutW.Close()
	stderrW.Close()
	if err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return nil, &SpawnError{Op: "start", Binary: spec.Path, Err: err}
	}

	c := &Child{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		done:   make(chan struct{}),
	}
	go func() {
		err := cmd.Wait()
		c.mu.Lock()
		c.waitErr = err
		c.mu.Unlock()
		close(c.done)
	}()
	return c, nil
}

func (c *Child) Stdin() io.WriteCloser { return c.stdin }
func (c *Child) Stdout() io.ReadCloser { return c.stdout }
func (c *Child) Stderr() io.ReadCloser { return c.stderr }
func (c *Child) Done() <-chan struct{} { return c.done }
func (c *Child) Pid() int              { return c.cmd.Process.Pid }

// Kill closes stdin, kills the child if it is still running and waits for
// it to be reaped.
func (c *Child) Kill() error {
	c.stdin.Close()
	select {
	case <-c.done:
		return nil
	default:
	}
	if err := c.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill pid %d: %w", c.cmd.Process.Pid, err)
	}
	<-c.done
	return nil
}

// ExitErr returns the result of Wait once the child has exited.
func (c *Child) ExitErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waitErr
}
