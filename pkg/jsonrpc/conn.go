package jsonrpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/ormasoftchile/rail/pkg/logger"
)

// DefaultTimeout bounds a request when Options.Timeout is unset.
const DefaultTimeout = 90 * time.Second

// Handler receives everything the reader loop sees that is not a response
// to one of our calls. Nil fields are ignored. Handlers run on the reader
// goroutine and must not block.
type Handler struct {
	OnRequest      func(env *Envelope)
	OnNotification func(env *Envelope)
	OnParseError   func(err *FramingError)
	// OnClosed is called once when the stream ends; err is nil on EOF.
	OnClosed func(err error)
}

// Options configures a Conn.
type Options struct {
	// Peer names the other side in errors and telemetry, e.g. "engine".
	Peer    string
	Timeout time.Duration
	Hook    Hook
	Handler Handler
	Logger  *slog.Logger
}

// Conn multiplexes concurrent calls over one pair of streams. Calls are
// matched to responses purely by id; writes are serialized.
type Conn struct {
	peer    string
	timeout time.Duration
	hook    Hook
	handler Handler
	log     *slog.Logger

	r io.ReadCloser
	// wsem serializes writers; a channel so waiting for it can time out.
	wsem chan struct{}
	raw  io.Writer
	w    *bufio.Writer

	nextID  atomic.Uint64
	pending *PendingTable

	started atomic.Bool
	aborted atomic.Bool
	done    chan struct{}
}

// NewConn wires a connection to r and w. The reader loop does not run until
// Start is called.
func NewConn(r io.ReadCloser, w io.Writer, opts Options) *Conn {
	c := &Conn{
		peer:    opts.Peer,
		timeout: opts.Timeout,
		hook:    opts.Hook,
		handler: opts.Handler,
		log:     opts.Logger,
		r:       r,
		wsem:    make(chan struct{}, 1),
		raw:     w,
		w:       bufio.NewWriter(w),
		pending: NewPendingTable(),
		done:    make(chan struct{}),
	}
	if c.peer == "" {
		c.peer = "peer"
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.hook == nil {
		c.hook = nopHook{}
	}
	if c.log == nil {
		c.log = logger.WithComponent("jsonrpc").With("peer", c.peer)
	}
	return c
}

// Start launches the reader loop.
func (c *Conn) Start() {
	if c.started.Swap(true) {
		return
	}
	go c.readLoop()
}

// Done is closed when the reader loop has exited.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Peer returns the configured peer name.
func (c *Conn) Peer() string { return c.peer }

// Pending returns the number of calls awaiting a response.
func (c *Conn) Pending() int { return c.pending.Len() }

// Request sends a call and waits for its response, the connection timeout,
// stream termination or ctx cancellation, whichever comes first. The
// timeout covers writing the call as well as waiting for the answer.
func (c *Conn) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := c.nextID.Add(1)
	info := CallInfo{Peer: c.peer, Method: method, ID: id, Kind: "request"}
	ctx, token := c.hook.OnCallStart(ctx, info)
	res, err := c.call(ctx, id, method, params)
	c.hook.OnCallEnd(ctx, token, info, err)
	return res, err
}

func (c *Conn) call(ctx context.Context, id uint64, method string, params any) (json.RawMessage, error) {
	deadline := time.Now().Add(c.timeout)
	ch := c.pending.Register(id)
	if err := c.write(ctx, deadline, NewRequest(id, method, params)); err != nil {
		c.pending.Remove(id)
		return nil, c.writeError(ctx, method, err)
	}

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case res, ok := <-ch:
		return c.settle(method, res, ok)
	case <-timer.C:
		if c.pending.Remove(id) {
			return nil, newCallError(c.peer, method, ErrTimeout, nil)
		}
	case <-ctx.Done():
		if c.pending.Remove(id) {
			return nil, ctx.Err()
		}
	}
	// The reader resolved the call while we were giving up; take its result.
	res, ok := <-ch
	return c.settle(method, res, ok)
}

func (c *Conn) settle(method string, res Result, ok bool) (json.RawMessage, error) {
	if !ok {
		return nil, newCallError(c.peer, method, ErrResponseChannelClosed, nil)
	}
	if res.Err != nil {
		return nil, res.Err
	}
	return res.Value, nil
}

// Notify sends a one-way message.
func (c *Conn) Notify(ctx context.Context, method string, params any) error {
	info := CallInfo{Peer: c.peer, Method: method, Kind: "notify"}
	ctx, token := c.hook.OnCallStart(ctx, info)
	err := c.write(ctx, time.Now().Add(c.timeout), NewNotification(method, params))
	if err != nil {
		err = c.writeError(ctx, method, err)
	}
	c.hook.OnCallEnd(ctx, token, info, err)
	return err
}

// Respond answers a peer-initiated request with a success result.
func (c *Conn) Respond(ctx context.Context, id uint64, result any) error {
	info := CallInfo{Peer: c.peer, ID: id, Kind: "respond"}
	ctx, token := c.hook.OnCallStart(ctx, info)
	err := c.write(ctx, time.Now().Add(c.timeout), NewResponse(id, result))
	if err != nil {
		err = c.writeError(ctx, "", err)
	}
	c.hook.OnCallEnd(ctx, token, info, err)
	return err
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// write sends one line. Neither waiting for other writers nor the write
// itself outlasts deadline; the latter only when the stream supports write
// deadlines, as os pipes do. A write cut short by the deadline may leave a
// partial line, so the buffered writer keeps failing afterwards.
func (c *Conn) write(ctx context.Context, deadline time.Time, v any) error {
	data, err := Encode(v)
	if err != nil {
		return err
	}

	select {
	case c.wsem <- struct{}{}:
	default:
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		select {
		case c.wsem <- struct{}{}:
		case <-timer.C:
			return fmt.Errorf("waiting to write to %s stdin: %w", c.peer, os.ErrDeadlineExceeded)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	defer func() { <-c.wsem }()

	if dw, ok := c.raw.(writeDeadliner); ok && dw.SetWriteDeadline(deadline) == nil {
		defer dw.SetWriteDeadline(time.Time{})
	}
	if _, err := c.w.Write(data); err != nil {
		return fmt.Errorf("failed to write to %s stdin: %w", c.peer, err)
	}
	if err := c.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush %s stdin: %w", c.peer, err)
	}
	return nil
}

func (c *Conn) writeError(ctx context.Context, method string, err error) error {
	switch {
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return err
	case errors.Is(err, os.ErrDeadlineExceeded):
		return newCallError(c.peer, method, ErrTimeout, nil)
	default:
		return newCallError(c.peer, method, ErrWrite, err)
	}
}

// Abort stops event delivery and closes the read side. It does not wait for
// the reader goroutine, which may still be parked in a read.
func (c *Conn) Abort() {
	if c.aborted.Swap(true) {
		return
	}
	if err := c.r.Close(); err != nil {
		c.log.Debug("closing reader", "error", err)
	}
}

// Close fails every outstanding and future call with kind and returns how
// many calls were outstanding.
func (c *Conn) Close(kind error) int {
	return c.pending.Close(newCallError(c.peer, "", kind, nil))
}

func (c *Conn) readLoop() {
	defer close(c.done)

	br := bufio.NewReader(c.r)
	for {
		line, err := br.ReadBytes('\n')
		if c.aborted.Load() {
			return
		}
		if len(bytes.TrimSpace(line)) > 0 {
			c.dispatch(line)
		}
		if err == nil {
			continue
		}
		if c.aborted.Load() {
			return
		}
		if errors.Is(err, io.EOF) {
			c.log.Info("output stream closed")
			c.closed(nil)
		} else {
			c.log.Warn("output stream read failed", "error", err)
			c.closed(err)
		}
		if n := c.Close(ErrStreamClosed); n > 0 {
			c.log.Debug("failed pending calls", "count", n)
		}
		return
	}
}

func (c *Conn) dispatch(line []byte) {
	env, err := Decode(line)
	if err != nil {
		var fe *FramingError
		if errors.As(err, &fe) && c.handler.OnParseError != nil {
			c.handler.OnParseError(fe)
		}
		return
	}

	switch env.Kind {
	case KindResponse:
		res := Result{Value: env.Result}
		if env.Error != nil {
			res = Result{Err: env.Error}
		}
		if !c.pending.Resolve(env.ID, res) {
			c.log.Debug("dropping response with no pending call", "id", env.ID)
		}
	case KindRequest:
		if c.handler.OnRequest != nil {
			c.handler.OnRequest(env)
		}
	case KindNotification:
		if c.handler.OnNotification != nil {
			c.handler.OnNotification(env)
		}
	}
}

func (c *Conn) closed(err error) {
	if c.handler.OnClosed != nil {
		c.handler.OnClosed(err)
	}
}
