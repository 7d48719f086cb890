package jsonrpc

import (
	"encoding/json"
	"sync"
)

// Result is the outcome delivered to a waiting caller.
type Result struct {
	Value json.RawMessage
	Err   error
}

// PendingTable maps call ids to one-shot completions. Removing an entry and
// delivering to it happen under the same lock, so each completion fires at
// most once no matter which of response, timeout or bulk resolution wins.
type PendingTable struct {
	mu     sync.Mutex
	calls  map[uint64]chan Result
	sealed error
}

// NewPendingTable returns an empty table.
func NewPendingTable() *PendingTable {
	return &PendingTable{calls: make(map[uint64]chan Result)}
}

// Register installs a completion for id and returns the channel it will be
// delivered on. After Close the channel is already resolved with the
// closing error.
func (t *PendingTable) Register(id uint64) <-chan Result {
	ch := make(chan Result, 1)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sealed != nil {
		ch <- Result{Err: t.sealed}
		close(ch)
		return ch
	}
	t.calls[id] = ch
	return ch
}

// Resolve delivers res to id and removes it. It reports false when no
// completion is registered (already resolved, timed out, or never issued).
func (t *PendingTable) Resolve(id uint64, res Result) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.calls[id]
	if !ok {
		return false
	}
	delete(t.calls, id)
	ch <- res
	close(ch)
	return true
}

// Remove drops id without delivering anything.
func (t *PendingTable) Remove(id uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.calls[id]
	if ok {
		delete(t.calls, id)
		close(ch)
	}
	return ok
}

// ResolveAll fails every outstanding call with err and empties the table.
func (t *PendingTable) ResolveAll(err error) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.calls)
	for id, ch := range t.calls {
		ch <- Result{Err: err}
		close(ch)
		delete(t.calls, id)
	}
	return n
}

// Close fails every outstanding call with err and makes later
// registrations fail the same way. Only the first Close takes effect.
func (t *PendingTable) Close(err error) int {
	t.mu.Lock()
	if t.sealed == nil {
		t.sealed = err
	}
	t.mu.Unlock()
	return t.ResolveAll(err)
}

// Len returns the number of outstanding calls.
func (t *PendingTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}
