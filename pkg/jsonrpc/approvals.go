package jsonrpc

import (
	"sort"
	"sync"
)

// ApprovalTable remembers peer-initiated requests that are waiting for an
// external decision, keyed by the peer's request id.
type ApprovalTable struct {
	mu      sync.Mutex
	entries map[uint64]string
}

// NewApprovalTable returns an empty table.
func NewApprovalTable() *ApprovalTable {
	return &ApprovalTable{entries: make(map[uint64]string)}
}

// Put records that request id of the given method awaits a response.
func (t *ApprovalTable) Put(id uint64, method string) {
	t.mu.Lock()
	t.entries[id] = method
	t.mu.Unlock()
}

// Take removes id and returns its method.
func (t *ApprovalTable) Take(id uint64) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	method, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	return method, ok
}

// Clear forgets every entry without responding.
func (t *ApprovalTable) Clear() {
	t.mu.Lock()
	clear(t.entries)
	t.mu.Unlock()
}

// PendingApproval is a snapshot entry.
type PendingApproval struct {
	ID     uint64 `json:"requestId"`
	Method string `json:"method"`
}

// List returns the outstanding entries ordered by id.
func (t *ApprovalTable) List() []PendingApproval {
	t.mu.Lock()
	out := make([]PendingApproval, 0, len(t.entries))
	for id, m := range t.entries {
		out = append(out, PendingApproval{ID: id, Method: m})
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
