package events

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

// JSONWriter writes each event as one JSON line.
type JSONWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONWriter returns an Emitter writing to w.
func NewJSONWriter(w io.Writer) *JSONWriter {
	return &JSONWriter{enc: json.NewEncoder(w)}
}

func (j *JSONWriter) Emit(e Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	_ = j.enc.Encode(e)
}

// Multi emits to every emitter in order.
func Multi(emitters ...Emitter) Emitter {
	return EmitterFunc(func(e Event) {
		for _, em := range emitters {
			em.Emit(e)
		}
	})
}

// Recorder keeps every event it receives. Tests use it to assert on what a
// runtime reported.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	signal chan struct{}
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{signal: make(chan struct{}, 1)}
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	select {
	case r.signal <- struct{}{}:
	default:
	}
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Lifecycles returns the recorded lifecycle states in order.
func (r *Recorder) Lifecycles() []string {
	var out []string
	for _, e := range r.Events() {
		if l, ok := e.Payload.(Lifecycle); ok {
			out = append(out, l.State)
		}
	}
	return out
}

// Notifications returns recorded notifications with the given method.
func (r *Recorder) Notifications(method string) []Notification {
	var out []Notification
	for _, e := range r.Events() {
		if n, ok := e.Payload.(Notification); ok && n.Method == method {
			out = append(out, n)
		}
	}
	return out
}

// ApprovalRequests returns recorded approval requests in order.
func (r *Recorder) ApprovalRequests() []ApprovalRequest {
	var out []ApprovalRequest
	for _, e := range r.Events() {
		if a, ok := e.Payload.(ApprovalRequest); ok {
			out = append(out, a)
		}
	}
	return out
}

// WaitFor blocks until match returns true for some recorded event or the
// timeout elapses.
func (r *Recorder) WaitFor(timeout time.Duration, match func(Event) bool) (Event, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		for _, e := range r.Events() {
			if match(e) {
				return e, true
			}
		}
		select {
		case <-r.signal:
		case <-deadline.C:
			return Event{}, false
		}
	}
}

// IsLifecycle matches a lifecycle event in state.
func IsLifecycle(state string) func(Event) bool {
	return func(e Event) bool {
		l, ok := e.Payload.(Lifecycle)
		return ok && l.State == state
	}
}

// IsNotification matches a notification with method.
func IsNotification(method string) func(Event) bool {
	return func(e Event) bool {
		n, ok := e.Payload.(Notification)
		return ok && n.Method == method
	}
}
