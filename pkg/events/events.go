// Package events defines what the runtimes report to the host and the
// plumbing that carries it.
package events

import (
	"encoding/json"
)

// Topics under which events are published.
const (
	TopicLifecycle       = "engine://lifecycle"
	TopicNotification    = "engine://notification"
	TopicApprovalRequest = "engine://approval_request"
)

// Lifecycle states.
const (
	StateStarting     = "starting"
	StateReady        = "ready"
	StateStopped      = "stopped"
	StateDisconnected = "disconnected"
	StateParseError   = "parseError"
	StateReadError    = "readError"
	StateStderrError  = "stderrError"
)

// Lifecycle reports a state change of the engine process.
type Lifecycle struct {
	State   string  `json:"state"`
	Message *string `json:"message"`
}

// Notification carries a message forwarded from a child, or a synthetic one
// such as stderr output.
type Notification struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// ApprovalRequest asks the host to decide on a server-initiated request.
type ApprovalRequest struct {
	RequestID uint64          `json:"requestId"`
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params"`
}

// Event is one published item. Payload is a Lifecycle, Notification or
// ApprovalRequest.
type Event struct {
	Topic   string `json:"topic"`
	Payload any    `json:"payload"`
}

// Emitter accepts events. Emit must not block.
type Emitter interface {
	Emit(Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Event)

func (f EmitterFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Emitter = EmitterFunc(func(Event) {})

// EmitLifecycle publishes a lifecycle state with an optional message.
func EmitLifecycle(e Emitter, state, message string) {
	l := Lifecycle{State: state}
	if message != "" {
		l.Message = &message
	}
	e.Emit(Event{Topic: TopicLifecycle, Payload: l})
}

// EmitNotification publishes a notification. params is marshalled unless it
// is already raw JSON; nil becomes null.
func EmitNotification(e Emitter, method string, params any) {
	e.Emit(Event{Topic: TopicNotification, Payload: Notification{Method: method, Params: rawParams(params)}})
}

// EmitApprovalRequest publishes an approval request.
func EmitApprovalRequest(e Emitter, id uint64, method string, params json.RawMessage) {
	e.Emit(Event{Topic: TopicApprovalRequest, Payload: ApprovalRequest{RequestID: id, Method: method, Params: rawParams(params)}})
}

func rawParams(params any) json.RawMessage {
	switch p := params.(type) {
	case nil:
		return json.RawMessage("null")
	case json.RawMessage:
		if len(p) == 0 {
			return json.RawMessage("null")
		}
		return p
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return json.RawMessage("null")
		}
		return data
	}
}
