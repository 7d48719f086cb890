package jsonrpc

import (
	"errors"
	"fmt"
)

// Error categories shared by every connection. Wrapped errors carry the
// peer name and method; match them with errors.Is.
var (
	ErrWrite                 = errors.New("write failed")
	ErrTimeout               = errors.New("request timed out")
	ErrStreamClosed          = errors.New("output stream closed")
	ErrStopped               = errors.New("stopped")
	ErrResponseChannelClosed = errors.New("response channel closed")
	ErrUnknownApproval       = errors.New("unknown approval request id")
)

// CallError decorates a category with the peer and method it came from.
type CallError struct {
	Peer   string
	Method string
	Kind   error
	Err    error
}

func (e *CallError) Error() string {
	var msg string
	switch e.Kind {
	case ErrTimeout:
		msg = fmt.Sprintf("%s request timed out: %s", e.Peer, e.Method)
	case ErrStreamClosed:
		msg = fmt.Sprintf("%s output stream closed", e.Peer)
	case ErrStopped:
		msg = fmt.Sprintf("%s stopped", e.Peer)
	case ErrResponseChannelClosed:
		msg = fmt.Sprintf("%s response channel closed", e.Peer)
	default:
		msg = fmt.Sprintf("%s %v", e.Peer, e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *CallError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func newCallError(peer, method string, kind, cause error) *CallError {
	return &CallError{Peer: peer, Method: method, Kind: kind, Err: cause}
}
