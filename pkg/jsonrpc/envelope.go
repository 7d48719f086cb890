// Package jsonrpc implements line-delimited JSON-RPC 2.0 over a child
// process's stdio: the framing codec, the pending-call and approval tables,
// and a multiplexed connection that lets many callers share one stream.
package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Version is the protocol version carried by every outgoing envelope.
const Version = "2.0"

// Kind classifies an inbound envelope.
type Kind int

const (
	// KindResponse answers a call we issued.
	KindResponse Kind = iota
	// KindRequest is a call initiated by the peer that expects a response.
	KindRequest
	// KindNotification is a one-way message from the peer.
	KindNotification
)

func (k Kind) String() string {
	switch k {
	case KindResponse:
		return "response"
	case KindRequest:
		return "request"
	case KindNotification:
		return "notification"
	default:
		return "unknown"
	}
}

// Envelope is one decoded line.
type Envelope struct {
	Kind   Kind
	ID     uint64
	Method string
	Params json.RawMessage
	Result json.RawMessage
	Error  *RemoteError
}

// RemoteError is the error object of a failed response.
type RemoteError struct {
	Code    int64
	Message string
	Data    json.RawMessage
}

func (e *RemoteError) Error() string {
	if len(e.Data) > 0 && !bytes.Equal(e.Data, []byte("null")) {
		return fmt.Sprintf("rpc error %d: %s (%s)", e.Code, e.Message, string(e.Data))
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// UnmarshalJSON accepts codes sent either as numbers or numeric strings.
func (e *RemoteError) UnmarshalJSON(data []byte) error {
	var aux struct {
		Code    json.RawMessage `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data,omitempty"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	e.Message = aux.Message
	e.Data = aux.Data

	if len(aux.Code) == 0 {
		return nil
	}
	var codeInt int64
	if err := json.Unmarshal(aux.Code, &codeInt); err == nil {
		e.Code = codeInt
		return nil
	}
	var codeStr string
	if err := json.Unmarshal(aux.Code, &codeStr); err == nil {
		if parsed, parseErr := strconv.ParseInt(strings.TrimSpace(codeStr), 10, 64); parseErr == nil {
			e.Code = parsed
			return nil
		}
	}
	return fmt.Errorf("invalid jsonrpc error code: %s", string(aux.Code))
}

// MarshalJSON writes the standard error object.
func (e *RemoteError) MarshalJSON() ([]byte, error) {
	out := struct {
		Code    int64           `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data,omitempty"`
	}{e.Code, e.Message, e.Data}
	return json.Marshal(out)
}

// request is an outgoing call or notification. ID is nil for notifications.
type request struct {
	JSONRPC string  `json:"jsonrpc"`
	ID      *uint64 `json:"id,omitempty"`
	Method  string  `json:"method"`
	Params  any     `json:"params,omitempty"`
}

// response is an outgoing reply to a peer-initiated request.
type response struct {
	JSONRPC string       `json:"jsonrpc"`
	ID      uint64       `json:"id"`
	Result  any          `json:"result"`
	Error   *RemoteError `json:"error,omitempty"`
}

// NewRequest builds a call envelope.
func NewRequest(id uint64, method string, params any) any {
	return request{JSONRPC: Version, ID: &id, Method: method, Params: params}
}

// NewNotification builds a notification envelope.
func NewNotification(method string, params any) any {
	return request{JSONRPC: Version, Method: method, Params: params}
}

// NewResponse builds a success response envelope. A nil result is sent as null.
func NewResponse(id uint64, result any) any {
	return response{JSONRPC: Version, ID: id, Result: result}
}

// ParseID coerces a raw id (unsigned integer or numeric string) to uint64.
func ParseID(raw json.RawMessage) (uint64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		raw = []byte(strings.TrimSpace(s))
	}
	n, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
