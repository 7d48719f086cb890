package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// FramingError reports a line that is not a valid envelope. It is surfaced
// as an event and never terminates the reader loop.
type FramingError struct {
	Line []byte
	Err  error
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("failed to parse incoming JSON-RPC line: %v", e.Err)
}

func (e *FramingError) Unwrap() error { return e.Err }

var (
	errNoDiscriminator = errors.New("envelope has neither method nor id")
	errResultAndError  = errors.New("response carries both result and error")
)

// wire mirrors every field an inbound envelope may carry.
type wire struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
	Error  *RemoteError    `json:"error"`
}

// Decode parses and classifies one line.
func Decode(line []byte) (*Envelope, error) {
	line = bytes.TrimSpace(line)
	var w wire
	if err := json.Unmarshal(line, &w); err != nil {
		return nil, &FramingError{Line: line, Err: err}
	}

	hasID := len(w.ID) > 0 && !bytes.Equal(w.ID, []byte("null"))
	hasResult := len(w.Result) > 0
	hasError := w.Error != nil

	switch {
	case w.Method != "" && !hasID:
		return &Envelope{Kind: KindNotification, Method: w.Method, Params: w.Params}, nil

	case w.Method != "" && !hasResult && !hasError:
		id, ok := ParseID(w.ID)
		if !ok {
			return nil, &FramingError{Line: line, Err: fmt.Errorf("invalid request id %s", string(w.ID))}
		}
		return &Envelope{Kind: KindRequest, ID: id, Method: w.Method, Params: w.Params}, nil

	case hasID:
		id, ok := ParseID(w.ID)
		if !ok {
			return nil, &FramingError{Line: line, Err: fmt.Errorf("invalid response id %s", string(w.ID))}
		}
		if hasResult && hasError {
			return nil, &FramingError{Line: line, Err: errResultAndError}
		}
		env := &Envelope{Kind: KindResponse, ID: id, Error: w.Error, Result: w.Result}
		if !hasError && !hasResult {
			env.Result = json.RawMessage("null")
		}
		return env, nil
	}
	return nil, &FramingError{Line: line, Err: errNoDiscriminator}
}

// Encode serializes an envelope followed by exactly one newline.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return append(data, '\n'), nil
}
