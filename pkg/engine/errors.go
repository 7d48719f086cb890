package engine

import (
	"errors"
	"fmt"
)

// ErrNotInitialized is returned for traffic issued before the handshake
// completed or after the runtime stopped.
var ErrNotInitialized = errors.New("engine not initialized")

// HandshakeError reports which handshake step failed.
type HandshakeError struct {
	Step string
	Err  error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("engine handshake failed at %s: %v", e.Step, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }
