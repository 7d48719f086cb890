package worker

import (
	"errors"
	"strings"

	"github.com/ormasoftchile/rail/pkg/jsonrpc"
)

// recoverableKinds are the failures after which restarting the worker and
// retrying the call is worthwhile.
var recoverableKinds = []error{
	jsonrpc.ErrStreamClosed,
	jsonrpc.ErrStopped,
	jsonrpc.ErrResponseChannelClosed,
	jsonrpc.ErrWrite,
	jsonrpc.ErrTimeout,
}

// recoverableMessages match the rendered form of recoverableKinds, for
// errors that reached us as text only.
var recoverableMessages = []string{
	"web worker stopped",
	"response channel closed",
	"failed to write to web worker stdin",
	"failed to flush web worker stdin",
	"request timed out",
	"output stream closed",
}

// IsRecoverable reports whether err means the worker process or its
// stream is gone rather than the worker rejecting the call. Remote errors
// are never recoverable.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	var remote *jsonrpc.RemoteError
	if errors.As(err, &remote) {
		return false
	}
	for _, kind := range recoverableKinds {
		if errors.Is(err, kind) {
			return true
		}
	}
	return IsRecoverableMessage(err.Error())
}

// IsRecoverableMessage classifies an error message by substring.
func IsRecoverableMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, m := range recoverableMessages {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
