package server

import (
	"errors"
	"fmt"

	"github.com/vango-dev/readyroom/pkg/protocol"
)

// Sentinel errors for connection handling.
var (
	// ErrServerClosed is returned by the serve methods after Shutdown.
	ErrServerClosed = errors.New("server: closed")

	// ErrNotAdmitting is returned when the session no longer takes clients.
	ErrNotAdmitting = errors.New("server: not admitting connections")

	// ErrRateLimited is returned when connections arrive faster than allowed.
	ErrRateLimited = errors.New("server: connection rate exceeded")

	// ErrInvalidConfig is returned by ValidateConfig.
	ErrInvalidConfig = errors.New("server: invalid config")
)

// ConnError wraps an error with client context for debugging.
type ConnError struct {
	ClientID protocol.ClientID
	Op       string // Operation that failed
	Err      error  // Underlying error
}

// Error returns the error message with client context.
func (e *ConnError) Error() string {
	if e.ClientID == 0 {
		return fmt.Sprintf("server: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("server: client %d: %s: %v", e.ClientID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *ConnError) Unwrap() error {
	return e.Err
}

// NewConnError creates a new ConnError.
func NewConnError(id protocol.ClientID, op string, err error) *ConnError {
	return &ConnError{ClientID: id, Op: op, Err: err}
}
