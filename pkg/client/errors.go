package client

import (
	"errors"
	"fmt"
)

// Sentinel errors for common session conditions.
var (
	// ErrSessionClosed is returned when a session was stopped while it was
	// still starting.
	ErrSessionClosed = errors.New("client: session closed")

	// ErrNotConnected is returned when a frame is sent without a transport.
	ErrNotConnected = errors.New("client: not connected")
)

// SessionStartError reports a failed start attempt. Op names the step
// that failed: "resolve", "dial" or "auth".
type SessionStartError struct {
	RoomID int64
	Op     string
	Err    error
}

// Error returns the error message with room context.
func (e *SessionStartError) Error() string {
	return fmt.Sprintf("client: room %d: %s: %v", e.RoomID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *SessionStartError) Unwrap() error {
	return e.Err
}

// AuthRejectedError reports an auth reply with a non-zero code.
type AuthRejectedError struct {
	Code    int
	Message string
}

// Error returns the error message.
func (e *AuthRejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("client: auth rejected (code %d)", e.Code)
	}
	return fmt.Sprintf("client: auth rejected (code %d): %s", e.Code, e.Message)
}
