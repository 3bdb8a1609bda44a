package dispatch

import (
	"fmt"
)

// EventDecodeError reports a notification body that could not be decoded
// into its event type. Cmd is empty when the body was not JSON.
type EventDecodeError struct {
	Cmd string
	Err error
}

// Error returns the error message.
func (e *EventDecodeError) Error() string {
	if e.Cmd == "" {
		return fmt.Sprintf("dispatch: invalid notification: %v", e.Err)
	}
	return fmt.Sprintf("dispatch: decode %s: %v", e.Cmd, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *EventDecodeError) Unwrap() error {
	return e.Err
}

// HandlerError reports a callback that panicked.
type HandlerError struct {
	Cmd   string
	Value any
	Stack []byte
}

// Error returns the error message.
func (e *HandlerError) Error() string {
	return fmt.Sprintf("dispatch: %s callback panicked: %v", e.Cmd, e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *HandlerError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
