package errors

import (
	stderrors "errors"
	"fmt"

	"github.com/xyself/blivedm/pkg/client"
	"github.com/xyself/blivedm/pkg/resolve"
)

// Category groups error codes.
type Category string

const (
	CategorySession Category = "session"
	CategoryConfig  Category = "config"
	CategoryArchive Category = "archive"
	CategoryCLI     Category = "cli"
)

// Error is a coded error with an explanation and a hint.
type Error struct {
	// Code is a unique error identifier (e.g., "E101").
	Code string

	// Category groups related codes.
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation.
	Detail string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// WithSuggestion replaces the fix suggestion.
func (e *Error) WithSuggestion(s string) *Error {
	e.Suggestion = s
	return e
}

// WithDetail replaces the explanation.
func (e *Error) WithDetail(d string) *Error {
	e.Detail = d
	return e
}

// Wrap wraps another error.
func (e *Error) Wrap(err error) *Error {
	e.Wrapped = err
	return e
}

// New creates an Error from a registered code.
func New(code string) *Error {
	template, ok := registry[code]
	if !ok {
		return &Error{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &Error{
		Code:       code,
		Category:   template.Category,
		Message:    template.Message,
		Detail:     template.Detail,
		Suggestion: template.Suggestion,
	}
}

// Newf creates an Error with a formatted message and no code.
func Newf(category Category, format string, args ...any) *Error {
	return &Error{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps err in an Error with code, unless it already is one.
func FromError(err error, code string) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return New(code).Wrap(err)
}

// Classify maps a session or resolver error to its code. Errors it does
// not recognize come back uncoded in the CLI category.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var (
		e        *Error
		rejected *client.AuthRejectedError
		start    *client.SessionStartError
	)
	switch {
	case stderrors.As(err, &e):
		return e
	case stderrors.As(err, &rejected):
		return New("E103").Wrap(err)
	case stderrors.Is(err, resolve.ErrAPI):
		return New("E101").Wrap(err)
	case stderrors.As(err, &start):
		if start.Op == "resolve" {
			return New("E101").Wrap(err)
		}
		return New("E102").Wrap(err)
	}
	return &Error{Category: CategoryCLI, Message: err.Error()}
}
