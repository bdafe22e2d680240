package errors

import (
	stderrors "errors"
	"fmt"
)

// Category represents the area an error comes from.
type Category string

const (
	CategoryConfig    Category = "config"
	CategoryTransport Category = "transport"
	CategoryCLI       Category = "cli"
	CategoryArchive   Category = "archive"
)

// RoomError is a coded error with an explanation and a fix suggestion.
type RoomError struct {
	// Code is a unique error identifier (e.g., "E101").
	Code string

	// Category is the area the error belongs to.
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *RoomError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *RoomError) Unwrap() error {
	return e.Wrapped
}

// WithDetail adds a detailed explanation to the error.
func (e *RoomError) WithDetail(d string) *RoomError {
	e.Detail = d
	return e
}

// WithSuggestion adds a fix suggestion to the error.
func (e *RoomError) WithSuggestion(s string) *RoomError {
	e.Suggestion = s
	return e
}

// Wrap wraps another error.
func (e *RoomError) Wrap(err error) *RoomError {
	e.Wrapped = err
	return e
}

// New creates a RoomError from a registered error code.
func New(code string) *RoomError {
	template, ok := registry[code]
	if !ok {
		return &RoomError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &RoomError{
		Code:       code,
		Category:   template.Category,
		Message:    template.Message,
		Detail:     template.Detail,
		Suggestion: template.Suggestion,
	}
}

// Newf creates a RoomError with a formatted message and no code.
func Newf(category Category, format string, args ...any) *RoomError {
	return &RoomError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error under code. A *RoomError anywhere in the
// chain is returned as is.
func FromError(err error, code string) *RoomError {
	if err == nil {
		return nil
	}
	var re *RoomError
	if stderrors.As(err, &re) {
		return re
	}
	return New(code).Wrap(err)
}

// Code returns the code of the first RoomError in err's chain, or "".
func Code(err error) string {
	var re *RoomError
	if stderrors.As(err, &re) {
		return re.Code
	}
	return ""
}
