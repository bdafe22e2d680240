package protocol

import (
	"errors"
	"fmt"
)

// Decoding and encoding errors.
var (
	// ErrUnknownType is returned when a frame carries a tag outside the closed
	// message type enumeration.
	ErrUnknownType = errors.New("protocol: unknown message type")

	// ErrPayloadTooLarge is returned when a frame announces or carries a payload
	// above MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("protocol: payload too large")

	// ErrTruncatedFrame is returned when the stream ends in the middle of a frame.
	ErrTruncatedFrame = errors.New("protocol: truncated frame")

	// ErrTrailingData is returned when a buffer holds bytes past the end of the
	// frame it is supposed to contain.
	ErrTrailingData = errors.New("protocol: trailing data after frame")

	// ErrPayloadUnderflow is returned by payload parsers when a field cannot be
	// popped because the payload is exhausted or malformed.
	ErrPayloadUnderflow = errors.New("protocol: payload underflow")

	// ErrTooManyEntries is returned when a list payload would exceed MaxEntries.
	ErrTooManyEntries = errors.New("protocol: too many entries")

	// ErrUnexpectedType is returned when a parser receives the wrong message type.
	ErrUnexpectedType = errors.New("protocol: unexpected message type")
)

// TypeError reports a frame whose type tag is not part of the enumeration.
type TypeError struct {
	Tag uint32
}

// Error returns the error message with the offending tag.
func (e *TypeError) Error() string {
	return fmt.Sprintf("protocol: unknown message type %d", e.Tag)
}

// Unwrap allows errors.Is(err, ErrUnknownType).
func (e *TypeError) Unwrap() error {
	return ErrUnknownType
}

func underflow(t MessageType, field string) error {
	return fmt.Errorf("%w: %s.%s", ErrPayloadUnderflow, t, field)
}

func expectType(m *Message, want MessageType) error {
	if m.Type != want {
		return fmt.Errorf("%w: got %s, want %s", ErrUnexpectedType, m.Type, want)
	}
	return nil
}
