package protocol

import (
	"encoding/binary"
	"unicode/utf8"
)

// ByteOrder is the byte order used for headers and every fixed-width field.
var ByteOrder = binary.LittleEndian

// Message is a typed payload. The payload behaves as a stack: Push methods
// append to the end and Pop methods remove from the end.
//
// A Message is not safe for concurrent use.
type Message struct {
	Type    MessageType
	payload []byte
}

// NewMessage creates an empty message of the given type.
func NewMessage(t MessageType) *Message {
	return &Message{Type: t}
}

// NewMessageWithPayload creates a message that takes a copy of payload.
func NewMessageWithPayload(t MessageType, payload []byte) *Message {
	m := &Message{Type: t}
	if len(payload) > 0 {
		m.payload = append(make([]byte, 0, len(payload)), payload...)
	}
	return m
}

// Payload returns the remaining payload bytes. The returned slice is valid until
// the next Push or Pop.
func (m *Message) Payload() []byte {
	return m.payload
}

// Len returns the number of payload bytes left on the stack.
func (m *Message) Len() int {
	return len(m.payload)
}

// Empty reports whether every field has been popped.
func (m *Message) Empty() bool {
	return len(m.payload) == 0
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	return NewMessageWithPayload(m.Type, m.payload)
}

// PushUint8 appends a single byte.
func (m *Message) PushUint8(v uint8) *Message {
	m.payload = append(m.payload, v)
	return m
}

// PushBool appends a boolean as 0x00 or 0x01.
func (m *Message) PushBool(v bool) *Message {
	if v {
		return m.PushUint8(1)
	}
	return m.PushUint8(0)
}

// PushUint32 appends a uint32 in ByteOrder.
func (m *Message) PushUint32(v uint32) *Message {
	m.payload = ByteOrder.AppendUint32(m.payload, v)
	return m
}

// PushInt32 appends an int32 in ByteOrder.
func (m *Message) PushInt32(v int32) *Message {
	return m.PushUint32(uint32(v))
}

// PushClientID appends a client id as a uint32.
func (m *Message) PushClientID(id ClientID) *Message {
	return m.PushUint32(uint32(id))
}

// PushString appends the UTF-8 bytes of s followed by their length as a uint32.
func (m *Message) PushString(s string) *Message {
	m.payload = append(m.payload, s...)
	return m.PushUint32(uint32(len(s)))
}

// PushBytes appends raw bytes without a length.
func (m *Message) PushBytes(b []byte) *Message {
	m.payload = append(m.payload, b...)
	return m
}

// popN removes the last n bytes, or reports false and leaves the payload
// untouched when fewer than n remain.
func (m *Message) popN(n int) ([]byte, bool) {
	if n < 0 || len(m.payload) < n {
		return nil, false
	}
	start := len(m.payload) - n
	b := m.payload[start:]
	m.payload = m.payload[:start]
	return b, true
}

// PopUint8 removes the last byte.
func (m *Message) PopUint8() (uint8, bool) {
	b, ok := m.popN(1)
	if !ok {
		return 0, false
	}
	return b[0], true
}

// PopBool removes the last byte and reports whether it was non-zero.
func (m *Message) PopBool() (bool, bool) {
	v, ok := m.PopUint8()
	return v != 0, ok
}

// PopUint32 removes the last four bytes.
func (m *Message) PopUint32() (uint32, bool) {
	b, ok := m.popN(4)
	if !ok {
		return 0, false
	}
	return ByteOrder.Uint32(b), true
}

// PopInt32 removes the last four bytes as a signed integer.
func (m *Message) PopInt32() (int32, bool) {
	v, ok := m.PopUint32()
	return int32(v), ok
}

// PopClientID removes the last four bytes as a client id.
func (m *Message) PopClientID() (ClientID, bool) {
	v, ok := m.PopUint32()
	return ClientID(v), ok
}

// PopString removes a string pushed with PushString. Nothing is removed when the
// length prefix does not fit the payload or the bytes are not valid UTF-8.
func (m *Message) PopString() (string, bool) {
	if len(m.payload) < 4 {
		return "", false
	}
	n := uint64(ByteOrder.Uint32(m.payload[len(m.payload)-4:]))
	rest := uint64(len(m.payload) - 4)
	if n > rest {
		return "", false
	}
	body := m.payload[rest-n : rest]
	if !utf8.Valid(body) {
		return "", false
	}
	s := string(body)
	m.payload = m.payload[:rest-n]
	return s, true
}
