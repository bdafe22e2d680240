// Package protocol implements the binary wire protocol spoken between readyroom
// clients and the server.
//
// # Wire Format
//
// Every message is one frame with an 8-byte header:
//
//	┌──────────────────────────┬──────────────────────────┐
//	│ Message Type             │ Payload Length           │
//	│ (4 bytes, little-endian) │ (4 bytes, little-endian) │
//	└──────────────────────────┴──────────────────────────┘
//	│                                                     │
//	│  Payload (variable length)                          │
//	│                                                     │
//	└─────────────────────────────────────────────────────┘
//
// The set of message types is closed. A frame carrying any other tag is a fatal
// decode error for the connection that sent it.
//
// # Payload Stack
//
// A payload is a stack of fields. Push appends the raw little-endian bytes of a
// primitive to the end of the payload; strings are appended as their UTF-8 bytes
// followed by a 4-byte length. Pop removes from the end, so a reader consumes
// fields in the exact reverse of the order they were written:
//
//	m := protocol.NewMessage(protocol.GameAboutToStart)
//	m.PushUint8(3)
//	seconds, ok := m.PopUint8() // 3, true
//
// Popping more bytes than are available reports the field as absent and leaves
// the payload untouched.
//
// # Lists
//
// Builders for list payloads (roster, status changes, chat lines) write entries
// in reverse so that the receiving side pops them in slice order. Parsers return
// entries in pop order. A list holds at most MaxEntries entries because its count
// is a single byte.
//
// # Transports
//
// On a raw stream (TCP) frames follow each other back to back; see ReadMessage,
// WriteMessage and Messages. On a message-oriented transport (WebSocket) each
// binary message carries exactly one frame; see Encode and DecodeMessage.
package protocol
