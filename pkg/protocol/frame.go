package protocol

import (
	"errors"
	"io"
	"iter"
)

// Frame constants.
const (
	// HeaderSize is the size of the frame header in bytes.
	HeaderSize = 8

	// MaxPayloadSize is the largest payload accepted on the wire (1 MiB).
	MaxPayloadSize = 1 << 20
)

// Encode encodes the message as a complete frame.
func (m *Message) Encode() []byte {
	buf := make([]byte, 0, HeaderSize+len(m.payload))
	buf = ByteOrder.AppendUint32(buf, uint32(m.Type))
	buf = ByteOrder.AppendUint32(buf, uint32(len(m.payload)))
	return append(buf, m.payload...)
}

// WriteMessage writes a complete frame to w.
func WriteMessage(w io.Writer, m *Message) error {
	if len(m.payload) > MaxPayloadSize {
		return ErrPayloadTooLarge
	}
	_, err := w.Write(m.Encode())
	return err
}

// decodeHeader validates a frame header and returns its type and payload length.
func decodeHeader(header []byte) (MessageType, int, error) {
	tag := ByteOrder.Uint32(header[0:4])
	t := MessageType(tag)
	if !t.Valid() {
		return 0, 0, &TypeError{Tag: tag}
	}
	length := ByteOrder.Uint32(header[4:8])
	if length > MaxPayloadSize {
		return 0, 0, ErrPayloadTooLarge
	}
	return t, int(length), nil
}

// ReadMessage reads one complete frame from r, blocking until it has arrived.
//
// It returns io.EOF when r ends cleanly before the first header byte,
// ErrTruncatedFrame when r ends inside a frame, and a *TypeError for a tag that
// is not part of the enumeration. Any other error comes from r.
func ReadMessage(r io.Reader) (*Message, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrTruncatedFrame
		}
		return nil, err
	}

	t, length, err := decodeHeader(header[:])
	if err != nil {
		return nil, err
	}

	m := &Message{Type: t}
	if length > 0 {
		m.payload = make([]byte, length)
		if _, err := io.ReadFull(r, m.payload); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, ErrTruncatedFrame
			}
			return nil, err
		}
	}
	return m, nil
}

// DecodeMessage decodes exactly one frame from data. Trailing bytes after the
// announced payload are rejected as a malformed frame.
func DecodeMessage(data []byte) (*Message, error) {
	if len(data) < HeaderSize {
		return nil, ErrTruncatedFrame
	}
	t, length, err := decodeHeader(data[:HeaderSize])
	if err != nil {
		return nil, err
	}
	body := data[HeaderSize:]
	switch {
	case len(body) < length:
		return nil, ErrTruncatedFrame
	case len(body) > length:
		return nil, ErrTrailingData
	}
	return NewMessageWithPayload(t, body), nil
}

// Messages returns an iterator over the frames read from r. The sequence ends
// without an error when r closes on a frame boundary; any other failure is
// yielded once as the final element.
func Messages(r io.Reader) iter.Seq2[*Message, error] {
	return func(yield func(*Message, error) bool) {
		for {
			m, err := ReadMessage(r)
			if err != nil {
				if !errors.Is(err, io.EOF) {
					yield(nil, err)
				}
				return
			}
			if !yield(m, nil) {
				return
			}
		}
	}
}
