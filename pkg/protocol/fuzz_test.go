package protocol

import (
	"bytes"
	"testing"
)

// FuzzReadMessage tests that decoding arbitrary bytes doesn't panic.
func FuzzReadMessage(f *testing.F) {
	f.Add(NewMessage(ConnectionRequested).Encode())
	f.Add(NewReadyToStartChanged(true).Encode())
	m, _ := NewChatRequest([]string{"hi", "there"})
	f.Add(m.Encode())
	f.Add([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF})

	f.Fuzz(func(t *testing.T, data []byte) {
		// Should not panic
		for m, err := range Messages(bytes.NewReader(data)) {
			if err != nil {
				return
			}
			_, _ = ParseChatRequest(m.Clone())
			_, _, _ = ParseConnectionAccepted(m.Clone())
			_, _ = ParseUserStatusUpdate(m.Clone())
		}
	})
}

// FuzzPopString tests that popping strings from arbitrary payloads doesn't panic.
func FuzzPopString(f *testing.F) {
	f.Add([]byte("abc\x03\x00\x00\x00"))
	f.Add([]byte{0xFF, 0xFF, 0xFF, 0xFF})

	f.Fuzz(func(t *testing.T, data []byte) {
		m := NewMessageWithPayload(ChatUpdate, data)
		for !m.Empty() {
			if _, ok := m.PopString(); !ok {
				m.PopUint8()
			}
		}
	})
}
