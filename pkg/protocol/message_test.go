package protocol

import (
	"bytes"
	"testing"
)

func TestMessagePushPopReverseOrder(t *testing.T) {
	m := NewMessage(StubMessage)
	m.PushUint8(0x42)
	m.PushUint32(0xDEADBEEF)
	m.PushString("hello world")
	m.PushInt32(-12345)
	m.PushBool(true)
	m.PushClientID(7)

	id, ok := m.PopClientID()
	if !ok || id != 7 {
		t.Errorf("PopClientID() = %d, %v; want 7, true", id, ok)
	}
	b, ok := m.PopBool()
	if !ok || !b {
		t.Errorf("PopBool() = %v, %v; want true, true", b, ok)
	}
	i32, ok := m.PopInt32()
	if !ok || i32 != -12345 {
		t.Errorf("PopInt32() = %d, %v; want -12345, true", i32, ok)
	}
	s, ok := m.PopString()
	if !ok || s != "hello world" {
		t.Errorf("PopString() = %q, %v; want \"hello world\", true", s, ok)
	}
	u32, ok := m.PopUint32()
	if !ok || u32 != 0xDEADBEEF {
		t.Errorf("PopUint32() = %x, %v; want deadbeef, true", u32, ok)
	}
	u8, ok := m.PopUint8()
	if !ok || u8 != 0x42 {
		t.Errorf("PopUint8() = %x, %v; want 42, true", u8, ok)
	}

	if !m.Empty() {
		t.Errorf("payload not empty after popping every field: %d bytes left", m.Len())
	}
}

func TestMessagePushPopSequence(t *testing.T) {
	values := []uint32{0, 1, 255, 256, 65535, 1 << 31, 0xFFFFFFFF}

	m := NewMessage(StubMessage)
	for _, v := range values {
		m.PushUint32(v)
	}
	for i := len(values) - 1; i >= 0; i-- {
		got, ok := m.PopUint32()
		if !ok {
			t.Fatalf("PopUint32() #%d reported absent", len(values)-i)
		}
		if got != values[i] {
			t.Errorf("PopUint32() = %d, want %d", got, values[i])
		}
	}
	if !m.Empty() {
		t.Errorf("Len() = %d, want 0", m.Len())
	}
}

func TestMessagePopUnderflow(t *testing.T) {
	m := NewMessage(StubMessage)
	m.PushUint8(1).PushUint8(2)

	if _, ok := m.PopUint32(); ok {
		t.Error("PopUint32() on 2 bytes reported present")
	}
	if m.Len() != 2 {
		t.Errorf("failed pop changed payload: Len() = %d, want 2", m.Len())
	}

	m.PopUint8()
	m.PopUint8()
	if _, ok := m.PopUint8(); ok {
		t.Error("PopUint8() on empty payload reported present")
	}
	if _, ok := m.PopBool(); ok {
		t.Error("PopBool() on empty payload reported present")
	}
	if _, ok := m.PopString(); ok {
		t.Error("PopString() on empty payload reported present")
	}
}

func TestMessagePopStringMalformed(t *testing.T) {
	tests := []struct {
		name  string
		build func() *Message
	}{
		{
			name: "length_exceeds_payload",
			build: func() *Message {
				return NewMessage(ChatUpdate).PushBytes([]byte("abc")).PushUint32(10)
			},
		},
		{
			name: "invalid_utf8",
			build: func() *Message {
				return NewMessage(ChatUpdate).PushBytes([]byte{0xff, 0xfe}).PushUint32(2)
			},
		},
		{
			name: "short_length_prefix",
			build: func() *Message {
				return NewMessage(ChatUpdate).PushUint8(1).PushUint8(0)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := tc.build()
			before := append([]byte(nil), m.Payload()...)
			if s, ok := m.PopString(); ok {
				t.Fatalf("PopString() = %q, true; want absent", s)
			}
			if !bytes.Equal(m.Payload(), before) {
				t.Errorf("payload changed by failed pop: %v, want %v", m.Payload(), before)
			}
		})
	}
}

func TestMessageStringLayout(t *testing.T) {
	m := NewMessage(ChatUpdate).PushString("hé")
	want := []byte{'h', 0xc3, 0xa9, 3, 0, 0, 0}
	if !bytes.Equal(m.Payload(), want) {
		t.Errorf("PushString payload = %v, want %v", m.Payload(), want)
	}
}

func TestMessageEmptyString(t *testing.T) {
	m := NewMessage(ChatUpdate).PushString("")
	s, ok := m.PopString()
	if !ok || s != "" {
		t.Errorf("PopString() = %q, %v; want \"\", true", s, ok)
	}
	if !m.Empty() {
		t.Errorf("Len() = %d, want 0", m.Len())
	}
}

func TestMessageClone(t *testing.T) {
	m := NewMessage(StubMessage).PushUint32(9)
	c := m.Clone()
	m.PopUint32()

	if c.Len() != 4 {
		t.Errorf("clone shares payload with original: Len() = %d, want 4", c.Len())
	}
}

func TestMessageTypeValid(t *testing.T) {
	for _, mt := range AllTypes() {
		if !mt.Valid() {
			t.Errorf("%s.Valid() = false", mt)
		}
	}
	for _, tag := range []MessageType{0, 11, 0xFFFFFFFF} {
		if tag.Valid() {
			t.Errorf("MessageType(%d).Valid() = true", tag)
		}
	}
	if len(AllTypes()) != 10 {
		t.Errorf("len(AllTypes()) = %d, want 10", len(AllTypes()))
	}
}
