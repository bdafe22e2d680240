package protocol

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestConnectionAcceptedRoundTrip(t *testing.T) {
	roster := []RosterEntry{{ID: 3, Ready: false}, {ID: 9, Ready: true}, {ID: 12, Ready: false}}

	m, err := NewConnectionAccepted(9, roster)
	if err != nil {
		t.Fatalf("NewConnectionAccepted() error = %v", err)
	}
	decoded, err := DecodeMessage(m.Encode())
	if err != nil {
		t.Fatalf("DecodeMessage() error = %v", err)
	}

	self, got, err := ParseConnectionAccepted(decoded)
	if err != nil {
		t.Fatalf("ParseConnectionAccepted() error = %v", err)
	}
	if self != 9 {
		t.Errorf("self = %d, want 9", self)
	}
	if len(got) != len(roster) {
		t.Fatalf("len(roster) = %d, want %d", len(got), len(roster))
	}
	for i := range roster {
		if got[i] != roster[i] {
			t.Errorf("roster[%d] = %+v, want %+v", i, got[i], roster[i])
		}
	}
	if !decoded.Empty() {
		t.Errorf("%d bytes left after parse", decoded.Len())
	}
}

func TestConnectionAcceptedWireOrder(t *testing.T) {
	m, _ := NewConnectionAccepted(5, []RosterEntry{{ID: 5, Ready: true}})

	// Self id is the last field written, count just before it.
	self, _ := m.PopUint32()
	count, _ := m.PopUint8()
	ready, _ := m.PopUint8()
	id, _ := m.PopUint32()
	if self != 5 || count != 1 || ready != 1 || id != 5 {
		t.Errorf("fields = (%d, %d, %d, %d), want (5, 1, 1, 5)", self, count, ready, id)
	}
}

func TestUserStatusUpdateRoundTrip(t *testing.T) {
	changes := []StatusChange{
		{ID: 1, Status: StatusReady},
		{ID: 2, Status: StatusNotReady},
		{ID: 3, Status: StatusDisconnected},
	}
	m, err := NewUserStatusUpdate(changes)
	if err != nil {
		t.Fatalf("NewUserStatusUpdate() error = %v", err)
	}
	got, err := ParseUserStatusUpdate(m)
	if err != nil {
		t.Fatalf("ParseUserStatusUpdate() error = %v", err)
	}
	if len(got) != len(changes) {
		t.Fatalf("len = %d, want %d", len(got), len(changes))
	}
	for i := range changes {
		if got[i] != changes[i] {
			t.Errorf("change[%d] = %+v, want %+v", i, got[i], changes[i])
		}
	}
}

func TestChatUpdateRoundTrip(t *testing.T) {
	lines := []ChatLine{{Author: 4, Text: "gl hf"}, {Author: 7, Text: "ready?"}, {Author: 4, Text: ""}}
	m, err := NewChatUpdate(lines)
	if err != nil {
		t.Fatalf("NewChatUpdate() error = %v", err)
	}
	got, err := ParseChatUpdate(m)
	if err != nil {
		t.Fatalf("ParseChatUpdate() error = %v", err)
	}
	if len(got) != len(lines) {
		t.Fatalf("len = %d, want %d", len(got), len(lines))
	}
	for i := range lines {
		if got[i] != lines[i] {
			t.Errorf("line[%d] = %+v, want %+v", i, got[i], lines[i])
		}
	}
}

func TestChatRequestAndStubRoundTrip(t *testing.T) {
	texts := []string{"first", "second", "third"}

	req, err := NewChatRequest(texts)
	if err != nil {
		t.Fatal(err)
	}
	got, err := ParseChatRequest(req)
	if err != nil {
		t.Fatalf("ParseChatRequest() error = %v", err)
	}
	if strings.Join(got, ",") != "first,second,third" {
		t.Errorf("ParseChatRequest() = %v, want %v", got, texts)
	}

	stub, err := NewStub(texts)
	if err != nil {
		t.Fatal(err)
	}
	got, err = ParseStub(stub)
	if err != nil {
		t.Fatalf("ParseStub() error = %v", err)
	}
	if strings.Join(got, ",") != "first,second,third" {
		t.Errorf("ParseStub() = %v, want %v", got, texts)
	}
}

func TestScalarPayloads(t *testing.T) {
	ready, err := ParseReadyToStartChanged(NewReadyToStartChanged(true))
	if err != nil || !ready {
		t.Errorf("ParseReadyToStartChanged() = %v, %v; want true, nil", ready, err)
	}
	ready, err = ParseReadyToStartChanged(NewReadyToStartChanged(false))
	if err != nil || ready {
		t.Errorf("ParseReadyToStartChanged() = %v, %v; want false, nil", ready, err)
	}

	remaining, err := ParseGameAboutToStart(NewGameAboutToStart(7))
	if err != nil || remaining != 7 {
		t.Errorf("ParseGameAboutToStart() = %d, %v; want 7, nil", remaining, err)
	}
}

func TestParseUnderflow(t *testing.T) {
	tests := []struct {
		name  string
		parse func() error
	}{
		{"ready_empty", func() error {
			_, err := ParseReadyToStartChanged(NewMessage(ReadyToStartChanged))
			return err
		}},
		{"countdown_empty", func() error {
			_, err := ParseGameAboutToStart(NewMessage(GameAboutToStart))
			return err
		}},
		{"chat_count_exceeds_entries", func() error {
			m := NewMessage(ChatUpdate).PushString("only one").PushUint8(2)
			_, err := ParseChatRequest(m)
			return err
		}},
		{"status_missing_id", func() error {
			m := NewMessage(UserStatusUpdate).PushUint8(1).PushUint8(1)
			_, err := ParseUserStatusUpdate(m)
			return err
		}},
		{"accepted_missing_self", func() error {
			_, _, err := ParseConnectionAccepted(NewMessage(ConnectionAccepted))
			return err
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.parse(); !errors.Is(err, ErrPayloadUnderflow) {
				t.Errorf("error = %v, want ErrPayloadUnderflow", err)
			}
		})
	}
}

func TestParseWrongType(t *testing.T) {
	_, err := ParseChatUpdate(NewMessage(StubMessage))
	if !errors.Is(err, ErrUnexpectedType) {
		t.Errorf("ParseChatUpdate(StubMessage) error = %v, want ErrUnexpectedType", err)
	}
}

func TestTooManyEntries(t *testing.T) {
	lines := make([]ChatLine, MaxEntries+1)
	if _, err := NewChatUpdate(lines); !errors.Is(err, ErrTooManyEntries) {
		t.Errorf("NewChatUpdate(256) error = %v, want ErrTooManyEntries", err)
	}
	if _, err := NewChatUpdate(lines[:MaxEntries]); err != nil {
		t.Errorf("NewChatUpdate(255) error = %v", err)
	}
	if _, err := NewConnectionAccepted(1, make([]RosterEntry, MaxEntries+1)); !errors.Is(err, ErrTooManyEntries) {
		t.Errorf("NewConnectionAccepted(256) error = %v, want ErrTooManyEntries", err)
	}
}

func TestChatUpdateSizeLimit(t *testing.T) {
	line := ChatLine{Author: 1, Text: strings.Repeat("a", MaxChatText)}
	m, err := NewChatUpdate([]ChatLine{line})
	if err != nil {
		t.Fatalf("NewChatUpdate(MaxChatText) error = %v", err)
	}
	if got := m.Len(); got != MaxPayloadSize {
		t.Errorf("payload = %d bytes, want %d", got, MaxPayloadSize)
	}
	if err := WriteMessage(io.Discard, m); err != nil {
		t.Errorf("WriteMessage() error = %v", err)
	}

	two := []ChatLine{{Author: 1, Text: strings.Repeat("a", 600_000)}, {Author: 2, Text: strings.Repeat("b", 600_000)}}
	if _, err := NewChatUpdate(two); !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("NewChatUpdate(1.2 MB) error = %v, want ErrPayloadTooLarge", err)
	}
}
