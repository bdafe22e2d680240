package protocol

// MaxEntries is the maximum number of entries in a list payload.
const MaxEntries = 255

// RosterEntry is one accepted client as announced by ConnectionAccepted.
type RosterEntry struct {
	ID    ClientID
	Ready bool
}

// StatusChange is one entry of a UserStatusUpdate.
type StatusChange struct {
	ID     ClientID
	Status UserStatus
}

// ChatLine is one authored chat line as broadcast by the server.
type ChatLine struct {
	Author ClientID
	Text   string
}

// MaxChatText is the longest text a single line of a server ChatUpdate can
// carry without the frame exceeding MaxPayloadSize.
const MaxChatText = MaxPayloadSize - 1 - 8

// ChatLineSize returns the encoded size of line inside a server ChatUpdate,
// excluding the count byte.
func ChatLineSize(line ChatLine) int {
	return 4 + 4 + len(line.Text)
}

// NewConnectionAccepted builds the message sent to a client whose handshake has
// been accepted. Wire order: entries (id, ready)..., count, self.
func NewConnectionAccepted(self ClientID, roster []RosterEntry) (*Message, error) {
	if len(roster) > MaxEntries {
		return nil, ErrTooManyEntries
	}
	m := NewMessage(ConnectionAccepted)
	for i := len(roster) - 1; i >= 0; i-- {
		m.PushClientID(roster[i].ID).PushBool(roster[i].Ready)
	}
	m.PushUint8(uint8(len(roster))).PushClientID(self)
	return m, nil
}

// ParseConnectionAccepted reads a ConnectionAccepted message. The message is
// consumed.
func ParseConnectionAccepted(m *Message) (ClientID, []RosterEntry, error) {
	if err := expectType(m, ConnectionAccepted); err != nil {
		return 0, nil, err
	}
	self, ok := m.PopClientID()
	if !ok {
		return 0, nil, underflow(m.Type, "self")
	}
	count, ok := m.PopUint8()
	if !ok {
		return 0, nil, underflow(m.Type, "count")
	}
	roster := make([]RosterEntry, 0, count)
	for range count {
		ready, ok := m.PopBool()
		if !ok {
			return 0, nil, underflow(m.Type, "ready")
		}
		id, ok := m.PopClientID()
		if !ok {
			return 0, nil, underflow(m.Type, "id")
		}
		roster = append(roster, RosterEntry{ID: id, Ready: ready})
	}
	return self, roster, nil
}

// NewUserStatusUpdate builds a roster change broadcast.
// Wire order: entries (id, status)..., count.
func NewUserStatusUpdate(changes []StatusChange) (*Message, error) {
	if len(changes) > MaxEntries {
		return nil, ErrTooManyEntries
	}
	m := NewMessage(UserStatusUpdate)
	for i := len(changes) - 1; i >= 0; i-- {
		m.PushClientID(changes[i].ID).PushUint8(uint8(changes[i].Status))
	}
	m.PushUint8(uint8(len(changes)))
	return m, nil
}

// ParseUserStatusUpdate reads a UserStatusUpdate message.
func ParseUserStatusUpdate(m *Message) ([]StatusChange, error) {
	if err := expectType(m, UserStatusUpdate); err != nil {
		return nil, err
	}
	count, ok := m.PopUint8()
	if !ok {
		return nil, underflow(m.Type, "count")
	}
	changes := make([]StatusChange, 0, count)
	for range count {
		status, ok := m.PopUint8()
		if !ok {
			return nil, underflow(m.Type, "status")
		}
		id, ok := m.PopClientID()
		if !ok {
			return nil, underflow(m.Type, "id")
		}
		changes = append(changes, StatusChange{ID: id, Status: UserStatus(status)})
	}
	return changes, nil
}

// NewChatUpdate builds a server chat broadcast. The receiver pops lines in slice
// order. Wire order: entries (text, author)..., count.
func NewChatUpdate(lines []ChatLine) (*Message, error) {
	if len(lines) > MaxEntries {
		return nil, ErrTooManyEntries
	}
	size := 1
	for _, line := range lines {
		size += ChatLineSize(line)
	}
	if size > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}
	m := NewMessage(ChatUpdate)
	for i := len(lines) - 1; i >= 0; i-- {
		m.PushString(lines[i].Text).PushClientID(lines[i].Author)
	}
	m.PushUint8(uint8(len(lines)))
	return m, nil
}

// ParseChatUpdate reads a server chat broadcast.
func ParseChatUpdate(m *Message) ([]ChatLine, error) {
	if err := expectType(m, ChatUpdate); err != nil {
		return nil, err
	}
	count, ok := m.PopUint8()
	if !ok {
		return nil, underflow(m.Type, "count")
	}
	lines := make([]ChatLine, 0, count)
	for range count {
		author, ok := m.PopClientID()
		if !ok {
			return nil, underflow(m.Type, "author")
		}
		text, ok := m.PopString()
		if !ok {
			return nil, underflow(m.Type, "text")
		}
		lines = append(lines, ChatLine{Author: author, Text: text})
	}
	return lines, nil
}

// NewChatRequest builds a client chat submission. Wire order: texts..., count.
func NewChatRequest(texts []string) (*Message, error) {
	return newStrings(ChatUpdate, texts)
}

// ParseChatRequest reads a client chat submission.
func ParseChatRequest(m *Message) ([]string, error) {
	if err := expectType(m, ChatUpdate); err != nil {
		return nil, err
	}
	return popStrings(m)
}

// NewStub builds a StubMessage carrying text lines. Wire order: texts..., count.
func NewStub(texts []string) (*Message, error) {
	return newStrings(StubMessage, texts)
}

// ParseStub reads the text lines of a StubMessage built with NewStub.
func ParseStub(m *Message) ([]string, error) {
	if err := expectType(m, StubMessage); err != nil {
		return nil, err
	}
	return popStrings(m)
}

func newStrings(t MessageType, texts []string) (*Message, error) {
	if len(texts) > MaxEntries {
		return nil, ErrTooManyEntries
	}
	m := NewMessage(t)
	for i := len(texts) - 1; i >= 0; i-- {
		m.PushString(texts[i])
	}
	m.PushUint8(uint8(len(texts)))
	return m, nil
}

func popStrings(m *Message) ([]string, error) {
	count, ok := m.PopUint8()
	if !ok {
		return nil, underflow(m.Type, "count")
	}
	texts := make([]string, 0, count)
	for range count {
		s, ok := m.PopString()
		if !ok {
			return nil, underflow(m.Type, "text")
		}
		texts = append(texts, s)
	}
	return texts, nil
}

// NewReadyToStartChanged builds a client ready flag update.
func NewReadyToStartChanged(ready bool) *Message {
	return NewMessage(ReadyToStartChanged).PushBool(ready)
}

// ParseReadyToStartChanged reads a client ready flag update.
func ParseReadyToStartChanged(m *Message) (bool, error) {
	if err := expectType(m, ReadyToStartChanged); err != nil {
		return false, err
	}
	ready, ok := m.PopBool()
	if !ok {
		return false, underflow(m.Type, "ready")
	}
	return ready, nil
}

// NewGameAboutToStart builds a countdown announcement.
func NewGameAboutToStart(remaining uint8) *Message {
	return NewMessage(GameAboutToStart).PushUint8(remaining)
}

// ParseGameAboutToStart reads a countdown announcement.
func ParseGameAboutToStart(m *Message) (uint8, error) {
	if err := expectType(m, GameAboutToStart); err != nil {
		return 0, err
	}
	remaining, ok := m.PopUint8()
	if !ok {
		return 0, underflow(m.Type, "remaining")
	}
	return remaining, nil
}
