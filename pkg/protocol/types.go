package protocol

import "strconv"

// ClientID identifies a connected client. Valid ids are positive.
type ClientID uint32

// String returns the decimal form of the id.
func (id ClientID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// MessageType identifies the type of a message. The enumeration is closed.
type MessageType uint32

const (
	ConnectionRequested MessageType = 1  // Client → Server handshake request
	ConnectionAccepted  MessageType = 2  // Server → Client roster on acceptance
	ConnectionRejected  MessageType = 3  // Voluntary disconnect (both directions)
	UserStatusUpdate    MessageType = 4  // Server → Client roster changes
	ReadyToStartChanged MessageType = 5  // Client → Server ready flag
	ReadyToStart        MessageType = 6  // Server → Client roster frozen
	StubMessage         MessageType = 7  // Application payload while running
	GameAboutToStart    MessageType = 8  // Server → Client countdown tick
	GameStarting        MessageType = 9  // Server → Client countdown finished
	ChatUpdate          MessageType = 10 // Chat lines (both directions)
)

// String returns the string representation of the message type.
func (t MessageType) String() string {
	switch t {
	case ConnectionRequested:
		return "ConnectionRequested"
	case ConnectionAccepted:
		return "ConnectionAccepted"
	case ConnectionRejected:
		return "ConnectionRejected"
	case UserStatusUpdate:
		return "UserStatusUpdate"
	case ReadyToStartChanged:
		return "ReadyToStartChanged"
	case ReadyToStart:
		return "ReadyToStart"
	case StubMessage:
		return "StubMessage"
	case GameAboutToStart:
		return "GameAboutToStart"
	case GameStarting:
		return "GameStarting"
	case ChatUpdate:
		return "ChatUpdate"
	default:
		return "Unknown(" + strconv.FormatUint(uint64(t), 10) + ")"
	}
}

// Valid reports whether t belongs to the closed type enumeration.
func (t MessageType) Valid() bool {
	return t >= ConnectionRequested && t <= ChatUpdate
}

// AllTypes returns every declared message type in tag order.
func AllTypes() []MessageType {
	types := make([]MessageType, 0, ChatUpdate)
	for t := ConnectionRequested; t <= ChatUpdate; t++ {
		types = append(types, t)
	}
	return types
}

// UserStatus is the per-client status carried by UserStatusUpdate.
type UserStatus uint8

const (
	StatusNotReady     UserStatus = 0
	StatusReady        UserStatus = 1
	StatusDisconnected UserStatus = 2
)

// String returns the string representation of the status.
func (s UserStatus) String() string {
	switch s {
	case StatusNotReady:
		return "NotReady"
	case StatusReady:
		return "Ready"
	case StatusDisconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}
