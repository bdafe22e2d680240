package game

import (
	"fmt"
	"slices"
	"time"

	"github.com/vango-dev/readyroom/internal/chat"
	"github.com/vango-dev/readyroom/pkg/protocol"
)

// Bridge is the phase's view of the per-client queues.
type Bridge interface {
	// Send queues m for id. Sending to a removed id is a no-op.
	Send(id protocol.ClientID, m *protocol.Message)

	// Drain returns everything queued inbound for id without waiting.
	Drain(id protocol.ClientID) []*protocol.Message
}

// Network is what the driver needs from the connection layer.
type Network interface {
	Bridge

	// Connected returns the connected ids in ascending order.
	Connected() []protocol.ClientID
}

// Phase is one state of the session. The set of phases is closed: Accepting,
// Countdown and Running.
type Phase interface {
	// Name returns the lowercase phase name.
	Name() string

	// Advance moves simulated time forward. It returns the next phase, or nil
	// to stay.
	Advance(elapsed time.Duration) Phase

	// Exchange processes inbound traffic and queues outbound messages.
	Exchange(connected []protocol.ClientID, br Bridge)

	phase()
}

// Phase names.
const (
	PhaseAccepting = "accepting"
	PhaseCountdown = "countdown"
	PhaseRunning   = "running"
)

// rank orders phases so the driver can refuse a regression.
func rank(p Phase) int {
	switch p.(type) {
	case *Accepting:
		return 0
	case *Countdown:
		return 1
	case *Running:
		return 2
	default:
		panic(fmt.Sprintf("game: unknown phase %T", p))
	}
}

// env is shared by the phases of one session.
type env struct {
	cfg  *Config
	sink Sink
}

func (e env) printf(format string, args ...any) {
	e.sink.Printf(format, args...)
}

// mustBuild unwraps a builder result whose size is bounded by construction.
func mustBuild(m *protocol.Message, err error) *protocol.Message {
	if err != nil {
		panic(fmt.Sprintf("game: build message: %v", err))
	}
	return m
}

// chunks splits s into slices of at most protocol.MaxEntries elements.
func chunks[T any](s []T) [][]T {
	var out [][]T
	for len(s) > protocol.MaxEntries {
		out = append(out, s[:protocol.MaxEntries])
		s = s[protocol.MaxEntries:]
	}
	if len(s) > 0 {
		out = append(out, s)
	}
	return out
}

// chatMessages builds as few ChatUpdates as fit lines, keeping each frame
// within both the entry and the payload size limits. Every line must be at most
// protocol.MaxChatText long.
func chatMessages(lines []chat.Entry) []*protocol.Message {
	var out []*protocol.Message
	start, size := 0, 1
	for i, line := range lines {
		n := protocol.ChatLineSize(line)
		if i > start && (i-start == protocol.MaxEntries || size+n > protocol.MaxPayloadSize) {
			out = append(out, mustBuild(protocol.NewChatUpdate(lines[start:i])))
			start, size = i, 1
		}
		size += n
	}
	if start < len(lines) {
		out = append(out, mustBuild(protocol.NewChatUpdate(lines[start:])))
	}
	return out
}

// statusMessages builds one UserStatusUpdate per chunk of changes.
func statusMessages(changes []protocol.StatusChange) []*protocol.Message {
	var out []*protocol.Message
	for _, chunk := range chunks(changes) {
		out = append(out, mustBuild(protocol.NewUserStatusUpdate(chunk)))
	}
	return out
}

// broadcast queues every message for every id. Each recipient gets its own
// copy so consumers never share a payload.
func broadcast(br Bridge, ids []protocol.ClientID, msgs ...*protocol.Message) {
	for _, id := range ids {
		for _, m := range msgs {
			br.Send(id, m.Clone())
		}
	}
}

// appendChat parses a client ChatUpdate into the ledger. A malformed payload
// drops the message; a line over the configured length drops that line.
func appendChat(e env, ledger *chat.Ledger, id protocol.ClientID, m *protocol.Message) {
	texts, err := protocol.ParseChatRequest(m)
	if err != nil {
		e.printf("client %d: dropped chat update: %v", id, err)
		return
	}
	for _, text := range texts {
		if len(text) > e.cfg.MaxChatText {
			e.printf("client %d: dropped chat line of %d bytes", id, len(text))
			continue
		}
		ledger.Append(id, text)
	}
}

// prune removes the roster members missing from connected, which must be
// ascending, and traces each departure.
func prune(e env, roster, connected []protocol.ClientID) []protocol.ClientID {
	return slices.DeleteFunc(roster, func(id protocol.ClientID) bool {
		if _, ok := slices.BinarySearch(connected, id); ok {
			return false
		}
		e.printf("client %d left the game", id)
		return true
	})
}

// turnAway drains a client outside the frozen roster and answers its
// handshake request with ConnectionRejected.
func turnAway(br Bridge, id protocol.ClientID) {
	for _, msg := range br.Drain(id) {
		if msg.Type == protocol.ConnectionRequested {
			br.Send(id, protocol.NewMessage(protocol.ConnectionRejected))
		}
	}
}
