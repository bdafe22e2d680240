package game

import (
	"maps"
	"slices"
	"time"

	"github.com/vango-dev/readyroom/internal/chat"
	"github.com/vango-dev/readyroom/pkg/protocol"
)

// handshake is the per-client sub-state of Accepting.
type handshake uint8

const (
	stateConnected handshake = iota
	stateAboutToAccept
	stateAccepted
)

func (h handshake) String() string {
	switch h {
	case stateConnected:
		return "connected"
	case stateAboutToAccept:
		return "about-to-accept"
	case stateAccepted:
		return "accepted"
	default:
		return "unknown"
	}
}

type member struct {
	state handshake
	ready bool

	// greeted guards the one-time acceptance trace line.
	greeted Latch

	// backlog holds messages that arrived behind ConnectionRequested in the
	// same drain. They are replayed once the client is Accepted.
	backlog []*protocol.Message
}

// readiness is the start latch of Accepting.
type readiness uint8

const (
	notArmed readiness = iota
	armed
	survived
)

// Accepting admits clients, runs the ready check and carries the lobby chat.
type Accepting struct {
	env
	ctl     *Control
	members map[protocol.ClientID]*member
	ledger  *chat.Ledger
	start   readiness

	// wavered is set when a ready flag changed during the current exchange.
	wavered bool

	// Set once the roster is frozen.
	closing  bool
	roster   []protocol.ClientID
	notified bool
}

var _ Phase = (*Accepting)(nil)

// NewAccepting returns the initial phase. ctl receives the admission flags.
func NewAccepting(cfg *Config, ctl *Control, sink Sink) *Accepting {
	if sink == nil {
		sink = Discard
	}
	return &Accepting{
		env:     env{cfg: cfg.withDefaults(), sink: sink},
		ctl:     ctl,
		members: make(map[protocol.ClientID]*member),
		ledger:  chat.NewLedger(),
	}
}

func (*Accepting) phase() {}

// Name implements Phase.
func (*Accepting) Name() string { return PhaseAccepting }

// Ledger returns the lobby chat.
func (a *Accepting) Ledger() *chat.Ledger { return a.ledger }

// Accepted returns the ids that completed the handshake, ascending.
func (a *Accepting) Accepted() []protocol.ClientID {
	var ids []protocol.ClientID
	for _, id := range slices.Sorted(maps.Keys(a.members)) {
		if a.members[id].state == stateAccepted {
			ids = append(ids, id)
		}
	}
	return ids
}

// Ready returns the number of Accepted clients with the ready flag set.
func (a *Accepting) Ready() int {
	n := 0
	for _, m := range a.members {
		if m.state == stateAccepted && m.ready {
			n++
		}
	}
	return n
}

// Roster returns the frozen roster, or nil while clients are still admitted.
func (a *Accepting) Roster() []protocol.ClientID {
	return slices.Clone(a.roster)
}

// Advance implements Phase.
func (a *Accepting) Advance(time.Duration) Phase {
	if a.closing {
		if a.notified {
			a.printf("moving to countdown with %d clients", len(a.roster))
			return NewCountdown(a.roster, a.ledger, a.cfg, a.sink)
		}
		return nil
	}

	for _, id := range slices.Sorted(maps.Keys(a.members)) {
		m := a.members[id]
		if m.state == stateAccepted {
			m.greeted.Once(func() { a.printf("client %d accepted", id) })
		}
	}

	if !a.unanimous() {
		if a.start != notArmed {
			a.printf("ready check interrupted")
		}
		a.start = notArmed
		a.ctl.pause(false)
		return nil
	}

	switch a.start {
	case notArmed:
		a.start = armed
		a.ctl.pause(true)
		a.printf("all %d clients ready, holding admissions", len(a.members))
	case survived:
		a.closing = true
		a.roster = a.Accepted()
		a.ctl.stop()
		a.printf("roster frozen: %v", a.roster)
	}
	return nil
}

// unanimous reports whether a non-empty set of clients is tracked and every one
// of them is Accepted and ready.
func (a *Accepting) unanimous() bool {
	if len(a.members) == 0 {
		return false
	}
	for _, m := range a.members {
		if m.state != stateAccepted || !m.ready {
			return false
		}
	}
	return true
}

// Exchange implements Phase.
func (a *Accepting) Exchange(connected []protocol.ClientID, br Bridge) {
	if a.closing {
		a.exchangeClosing(connected, br)
		return
	}

	changes := make(map[protocol.ClientID]protocol.UserStatus)
	a.wavered = false
	a.sync(connected, changes)

	for _, id := range connected {
		a.receive(id, br, changes)
	}

	promoted := a.promote(changes)
	accepted := a.Accepted()
	if len(promoted) > 0 {
		a.welcome(promoted, accepted, br)
	}

	if len(changes) > 0 {
		ids := slices.Sorted(maps.Keys(changes))
		list := make([]protocol.StatusChange, 0, len(ids))
		for _, id := range ids {
			list = append(list, protocol.StatusChange{ID: id, Status: changes[id]})
		}
		broadcast(br, accepted, statusMessages(list)...)
	}

	if batch := a.ledger.Commit(); batch != nil {
		broadcast(br, accepted, chatMessages(batch)...)
	}

	if a.start == armed {
		if a.wavered {
			a.printf("ready check interrupted")
			a.start = notArmed
			a.ctl.pause(false)
		} else {
			a.start = survived
		}
	}
}

// sync reconciles the tracked clients with the connected snapshot. Clients
// that left are removed; the roster learns about Accepted ones.
func (a *Accepting) sync(connected []protocol.ClientID, changes map[protocol.ClientID]protocol.UserStatus) {
	present := make(map[protocol.ClientID]struct{}, len(connected))
	for _, id := range connected {
		present[id] = struct{}{}
		if _, ok := a.members[id]; !ok {
			a.members[id] = &member{state: stateConnected}
		}
	}
	for id, m := range a.members {
		if _, ok := present[id]; ok {
			continue
		}
		if m.state == stateAccepted {
			changes[id] = protocol.StatusDisconnected
			a.printf("client %d disconnected", id)
		}
		delete(a.members, id)
	}
}

func (a *Accepting) receive(id protocol.ClientID, br Bridge, changes map[protocol.ClientID]protocol.UserStatus) {
	m := a.members[id]
	msgs := br.Drain(id)
	if len(m.backlog) > 0 {
		msgs = append(m.backlog, msgs...)
		m.backlog = nil
	}

	for i, msg := range msgs {
		switch m.state {
		case stateConnected:
			if msg.Type == protocol.ConnectionRequested {
				m.state = stateAboutToAccept
				if rest := msgs[i+1:]; len(rest) > 0 {
					m.backlog = slices.Clone(rest)
				}
				return
			}
		case stateAccepted:
			switch msg.Type {
			case protocol.ReadyToStartChanged:
				ready, err := protocol.ParseReadyToStartChanged(msg)
				if err != nil {
					a.printf("client %d: dropped ready update: %v", id, err)
					continue
				}
				if ready != m.ready {
					m.ready = ready
					a.wavered = true
					a.printf("client %d ready=%t", id, ready)
				}
				changes[id] = statusOf(ready)
			case protocol.ChatUpdate:
				appendChat(a.env, a.ledger, id, msg)
			}
		}
	}
}

// promote accepts every client whose handshake request was seen.
func (a *Accepting) promote(changes map[protocol.ClientID]protocol.UserStatus) []protocol.ClientID {
	var promoted []protocol.ClientID
	for _, id := range slices.Sorted(maps.Keys(a.members)) {
		m := a.members[id]
		if m.state != stateAboutToAccept {
			continue
		}
		m.state = stateAccepted
		m.ready = false
		changes[id] = protocol.StatusNotReady
		promoted = append(promoted, id)
	}
	return promoted
}

// welcome sends the roster and the committed chat history to newly accepted
// clients. Lines still pending reach them through this round's commit.
func (a *Accepting) welcome(promoted, accepted []protocol.ClientID, br Bridge) {
	roster := make([]protocol.RosterEntry, 0, len(accepted))
	for _, id := range accepted {
		roster = append(roster, protocol.RosterEntry{ID: id, Ready: a.members[id].ready})
	}
	history := chatMessages(a.ledger.Snapshot())

	for _, id := range promoted {
		br.Send(id, mustBuild(protocol.NewConnectionAccepted(id, roster)))
		for _, m := range history {
			br.Send(id, m.Clone())
		}
	}
}

// exchangeClosing runs after the roster is frozen: the roster is told to get
// ready, lobby chat keeps flowing, everything else is dropped.
func (a *Accepting) exchangeClosing(connected []protocol.ClientID, br Bridge) {
	a.roster = prune(a.env, a.roster, connected)
	inRoster := make(map[protocol.ClientID]bool, len(a.roster))
	for _, id := range a.roster {
		inRoster[id] = true
	}
	for _, id := range connected {
		if !inRoster[id] {
			turnAway(br, id)
			continue
		}
		for _, msg := range br.Drain(id) {
			if msg.Type == protocol.ChatUpdate {
				appendChat(a.env, a.ledger, id, msg)
			}
		}
	}

	if !a.notified {
		broadcast(br, a.roster, protocol.NewMessage(protocol.ReadyToStart))
		a.notified = true
	}
	if batch := a.ledger.Commit(); batch != nil {
		broadcast(br, a.roster, chatMessages(batch)...)
	}
}

func statusOf(ready bool) protocol.UserStatus {
	if ready {
		return protocol.StatusReady
	}
	return protocol.StatusNotReady
}
