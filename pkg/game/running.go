package game

import (
	"maps"
	"slices"
	"time"

	"github.com/vango-dev/readyroom/internal/chat"
	"github.com/vango-dev/readyroom/pkg/protocol"
)

type player struct {
	waiting bool

	// Set while !waiting.
	input []byte
	dwell time.Duration

	// received guards the one-time trace of accepted input.
	received Latch
}

// Running relays opaque application input. A client's input is held for the
// configured dwell, after which the server replies and waits for the next one.
type Running struct {
	env
	players map[protocol.ClientID]*player
	ledger  *chat.Ledger
	reply   []string
}

var _ Phase = (*Running)(nil)

// NewRunning builds the running phase for roster. Every client starts as if its
// input had just been accepted, so the server speaks first.
func NewRunning(roster []protocol.ClientID, ledger *chat.Ledger, cfg *Config, sink Sink) *Running {
	if sink == nil {
		sink = Discard
	}
	if ledger == nil {
		ledger = chat.NewLedger()
	}
	cfg = cfg.withDefaults()
	r := &Running{
		env:     env{cfg: cfg, sink: sink},
		players: make(map[protocol.ClientID]*player, len(roster)),
		ledger:  ledger,
		reply:   slices.Clone(cfg.ReplyLines),
	}
	for _, id := range roster {
		r.players[id] = &player{input: []byte{}, received: firedLatch()}
	}
	return r
}

func (*Running) phase() {}

// Name implements Phase.
func (*Running) Name() string { return PhaseRunning }

// Ledger returns the session chat.
func (r *Running) Ledger() *chat.Ledger { return r.ledger }

// Roster returns the ids still playing, ascending.
func (r *Running) Roster() []protocol.ClientID {
	return slices.Sorted(maps.Keys(r.players))
}

// Waiting reports whether id is waiting for input.
func (r *Running) Waiting(id protocol.ClientID) bool {
	p, ok := r.players[id]
	return ok && p.waiting
}

// Input returns the last accepted input of id.
func (r *Running) Input(id protocol.ClientID) ([]byte, bool) {
	p, ok := r.players[id]
	if !ok || p.waiting {
		return nil, false
	}
	return p.input, true
}

// Advance implements Phase.
func (r *Running) Advance(elapsed time.Duration) Phase {
	for _, id := range r.Roster() {
		p := r.players[id]
		if p.waiting {
			continue
		}
		p.received.Once(func() { r.printf("input from %d: %d bytes", id, len(p.input)) })
		p.dwell += elapsed
	}
	return nil
}

// Exchange implements Phase.
func (r *Running) Exchange(connected []protocol.ClientID, br Bridge) {
	present := make(map[protocol.ClientID]struct{}, len(connected))
	for _, id := range connected {
		present[id] = struct{}{}
	}
	for id := range r.players {
		if _, ok := present[id]; !ok {
			r.printf("client %d left the game", id)
			delete(r.players, id)
		}
	}

	for _, id := range connected {
		p, ok := r.players[id]
		if !ok {
			turnAway(br, id)
			continue
		}
		for _, msg := range br.Drain(id) {
			switch msg.Type {
			case protocol.StubMessage:
				if p.waiting {
					p.waiting = false
					p.input = slices.Clone(msg.Payload())
					p.dwell = 0
					p.received.Reset()
				}
			case protocol.ChatUpdate:
				appendChat(r.env, r.ledger, id, msg)
			}
		}
	}

	roster := r.Roster()
	for _, id := range roster {
		p := r.players[id]
		if !p.waiting && p.dwell > r.cfg.Dwell {
			br.Send(id, mustBuild(protocol.NewStub(r.reply)))
			p.waiting = true
			p.input = nil
			p.dwell = 0
		}
	}

	if batch := r.ledger.Commit(); batch != nil {
		broadcast(br, roster, chatMessages(batch)...)
	}
}
