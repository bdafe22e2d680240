package game

import (
	"slices"
	"time"

	"github.com/vango-dev/readyroom/internal/chat"
	"github.com/vango-dev/readyroom/pkg/protocol"
)

// Countdown announces the remaining ticks to the frozen roster, then tells it
// the game is starting.
type Countdown struct {
	env
	roster []protocol.ClientID
	ledger *chat.Ledger

	remaining int
	elapsed   time.Duration
	announce  bool
	started   bool
}

var _ Phase = (*Countdown)(nil)

// NewCountdown builds the countdown for roster. The ledger is handed on to
// Running untouched.
func NewCountdown(roster []protocol.ClientID, ledger *chat.Ledger, cfg *Config, sink Sink) *Countdown {
	if sink == nil {
		sink = Discard
	}
	if ledger == nil {
		ledger = chat.NewLedger()
	}
	cfg = cfg.withDefaults()
	return &Countdown{
		env:       env{cfg: cfg, sink: sink},
		roster:    slices.Clone(roster),
		ledger:    ledger,
		remaining: cfg.CountdownTicks,
	}
}

func (*Countdown) phase() {}

// Name implements Phase.
func (*Countdown) Name() string { return PhaseCountdown }

// Roster returns the frozen roster.
func (c *Countdown) Roster() []protocol.ClientID { return slices.Clone(c.roster) }

// Ledger returns the chat carried over from Accepting.
func (c *Countdown) Ledger() *chat.Ledger { return c.ledger }

// Remaining returns the number of ticks left to announce.
func (c *Countdown) Remaining() int { return c.remaining }

// Advance implements Phase. A tick is only consumed once the previous
// announcement has gone out, so none is skipped however late the exchange runs.
func (c *Countdown) Advance(elapsed time.Duration) Phase {
	if c.started {
		c.printf("moving to running")
		return NewRunning(c.roster, c.ledger, c.cfg, c.sink)
	}

	c.elapsed += elapsed
	if !c.announce && c.remaining > 0 && c.elapsed >= c.cfg.Tick {
		c.elapsed -= c.cfg.Tick
		c.remaining--
		c.announce = true
		c.printf("game about to start: %d", c.remaining)
	}
	return nil
}

// Exchange implements Phase.
func (c *Countdown) Exchange(connected []protocol.ClientID, br Bridge) {
	c.roster = prune(c.env, c.roster, connected)
	inRoster := make(map[protocol.ClientID]bool, len(c.roster))
	for _, id := range c.roster {
		inRoster[id] = true
	}
	for _, id := range connected {
		if inRoster[id] {
			br.Drain(id)
		} else {
			turnAway(br, id)
		}
	}

	if c.announce {
		broadcast(br, c.roster, protocol.NewGameAboutToStart(uint8(c.remaining)))
		c.announce = false
	}
	if c.remaining == 0 && !c.started {
		broadcast(br, c.roster, protocol.NewMessage(protocol.GameStarting))
		c.started = true
	}
}
