package game

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/readyroom/internal/chat"
	"github.com/vango-dev/readyroom/internal/metrics"
	"github.com/vango-dev/readyroom/pkg/protocol"
)

const tracerName = "github.com/vango-dev/readyroom/pkg/game"

// Transition describes one phase change.
type Transition struct {
	RunID  string
	From   string
	To     string
	Roster []protocol.ClientID
	// Chat is the committed chat log at the time of the transition, in
	// arrival order.
	Chat []chat.Entry
	At   time.Time
}

// Status is a point-in-time view of the session, safe to read from any
// goroutine.
type Status struct {
	RunID     string              `json:"run_id"`
	Phase     string              `json:"phase"`
	Connected int                 `json:"connected"`
	Accepted  int                 `json:"accepted"`
	Ready     int                 `json:"ready"`
	Roster    []protocol.ClientID `json:"roster,omitempty"`
	Remaining int                 `json:"countdown_remaining"`
	ChatLines int                 `json:"chat_lines"`
	Admitting bool                `json:"admitting"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithSink sets the diagnostic trace sink.
func WithSink(sink Sink) Option {
	return func(d *Driver) {
		if sink != nil {
			d.sink = sink
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Driver) {
		d.metrics = m
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(d *Driver) {
		if tracer != nil {
			d.tracer = tracer
		}
	}
}

// WithRunID tags logs, status and transitions with a server run id.
func WithRunID(id string) Option {
	return func(d *Driver) {
		d.runID = id
	}
}

// OnTransition registers a hook called on the driver goroutine after every phase
// change. It must not block.
func OnTransition(fn func(Transition)) Option {
	return func(d *Driver) {
		d.onTransition = fn
	}
}

// Driver owns the live phase and runs it against the network.
type Driver struct {
	net          Network
	cfg          *Config
	ctl          *Control
	phase        Phase
	logger       *slog.Logger
	sink         Sink
	metrics      *metrics.Metrics
	tracer       trace.Tracer
	runID        string
	onTransition func(Transition)

	sinceExchange time.Duration
	connected     []protocol.ClientID
	status        atomic.Pointer[Status]
}

// NewDriver creates a driver starting in Accepting.
func NewDriver(net Network, cfg *Config, opts ...Option) *Driver {
	d := &Driver{
		net:    net,
		cfg:    cfg.withDefaults(),
		ctl:    &Control{},
		logger: slog.Default(),
		sink:   Discard,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "game")
	if d.runID != "" {
		d.logger = d.logger.With("run_id", d.runID)
	}
	d.phase = NewAccepting(d.cfg, d.ctl, d.sink)
	d.metrics.SetPhase(d.phase.Name())
	d.publish()
	return d
}

// Gate returns the admission flags for the accept loop.
func (d *Driver) Gate() *Control { return d.ctl }

// Admitting reports whether the session takes new clients.
func (d *Driver) Admitting() bool { return d.ctl.Admitting() }

// Phase returns the live phase. Only the driver goroutine may use it.
func (d *Driver) Phase() Phase { return d.phase }

// Status returns the latest published status.
func (d *Driver) Status() Status {
	return *d.status.Load()
}

// Step runs one iteration: Advance, then Exchange when exchange is true.
func (d *Driver) Step(elapsed time.Duration, exchange bool) {
	if next := d.phase.Advance(elapsed); next != nil {
		d.transition(next)
	}
	if exchange {
		d.exchange()
	}
	d.publish()
}

// Run drives the session until ctx is done. Advance runs every TickInterval;
// Exchange runs once ExchangeInterval has elapsed since the previous one.
func (d *Driver) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.TickInterval)
	defer ticker.Stop()

	d.logger.Info("driver started",
		"tick_interval", d.cfg.TickInterval,
		"exchange_interval", d.cfg.ExchangeInterval)

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("driver stopped", "phase", d.phase.Name())
			return ctx.Err()
		case now := <-ticker.C:
			elapsed := now.Sub(last)
			last = now
			d.sinceExchange += elapsed
			exchange := d.sinceExchange >= d.cfg.ExchangeInterval
			if exchange {
				d.sinceExchange = 0
			}
			d.Step(elapsed, exchange)
		}
	}
}

func (d *Driver) exchange() {
	_, span := d.tracer.Start(context.Background(), "game.exchange",
		trace.WithAttributes(attribute.String("game.phase", d.phase.Name())))
	defer span.End()

	start := time.Now()
	d.connected = d.net.Connected()
	d.phase.Exchange(d.connected, d.net)
	d.metrics.ObserveExchange(time.Since(start))
	span.SetAttributes(attribute.Int("game.connected", len(d.connected)))
}

func (d *Driver) transition(next Phase) {
	from := d.phase
	if rank(next) <= rank(from) {
		panic(fmt.Sprintf("game: phase regression %s -> %s", from.Name(), next.Name()))
	}

	t := Transition{
		RunID: d.runID,
		From:  from.Name(),
		To:    next.Name(),
		At:    time.Now(),
	}
	switch p := next.(type) {
	case *Countdown:
		t.Roster = p.Roster()
		t.Chat = p.Ledger().Entries()
	case *Running:
		t.Roster = p.Roster()
		t.Chat = p.Ledger().Entries()
	}

	_, span := d.tracer.Start(context.Background(), "game.transition",
		trace.WithAttributes(
			attribute.String("game.phase.from", t.From),
			attribute.String("game.phase.to", t.To),
			attribute.Int("game.roster", len(t.Roster)),
		))
	d.phase = next
	span.End()

	d.logger.Info("phase transition",
		"from", t.From,
		"to", t.To,
		"roster", len(t.Roster),
		"chat_lines", len(t.Chat))
	d.sink.Printf("phase %s -> %s", t.From, t.To)
	d.metrics.Transition(t.From, t.To)

	if d.onTransition != nil {
		d.onTransition(t)
	}
}

func (d *Driver) publish() {
	s := &Status{
		RunID:     d.runID,
		Phase:     d.phase.Name(),
		Connected: len(d.connected),
		Admitting: d.ctl.Admitting(),
		UpdatedAt: time.Now(),
	}
	switch p := d.phase.(type) {
	case *Accepting:
		s.Accepted = len(p.Accepted())
		s.Ready = p.Ready()
		s.Roster = p.Roster()
		s.ChatLines = p.Ledger().Len()
	case *Countdown:
		s.Roster = p.Roster()
		s.Accepted = len(s.Roster)
		s.Remaining = p.Remaining()
		s.ChatLines = p.Ledger().Len()
	case *Running:
		s.Roster = p.Roster()
		s.Accepted = len(s.Roster)
		s.ChatLines = p.Ledger().Len()
	}
	d.status.Store(s)
}
