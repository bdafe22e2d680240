package game

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vango-dev/readyroom/internal/bridge"
	"github.com/vango-dev/readyroom/internal/hub"
	"github.com/vango-dev/readyroom/internal/metrics"
	"github.com/vango-dev/readyroom/internal/registry"
	"github.com/vango-dev/readyroom/pkg/protocol"
)

var _ Network = (*hub.Hub)(nil)

// drainConn returns everything the server queued for c so far.
func drainConn(c *bridge.Conn) []*protocol.Message {
	var out []*protocol.Message
	for {
		_, pending := c.Pending()
		if pending == 0 {
			return out
		}
		m, _ := c.Next(context.Background())
		out = append(out, m)
	}
}

func TestDriverTwoClientScenario(t *testing.T) {
	h := hub.New(registry.New(8, registry.WithSeed(42)))
	var transitions []Transition
	d := NewDriver(h, DefaultConfig(), OnTransition(func(tr Transition) {
		transitions = append(transitions, tr)
	}))

	a, err := h.Connect()
	if err != nil {
		t.Fatal(err)
	}
	b, err := h.Connect()
	if err != nil {
		t.Fatal(err)
	}
	a.Deliver(request())
	b.Deliver(request())
	d.Step(0, true)

	for _, c := range []*bridge.Conn{a, b} {
		out := drainConn(c)
		requireTypes(t, out, protocol.ConnectionAccepted, protocol.UserStatusUpdate)
		_, roster, _ := protocol.ParseConnectionAccepted(out[0])
		if len(roster) != 2 || roster[0].Ready || roster[1].Ready {
			t.Errorf("roster for %d = %v, want both clients not ready", c.ID(), roster)
		}
	}

	a.Deliver(ready(true))
	b.Deliver(ready(true))
	d.Step(0, true)
	if got := d.Status().Ready; got != 2 {
		t.Fatalf("Status().Ready = %d, want 2", got)
	}

	const step = 100 * time.Millisecond
	for i := 0; d.Phase().Name() != PhaseRunning; i++ {
		if i > 1000 {
			t.Fatalf("stuck in %s", d.Phase().Name())
		}
		d.Step(step, true)
	}

	for _, c := range []*bridge.Conn{a, b} {
		out := drainConn(c)
		var types []protocol.MessageType
		for _, m := range out {
			if m.Type != protocol.UserStatusUpdate {
				types = append(types, m.Type)
			}
		}
		if types[0] != protocol.ReadyToStart {
			t.Errorf("first message to %d = %v, want ReadyToStart", c.ID(), types[0])
		}
		counts, starting := announcements(t, out[slices.Index(typesOf(out), protocol.GameAboutToStart):])
		if len(counts) != 10 || counts[0] != 9 || counts[9] != 0 {
			t.Errorf("announcements to %d = %v, want 9..0", c.ID(), counts)
		}
		if starting != 1 {
			t.Errorf("GameStarting to %d sent %d times, want 1", c.ID(), starting)
		}
	}

	if len(transitions) != 2 {
		t.Fatalf("transitions = %d, want 2", len(transitions))
	}
	if transitions[0].From != PhaseAccepting || transitions[0].To != PhaseCountdown ||
		transitions[1].From != PhaseCountdown || transitions[1].To != PhaseRunning {
		t.Errorf("transitions = %+v", transitions)
	}
	want := []protocol.ClientID{a.ID(), b.ID()}
	slices.Sort(want)
	if !slices.Equal(transitions[1].Roster, want) {
		t.Errorf("running roster = %v, want %v", transitions[1].Roster, want)
	}
	if d.Gate().Admitting() {
		t.Error("Gate().Admitting() = true after the roster froze")
	}
}

func TestDriverMetricsAndStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(metrics.WithRegistry(reg))
	net := newFakeNet(1)
	sink := &recordingSink{}
	d := NewDriver(net, DefaultConfig(), WithMetrics(m), WithSink(sink), WithRunID("run-1"))

	if s := d.Status(); s.Phase != PhaseAccepting || !s.Admitting || s.RunID != "run-1" {
		t.Fatalf("initial Status() = %+v", s)
	}

	net.deliver(1, request())
	d.Step(0, true)
	net.deliver(1, ready(true))
	for i := 0; d.Phase().Name() == PhaseAccepting; i++ {
		if i > 10 {
			t.Fatal("never left accepting")
		}
		d.Step(0, true)
	}

	s := d.Status()
	if s.Phase != PhaseCountdown || s.Remaining != 10 || !slices.Equal(s.Roster, []protocol.ClientID{1}) {
		t.Errorf("Status() = %+v, want countdown with 10 remaining and roster [1]", s)
	}
	if s.Connected != 1 {
		t.Errorf("Status().Connected = %d, want 1", s.Connected)
	}

	count, err := testutil.GatherAndCount(reg, "readyroom_phase_transitions_total")
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("phase_transitions_total series = %d, want 1", count)
	}
	if sink.count("phase accepting -> countdown") != 1 {
		t.Errorf("trace = %v, want one transition line", sink.lines)
	}
}

func TestDriverAdvanceWithoutExchange(t *testing.T) {
	net := newFakeNet(1)
	d := NewDriver(net, DefaultConfig())
	net.deliver(1, request())

	for range 100 {
		d.Step(time.Second, false)
	}
	if len(net.out[1]) != 0 {
		t.Errorf("messages sent without an exchange: %v", typesOf(net.out[1]))
	}
	if d.Phase().Name() != PhaseAccepting {
		t.Errorf("Phase() = %s, want accepting", d.Phase().Name())
	}
}

func TestDriverRunStopsOnCancel(t *testing.T) {
	net := newFakeNet()
	cfg := DefaultConfig()
	cfg.TickInterval = time.Millisecond
	cfg.ExchangeInterval = 2 * time.Millisecond
	d := NewDriver(net, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestDriverRejectsRegression(t *testing.T) {
	d := NewDriver(newFakeNet(), DefaultConfig())
	d.phase = NewRunning(nil, nil, DefaultConfig(), nil)

	defer func() {
		if recover() == nil {
			t.Error("transition to an earlier phase did not panic")
		}
	}()
	d.transition(NewCountdown(nil, nil, DefaultConfig(), nil))
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"too many ticks", func(c *Config) { c.CountdownTicks = 256 }, true},
		{"chat limit above frame", func(c *Config) { c.MaxChatText = protocol.MaxChatText + 1 }, true},
		{"too many reply lines", func(c *Config) { c.ReplyLines = make([]string, 256) }, true},
		{"tick slower than exchange", func(c *Config) { c.TickInterval = time.Second }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestLatch(t *testing.T) {
	var l Latch
	calls := 0
	if !l.Once(func() { calls++ }) {
		t.Error("first Once() = false")
	}
	if l.Once(func() { calls++ }) {
		t.Error("second Once() = true")
	}
	if calls != 1 || !l.Fired() {
		t.Errorf("calls = %d, Fired() = %v; want 1, true", calls, l.Fired())
	}
	l.Reset()
	l.Once(func() { calls++ })
	if calls != 2 {
		t.Errorf("calls after Reset = %d, want 2", calls)
	}
}
