package game

import (
	"slices"
	"testing"
	"time"

	"github.com/vango-dev/readyroom/internal/chat"
	"github.com/vango-dev/readyroom/pkg/protocol"
)

func newTestRunning(sink Sink, roster ...protocol.ClientID) *Running {
	cfg := DefaultConfig()
	cfg.ReplyLines = []string{"pong"}
	return NewRunning(roster, nil, cfg, sink)
}

func TestRunningServerOpens(t *testing.T) {
	r := newTestRunning(nil, 1, 2)
	net := newFakeNet(1, 2)

	if r.Waiting(1) {
		t.Fatal("Waiting(1) = true at start, want input already accepted")
	}

	r.Advance(time.Second)
	r.Exchange(net.Connected(), net)
	if out := net.take(1); len(out) != 0 {
		t.Fatalf("reply sent before the dwell elapsed: %v", typesOf(out))
	}

	r.Advance(1500 * time.Millisecond)
	r.Exchange(net.Connected(), net)
	for _, id := range []protocol.ClientID{1, 2} {
		out := net.take(id)
		requireTypes(t, out, protocol.StubMessage)
		lines, err := protocol.ParseStub(out[0])
		if err != nil {
			t.Fatal(err)
		}
		if !slices.Equal(lines, []string{"pong"}) {
			t.Errorf("reply = %v, want [pong]", lines)
		}
		if !r.Waiting(id) {
			t.Errorf("Waiting(%d) = false after reply", id)
		}
	}
}

func TestRunningInputCycle(t *testing.T) {
	sink := &recordingSink{}
	r := newTestRunning(sink, 1)
	net := newFakeNet(1)

	r.Advance(3 * time.Second)
	r.Exchange(net.Connected(), net)
	net.take(1)

	// Dwell does not accumulate while waiting.
	r.Advance(time.Hour)

	input := protocol.NewMessageWithPayload(protocol.StubMessage, []byte{1, 2, 3})
	net.deliver(1, input)
	r.Exchange(net.Connected(), net)

	got, ok := r.Input(1)
	if !ok || !slices.Equal(got, []byte{1, 2, 3}) {
		t.Fatalf("Input(1) = %v, %v; want [1 2 3], true", got, ok)
	}
	input.PushUint8(9)
	if got, _ := r.Input(1); len(got) != 3 {
		t.Error("Input(1) aliases the inbound message")
	}
	if out := net.take(1); len(out) != 0 {
		t.Fatalf("reply sent immediately: %v", typesOf(out))
	}

	for range 5 {
		r.Advance(time.Second / 10)
	}
	if got := sink.count("input from 1: 3 bytes"); got != 1 {
		t.Errorf("input traced %d times, want 1", got)
	}

	r.Advance(2 * time.Second)
	r.Exchange(net.Connected(), net)
	requireTypes(t, net.take(1), protocol.StubMessage)
}

func TestRunningIgnoresInputWhileHolding(t *testing.T) {
	r := newTestRunning(nil, 1)
	net := newFakeNet(1)

	net.deliver(1, protocol.NewMessageWithPayload(protocol.StubMessage, []byte{7}))
	r.Exchange(net.Connected(), net)

	got, ok := r.Input(1)
	if !ok || len(got) != 0 {
		t.Errorf("Input(1) = %v, %v; want the initial empty input", got, ok)
	}
}

func TestRunningRemovesDisconnected(t *testing.T) {
	r := newTestRunning(nil, 1, 2)
	net := newFakeNet(1, 2)

	net.disconnect(2)
	r.Exchange(net.Connected(), net)
	if got := r.Roster(); !slices.Equal(got, []protocol.ClientID{1}) {
		t.Errorf("Roster() = %v, want [1]", got)
	}
	if r.Waiting(2) {
		t.Error("Waiting(2) = true for a removed client")
	}
}

func TestRunningChatAndStrangers(t *testing.T) {
	ledger := chat.NewLedger()
	ledger.Append(1, "from the lobby")
	ledger.Commit()
	r := NewRunning([]protocol.ClientID{1, 2}, ledger, DefaultConfig(), nil)
	net := newFakeNet(1, 2, 3)

	net.deliver(2, chatRequest(t, "gg"))
	net.deliver(3, request(), chatRequest(t, "let me in"))
	r.Exchange(net.Connected(), net)

	for _, id := range []protocol.ClientID{1, 2} {
		out := net.take(id)
		requireTypes(t, out, protocol.ChatUpdate)
		lines, _ := protocol.ParseChatUpdate(out[0])
		if want := []chat.Entry{{Author: 2, Text: "gg"}}; !slices.Equal(lines, want) {
			t.Errorf("chat to %d = %v, want %v", id, lines, want)
		}
	}
	requireTypes(t, net.take(3), protocol.ConnectionRejected)
	if ledger.Len() != 2 {
		t.Errorf("ledger has %d lines, want 2", ledger.Len())
	}
}
