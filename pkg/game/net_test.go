package game

import (
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/vango-dev/readyroom/pkg/protocol"
)

// fakeNet is an in-memory Network. Tests play the role of the pumps.
type fakeNet struct {
	ids []protocol.ClientID
	in  map[protocol.ClientID][]*protocol.Message
	out map[protocol.ClientID][]*protocol.Message
}

func newFakeNet(ids ...protocol.ClientID) *fakeNet {
	n := &fakeNet{
		in:  make(map[protocol.ClientID][]*protocol.Message),
		out: make(map[protocol.ClientID][]*protocol.Message),
	}
	for _, id := range ids {
		n.connect(id)
	}
	return n
}

func (n *fakeNet) connect(id protocol.ClientID) {
	n.ids = append(n.ids, id)
	slices.Sort(n.ids)
}

func (n *fakeNet) disconnect(id protocol.ClientID) {
	n.ids = slices.DeleteFunc(n.ids, func(v protocol.ClientID) bool { return v == id })
	delete(n.in, id)
	delete(n.out, id)
}

func (n *fakeNet) Connected() []protocol.ClientID { return slices.Clone(n.ids) }

func (n *fakeNet) Send(id protocol.ClientID, m *protocol.Message) {
	if !slices.Contains(n.ids, id) {
		return
	}
	n.out[id] = append(n.out[id], m)
}

func (n *fakeNet) Drain(id protocol.ClientID) []*protocol.Message {
	msgs := n.in[id]
	delete(n.in, id)
	return msgs
}

func (n *fakeNet) deliver(id protocol.ClientID, msgs ...*protocol.Message) {
	n.in[id] = append(n.in[id], msgs...)
}

// take removes and returns everything sent to id.
func (n *fakeNet) take(id protocol.ClientID) []*protocol.Message {
	msgs := n.out[id]
	delete(n.out, id)
	return msgs
}

func typesOf(msgs []*protocol.Message) []protocol.MessageType {
	out := make([]protocol.MessageType, len(msgs))
	for i, m := range msgs {
		out[i] = m.Type
	}
	return out
}

func requireTypes(t *testing.T, got []*protocol.Message, want ...protocol.MessageType) {
	t.Helper()
	if !slices.Equal(typesOf(got), want) {
		t.Fatalf("message types = %v, want %v", typesOf(got), want)
	}
}

func chatRequest(t *testing.T, texts ...string) *protocol.Message {
	t.Helper()
	m, err := protocol.NewChatRequest(texts)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func request() *protocol.Message {
	return protocol.NewMessage(protocol.ConnectionRequested)
}

func ready(v bool) *protocol.Message {
	return protocol.NewReadyToStartChanged(v)
}

// recordingSink keeps every trace line.
type recordingSink struct {
	lines []string
}

func (s *recordingSink) Printf(format string, args ...any) {
	s.lines = append(s.lines, fmt.Sprintf(format, args...))
}

func (s *recordingSink) count(substr string) int {
	n := 0
	for _, l := range s.lines {
		if strings.Contains(l, substr) {
			n++
		}
	}
	return n
}
