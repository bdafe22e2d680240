// Package bridge decouples per-connection socket goroutines from the simulation
// goroutine. Every client owns an inbound queue, filled by its read pump and
// drained during io-exchange, and an outbound queue, filled by the active phase
// and drained by its write pump.
package bridge

import (
	"context"
	"errors"
	"sync"

	"github.com/vango-dev/readyroom/pkg/protocol"
)

// ErrAlreadyOpen is returned when a bridge entry already exists for an id.
var ErrAlreadyOpen = errors.New("bridge: entry already open")

// Conn is the bridge entry of one client.
type Conn struct {
	id       protocol.ClientID
	inbound  *Queue[*protocol.Message]
	outbound *Queue[*protocol.Message]
}

func newConn(id protocol.ClientID) *Conn {
	return &Conn{
		id:       id,
		inbound:  NewQueue[*protocol.Message](),
		outbound: NewQueue[*protocol.Message](),
	}
}

// ID returns the client id of the entry.
func (c *Conn) ID() protocol.ClientID {
	return c.id
}

// Deliver queues a decoded inbound message. Only the read pump calls it.
func (c *Conn) Deliver(m *protocol.Message) bool {
	return c.inbound.Push(m)
}

// Next blocks for the next outbound message. Only the write pump calls it. It
// keeps returning queued messages after the entry is closed and reports false
// once nothing is left.
func (c *Conn) Next(ctx context.Context) (*protocol.Message, bool) {
	return c.outbound.Pop(ctx)
}

// Send queues an outbound message. It is a no-op on a closed entry.
func (c *Conn) Send(m *protocol.Message) bool {
	return c.outbound.Push(m)
}

// Drain returns every inbound message queued so far without waiting.
func (c *Conn) Drain() []*protocol.Message {
	return c.inbound.Drain()
}

// Pending returns the number of queued inbound and outbound messages.
func (c *Conn) Pending() (inbound, outbound int) {
	return c.inbound.Len(), c.outbound.Len()
}

func (c *Conn) close() {
	c.inbound.Close()
	c.outbound.Close()
}

// Bridge maps client ids to their entries.
type Bridge struct {
	mu    sync.RWMutex
	conns map[protocol.ClientID]*Conn
}

// New creates an empty bridge.
func New() *Bridge {
	return &Bridge{conns: make(map[protocol.ClientID]*Conn)}
}

// Open creates the entry for id.
func (b *Bridge) Open(id protocol.ClientID) (*Conn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.conns[id]; exists {
		return nil, ErrAlreadyOpen
	}
	c := newConn(id)
	b.conns[id] = c
	return c, nil
}

// Close removes the entry for id and closes its queues. Messages already in the
// outbound queue remain available to the write pump. Closing an unknown id is a
// no-op.
func (b *Bridge) Close(id protocol.ClientID) {
	b.mu.Lock()
	c, exists := b.conns[id]
	delete(b.conns, id)
	b.mu.Unlock()
	if exists {
		c.close()
	}
}

// Conn returns the entry for id.
func (b *Bridge) Conn(id protocol.ClientID) (*Conn, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.conns[id]
	return c, ok
}

// Send queues m for id. Sending to a removed id is a silent no-op.
func (b *Bridge) Send(id protocol.ClientID, m *protocol.Message) bool {
	c, ok := b.Conn(id)
	if !ok {
		return false
	}
	return c.Send(m)
}

// Drain returns every inbound message queued for id, or nil for a removed id.
func (b *Bridge) Drain(id protocol.ClientID) []*protocol.Message {
	c, ok := b.Conn(id)
	if !ok {
		return nil
	}
	return c.Drain()
}

// Len returns the number of open entries.
func (b *Bridge) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.conns)
}
