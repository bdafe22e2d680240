// Package hub pairs the identity registry with the connection bridge so that an
// id and its bridge entry always come and go together.
package hub

import (
	"fmt"

	"github.com/vango-dev/readyroom/internal/bridge"
	"github.com/vango-dev/readyroom/internal/registry"
	"github.com/vango-dev/readyroom/pkg/protocol"
)

// ErrExhausted is returned by Connect when no id is available.
var ErrExhausted = registry.ErrExhausted

// Hub is safe for concurrent use by connection goroutines and the simulation.
type Hub struct {
	ids   *registry.Registry
	conns *bridge.Bridge
}

// New creates a hub over the given registry.
func New(ids *registry.Registry) *Hub {
	return &Hub{ids: ids, conns: bridge.New()}
}

// Connect allocates an id and opens its bridge entry.
func (h *Hub) Connect() (*bridge.Conn, error) {
	id, err := h.ids.Allocate()
	if err != nil {
		return nil, err
	}
	c, err := h.conns.Open(id)
	if err != nil {
		h.ids.Release(id)
		return nil, fmt.Errorf("hub: open %s: %w", id, err)
	}
	return c, nil
}

// Disconnect closes the bridge entry of id and releases the id. Queued outbound
// messages stay readable by the write pump. It is idempotent.
func (h *Hub) Disconnect(id protocol.ClientID) {
	h.conns.Close(id)
	h.ids.Release(id)
}

// Connected returns the connected ids in ascending order.
func (h *Hub) Connected() []protocol.ClientID {
	return h.ids.Snapshot()
}

// Send queues m for id. Unknown ids are ignored.
func (h *Hub) Send(id protocol.ClientID, m *protocol.Message) {
	h.conns.Send(id, m)
}

// Drain returns the inbound messages queued for id.
func (h *Hub) Drain(id protocol.ClientID) []*protocol.Message {
	return h.conns.Drain(id)
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	return h.ids.Len()
}

// Capacity returns the maximum number of simultaneous clients.
func (h *Hub) Capacity() int {
	return h.ids.Capacity()
}
