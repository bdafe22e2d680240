// Package registry allocates and reclaims client identities.
package registry

import (
	"errors"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/vango-dev/readyroom/pkg/protocol"
)

// ErrExhausted is returned when every id in the space is in use.
var ErrExhausted = errors.New("registry: identity space exhausted")

// DefaultProbes is the number of random picks tried before scanning.
const DefaultProbes = 8

// Registry hands out ids from [1, capacity].
//
// A released id is retired rather than freed: it becomes eligible again only
// after the next Snapshot, so whoever diffs snapshots always observes the
// disconnect before the id can come back for a new client.
type Registry struct {
	mu        sync.Mutex
	capacity  uint32
	probes    int
	rng       *rand.Rand
	connected map[protocol.ClientID]struct{}
	retired   map[protocol.ClientID]struct{}
}

// Option configures a Registry.
type Option func(*Registry)

// WithSeed makes allocation order deterministic.
func WithSeed(seed uint64) Option {
	return func(r *Registry) {
		r.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithProbes sets how many random picks are tried before falling back to a scan.
func WithProbes(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.probes = n
		}
	}
}

// New creates a registry for ids 1..capacity. A capacity below 1 is raised to 1.
func New(capacity int, opts ...Option) *Registry {
	if capacity < 1 {
		capacity = 1
	}
	r := &Registry{
		capacity:  uint32(capacity),
		probes:    DefaultProbes,
		connected: make(map[protocol.ClientID]struct{}),
		retired:   make(map[protocol.ClientID]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.rng == nil {
		r.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return r
}

// Allocate picks an unused id. It fails only when none is available.
func (r *Registry) Allocate() (protocol.ClientID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.connected)+len(r.retired) >= int(r.capacity) {
		return 0, ErrExhausted
	}

	for range r.probes {
		id := protocol.ClientID(r.rng.Uint32N(r.capacity) + 1)
		if r.availableLocked(id) {
			r.connected[id] = struct{}{}
			return id, nil
		}
	}

	// Dense space: scan from a random offset so ids stay spread out.
	start := r.rng.Uint32N(r.capacity)
	for i := uint32(0); i < r.capacity; i++ {
		id := protocol.ClientID((start+i)%r.capacity + 1)
		if r.availableLocked(id) {
			r.connected[id] = struct{}{}
			return id, nil
		}
	}
	return 0, ErrExhausted
}

func (r *Registry) availableLocked(id protocol.ClientID) bool {
	if _, used := r.connected[id]; used {
		return false
	}
	_, retired := r.retired[id]
	return !retired
}

// Release removes id from the connected set. Releasing an unknown id is a no-op.
func (r *Registry) Release(id protocol.ClientID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.connected[id]; !ok {
		return
	}
	delete(r.connected, id)
	r.retired[id] = struct{}{}
}

// Snapshot returns the connected ids in ascending order and frees every id
// retired before the call.
func (r *Registry) Snapshot() []protocol.ClientID {
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.retired)
	ids := make([]protocol.ClientID, 0, len(r.connected))
	for id := range r.connected {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Contains reports whether id is connected.
func (r *Registry) Contains(id protocol.ClientID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.connected[id]
	return ok
}

// Len returns the number of connected ids.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.connected)
}

// Capacity returns the size of the id space.
func (r *Registry) Capacity() int {
	return int(r.capacity)
}
