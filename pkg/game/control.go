package game

import "sync/atomic"

// Control carries the admission flags shared with the accept loop. The accept
// loop only reads them; the Accepting phase is the only writer.
type Control struct {
	paused  atomic.Bool
	stopped atomic.Bool
}

// Admitting reports whether new connections should be accepted.
func (c *Control) Admitting() bool {
	return !c.paused.Load() && !c.stopped.Load()
}

// Paused reports whether admissions are held while a start is pending.
func (c *Control) Paused() bool {
	return c.paused.Load()
}

// Stopped reports whether the roster is frozen for good.
func (c *Control) Stopped() bool {
	return c.stopped.Load()
}

func (c *Control) pause(v bool) {
	c.paused.Store(v)
}

func (c *Control) stop() {
	c.stopped.Store(true)
}
