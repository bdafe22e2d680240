package game

// Latch runs an effect at most once until it is reset.
type Latch struct {
	fired bool
}

// Once runs fn if the latch has not fired yet and reports whether it did.
func (l *Latch) Once(fn func()) bool {
	if l.fired {
		return false
	}
	l.fired = true
	if fn != nil {
		fn()
	}
	return true
}

// Fired reports whether the latch has fired since the last reset.
func (l *Latch) Fired() bool { return l.fired }

// Reset re-arms the latch.
func (l *Latch) Reset() { l.fired = false }

// firedLatch returns a latch that has already fired.
func firedLatch() Latch { return Latch{fired: true} }
