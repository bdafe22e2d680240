package game

// Sink receives the human-readable diagnostic trace of the session. It is
// write-only: nothing in the state machine depends on what it does.
type Sink interface {
	Printf(format string, args ...any)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(format string, args ...any)

// Printf calls f.
func (f SinkFunc) Printf(format string, args ...any) { f(format, args...) }

// Discard is a Sink that drops everything.
var Discard Sink = SinkFunc(func(string, ...any) {})
