// Package console renders the session trace and probe output on a terminal.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Kind selects the colour of a line.
type Kind int

const (
	KindInfo Kind = iota
	KindPhase
	KindJoin
	KindLeave
	KindChat
	KindWarn
	KindSent
	KindReceived
)

var labels = map[Kind]string{
	KindInfo:     "INFO",
	KindPhase:    "PHASE",
	KindJoin:     "JOIN",
	KindLeave:    "LEAVE",
	KindChat:     "CHAT",
	KindWarn:     "WARN",
	KindSent:     "SENT",
	KindReceived: "RECV",
}

// Console writes timestamped, coloured lines. It is safe for concurrent use and
// implements game.Sink.
type Console struct {
	mu     sync.Mutex
	out    io.Writer
	now    func() time.Time
	colors map[Kind]*color.Color
}

// Option configures a Console.
type Option func(*Console)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Console) { c.now = now }
}

// WithoutColor disables colouring for this console only.
func WithoutColor() Option {
	return func(c *Console) {
		for _, col := range c.colors {
			col.DisableColor()
		}
	}
}

// New creates a console writing to out.
func New(out io.Writer, opts ...Option) *Console {
	c := &Console{
		out: out,
		now: time.Now,
		colors: map[Kind]*color.Color{
			KindInfo:     color.New(color.FgWhite),
			KindPhase:    color.New(color.FgCyan, color.Bold),
			KindJoin:     color.New(color.FgGreen, color.Bold),
			KindLeave:    color.New(color.FgMagenta),
			KindChat:     color.New(color.FgBlue),
			KindWarn:     color.New(color.FgYellow),
			KindSent:     color.New(color.FgHiBlack),
			KindReceived: color.New(color.FgGreen),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Printf writes one trace line, coloured by what it reports.
func (c *Console) Printf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.Event(classify(msg), "%s", msg)
}

// Event writes one line of the given kind.
func (c *Console) Event(kind Kind, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	line := fmt.Sprintf("[%s] [%s] %s\n", c.now().Format("15:04:05"), labels[kind], msg)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.colors[kind].Fprint(c.out, line)
}

func classify(msg string) Kind {
	switch {
	case strings.HasPrefix(msg, "phase "),
		strings.HasPrefix(msg, "moving to"),
		strings.HasPrefix(msg, "roster frozen"),
		strings.HasPrefix(msg, "game about to start"):
		return KindPhase
	case strings.Contains(msg, "dropped"),
		strings.Contains(msg, "interrupted"):
		return KindWarn
	case strings.HasSuffix(msg, " accepted"):
		return KindJoin
	case strings.HasSuffix(msg, " disconnected"),
		strings.HasSuffix(msg, " left the game"):
		return KindLeave
	default:
		return KindInfo
	}
}
