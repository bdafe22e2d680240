package game

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/vango-dev/readyroom/pkg/protocol"
)

// Config tunes the timing of the state machine.
type Config struct {
	// CountdownTicks is the number of GameAboutToStart announcements.
	// Default: 10. Maximum: 255.
	CountdownTicks int

	// Tick is the simulated time between two countdown announcements.
	// Default: 1 second.
	Tick time.Duration

	// TickInterval is the period of the driver loop. Advance runs every tick.
	// Default: 10 milliseconds.
	TickInterval time.Duration

	// ExchangeInterval is the minimum time between two exchanges.
	// Default: 100 milliseconds.
	ExchangeInterval time.Duration

	// Dwell is how long a Running client holds accepted input before the
	// server replies.
	// Default: 2 seconds.
	Dwell time.Duration

	// ReplyLines are the text lines of the server's StubMessage reply.
	ReplyLines []string

	// MaxChatText is the longest chat line accepted from a client, in bytes.
	// Longer lines are dropped.
	// Default: 1024. Maximum: protocol.MaxChatText.
	MaxChatText int
}

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("game: invalid config")

// DefaultReplyLines is the default Running reply.
var DefaultReplyLines = []string{
	"Hello from the other side!",
	"At least I can say that I've tried!",
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		CountdownTicks:   10,
		Tick:             time.Second,
		TickInterval:     10 * time.Millisecond,
		ExchangeInterval: 100 * time.Millisecond,
		Dwell:            2 * time.Second,
		ReplyLines:       slices.Clone(DefaultReplyLines),
		MaxChatText:      1024,
	}
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	if c == nil {
		return DefaultConfig()
	}
	clone := *c
	clone.ReplyLines = slices.Clone(c.ReplyLines)
	return &clone
}

// withDefaults returns a copy with every unset field filled in.
func (c *Config) withDefaults() *Config {
	out := c.Clone()
	def := DefaultConfig()
	if out.CountdownTicks <= 0 {
		out.CountdownTicks = def.CountdownTicks
	}
	if out.Tick <= 0 {
		out.Tick = def.Tick
	}
	if out.TickInterval <= 0 {
		out.TickInterval = def.TickInterval
	}
	if out.ExchangeInterval <= 0 {
		out.ExchangeInterval = def.ExchangeInterval
	}
	if out.Dwell <= 0 {
		out.Dwell = def.Dwell
	}
	if out.ReplyLines == nil {
		out.ReplyLines = def.ReplyLines
	}
	if out.MaxChatText <= 0 {
		out.MaxChatText = def.MaxChatText
	}
	return out
}

// Validate reports values the wire format cannot carry.
func (c *Config) Validate() error {
	if c.CountdownTicks > 255 {
		return fmt.Errorf("%w: countdown ticks %d exceed 255", ErrInvalidConfig, c.CountdownTicks)
	}
	if len(c.ReplyLines) > protocol.MaxEntries {
		return fmt.Errorf("%w: %d reply lines exceed %d", ErrInvalidConfig, len(c.ReplyLines), protocol.MaxEntries)
	}
	if c.MaxChatText > protocol.MaxChatText {
		return fmt.Errorf("%w: chat text limit %d exceeds %d", ErrInvalidConfig, c.MaxChatText, protocol.MaxChatText)
	}
	if c.ExchangeInterval > 0 && c.TickInterval > c.ExchangeInterval {
		return fmt.Errorf("%w: tick interval %v longer than exchange interval %v",
			ErrInvalidConfig, c.TickInterval, c.ExchangeInterval)
	}
	return nil
}
