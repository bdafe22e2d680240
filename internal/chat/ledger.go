// Package chat keeps the server-side chat log.
//
// Lines appended during an exchange round are pending until Commit, which moves
// them into the committed log and returns them as the round's delta. Late joiners
// receive the committed log through Snapshot, so a line never reaches the same
// client twice.
package chat

import (
	"slices"

	"github.com/vango-dev/readyroom/pkg/protocol"
)

// Entry is one authored chat line.
type Entry = protocol.ChatLine

// Ledger is the append-only chat log. It is owned by the simulation goroutine
// and is not safe for concurrent use.
type Ledger struct {
	committed []Entry
	pending   []Entry
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Append records a line as pending.
func (l *Ledger) Append(author protocol.ClientID, text string) {
	l.pending = append(l.pending, Entry{Author: author, Text: text})
}

// Commit moves pending lines into the committed log and returns them in arrival
// order. It returns nil when nothing was pending.
func (l *Ledger) Commit() []Entry {
	if len(l.pending) == 0 {
		return nil
	}
	batch := l.pending
	l.pending = nil
	l.committed = append(l.committed, batch...)
	return batch
}

// Snapshot returns the committed log, most recent first.
func (l *Ledger) Snapshot() []Entry {
	out := slices.Clone(l.committed)
	slices.Reverse(out)
	return out
}

// Entries returns a copy of the committed log in arrival order.
func (l *Ledger) Entries() []Entry {
	return slices.Clone(l.committed)
}

// Len returns the number of committed lines.
func (l *Ledger) Len() int { return len(l.committed) }

// PendingLen returns the number of lines awaiting Commit.
func (l *Ledger) PendingLen() int { return len(l.pending) }
