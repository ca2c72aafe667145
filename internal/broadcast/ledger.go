// Package broadcast distributes resolved rolls to polling clients: a
// bounded per-session ledger, an ETag delivery cache for conditional GETs,
// a fire-and-forget dispatch queue, and a janitor that bounds memory.
package broadcast

import (
	"time"

	"github.com/sparc-rpg/rollcast/internal/dice"
)

// Ledger is a capacity-bounded, insertion-ordered history of resolved rolls
// for one session. Appending beyond capacity silently drops the oldest entry
// (ring-buffer eviction, not an error).
//
// Ledger is not safe for concurrent use on its own; the Broadcaster guards
// each session's ledger with that session's lock.
type Ledger struct {
	buf   []dice.RollResult
	start int // index of the oldest entry
	count int
}

// NewLedger creates an empty Ledger with the given capacity.
//
// Precondition: capacity >= 1.
func NewLedger(capacity int) *Ledger {
	if capacity < 1 {
		panic("broadcast: ledger capacity must be >= 1")
	}
	return &Ledger{buf: make([]dice.RollResult, capacity)}
}

// Append adds a roll, evicting the oldest entry when full.
func (l *Ledger) Append(res dice.RollResult) {
	if l.count < len(l.buf) {
		l.buf[(l.start+l.count)%len(l.buf)] = res
		l.count++
		return
	}
	l.buf[l.start] = res
	l.start = (l.start + 1) % len(l.buf)
}

// Len returns the number of retained entries.
func (l *Ledger) Len() int { return l.count }

// Recent returns up to limit of the newest entries in insertion order
// (oldest of the window first). limit <= 0 returns everything retained.
func (l *Ledger) Recent(limit int) []dice.RollResult {
	n := l.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]dice.RollResult, 0, n)
	for i := l.count - n; i < l.count; i++ {
		out = append(out, l.buf[(l.start+i)%len(l.buf)])
	}
	return out
}

// Since returns, in insertion order, every retained entry whose timestamp is
// strictly after t.
func (l *Ledger) Since(t time.Time) []dice.RollResult {
	var out []dice.RollResult
	for i := 0; i < l.count; i++ {
		res := l.buf[(l.start+i)%len(l.buf)]
		if res.Timestamp.After(t) {
			out = append(out, res)
		}
	}
	return out
}
