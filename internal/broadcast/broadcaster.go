package broadcast

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sparc-rpg/rollcast/internal/dice"
)

// Health thresholds for the delivery layer.
const (
	maxHealthyQueueSize = 5000
	maxHealthySessions  = 100
)

// session is the per-session delivery state: the ledger and its cache entry.
// The mutex makes ledger-append-then-ETag-recompute one atomic step, so a
// poll never observes an ETag for a partially applied append. Sessions are
// independent; cross-session parallelism is unaffected.
type session struct {
	mu         sync.Mutex
	ledger     *Ledger
	etag       string
	lastChange time.Time
}

// record is one entry in the global broadcast queue, kept for observability
// and age-bounded by the janitor.
type record struct {
	rollID    string
	sessionID string
	at        time.Time
}

// PollResult is the outcome of a conditional poll.
type PollResult struct {
	// NotModified reports that the client's ETag still matches; Rolls is nil
	// and no serialization work was done.
	NotModified bool
	ETag        string
	Rolls       []dice.RollResult
	LastChange  time.Time
}

// Stats is a point-in-time summary of the delivery layer.
type Stats struct {
	ActiveSessions int `json:"active_sessions"`
	QueueSize      int `json:"queue_size"`
	LedgerEntries  int `json:"ledger_entries"`
}

// Health classifies the delivery layer: "overloaded" when the broadcast
// queue is past its bound, "busy" when many sessions are active, otherwise
// "healthy".
func (s Stats) Health() string {
	switch {
	case s.QueueSize > maxHealthyQueueSize:
		return "overloaded"
	case s.ActiveSessions > maxHealthySessions:
		return "busy"
	default:
		return "healthy"
	}
}

// Broadcaster owns all per-session ledgers and their delivery-cache entries
// and answers conditional polls. All methods are safe for concurrent use.
type Broadcaster struct {
	mu       sync.RWMutex
	sessions map[string]*session
	queue    []record

	ledgerCap int
	queueCap  int
	logger    *zap.Logger
}

// NewBroadcaster creates a Broadcaster.
//
// Precondition: ledgerCap >= 1, queueCap >= 1, logger non-nil.
func NewBroadcaster(ledgerCap, queueCap int, logger *zap.Logger) *Broadcaster {
	if ledgerCap < 1 {
		panic("broadcast: ledger capacity must be >= 1")
	}
	if queueCap < 1 {
		panic("broadcast: queue capacity must be >= 1")
	}
	return &Broadcaster{
		sessions:  make(map[string]*session),
		ledgerCap: ledgerCap,
		queueCap:  queueCap,
		logger:    logger,
	}
}

// Notify appends a resolved roll to its session's ledger and recomputes the
// session's ETag and change timestamp as one atomic step. The session is
// created lazily on its first roll.
func (b *Broadcaster) Notify(res dice.RollResult) {
	s := b.getOrCreate(res.SessionID)

	s.mu.Lock()
	s.ledger.Append(res)
	s.etag = computeETag(res.SessionID, s.ledger.Recent(0))
	s.lastChange = time.Now()
	s.mu.Unlock()

	b.mu.Lock()
	if len(b.queue) == b.queueCap {
		copy(b.queue, b.queue[1:])
		b.queue = b.queue[:b.queueCap-1]
	}
	b.queue = append(b.queue, record{rollID: res.ID, sessionID: res.SessionID, at: time.Now()})
	b.mu.Unlock()
}

// Recent answers a conditional poll for the newest rolls of a session.
// When clientETag matches the stored tag the response is "not modified" and
// costs one string comparison, independent of ledger size. A session with no
// ledger is empty activity, not an error: it yields no rolls and a stable
// empty-state ETag.
func (b *Broadcaster) Recent(sessionID string, limit int, clientETag string) PollResult {
	s := b.get(sessionID)
	if s == nil {
		return emptyPoll(sessionID, clientETag)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if clientETag != "" && clientETag == s.etag {
		return PollResult{NotModified: true, ETag: s.etag, LastChange: s.lastChange}
	}
	return PollResult{
		ETag:       s.etag,
		Rolls:      s.ledger.Recent(limit),
		LastChange: s.lastChange,
	}
}

// Updates answers a conditional poll scoped to rolls after the given time.
func (b *Broadcaster) Updates(sessionID string, since time.Time, clientETag string) PollResult {
	s := b.get(sessionID)
	if s == nil {
		return emptyPoll(sessionID, clientETag)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if clientETag != "" && clientETag == s.etag {
		return PollResult{NotModified: true, ETag: s.etag, LastChange: s.lastChange}
	}
	return PollResult{
		ETag:       s.etag,
		Rolls:      s.ledger.Since(since),
		LastChange: s.lastChange,
	}
}

// ClearSession removes a session's ledger, cache entry, and queued records.
func (b *Broadcaster) ClearSession(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.sessions, sessionID)

	kept := b.queue[:0]
	for _, rec := range b.queue {
		if rec.sessionID != sessionID {
			kept = append(kept, rec)
		}
	}
	b.queue = kept
}

// SweepIdle evicts every session whose last change is before cutoff and
// returns the evicted session IDs.
func (b *Broadcaster) SweepIdle(cutoff time.Time) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var evicted []string
	for id, s := range b.sessions {
		s.mu.Lock()
		stale := s.lastChange.Before(cutoff)
		s.mu.Unlock()
		if stale {
			delete(b.sessions, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}

// PurgeQueue drops queued broadcast records older than cutoff and returns
// how many were dropped.
func (b *Broadcaster) PurgeQueue(cutoff time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Records are appended in time order; find the first one to keep.
	keep := 0
	for keep < len(b.queue) && b.queue[keep].at.Before(cutoff) {
		keep++
	}
	if keep == 0 {
		return 0
	}
	dropped := keep
	b.queue = append(b.queue[:0], b.queue[keep:]...)
	return dropped
}

// Snapshot returns current delivery-layer statistics.
func (b *Broadcaster) Snapshot() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entries := 0
	for _, s := range b.sessions {
		s.mu.Lock()
		entries += s.ledger.Len()
		s.mu.Unlock()
	}
	return Stats{
		ActiveSessions: len(b.sessions),
		QueueSize:      len(b.queue),
		LedgerEntries:  entries,
	}
}

func (b *Broadcaster) get(sessionID string) *session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sessions[sessionID]
}

func (b *Broadcaster) getOrCreate(sessionID string) *session {
	b.mu.RLock()
	s := b.sessions[sessionID]
	b.mu.RUnlock()
	if s != nil {
		return s
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if s = b.sessions[sessionID]; s != nil {
		return s
	}
	s = &session{
		ledger:     NewLedger(b.ledgerCap),
		etag:       computeETag(sessionID, nil),
		lastChange: time.Now(),
	}
	b.sessions[sessionID] = s
	return s
}

// emptyPoll builds the response for a session with no ledger. The ETag is
// deterministic, so a re-poll with it is still "not modified".
func emptyPoll(sessionID, clientETag string) PollResult {
	etag := computeETag(sessionID, nil)
	if clientETag != "" && clientETag == etag {
		return PollResult{NotModified: true, ETag: etag}
	}
	return PollResult{ETag: etag, Rolls: []dice.RollResult{}}
}
