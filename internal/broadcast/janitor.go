package broadcast

import (
	"time"

	"go.uber.org/zap"

	"github.com/sparc-rpg/rollcast/internal/dice"
)

// Janitor periodically evicts stale per-session state and age-bounds the
// global broadcast queue. Housekeeping is best-effort: a missed cycle only
// delays reclamation, it never produces incorrect poll results.
//
// Janitor implements the server Service contract.
type Janitor struct {
	b        *Broadcaster
	stats    *dice.StatsBook
	interval time.Duration
	ttl      time.Duration
	maxAge   time.Duration
	logger   *zap.Logger

	done chan struct{}
}

// NewJanitor creates a Janitor.
//
// Precondition: b, stats, and logger non-nil; interval, ttl, and maxAge
// positive.
func NewJanitor(b *Broadcaster, stats *dice.StatsBook, interval, ttl, maxAge time.Duration, logger *zap.Logger) *Janitor {
	return &Janitor{
		b:        b,
		stats:    stats,
		interval: interval,
		ttl:      ttl,
		maxAge:   maxAge,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start runs sweeps on the configured interval until Stop is called.
func (j *Janitor) Start() error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.Sweep(time.Now())
		case <-j.done:
			return nil
		}
	}
}

// Stop terminates the sweep loop.
func (j *Janitor) Stop() {
	close(j.done)
}

// Sweep runs one housekeeping pass as of the given time: sessions idle past
// the TTL are evicted (ledger, cache entry, and statistics), and queued
// broadcast records past the max age are purged.
func (j *Janitor) Sweep(now time.Time) {
	start := time.Now()

	evicted := j.b.SweepIdle(now.Add(-j.ttl))
	for _, sessionID := range evicted {
		j.stats.Clear(sessionID)
	}
	purged := j.b.PurgeQueue(now.Add(-j.maxAge))

	if len(evicted) > 0 || purged > 0 {
		j.logger.Info("janitor sweep",
			zap.Int("sessions_evicted", len(evicted)),
			zap.Int("records_purged", purged),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}
