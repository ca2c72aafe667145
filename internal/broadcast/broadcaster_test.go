package broadcast_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sparc-rpg/rollcast/internal/broadcast"
	"github.com/sparc-rpg/rollcast/internal/dice"
)

func newBroadcaster(t *testing.T) *broadcast.Broadcaster {
	t.Helper()
	return broadcast.NewBroadcaster(100, 1000, zap.NewNop())
}

func sessionRoll(sessionID, id string) dice.RollResult {
	r := makeRoll(id, time.Now())
	r.SessionID = sessionID
	return r
}

// TestPoll_EmptySession: a session with no ledger is empty activity, not an
// error. It returns no rolls and a stable ETag, and re-polling with that
// ETag is "not modified".
func TestPoll_EmptySession(t *testing.T) {
	b := newBroadcaster(t)

	res := b.Recent("ghost", 10, "")
	assert.False(t, res.NotModified)
	assert.NotEmpty(t, res.ETag)
	assert.Empty(t, res.Rolls)
	assert.NotNil(t, res.Rolls)

	again := b.Recent("ghost", 10, res.ETag)
	assert.True(t, again.NotModified)
	assert.Equal(t, res.ETag, again.ETag)
}

// TestPoll_ETagStability: two consecutive polls with no intervening roll
// return identical ETags, and presenting that ETag yields "not modified".
func TestPoll_ETagStability(t *testing.T) {
	b := newBroadcaster(t)
	b.Notify(sessionRoll("s1", "r1"))

	first := b.Recent("s1", 10, "")
	require.False(t, first.NotModified)
	require.Len(t, first.Rolls, 1)

	second := b.Recent("s1", 10, "")
	assert.Equal(t, first.ETag, second.ETag)

	conditional := b.Recent("s1", 10, first.ETag)
	assert.True(t, conditional.NotModified)
	assert.Nil(t, conditional.Rolls)
}

// TestPoll_ETagChangesOnAppend: appending any roll changes the session's
// ETag on the next poll.
func TestPoll_ETagChangesOnAppend(t *testing.T) {
	b := newBroadcaster(t)
	b.Notify(sessionRoll("s1", "r1"))
	before := b.Recent("s1", 10, "")

	b.Notify(sessionRoll("s1", "r2"))
	after := b.Recent("s1", 10, "")

	assert.NotEqual(t, before.ETag, after.ETag)

	stale := b.Recent("s1", 10, before.ETag)
	assert.False(t, stale.NotModified, "a stale ETag must yield fresh data")
	assert.Len(t, stale.Rolls, 2)
}

func TestPoll_DistinctSessionsGetDistinctETags(t *testing.T) {
	b := newBroadcaster(t)
	a := b.Recent("session-a", 10, "")
	c := b.Recent("session-b", 10, "")
	assert.NotEqual(t, a.ETag, c.ETag)
}

func TestRecent_Limit(t *testing.T) {
	b := newBroadcaster(t)
	for i := 0; i < 20; i++ {
		b.Notify(sessionRoll("s1", fmt.Sprintf("r%d", i)))
	}

	res := b.Recent("s1", 5, "")
	require.Len(t, res.Rolls, 5)
	assert.Equal(t, "r15", res.Rolls[0].ID)
	assert.Equal(t, "r19", res.Rolls[4].ID)
}

func TestUpdates_Since(t *testing.T) {
	b := newBroadcaster(t)

	old := sessionRoll("s1", "old")
	old.Timestamp = time.Now().Add(-time.Hour)
	b.Notify(old)

	fresh := sessionRoll("s1", "fresh")
	fresh.Timestamp = time.Now()
	b.Notify(fresh)

	res := b.Updates("s1", time.Now().Add(-time.Minute), "")
	require.Len(t, res.Rolls, 1)
	assert.Equal(t, "fresh", res.Rolls[0].ID)

	conditional := b.Updates("s1", time.Now().Add(-time.Minute), res.ETag)
	assert.True(t, conditional.NotModified)
}

func TestClearSession(t *testing.T) {
	b := newBroadcaster(t)
	b.Notify(sessionRoll("s1", "r1"))
	b.Notify(sessionRoll("s2", "r2"))

	b.ClearSession("s1")

	stats := b.Snapshot()
	assert.Equal(t, 1, stats.ActiveSessions)
	assert.Equal(t, 1, stats.QueueSize)

	// The cleared session polls as empty again.
	res := b.Recent("s1", 10, "")
	assert.Empty(t, res.Rolls)
}

func TestSweepIdle(t *testing.T) {
	b := newBroadcaster(t)
	b.Notify(sessionRoll("s1", "r1"))
	b.Notify(sessionRoll("s2", "r2"))

	// Nothing is older than a cutoff in the past.
	assert.Empty(t, b.SweepIdle(time.Now().Add(-time.Minute)))

	// Everything is older than a cutoff in the future.
	evicted := b.SweepIdle(time.Now().Add(time.Minute))
	assert.ElementsMatch(t, []string{"s1", "s2"}, evicted)
	assert.Zero(t, b.Snapshot().ActiveSessions)
}

func TestPurgeQueue(t *testing.T) {
	b := newBroadcaster(t)
	for i := 0; i < 5; i++ {
		b.Notify(sessionRoll("s1", fmt.Sprintf("r%d", i)))
	}

	assert.Zero(t, b.PurgeQueue(time.Now().Add(-time.Minute)))
	assert.Equal(t, 5, b.PurgeQueue(time.Now().Add(time.Minute)))
	assert.Zero(t, b.Snapshot().QueueSize)
}

func TestQueueBounded(t *testing.T) {
	b := broadcast.NewBroadcaster(100, 10, zap.NewNop())
	for i := 0; i < 50; i++ {
		b.Notify(sessionRoll("s1", fmt.Sprintf("r%d", i)))
	}
	assert.Equal(t, 10, b.Snapshot().QueueSize)
}

func TestStats_Health(t *testing.T) {
	assert.Equal(t, "healthy", broadcast.Stats{ActiveSessions: 5, QueueSize: 10}.Health())
	assert.Equal(t, "busy", broadcast.Stats{ActiveSessions: 101, QueueSize: 10}.Health())
	assert.Equal(t, "overloaded", broadcast.Stats{ActiveSessions: 5, QueueSize: 5001}.Health())
}

// TestNotify_ConcurrentSessions exercises cross-session parallelism: rolls
// into many sessions at once must neither race nor lose appends.
func TestNotify_ConcurrentSessions(t *testing.T) {
	b := newBroadcaster(t)

	var wg sync.WaitGroup
	for s := 0; s < 10; s++ {
		sessionID := fmt.Sprintf("s%d", s)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				b.Notify(sessionRoll(sessionID, fmt.Sprintf("%s-r%d", sessionID, i)))
			}
		}()
	}
	wg.Wait()

	stats := b.Snapshot()
	assert.Equal(t, 10, stats.ActiveSessions)
	assert.Equal(t, 500, stats.LedgerEntries)

	for s := 0; s < 10; s++ {
		res := b.Recent(fmt.Sprintf("s%d", s), 0, "")
		assert.Len(t, res.Rolls, 50)
	}
}
