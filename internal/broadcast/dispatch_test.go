package broadcast_test

import (
	"context"
	"errors"
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

// memStore is an in-memory RollStore for dispatcher tests.
type memStore struct {
	mu     sync.Mutex
	stored []dice.RollResult
	fail   bool
}

func (m *memStore) StoreRoll(_ context.Context, res dice.RollResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("store unavailable")
	}
	m.stored = append(m.stored, res)
	return nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stored)
}

func TestDispatcher_DeliversToBroadcasterAndStore(t *testing.T) {
	b := newBroadcaster(t)
	store := &memStore{}
	d := broadcast.NewDispatcher(b, store, 64, zap.NewNop())

	go func() { _ = d.Start() }()

	for i := 0; i < 5; i++ {
		d.Enqueue(sessionRoll("s1", fmt.Sprintf("r%d", i)))
	}
	d.Stop() // drains before returning

	assert.Equal(t, 5, store.count())
	res := b.Recent("s1", 0, "")
	assert.Len(t, res.Rolls, 5)
}

// TestDispatcher_StoreFailureIsSwallowed: a failing history write never
// prevents delivery to the broadcaster.
func TestDispatcher_StoreFailureIsSwallowed(t *testing.T) {
	b := newBroadcaster(t)
	store := &memStore{fail: true}
	d := broadcast.NewDispatcher(b, store, 64, zap.NewNop())

	go func() { _ = d.Start() }()
	d.Enqueue(sessionRoll("s1", "r1"))
	d.Stop()

	res := b.Recent("s1", 0, "")
	require.Len(t, res.Rolls, 1)
	assert.Equal(t, "r1", res.Rolls[0].ID)
}

func TestDispatcher_NilStore(t *testing.T) {
	b := newBroadcaster(t)
	d := broadcast.NewDispatcher(b, nil, 8, zap.NewNop())

	go func() { _ = d.Start() }()
	d.Enqueue(sessionRoll("s1", "r1"))
	d.Stop()

	assert.Len(t, b.Recent("s1", 0, "").Rolls, 1)
}

// TestDispatcher_FullQueueDrops: with no worker running, enqueues past the
// capacity are dropped rather than blocking the caller.
func TestDispatcher_FullQueueDrops(t *testing.T) {
	b := newBroadcaster(t)
	d := broadcast.NewDispatcher(b, nil, 2, zap.NewNop())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			d.Enqueue(sessionRoll("s1", fmt.Sprintf("r%d", i)))
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue must never block, even with a full queue")
	}
	assert.Equal(t, 2, d.QueueDepth())
}

func TestDispatcher_EnqueueAfterStop(t *testing.T) {
	b := newBroadcaster(t)
	d := broadcast.NewDispatcher(b, nil, 8, zap.NewNop())

	go func() { _ = d.Start() }()
	d.Stop()

	assert.NotPanics(t, func() { d.Enqueue(sessionRoll("s1", "late")) })
	assert.Empty(t, b.Recent("s1", 0, "").Rolls)
}

func TestJanitor_Sweep(t *testing.T) {
	b := newBroadcaster(t)
	stats := dice.NewStatsBook()
	stats.Observe(dice.RollResult{SessionID: "s1", RollType: "attack", Total: 7})
	b.Notify(sessionRoll("s1", "r1"))

	j := broadcast.NewJanitor(b, stats, time.Minute, 30*time.Minute, time.Hour, zap.NewNop())

	// As of "now" nothing is stale.
	j.Sweep(time.Now())
	assert.Equal(t, 1, b.Snapshot().ActiveSessions)
	assert.Equal(t, 1, stats.Session("s1").TotalRolls)

	// As of a distant future everything is stale: the ledger, cache entry,
	// queued records, and statistics all go.
	j.Sweep(time.Now().Add(48 * time.Hour))
	snap := b.Snapshot()
	assert.Zero(t, snap.ActiveSessions)
	assert.Zero(t, snap.QueueSize)
	assert.Zero(t, stats.Session("s1").TotalRolls)
}

func TestJanitor_StartStop(t *testing.T) {
	b := newBroadcaster(t)
	j := broadcast.NewJanitor(b, dice.NewStatsBook(), 10*time.Millisecond, time.Minute, time.Hour, zap.NewNop())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = j.Start()
	}()

	time.Sleep(30 * time.Millisecond)
	j.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
