package dice_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/sparc-rpg/rollcast/internal/dice"

	"go.uber.org/zap"
)

// scriptedSource returns preordained die values and counts every draw.
type scriptedSource struct {
	values []int // zero-based, i.e. value returned by Intn
	calls  int
}

func (s *scriptedSource) Intn(n int) int {
	v := s.values[s.calls%len(s.values)]
	s.calls++
	return v % n
}

// captureSink records every result handed off for delivery.
type captureSink struct {
	results []dice.RollResult
}

func (c *captureSink) Enqueue(res dice.RollResult) {
	c.results = append(c.results, res)
}

func newTestResolver(src dice.Source, sink dice.Sink) (*dice.Resolver, *dice.Tracker, *dice.StatsBook) {
	tracker := dice.NewTracker(1000)
	stats := dice.NewStatsBook()
	return dice.NewResolver(src, tracker, stats, sink, zap.NewNop()), tracker, stats
}

// TestResolve_KnownDice: 3d6+2 vs difficulty 12 with dice [4,5,2] resolves to
// total 13 and success=true.
func TestResolve_KnownDice(t *testing.T) {
	src := &scriptedSource{values: []int{3, 4, 1}} // Intn results -> dice 4, 5, 2
	sink := &captureSink{}
	r, _, _ := newTestResolver(src, sink)

	res, err := r.Resolve(dice.RollRequest{
		SessionID:  "s1",
		DiceCount:  3,
		DiceSides:  6,
		Modifier:   2,
		Difficulty: intPtr(12),
	})
	require.NoError(t, err)

	assert.Equal(t, []int{4, 5, 2}, res.Rolls)
	assert.Equal(t, 13, res.Total)
	require.NotNil(t, res.Success)
	assert.True(t, *res.Success)
	assert.NotEmpty(t, res.ID)
	assert.False(t, res.Timestamp.IsZero())
	require.Len(t, sink.results, 1)
	assert.Equal(t, res.ID, sink.results[0].ID)
}

// TestResolve_ImpossibleDifficulty: 1d20 against difficulty 21 can never succeed.
func TestResolve_ImpossibleDifficulty(t *testing.T) {
	src := dice.NewCryptoSource()
	r, _, _ := newTestResolver(src, nil)

	for i := 0; i < 50; i++ {
		res, err := r.Resolve(dice.RollRequest{
			SessionID:  "s1",
			DiceCount:  1,
			DiceSides:  20,
			Difficulty: intPtr(21),
		})
		require.NoError(t, err)
		require.NotNil(t, res.Success)
		assert.False(t, *res.Success)
	}
}

// TestResolve_NoDifficulty verifies success is absent, never false, when no
// difficulty was requested.
func TestResolve_NoDifficulty(t *testing.T) {
	r, _, _ := newTestResolver(dice.NewCryptoSource(), nil)

	res, err := r.Resolve(dice.RollRequest{SessionID: "s1", DiceCount: 2, DiceSides: 6})
	require.NoError(t, err)
	assert.Nil(t, res.Success)
	assert.Nil(t, res.Difficulty)
}

// TestResolve_ValidationConsumesNoRandomness: a rejected request leaves no
// side effects and draws nothing from the source.
func TestResolve_ValidationConsumesNoRandomness(t *testing.T) {
	src := &scriptedSource{values: []int{0}}
	sink := &captureSink{}
	r, tracker, stats := newTestResolver(src, sink)

	_, err := r.Resolve(dice.RollRequest{SessionID: "s1", DiceCount: 25, DiceSides: 6})
	require.Error(t, err)

	var verr *dice.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "dice_count", verr.Field)

	assert.Zero(t, src.calls, "no randomness may be drawn for an invalid request")
	assert.Empty(t, sink.results, "no result may be delivered for an invalid request")
	assert.Zero(t, tracker.Snapshot().TotalRolls)
	assert.Zero(t, stats.Session("s1").TotalRolls)
}

func TestResolve_DefaultsRollType(t *testing.T) {
	r, _, _ := newTestResolver(dice.NewCryptoSource(), nil)
	res, err := r.Resolve(dice.RollRequest{SessionID: "s1", DiceCount: 1, DiceSides: 6})
	require.NoError(t, err)
	assert.Equal(t, dice.DefaultRollType, res.RollType)
}

func TestResolve_RecordsTrackerAndStats(t *testing.T) {
	r, tracker, stats := newTestResolver(dice.NewCryptoSource(), nil)

	for i := 0; i < 10; i++ {
		_, err := r.Resolve(dice.RollRequest{
			SessionID:  "s1",
			DiceCount:  1,
			DiceSides:  6,
			Difficulty: intPtr(1), // always succeeds
			RollType:   "attack",
		})
		require.NoError(t, err)
	}

	assert.Equal(t, uint64(10), tracker.Snapshot().TotalRolls)

	ss := stats.Session("s1")
	assert.Equal(t, 10, ss.TotalRolls)
	assert.Equal(t, 1.0, ss.SuccessRate)
	assert.Equal(t, 10, ss.RollTypes["attack"])
}

// TestResolve_Invariants_Property: for arbitrary valid requests, every die is
// in [1, sides] and total == sum(dice) + modifier exactly.
func TestResolve_Invariants_Property(t *testing.T) {
	r, _, _ := newTestResolver(dice.NewPooledSource(4096, 256, zap.NewNop()), nil)

	rapid.Check(t, func(rt *rapid.T) {
		req := dice.RollRequest{
			SessionID: "prop",
			DiceCount: rapid.IntRange(1, 20).Draw(rt, "count"),
			DiceSides: rapid.SampledFrom([]int{4, 6, 8, 10, 12, 20}).Draw(rt, "sides"),
			Modifier:  rapid.IntRange(-50, 50).Draw(rt, "modifier"),
		}

		res, err := r.Resolve(req)
		require.NoError(rt, err)
		require.Len(rt, res.Rolls, req.DiceCount)

		sum := 0
		for _, d := range res.Rolls {
			assert.GreaterOrEqual(rt, d, 1)
			assert.LessOrEqual(rt, d, req.DiceSides)
			sum += d
		}
		assert.Equal(rt, sum+req.Modifier, res.Total)
	})
}

func TestRollInitiative_SortsAndAssignsTurnOrder(t *testing.T) {
	// Scripted draws: chars roll 2, 6, 4 on 1d6.
	src := &scriptedSource{values: []int{1, 5, 3}}
	r, _, _ := newTestResolver(src, nil)

	entries, err := r.RollInitiative("s1", []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "b", entries[0].CharacterID)
	assert.Equal(t, 6, entries[0].Initiative)
	assert.Equal(t, 1, entries[0].TurnOrder)

	assert.Equal(t, "c", entries[1].CharacterID)
	assert.Equal(t, 2, entries[1].TurnOrder)

	assert.Equal(t, "a", entries[2].CharacterID)
	assert.Equal(t, 3, entries[2].TurnOrder)

	for _, e := range entries {
		assert.Equal(t, "initiative", e.Roll.RollType)
	}
}

func TestRollInitiative_Bounds(t *testing.T) {
	r, _, _ := newTestResolver(dice.NewCryptoSource(), nil)

	_, err := r.RollInitiative("s1", nil)
	assert.Error(t, err)

	_, err = r.RollInitiative("s1", []string{"a", "b", "c", "d", "e", "f", "g"})
	assert.Error(t, err)
}
