package dice_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/sparc-rpg/rollcast/internal/dice"
)

func intPtr(v int) *int { return &v }

func validRequest() dice.RollRequest {
	return dice.RollRequest{
		SessionID:   "session-1",
		CharacterID: "char-1",
		DiceCount:   3,
		DiceSides:   6,
		Modifier:    2,
		RollType:    "attack",
	}
}

func TestRollRequest_Validate_OK(t *testing.T) {
	req := validRequest()
	assert.NoError(t, req.Validate())

	req.Difficulty = intPtr(12)
	assert.NoError(t, req.Validate())
}

func TestRollRequest_Validate_EmptySession(t *testing.T) {
	req := validRequest()
	req.SessionID = ""
	err := req.Validate()
	require.Error(t, err)

	var verr *dice.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "session_id", verr.Field)
}

func TestRollRequest_Validate_DiceCount(t *testing.T) {
	for _, count := range []int{0, -1, 21, 25, 100} {
		req := validRequest()
		req.DiceCount = count
		err := req.Validate()
		require.Error(t, err, "count %d must be rejected", count)

		var verr *dice.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "dice_count", verr.Field)
	}
}

func TestRollRequest_Validate_DiceSides(t *testing.T) {
	for _, sides := range []int{0, 2, 3, 5, 7, 100} {
		req := validRequest()
		req.DiceSides = sides
		err := req.Validate()
		require.Error(t, err, "sides %d must be rejected", sides)
	}
	for _, sides := range []int{4, 6, 8, 10, 12, 20} {
		req := validRequest()
		req.DiceSides = sides
		assert.NoError(t, req.Validate(), "d%d must be accepted", sides)
	}
}

func TestRollRequest_Validate_ModifierBounds(t *testing.T) {
	req := validRequest()
	req.Modifier = -51
	assert.Error(t, req.Validate())

	req.Modifier = 51
	assert.Error(t, req.Validate())

	req.Modifier = -50
	assert.NoError(t, req.Validate())

	req.Modifier = 50
	assert.NoError(t, req.Validate())
}

func TestRollRequest_Validate_DifficultyBounds(t *testing.T) {
	req := validRequest()
	req.Difficulty = intPtr(0)
	assert.Error(t, req.Validate())

	req.Difficulty = intPtr(31)
	assert.Error(t, req.Validate())

	req.Difficulty = intPtr(1)
	assert.NoError(t, req.Validate())

	req.Difficulty = intPtr(30)
	assert.NoError(t, req.Validate())
}

func TestRollResult_Expression(t *testing.T) {
	res := dice.RollResult{DiceCount: 3, DiceSides: 6, Modifier: 2}
	assert.Equal(t, "3d6+2", res.Expression())

	res.Modifier = -1
	assert.Equal(t, "3d6-1", res.Expression())

	res.Modifier = 0
	assert.Equal(t, "3d6", res.Expression())
}

// TestRollRequest_Validate_Property verifies that any count/sides pair inside
// the documented bounds validates and anything outside is rejected.
func TestRollRequest_Validate_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		req := validRequest()
		req.DiceCount = rapid.IntRange(-5, 40).Draw(rt, "count")
		req.DiceSides = rapid.SampledFrom([]int{3, 4, 5, 6, 8, 10, 12, 13, 20, 100}).Draw(rt, "sides")
		req.Modifier = rapid.IntRange(-60, 60).Draw(rt, "modifier")

		err := req.Validate()
		inBounds := req.DiceCount >= dice.MinDiceCount && req.DiceCount <= dice.MaxDiceCount &&
			dice.ValidSides(req.DiceSides) &&
			req.Modifier >= dice.MinModifier && req.Modifier <= dice.MaxModifier
		if inBounds {
			assert.NoError(rt, err)
		} else {
			assert.Error(rt, err)
		}
	})
}
