// Package dice implements the roll-resolution engine: a pooled
// cryptographically secure randomness source, precomputed probability
// tables, and latency accounting for every resolved roll.
package dice

import (
	"fmt"
	"time"
)

// Roll boundaries enforced before any randomness is drawn.
const (
	MinDiceCount  = 1
	MaxDiceCount  = 20
	MinModifier   = -50
	MaxModifier   = 50
	MinDifficulty = 1
	MaxDifficulty = 30
)

// DefaultRollType is used when a request does not label the roll.
const DefaultRollType = "general"

// ValidSides reports whether sides is a supported die type.
func ValidSides(sides int) bool {
	switch sides {
	case 4, 6, 8, 10, 12, 20:
		return true
	}
	return false
}

// ValidationError describes a roll request field that violates its bounds.
// It is the only error a well-formed caller can provoke; it is never retried
// and leaves no partial state behind.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("dice: invalid %s: %s", e.Field, e.Message)
}

// RollRequest is the validated input for a single roll resolution.
type RollRequest struct {
	SessionID   string
	CharacterID string
	DiceCount   int
	DiceSides   int
	Modifier    int
	Difficulty  *int
	RollType    string
}

// Validate checks all request invariants.
//
// Postcondition: Returns nil iff the request is resolvable; a *ValidationError
// naming the offending field otherwise. No randomness is consumed.
func (r RollRequest) Validate() error {
	if r.SessionID == "" {
		return &ValidationError{Field: "session_id", Message: "must not be empty"}
	}
	return validateConfiguration(r.DiceCount, r.DiceSides, r.Modifier, r.Difficulty)
}

// validateConfiguration checks the dice-shape bounds shared by roll requests
// and probability analyses.
func validateConfiguration(count, sides, modifier int, difficulty *int) error {
	if count < MinDiceCount || count > MaxDiceCount {
		return &ValidationError{
			Field:   "dice_count",
			Message: fmt.Sprintf("must be between %d and %d, got %d", MinDiceCount, MaxDiceCount, count),
		}
	}
	if !ValidSides(sides) {
		return &ValidationError{
			Field:   "dice_sides",
			Message: fmt.Sprintf("must be 4, 6, 8, 10, 12, or 20, got %d", sides),
		}
	}
	if modifier < MinModifier || modifier > MaxModifier {
		return &ValidationError{
			Field:   "modifier",
			Message: fmt.Sprintf("must be between %d and %d, got %d", MinModifier, MaxModifier, modifier),
		}
	}
	if difficulty != nil {
		if *difficulty < MinDifficulty || *difficulty > MaxDifficulty {
			return &ValidationError{
				Field:   "difficulty",
				Message: fmt.Sprintf("must be between %d and %d, got %d", MinDifficulty, MaxDifficulty, *difficulty),
			}
		}
	}
	return nil
}

// RollResult is the canonical, immutable record of one resolved roll.
//
// Postcondition (construction): Total == sum(Rolls) + Modifier;
// len(Rolls) == DiceCount; every value in Rolls is in [1, DiceSides];
// Success is non-nil iff Difficulty is non-nil.
type RollResult struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	CharacterID string    `json:"character_id,omitempty"`
	RollType    string    `json:"roll_type"`
	DiceCount   int       `json:"dice_count"`
	DiceSides   int       `json:"dice_sides"`
	Modifier    int       `json:"modifier"`
	Rolls       []int     `json:"individual_rolls"`
	Total       int       `json:"total"`
	Difficulty  *int      `json:"difficulty,omitempty"`
	Success     *bool     `json:"success,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	LatencyMs   float64   `json:"latency_ms"`
}

// Expression returns the roll in conventional notation, e.g. "3d6+2".
func (r RollResult) Expression() string {
	if r.Modifier == 0 {
		return fmt.Sprintf("%dd%d", r.DiceCount, r.DiceSides)
	}
	return fmt.Sprintf("%dd%d%+d", r.DiceCount, r.DiceSides, r.Modifier)
}
