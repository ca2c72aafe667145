package dice

import (
	"fmt"
	"math"
	"sync"
)

// exactEnumerationLimit is the dice count up to which the exact sum
// distribution is computed by full enumeration. Above it the engine switches
// to a normal approximation: the outcome space grows as sides^count and the
// approximation with continuity correction stays within ±0.01 absolute error
// of the exact probability at the boundary (verified against 5d6 in tests).
const exactEnumerationLimit = 4

type distKey struct {
	count int
	sides int
}

// Model precomputes success-probability distributions for dice pools.
// Distributions are pure mathematics with no invalidation need: once
// computed for a (count, sides) pair they are cached for the process
// lifetime. All methods are safe for concurrent use.
type Model struct {
	mu   sync.RWMutex
	dist map[distKey][]float64
}

// NewModel creates a Model with distributions for the common dice types
// (d4/d6/d8/d10/d12/d20 at counts 1-4) precomputed.
func NewModel() *Model {
	m := &Model{dist: make(map[distKey][]float64)}
	for _, sides := range []int{4, 6, 8, 10, 12, 20} {
		for count := 1; count <= exactEnumerationLimit; count++ {
			m.distribution(count, sides)
		}
	}
	return m
}

// ExpectedValue returns the mean total of count dice with the given sides
// plus the modifier.
//
// Precondition: count >= 1 and sides >= 2.
func (m *Model) ExpectedValue(count, sides, modifier int) float64 {
	return float64(count)*float64(sides+1)/2 + float64(modifier)
}

// SuccessProbability returns P(sum of count dice + modifier >= difficulty)
// in [0, 1]. Exact for count <= 4, normal approximation with continuity
// correction above.
//
// Precondition: count >= 1 and sides >= 2.
// Postcondition: returns 1.0 when difficulty <= count + modifier and
// 0.0 when difficulty > count*sides + modifier.
func (m *Model) SuccessProbability(count, sides, modifier, difficulty int) float64 {
	minTotal := count + modifier
	maxTotal := count*sides + modifier
	if difficulty <= minTotal {
		return 1.0
	}
	if difficulty > maxTotal {
		return 0.0
	}

	if count <= exactEnumerationLimit {
		probs := m.distribution(count, sides)
		success := 0.0
		for i, p := range probs {
			if count+i+modifier >= difficulty {
				success += p
			}
		}
		return success
	}

	return normalTailAbove(count, sides, difficulty-modifier)
}

// distribution returns the probability of each sum for count dice with the
// given sides, indexed from the minimum sum (i.e. probs[i] is P(sum == count+i)).
func (m *Model) distribution(count, sides int) []float64 {
	key := distKey{count: count, sides: sides}

	m.mu.RLock()
	probs, ok := m.dist[key]
	m.mu.RUnlock()
	if ok {
		return probs
	}

	// Convolve one die at a time: counts[i] is the number of outcomes
	// summing to (dice so far) + i.
	counts := make([]float64, 1)
	counts[0] = 1
	for d := 0; d < count; d++ {
		next := make([]float64, len(counts)+sides-1)
		for i, c := range counts {
			for face := 0; face < sides; face++ {
				next[i+face] += c
			}
		}
		counts = next
	}

	total := math.Pow(float64(sides), float64(count))
	probs = make([]float64, len(counts))
	for i, c := range counts {
		probs[i] = c / total
	}

	m.mu.Lock()
	m.dist[key] = probs
	m.mu.Unlock()
	return probs
}

// normalTailAbove approximates P(sum of count dice >= target) with a normal
// distribution matched to the dice-sum mean and variance, using a 0.5
// continuity correction.
func normalTailAbove(count, sides, target int) float64 {
	mean := float64(count) * float64(sides+1) / 2
	variance := float64(count) * float64(sides*sides-1) / 12
	sigma := math.Sqrt(variance)

	z := (float64(target) - 0.5 - mean) / sigma
	return 0.5 * math.Erfc(z/math.Sqrt2)
}

// Analysis is the pre-roll odds report for a dice configuration.
type Analysis struct {
	Configuration      string  `json:"dice_configuration"`
	Difficulty         int     `json:"difficulty"`
	ExpectedValue      float64 `json:"expected_value"`
	SuccessProbability float64 `json:"success_probability"`
	FailureProbability float64 `json:"failure_probability"`
	DifficultyRating   string  `json:"difficulty_rating"`
	RecommendedAction  string  `json:"recommended_action"`
}

// Analyze validates the configuration and returns the full odds report.
// It has no side effects and touches no session state.
func (m *Model) Analyze(count, sides, modifier, difficulty int) (Analysis, error) {
	if err := validateConfiguration(count, sides, modifier, &difficulty); err != nil {
		return Analysis{}, err
	}

	success := m.SuccessProbability(count, sides, modifier, difficulty)
	return Analysis{
		Configuration:      fmt.Sprintf("%dd%d%+d", count, sides, modifier),
		Difficulty:         difficulty,
		ExpectedValue:      m.ExpectedValue(count, sides, modifier),
		SuccessProbability: success,
		FailureProbability: 1.0 - success,
		DifficultyRating:   RatingForProbability(success),
		RecommendedAction:  recommendation(success),
	}, nil
}

// RatingForProbability converts a success probability to the standard
// difficulty rating bands.
func RatingForProbability(success float64) string {
	switch {
	case success >= 0.9:
		return "trivial"
	case success >= 0.75:
		return "easy"
	case success >= 0.5:
		return "medium"
	case success >= 0.25:
		return "hard"
	case success >= 0.1:
		return "very_hard"
	default:
		return "legendary"
	}
}

func recommendation(success float64) string {
	switch {
	case success > 0.8:
		return "Excellent odds"
	case success > 0.6:
		return "Good odds"
	case success > 0.4:
		return "Fair chance"
	case success > 0.2:
		return "Long shot"
	default:
		return "Extremely difficult"
	}
}
