package dice

import "sync"

// SessionStats summarizes roll activity for one session.
type SessionStats struct {
	TotalRolls    int            `json:"total_rolls"`
	AverageResult float64        `json:"average_result"`
	SuccessRate   float64        `json:"success_rate"`
	RollTypes     map[string]int `json:"common_roll_types"`
}

type sessionAccum struct {
	rolls     int
	totalSum  int
	successes int
	types     map[string]int
}

// StatsBook accumulates per-session roll statistics. Safe for concurrent use.
type StatsBook struct {
	mu       sync.RWMutex
	sessions map[string]*sessionAccum
}

// NewStatsBook creates an empty StatsBook.
func NewStatsBook() *StatsBook {
	return &StatsBook{sessions: make(map[string]*sessionAccum)}
}

// Observe folds one resolved roll into its session's statistics.
func (b *StatsBook) Observe(res RollResult) {
	b.mu.Lock()
	defer b.mu.Unlock()

	acc, ok := b.sessions[res.SessionID]
	if !ok {
		acc = &sessionAccum{types: make(map[string]int)}
		b.sessions[res.SessionID] = acc
	}
	acc.rolls++
	acc.totalSum += res.Total
	acc.types[res.RollType]++
	if res.Success != nil && *res.Success {
		acc.successes++
	}
}

// Session returns the statistics for a session. An unknown session yields
// zero statistics, not an error.
func (b *StatsBook) Session(sessionID string) SessionStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	acc, ok := b.sessions[sessionID]
	if !ok || acc.rolls == 0 {
		return SessionStats{RollTypes: map[string]int{}}
	}

	types := make(map[string]int, len(acc.types))
	for k, v := range acc.types {
		types[k] = v
	}
	return SessionStats{
		TotalRolls:    acc.rolls,
		AverageResult: float64(acc.totalSum) / float64(acc.rolls),
		SuccessRate:   float64(acc.successes) / float64(acc.rolls),
		RollTypes:     types,
	}
}

// Clear removes all statistics for a session.
func (b *StatsBook) Clear(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, sessionID)
}
