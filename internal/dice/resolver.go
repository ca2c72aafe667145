package dice

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sink receives resolved rolls for fire-and-forget side effects (ledger
// append, delivery-cache update, history persistence). Enqueue must never
// block the resolution path; a failed or dropped handoff is a delivery
// concern, not a roll failure.
type Sink interface {
	Enqueue(res RollResult)
}

// nopSink discards results. Used when no delivery layer is attached.
type nopSink struct{}

func (nopSink) Enqueue(RollResult) {}

// Resolver orchestrates one roll: validate, draw randomness, total, evaluate
// success, stamp identity and timing, then hand the result off for delivery.
// All methods are safe for concurrent use.
type Resolver struct {
	src     Source
	tracker *Tracker
	stats   *StatsBook
	sink    Sink
	logger  *zap.Logger
}

// NewResolver creates a Resolver.
//
// Precondition: src, tracker, stats, and logger must be non-nil; sink may be
// nil, in which case results are not delivered anywhere.
func NewResolver(src Source, tracker *Tracker, stats *StatsBook, sink Sink, logger *zap.Logger) *Resolver {
	if sink == nil {
		sink = nopSink{}
	}
	return &Resolver{
		src:     src,
		tracker: tracker,
		stats:   stats,
		sink:    sink,
		logger:  logger,
	}
}

// Resolve executes one roll.
//
// Postcondition: on success, the returned result satisfies
// Total == sum(Rolls) + Modifier, len(Rolls) == req.DiceCount, every die
// value is in [1, req.DiceSides], and Success is set iff req.Difficulty is.
// On a *ValidationError no randomness has been consumed and no state was
// touched.
func (r *Resolver) Resolve(req RollRequest) (RollResult, error) {
	start := time.Now()

	if err := req.Validate(); err != nil {
		return RollResult{}, err
	}
	if req.RollType == "" {
		req.RollType = DefaultRollType
	}

	rolls := make([]int, req.DiceCount)
	total := req.Modifier
	for i := range rolls {
		rolls[i] = r.src.Intn(req.DiceSides) + 1
		total += rolls[i]
	}

	var success *bool
	if req.Difficulty != nil {
		s := total >= *req.Difficulty
		success = &s
	}

	res := RollResult{
		ID:          uuid.NewString(),
		SessionID:   req.SessionID,
		CharacterID: req.CharacterID,
		RollType:    req.RollType,
		DiceCount:   req.DiceCount,
		DiceSides:   req.DiceSides,
		Modifier:    req.Modifier,
		Rolls:       rolls,
		Total:       total,
		Difficulty:  req.Difficulty,
		Success:     success,
		Timestamp:   time.Now().UTC(),
		LatencyMs:   float64(time.Since(start).Microseconds()) / 1000.0,
	}

	// Cheap synchronous accounting; delivery is decoupled so the caller never
	// waits on ledger, cache, or persistence work.
	r.tracker.Record(res.LatencyMs)
	r.stats.Observe(res)
	r.sink.Enqueue(res)

	r.logger.Debug("dice roll",
		zap.String("roll_id", res.ID),
		zap.String("session_id", res.SessionID),
		zap.String("expression", res.Expression()),
		zap.Ints("dice", res.Rolls),
		zap.Int("modifier", res.Modifier),
		zap.Int("total", res.Total),
		zap.Float64("latency_ms", res.LatencyMs),
	)
	return res, nil
}

// MaxInitiativeCharacters bounds one initiative roll-off.
const MaxInitiativeCharacters = 6

// InitiativeEntry is one character's position in an initiative roll-off.
type InitiativeEntry struct {
	CharacterID string     `json:"character_id"`
	Initiative  int        `json:"initiative"`
	TurnOrder   int        `json:"turn_order"`
	Roll        RollResult `json:"roll_details"`
}

// RollInitiative rolls 1d6 for each character and returns entries sorted by
// initiative, highest first, with turn order assigned. Ties keep the input
// order. Every roll flows through the normal resolution path.
//
// Precondition: 1 <= len(characterIDs) <= MaxInitiativeCharacters.
func (r *Resolver) RollInitiative(sessionID string, characterIDs []string) ([]InitiativeEntry, error) {
	if len(characterIDs) == 0 {
		return nil, &ValidationError{Field: "character_ids", Message: "must not be empty"}
	}
	if len(characterIDs) > MaxInitiativeCharacters {
		return nil, &ValidationError{
			Field:   "character_ids",
			Message: fmt.Sprintf("at most %d characters per initiative roll, got %d", MaxInitiativeCharacters, len(characterIDs)),
		}
	}

	entries := make([]InitiativeEntry, 0, len(characterIDs))
	for _, charID := range characterIDs {
		res, err := r.Resolve(RollRequest{
			SessionID:   sessionID,
			CharacterID: charID,
			DiceCount:   1,
			DiceSides:   6,
			RollType:    "initiative",
		})
		if err != nil {
			return nil, err
		}
		entries = append(entries, InitiativeEntry{
			CharacterID: charID,
			Initiative:  res.Total,
			Roll:        res,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Initiative > entries[j].Initiative })
	for i := range entries {
		entries[i].TurnOrder = i + 1
	}
	return entries, nil
}
