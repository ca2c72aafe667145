package api

import (
	"time"

	"github.com/sparc-rpg/rollcast/internal/broadcast"
	"github.com/sparc-rpg/rollcast/internal/dice"
)

// RollRequest is the body of POST /dice/roll.
type RollRequest struct {
	SessionID   string `json:"session_id"`
	CharacterID string `json:"character_id,omitempty"`
	DiceCount   int    `json:"dice_count"`
	DiceSides   int    `json:"dice_sides"`
	Modifier    int    `json:"modifier,omitempty"`
	Difficulty  *int   `json:"difficulty,omitempty"`
	RollType    string `json:"roll_type,omitempty"`
}

// InitiativeRequest is the body of POST /dice/roll/initiative.
type InitiativeRequest struct {
	SessionID    string   `json:"session_id"`
	CharacterIDs []string `json:"character_ids"`
}

// InitiativeResponse lists the turn order produced by an initiative roll.
type InitiativeResponse struct {
	SessionID string                 `json:"session_id"`
	TurnOrder []dice.InitiativeEntry `json:"turn_order"`
}

// RollsResponse is the payload of the conditional polling endpoints.
type RollsResponse struct {
	SessionID  string            `json:"session_id"`
	Rolls      []dice.RollResult `json:"rolls"`
	Count      int               `json:"count"`
	LastChange time.Time         `json:"last_change,omitempty"`
}

// PerformanceResponse combines resolver timing with delivery-layer load.
type PerformanceResponse struct {
	Engine          dice.Stats      `json:"engine"`
	EngineHealth    string          `json:"engine_health"`
	Broadcast       broadcast.Stats `json:"broadcast"`
	BroadcastHealth string          `json:"broadcast_health"`
	PoolDepth       int             `json:"pool_depth"`
	DispatchDepth   int             `json:"dispatch_queue_depth"`
	TargetP95Ms     float64         `json:"target_p95_ms"`
}

// HealthResponse is the aggregate health report.
type HealthResponse struct {
	Status    string          `json:"status"`
	Engine    dice.Stats      `json:"engine"`
	Broadcast broadcast.Stats `json:"broadcast"`
	Timestamp time.Time       `json:"timestamp"`
}

// StatisticsResponse reports accumulated per-session roll statistics.
type StatisticsResponse struct {
	SessionID string            `json:"session_id"`
	Stats     dice.SessionStats `json:"statistics"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Field   string `json:"field,omitempty"`
}
