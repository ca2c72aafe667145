// Package api exposes the dice engine over HTTP: roll resolution, probability
// analysis, conditional polling, and health reporting.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sparc-rpg/rollcast/internal/broadcast"
	"github.com/sparc-rpg/rollcast/internal/dice"
)

// defaultRecentLimit bounds an unqualified recent-rolls poll.
const defaultRecentLimit = 10

// Handler holds the HTTP handlers and their collaborators.
type Handler struct {
	resolver    *dice.Resolver
	model       *dice.Model
	tracker     *dice.Tracker
	stats       *dice.StatsBook
	levels      dice.LevelTable
	broadcaster *broadcast.Broadcaster
	dispatcher  *broadcast.Dispatcher
	source      *dice.PooledSource
	logger      *zap.Logger
}

// NewHandler creates a Handler. dispatcher and source may be nil; the
// performance report then omits their depths.
func NewHandler(
	resolver *dice.Resolver,
	model *dice.Model,
	tracker *dice.Tracker,
	stats *dice.StatsBook,
	levels dice.LevelTable,
	broadcaster *broadcast.Broadcaster,
	dispatcher *broadcast.Dispatcher,
	source *dice.PooledSource,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		resolver:    resolver,
		model:       model,
		tracker:     tracker,
		stats:       stats,
		levels:      levels,
		broadcaster: broadcaster,
		dispatcher:  dispatcher,
		source:      source,
		logger:      logger,
	}
}

// Routes builds the router with all middleware attached.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(RequestLogger(h.logger))
	r.Use(Recoverer(h.logger))

	r.Route("/dice", func(r chi.Router) {
		r.Post("/roll", h.Roll)
		r.Post("/roll/initiative", h.RollInitiative)
		r.Get("/recent/{sessionID}", h.Recent)
		r.Get("/updates/{sessionID}", h.Updates)
		r.Get("/analyze", h.Analyze)
		r.Get("/performance", h.Performance)
		r.Get("/health", h.Health)
		r.Get("/statistics/{sessionID}", h.Statistics)
		r.Delete("/session/{sessionID}", h.ClearSession)
	})

	return r
}

// Roll resolves a single dice roll. The response is authoritative the moment
// it is written; ledger delivery and persistence happen asynchronously and
// cannot fail the request.
func (h *Handler) Roll(w http.ResponseWriter, r *http.Request) {
	var req RollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Message: err.Error()})
		return
	}

	res, err := h.resolver.Resolve(dice.RollRequest{
		SessionID:   req.SessionID,
		CharacterID: req.CharacterID,
		DiceCount:   req.DiceCount,
		DiceSides:   req.DiceSides,
		Modifier:    req.Modifier,
		Difficulty:  req.Difficulty,
		RollType:    req.RollType,
	})
	if err != nil {
		writeValidationError(w, err)
		return
	}

	w.Header().Set("ETag", quoteETag(res.ID))
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, http.StatusOK, res)
}

// RollInitiative rolls 1d6 per character and returns the descending turn
// order. Each roll flows through the normal resolution path, so initiative
// rolls appear in the session ledger like any other roll.
func (h *Handler) RollInitiative(w http.ResponseWriter, r *http.Request) {
	var req InitiativeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Message: err.Error()})
		return
	}
	if req.SessionID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation failed", Field: "session_id", Message: "must not be empty"})
		return
	}

	entries, err := h.resolver.RollInitiative(req.SessionID, req.CharacterIDs)
	if err != nil {
		writeValidationError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, InitiativeResponse{SessionID: req.SessionID, TurnOrder: entries})
}

// Recent answers a conditional poll for the newest rolls of a session.
func (h *Handler) Recent(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation failed", Field: "limit", Message: "must be a positive integer"})
			return
		}
		limit = n
	}

	res := h.broadcaster.Recent(sessionID, limit, clientETag(r))
	writePoll(w, sessionID, res, "max-age=5")
}

// Updates answers a conditional poll scoped to rolls after the given time.
func (h *Handler) Updates(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation failed", Field: "since", Message: "must be an RFC 3339 timestamp"})
			return
		}
		since = t
	}

	res := h.broadcaster.Updates(sessionID, since, clientETag(r))
	writePoll(w, sessionID, res, "max-age=2")
}

// analyzeResponse extends the odds report with the named difficulty level
// the threshold falls under.
type analyzeResponse struct {
	dice.Analysis
	DifficultyLevel string `json:"difficulty_level,omitempty"`
}

// Analyze reports expected value and success odds for a dice configuration.
// Read-only: no randomness is drawn and no session state is touched. The
// difficulty query parameter accepts a number or a named level ("medium").
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	count, err := queryInt(q.Get("dice_count"), 1)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation failed", Field: "dice_count", Message: "must be an integer"})
		return
	}
	sides, err := queryInt(q.Get("dice_sides"), 6)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation failed", Field: "dice_sides", Message: "must be an integer"})
		return
	}
	modifier, err := queryInt(q.Get("modifier"), 0)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation failed", Field: "modifier", Message: "must be an integer"})
		return
	}

	rawDifficulty := q.Get("difficulty")
	if rawDifficulty == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation failed", Field: "difficulty", Message: "is required"})
		return
	}
	difficulty, err := strconv.Atoi(rawDifficulty)
	if err != nil {
		target, ok := h.levels.Target(rawDifficulty)
		if !ok {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation failed", Field: "difficulty", Message: "must be a number or a named level"})
			return
		}
		difficulty = target
	}

	analysis, err := h.model.Analyze(count, sides, modifier, difficulty)
	if err != nil {
		writeValidationError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, analyzeResponse{
		Analysis:        analysis,
		DifficultyLevel: h.levels.Classify(difficulty),
	})
}

// Performance reports resolver timing alongside delivery-layer load.
func (h *Handler) Performance(w http.ResponseWriter, r *http.Request) {
	engine := h.tracker.Snapshot()
	bstats := h.broadcaster.Snapshot()

	resp := PerformanceResponse{
		Engine:          engine,
		EngineHealth:    engine.Health(),
		Broadcast:       bstats,
		BroadcastHealth: bstats.Health(),
		TargetP95Ms:     dice.TargetP95Ms,
	}
	if h.source != nil {
		resp.PoolDepth = h.source.Depth()
	}
	if h.dispatcher != nil {
		resp.DispatchDepth = h.dispatcher.QueueDepth()
	}

	writeJSON(w, http.StatusOK, resp)
}

// Health reports the aggregate system status. Degraded when resolver p95
// exceeds the 100 ms target or the broadcast queue is overloaded; warning
// when p95 exceeds 75 ms or the session count is high.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	engine := h.tracker.Snapshot()
	bstats := h.broadcaster.Snapshot()

	status := "healthy"
	switch {
	case engine.P95Ms > dice.TargetP95Ms || bstats.Health() == "overloaded":
		status = "degraded"
	case engine.P95Ms > 75 || bstats.Health() == "busy":
		status = "warning"
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    status,
		Engine:    engine,
		Broadcast: bstats,
		Timestamp: time.Now().UTC(),
	})
}

// Statistics reports accumulated per-session roll statistics. An unknown
// session yields zeroed statistics, not an error.
func (h *Handler) Statistics(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	writeJSON(w, http.StatusOK, StatisticsResponse{
		SessionID: sessionID,
		Stats:     h.stats.Session(sessionID),
	})
}

// ClearSession tears down a session: ledger, cache entry, queued records,
// and statistics.
func (h *Handler) ClearSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	h.broadcaster.ClearSession(sessionID)
	h.stats.Clear(sessionID)
	h.logger.Info("session cleared", zap.String("session_id", sessionID))

	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared", "session_id": sessionID})
}

// writePoll writes a conditional-poll result: 304 with the ETag when the
// client's tag still matches, 200 with the rolls otherwise.
func writePoll(w http.ResponseWriter, sessionID string, res broadcast.PollResult, cacheControl string) {
	w.Header().Set("ETag", quoteETag(res.ETag))
	w.Header().Set("Cache-Control", cacheControl)

	if res.NotModified {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	writeJSON(w, http.StatusOK, RollsResponse{
		SessionID:  sessionID,
		Rolls:      res.Rolls,
		Count:      len(res.Rolls),
		LastChange: res.LastChange,
	})
}

// writeValidationError maps a *dice.ValidationError to 400 and anything else
// to 500.
func writeValidationError(w http.ResponseWriter, err error) {
	var verr *dice.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation failed",
			Field:   verr.Field,
			Message: verr.Message,
		})
		return
	}
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// quoteETag wraps a tag in the quotes the ETag header grammar requires.
func quoteETag(tag string) string {
	return `"` + tag + `"`
}

// clientETag extracts the client's tag from If-None-Match, tolerating weak
// validators and missing quotes.
func clientETag(r *http.Request) string {
	tag := r.Header.Get("If-None-Match")
	tag = strings.TrimPrefix(tag, "W/")
	return strings.Trim(tag, `"`)
}

// queryInt parses an optional integer query parameter.
func queryInt(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
