package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sparc-rpg/rollcast/internal/dice"
)

// RollRepository persists resolved rolls. The write path is fire-and-forget
// from the resolver's point of view: a failed insert is logged upstream and
// never affects the roll result already returned to the client.
type RollRepository struct {
	db *pgxpool.Pool
}

// NewRollRepository creates a RollRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewRollRepository(db *pgxpool.Pool) *RollRepository {
	return &RollRepository{db: db}
}

// StoreRoll inserts one resolved roll. Re-inserting the same roll ID is a
// no-op, so a redelivered dispatch cannot duplicate history.
func (r *RollRepository) StoreRoll(ctx context.Context, res dice.RollResult) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO dice_rolls
		   (id, session_id, character_id, roll_type, dice_count, dice_sides,
		    modifier, individual_rolls, total, difficulty, success, rolled_at, latency_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (id) DO NOTHING`,
		res.ID, res.SessionID, nullableText(res.CharacterID), res.RollType,
		res.DiceCount, res.DiceSides, res.Modifier, intArray(res.Rolls),
		res.Total, res.Difficulty, res.Success, res.Timestamp, res.LatencyMs,
	)
	if err != nil {
		return fmt.Errorf("inserting roll: %w", err)
	}
	return nil
}

// Recent returns the newest rolls for a session, most recent first.
//
// Precondition: limit must be >= 1.
func (r *RollRepository) Recent(ctx context.Context, sessionID string, limit int) ([]dice.RollResult, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, session_id, character_id, roll_type, dice_count, dice_sides,
		        modifier, individual_rolls, total, difficulty, success, rolled_at, latency_ms
		 FROM dice_rolls
		 WHERE session_id = $1
		 ORDER BY rolled_at DESC
		 LIMIT $2`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying rolls: %w", err)
	}
	defer rows.Close()

	var results []dice.RollResult
	for rows.Next() {
		res, err := scanRoll(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading rolls: %w", err)
	}
	return results, nil
}

// CountBySession returns the number of persisted rolls for a session.
func (r *RollRepository) CountBySession(ctx context.Context, sessionID string) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM dice_rolls WHERE session_id = $1`,
		sessionID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting rolls: %w", err)
	}
	return count, nil
}

// DeleteSession removes all persisted rolls for a session and reports how
// many rows were deleted.
func (r *RollRepository) DeleteSession(ctx context.Context, sessionID string) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM dice_rolls WHERE session_id = $1`,
		sessionID,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting session rolls: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanRoll(rows pgx.Rows) (dice.RollResult, error) {
	var (
		res         dice.RollResult
		characterID *string
		faces       []int32
	)
	err := rows.Scan(
		&res.ID, &res.SessionID, &characterID, &res.RollType,
		&res.DiceCount, &res.DiceSides, &res.Modifier, &faces,
		&res.Total, &res.Difficulty, &res.Success, &res.Timestamp, &res.LatencyMs,
	)
	if err != nil {
		return dice.RollResult{}, fmt.Errorf("scanning roll: %w", err)
	}
	if characterID != nil {
		res.CharacterID = *characterID
	}
	res.Rolls = make([]int, len(faces))
	for i, f := range faces {
		res.Rolls[i] = int(f)
	}
	return res, nil
}

// nullableText maps an empty string to NULL.
func nullableText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// intArray converts die faces to the int4[] element type pgx encodes.
func intArray(vals []int) []int32 {
	out := make([]int32, len(vals))
	for i, v := range vals {
		out[i] = int32(v)
	}
	return out
}
