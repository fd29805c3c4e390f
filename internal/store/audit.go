package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Abhiram-0910/Cognitive-Accessibility-OS-sub000/internal/action"
	"github.com/Abhiram-0910/Cognitive-Accessibility-OS-sub000/internal/telemetry"
)

// TransitionRecord is one audited state transition.
type TransitionRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	FromState string    `json:"from_state"`
	ToState   string    `json:"to_state"`
	Score     float64   `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

// RecordTransition appends a committed state transition to the audit log.
func (s *Store) RecordTransition(ctx context.Context, t telemetry.Transition) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO state_transitions (id, user_id, from_state, to_state, score, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5)`,
		t.UserID, string(t.From), string(t.To), t.Score, t.At,
	)
	if err != nil {
		return fmt.Errorf("record transition: %w", err)
	}
	return nil
}

// RecentTransitions returns a user's latest transitions, newest first.
func (s *Store) RecentTransitions(ctx context.Context, userID string, limit int) ([]TransitionRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, from_state, to_state, score, created_at
		FROM state_transitions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent transitions: %w", err)
	}
	defer rows.Close()

	var out []TransitionRecord
	for rows.Next() {
		var r TransitionRecord
		if err := rows.Scan(&r.ID, &r.UserID, &r.FromState, &r.ToState, &r.Score, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecordAction appends a routed action and its outcome to the audit log.
func (s *Store) RecordAction(ctx context.Context, userID string, reqType action.RequestType, res *action.Result) error {
	var effectsJSON []byte
	if len(res.SideEffects) > 0 {
		var err error
		effectsJSON, err = json.Marshal(res.SideEffects)
		if err != nil {
			return fmt.Errorf("marshal side_effects: %w", err)
		}
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO action_log (id, user_id, request_type, status, fallback, side_effects)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5)`,
		userID, string(reqType), string(res.Status), res.Fallback, effectsJSON,
	)
	if err != nil {
		return fmt.Errorf("record action: %w", err)
	}
	return nil
}
