package sources

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/insightly/internal/dbx"
	"github.com/dmitrijs2005/insightly/internal/server/models"
)

// PostgresSource implements the three read interfaces against the
// collaborator-owned tables in the shared database.
type PostgresSource struct {
	db dbx.DBTX
}

// NewPostgresSource constructs a source bound to the given DBTX.
func NewPostgresSource(db dbx.DBTX) *PostgresSource {
	return &PostgresSource{db: db}
}

// ListEligibleUsers returns users on a paid tier. The tier set mirrors the
// account system's eligibility rule.
func (s *PostgresSource) ListEligibleUsers(ctx context.Context) ([]*models.User, error) {
	query := `SELECT id, tier, COALESCE(email, ''), COALESCE(name, '') FROM users WHERE tier IN ('premium', 'pro') ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select eligible users: %w", err)
	}
	defer rows.Close()

	var result []*models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Tier, &u.Email, &u.Name); err != nil {
			return nil, err
		}
		result = append(result, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// GetEvents returns the user's conversation events with occurred_at inside
// [start, end). Detections arrive as JSONB and are decoded per row.
func (s *PostgresSource) GetEvents(ctx context.Context, userID string, start, end time.Time) ([]*models.ConversationEvent, error) {
	query := `
		SELECT user_id, occurred_at, detections FROM conversation_events
		WHERE user_id=$1 AND occurred_at >= $2 AND occurred_at < $3
		ORDER BY occurred_at
	`
	rows, err := s.db.QueryContext(ctx, query, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to select events: %w", err)
	}
	defer rows.Close()

	var result []*models.ConversationEvent
	for rows.Next() {
		var e models.ConversationEvent
		var detections []byte
		if err := rows.Scan(&e.UserID, &e.OccurredAt, &detections); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(detections, &e.Detections); err != nil {
			return nil, fmt.Errorf("decoding detections: %w", err)
		}
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// GetStreak returns the user's current streak, or 0 when the streak tracker
// has no row for them yet.
func (s *PostgresSource) GetStreak(ctx context.Context, userID string) (int, error) {
	var streak int
	err := s.db.QueryRowContext(ctx, `SELECT current_streak FROM streaks WHERE user_id=$1`, userID).Scan(&streak)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to select streak: %w", err)
	}
	return streak, nil
}
