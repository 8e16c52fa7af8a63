// Package sources defines the read-only interfaces through which the report
// pipeline consumes its external collaborators: the account system (eligible
// users), the conversation system (bias detection events) and the streak
// tracker. This core never writes through these interfaces.
package sources

import (
	"context"
	"time"

	"github.com/dmitrijs2005/insightly/internal/server/models"
)

// UserSource lists the users eligible for report generation. The eligibility
// rule (e.g. paid tier) is owned by the account collaborator.
type UserSource interface {
	ListEligibleUsers(ctx context.Context) ([]*models.User, error)
}

// EventSource returns a user's conversation events inside the half-open
// window [start, end).
type EventSource interface {
	GetEvents(ctx context.Context, userID string, start, end time.Time) ([]*models.ConversationEvent, error)
}

// StreakSource returns the user's current practice streak.
type StreakSource interface {
	GetStreak(ctx context.Context, userID string) (int, error)
}
