package reports

import (
	"context"
	"time"

	"github.com/dmitrijs2005/insightly/internal/server/models"
)

// Repository persists reports keyed by (user_id, window_start).
type Repository interface {
	// InsertIfAbsent stores the report unless one already exists for its
	// (UserID, WindowStart) key. Returns the stored row and whether this
	// call created it.
	InsertIfAbsent(ctx context.Context, report *models.Report) (*models.Report, bool, error)

	// MarkDelivered sets email_sent_at, but only if it is currently null.
	// Marking an already-delivered report is a no-op, not an error.
	MarkDelivered(ctx context.Context, reportID string, at time.Time) error

	GetByID(ctx context.Context, userID, reportID string) (*models.Report, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.Report, error)
}
