// Package reports provides the PostgreSQL-backed repository for generated
// insight reports.
package reports

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/insightly/internal/common"
	"github.com/dmitrijs2005/insightly/internal/dbx"
	"github.com/dmitrijs2005/insightly/internal/server/models"
)

// PostgresRepository implements report storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const reportColumns = `id, user_id, window_start, window_end, session_count, current_streak, top_biases, artifact_ref, created_at, email_sent_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*models.Report, error) {
	var r models.Report
	var biases []byte
	if err := row.Scan(
		&r.ID, &r.UserID, &r.WindowStart, &r.WindowEnd,
		&r.SessionCount, &r.CurrentStreak, &biases,
		&r.ArtifactRef, &r.CreatedAt, &r.EmailSentAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(biases, &r.TopBiases); err != nil {
		return nil, fmt.Errorf("decoding top_biases: %w", err)
	}
	return &r, nil
}

// InsertIfAbsent inserts the report; on a (user_id, window_start) conflict it
// leaves the existing row untouched and returns it with created=false.
func (r *PostgresRepository) InsertIfAbsent(ctx context.Context, report *models.Report) (*models.Report, bool, error) {
	biases, err := json.Marshal(report.TopBiases)
	if err != nil {
		return nil, false, fmt.Errorf("encoding top_biases: %w", err)
	}

	query := `
		INSERT INTO reports (id, user_id, window_start, window_end, session_count, current_streak, top_biases, artifact_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, window_start) DO NOTHING;
	`
	res, err := r.db.ExecContext(ctx, query,
		report.ID, report.UserID, report.WindowStart, report.WindowEnd,
		report.SessionCount, report.CurrentStreak, biases,
		report.ArtifactRef, report.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return report, true, nil
	case 0:
		existing, err := r.getByKey(ctx, report.UserID, report.WindowStart)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	default:
		return nil, false, fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func (r *PostgresRepository) getByKey(ctx context.Context, userID string, windowStart time.Time) (*models.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE user_id=$1 AND window_start=$2`
	report, err := scanReport(r.db.QueryRowContext(ctx, query, userID, windowStart))
	if err != nil {
		return nil, fmt.Errorf("failed to select report by key: %w", err)
	}
	return report, nil
}

// MarkDelivered sets email_sent_at for the report if it is still null. The
// first successful delivery wins; later calls leave the timestamp alone.
func (r *PostgresRepository) MarkDelivered(ctx context.Context, reportID string, at time.Time) error {
	query := `UPDATE reports SET email_sent_at=$2 WHERE id=$1 AND email_sent_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, reportID, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 1 {
		return nil
	}

	// No row updated: either the report is unknown or it was already marked.
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM reports WHERE id=$1)`, reportID).Scan(&exists); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if !exists {
		return common.ErrorNotFound
	}
	return nil
}

// GetByID returns the report with the given id owned by userID.
func (r *PostgresRepository) GetByID(ctx context.Context, userID, reportID string) (*models.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE id=$1 AND user_id=$2`
	report, err := scanReport(r.db.QueryRowContext(ctx, query, reportID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("failed to select report: %w", err)
	}
	return report, nil
}

// ListByUser returns up to limit reports for userID, newest window first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*models.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE user_id=$1 ORDER BY window_start DESC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select reports: %w", err)
	}
	defer rows.Close()

	var result []*models.Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, report)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
