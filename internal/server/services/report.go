// Package services contains the report orchestrator: the per-user pipeline
// (fetch, aggregate, render, store, deliver) and the batch runner that fans
// it out over eligible users without letting one user's failure touch
// another's.
package services

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/insightly/internal/common"
	"github.com/dmitrijs2005/insightly/internal/dbx"
	"github.com/dmitrijs2005/insightly/internal/logging"
	"github.com/dmitrijs2005/insightly/internal/server/blob"
	"github.com/dmitrijs2005/insightly/internal/server/insights"
	"github.com/dmitrijs2005/insightly/internal/server/mail"
	"github.com/dmitrijs2005/insightly/internal/server/models"
	"github.com/dmitrijs2005/insightly/internal/server/report"
	"github.com/dmitrijs2005/insightly/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/insightly/internal/server/sources"
	"github.com/google/uuid"
)

// Seam for tests.
var withTx = dbx.WithTx

// Options tunes the pipeline. Workers bounds batch parallelism (a throughput
// knob, not a correctness one), OpTimeout caps each blocking call so one
// slow user cannot stall a worker forever, and WindowLength is the size of
// the aggregation window ending at the most recent UTC midnight.
type Options struct {
	Workers      int
	OpTimeout    time.Duration
	WindowLength time.Duration
}

// ReportService drives report generation end to end.
//
// sender may be nil: that models the absence of a configured mail transport
// and resolves every delivery to EmailSkipped instead of an error.
type ReportService struct {
	db      *sql.DB
	repos   repomanager.RepositoryManager
	users   sources.UserSource
	events  sources.EventSource
	streaks sources.StreakSource
	blobs   blob.Store
	sender  mail.Sender
	logger  logging.Logger
	opts    Options

	now func() time.Time
}

func NewReportService(
	db *sql.DB,
	repos repomanager.RepositoryManager,
	users sources.UserSource,
	events sources.EventSource,
	streaks sources.StreakSource,
	blobs blob.Store,
	sender mail.Sender,
	logger logging.Logger,
	opts Options,
) *ReportService {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 30 * time.Second
	}
	if opts.WindowLength <= 0 {
		opts.WindowLength = 7 * 24 * time.Hour
	}
	return &ReportService{
		db:      db,
		repos:   repos,
		users:   users,
		events:  events,
		streaks: streaks,
		blobs:   blobs,
		sender:  sender,
		logger:  logger,
		opts:    opts,
		now:     time.Now,
	}
}

// currentWindow returns the half-open window [end-WindowLength, end) where
// end is the most recent UTC midnight. Re-running a batch on the same day
// therefore hits the same idempotency key.
func (s *ReportService) currentWindow() (time.Time, time.Time) {
	end := s.now().UTC().Truncate(24 * time.Hour)
	return end.Add(-s.opts.WindowLength), end
}

type userResult struct {
	userID   string
	delivery models.DeliveryStatus
	err      error
}

// RunBatch generates reports for every eligible user over a bounded worker
// pool. Per-user failures are classified and folded into the summary; they
// are never re-raised. The returned error covers only the user enumeration
// itself.
func (s *ReportService) RunBatch(ctx context.Context) (*models.BatchSummary, error) {
	start := s.now()

	fetchCtx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	users, err := s.users.ListEligibleUsers(fetchCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: listing eligible users: %v", common.ErrDataFetch, err)
	}

	s.logger.Info(ctx, "batch run started", "eligible_users", len(users), "workers", s.opts.Workers)

	jobs := make(chan *models.User)
	results := make(chan userResult)

	var wg sync.WaitGroup
	for i := 0; i < s.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range jobs {
				_, delivery, err := s.runForUser(ctx, u, false)
				results <- userResult{userID: u.ID, delivery: delivery, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, u := range users {
			select {
			case jobs <- u:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	// Single collector: the summary counters are touched by this goroutine
	// only, so no mutex is needed.
	summary := &models.BatchSummary{}
	for r := range results {
		switch {
		case r.err != nil:
			summary.Failed++
			summary.Errors = append(summary.Errors, models.BatchError{UserID: r.userID, Reason: r.err.Error()})
			s.logger.Error(ctx, "user pipeline failed", "user_id", r.userID, "error", r.err)
		case r.delivery == models.EmailFailed:
			summary.Succeeded++
			summary.DeliveryFailed++
			s.logger.Warn(ctx, "report stored but delivery failed", "user_id", r.userID)
		default:
			summary.Succeeded++
		}
	}

	s.logger.Info(ctx, "batch run finished",
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"delivery_failed", summary.DeliveryFailed,
		"duration", s.now().Sub(start).String())

	return summary, nil
}

// RunForUser runs the pipeline for a single user on demand and, unlike the
// batch path, propagates any failure to the caller. If a report already
// exists for the current window it is returned unchanged, except with force
// set, which re-attempts delivery of the existing report's fresh rendering.
func (s *ReportService) RunForUser(ctx context.Context, userID string, force bool) (*models.Report, error) {
	user, err := s.findEligibleUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	rep, _, err := s.runForUser(ctx, user, force)
	return rep, err
}

func (s *ReportService) findEligibleUser(ctx context.Context, userID string) (*models.User, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()

	users, err := s.users.ListEligibleUsers(fetchCtx)
	if err != nil {
		return nil, fmt.Errorf("%w: listing eligible users: %v", common.ErrDataFetch, err)
	}
	for _, u := range users {
		if u.ID == userID {
			return u, nil
		}
	}
	return nil, common.ErrorNotFound
}

// runForUser is the per-user pipeline. Stage order is fixed: fetch events,
// fetch streak, aggregate, render, store artifact, persist report, deliver.
// Nothing is persisted before the store stage; after it, delivery problems
// never roll the report back.
func (s *ReportService) runForUser(ctx context.Context, user *models.User, force bool) (*models.Report, models.DeliveryStatus, error) {
	windowStart, windowEnd := s.currentWindow()

	opCtx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	events, err := s.events.GetEvents(opCtx, user.ID, windowStart, windowEnd)
	cancel()
	if err != nil {
		return nil, "", fmt.Errorf("%w: events for user %s: %v", common.ErrDataFetch, user.ID, err)
	}

	opCtx, cancel = context.WithTimeout(ctx, s.opts.OpTimeout)
	streak, err := s.streaks.GetStreak(opCtx, user.ID)
	cancel()
	if err != nil {
		return nil, "", fmt.Errorf("%w: streak for user %s: %v", common.ErrDataFetch, user.ID, err)
	}

	topBiases := insights.Aggregate(events)

	artifact, err := report.Render(report.RenderParams{
		Name:          user.Name,
		WindowStart:   windowStart,
		WindowEnd:     windowEnd,
		SessionCount:  len(events),
		CurrentStreak: streak,
		TopBiases:     topBiases,
	})
	if err != nil {
		return nil, "", err
	}

	opCtx, cancel = context.WithTimeout(ctx, s.opts.OpTimeout)
	artifactRef, err := s.blobs.Store(opCtx, artifact)
	cancel()
	if err != nil {
		return nil, "", fmt.Errorf("storing artifact for user %s: %w", user.ID, err)
	}

	rep := &models.Report{
		ID:            uuid.NewString(),
		UserID:        user.ID,
		WindowStart:   windowStart,
		WindowEnd:     windowEnd,
		SessionCount:  len(events),
		CurrentStreak: streak,
		TopBiases:     topBiases,
		ArtifactRef:   artifactRef,
		CreatedAt:     s.now().UTC(),
	}

	// Insert and the conflict-path read run in one transaction so the row
	// returned is the one the (user_id, window_start) key actually holds.
	var stored *models.Report
	var created bool
	opCtx, cancel = context.WithTimeout(ctx, s.opts.OpTimeout)
	err = withTx(opCtx, s.db, nil, func(txCtx context.Context, tx dbx.DBTX) error {
		var txErr error
		stored, created, txErr = s.repos.Reports(tx).InsertIfAbsent(txCtx, rep)
		return txErr
	})
	cancel()
	if err != nil {
		return nil, "", fmt.Errorf("storing report for user %s: %w", user.ID, err)
	}
	if !created {
		// The window already has a report; the existing row keeps its own
		// artifact, so drop the one this run just uploaded.
		opCtx, cancel = context.WithTimeout(ctx, s.opts.OpTimeout)
		if delErr := s.blobs.Delete(opCtx, artifactRef); delErr != nil {
			s.logger.Warn(ctx, "failed to delete unreferenced artifact", "ref", artifactRef, "error", delErr)
		}
		cancel()
		if !force {
			s.logger.Debug(ctx, "report already exists for window", "user_id", user.ID, "window_start", windowStart)
			return stored, models.EmailSkipped, nil
		}
	}

	delivery := s.deliver(ctx, user, stored, artifact)
	return stored, delivery, nil
}

// deliver attempts to email the artifact. It returns the terminal delivery
// state and never fails the pipeline: the report is already stored.
func (s *ReportService) deliver(ctx context.Context, user *models.User, rep *models.Report, artifact []byte) models.DeliveryStatus {
	if s.sender == nil || user.Email == "" {
		return models.EmailSkipped
	}

	opCtx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	err := s.sender.Send(opCtx, mail.Message{
		To:         user.Email,
		Name:       user.Name,
		Subject:    deliverySubject(s.now()),
		HTMLBody:   deliveryBody(user.Name),
		Attachment: artifact,
		Filename:   "insight-report.pdf",
	})
	cancel()
	if err != nil {
		s.logger.Error(ctx, "report delivery failed", "user_id", user.ID, "report_id", rep.ID, "error", err)
		return models.EmailFailed
	}

	opCtx, cancel = context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()
	if err := s.repos.Reports(s.db).MarkDelivered(opCtx, rep.ID, s.now().UTC()); err != nil {
		s.logger.Error(ctx, "failed to mark report delivered", "report_id", rep.ID, "error", err)
	}
	return models.EmailSent
}

// ResendReport re-sends an already-stored report using the artifact saved in
// the blob store. The first successful delivery keeps its timestamp.
func (s *ReportService) ResendReport(ctx context.Context, userID, reportID string) error {
	if s.sender == nil {
		return common.ErrNoTransport
	}

	user, err := s.findEligibleUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.Email == "" {
		return common.ErrNoTransport
	}

	rep, err := s.repos.Reports(s.db).GetByID(ctx, userID, reportID)
	if err != nil {
		return err
	}

	opCtx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	artifact, err := s.blobs.Fetch(opCtx, rep.ArtifactRef)
	cancel()
	if err != nil {
		return fmt.Errorf("fetching artifact %s: %w", rep.ArtifactRef, err)
	}

	opCtx, cancel = context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()
	err = s.sender.Send(opCtx, mail.Message{
		To:         user.Email,
		Name:       user.Name,
		Subject:    deliverySubject(s.now()),
		HTMLBody:   deliveryBody(user.Name),
		Attachment: artifact,
		Filename:   "insight-report.pdf",
	})
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrDelivery, err)
	}

	return s.repos.Reports(s.db).MarkDelivered(ctx, rep.ID, s.now().UTC())
}

// GetReport returns one stored report owned by the user.
func (s *ReportService) GetReport(ctx context.Context, userID, reportID string) (*models.Report, error) {
	return s.repos.Reports(s.db).GetByID(ctx, userID, reportID)
}

// ListReports returns the user's reports, newest window first.
func (s *ReportService) ListReports(ctx context.Context, userID string, limit int) ([]*models.Report, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repos.Reports(s.db).ListByUser(ctx, userID, limit)
}

func deliverySubject(now time.Time) string {
	return fmt.Sprintf("Your Insight Report - %s", now.Format("Jan 2, 2006"))
}

func deliveryBody(name string) string {
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf(
		"<html><body><p>Hi %s,</p><p>Your personalized insight report is attached. "+
			"It covers the thought patterns that came up in your recent conversations.</p>"+
			"<p>Take a quiet minute with it.</p></body></html>", name)
}
