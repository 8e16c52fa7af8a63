package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/insightly/internal/common"
	"github.com/dmitrijs2005/insightly/internal/dbx"
	"github.com/dmitrijs2005/insightly/internal/logging"
	"github.com/dmitrijs2005/insightly/internal/server/blob"
	"github.com/dmitrijs2005/insightly/internal/server/mail"
	"github.com/dmitrijs2005/insightly/internal/server/models"
	"github.com/dmitrijs2005/insightly/internal/server/repositories/reports"
	"github.com/stretchr/testify/require"
)

// memReportRepo is an in-memory reports.Repository keyed by
// (user_id, window_start), safe for the batch worker pool.
type memReportRepo struct {
	mu     sync.Mutex
	byKey  map[string]*models.Report
	byID   map[string]*models.Report
	markAt map[string]time.Time
}

func newMemReportRepo() *memReportRepo {
	return &memReportRepo{
		byKey:  map[string]*models.Report{},
		byID:   map[string]*models.Report{},
		markAt: map[string]time.Time{},
	}
}

func key(userID string, windowStart time.Time) string {
	return userID + "|" + windowStart.UTC().Format(time.RFC3339)
}

func (m *memReportRepo) InsertIfAbsent(ctx context.Context, r *models.Report) (*models.Report, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(r.UserID, r.WindowStart)
	if existing, ok := m.byKey[k]; ok {
		return existing, false, nil
	}
	cp := *r
	m.byKey[k] = &cp
	m.byID[r.ID] = &cp
	return &cp, true, nil
}

func (m *memReportRepo) MarkDelivered(ctx context.Context, reportID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[reportID]
	if !ok {
		return common.ErrorNotFound
	}
	if r.EmailSentAt == nil {
		t := at
		r.EmailSentAt = &t
	}
	return nil
}

func (m *memReportRepo) GetByID(ctx context.Context, userID, reportID string) (*models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[reportID]
	if !ok || r.UserID != userID {
		return nil, common.ErrorNotFound
	}
	return r, nil
}

func (m *memReportRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Report
	for _, r := range m.byID {
		if r.UserID == userID && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memReportRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

// repoManagerAdapter satisfies repomanager.RepositoryManager with the
// in-memory repository.
type repoManagerAdapter struct{ repo *memReportRepo }

func (a *repoManagerAdapter) Reports(db dbx.DBTX) reports.Repository { return a.repo }

func (a *repoManagerAdapter) RunMigrations(ctx context.Context, db *sql.DB) error { return nil }

type fakeUsers struct{ users []*models.User }

func (f *fakeUsers) ListEligibleUsers(ctx context.Context) ([]*models.User, error) {
	return f.users, nil
}

type fakeEvents struct {
	events   map[string][]*models.ConversationEvent
	failFor  map[string]bool
	blockFor map[string]bool
}

func (f *fakeEvents) GetEvents(ctx context.Context, userID string, start, end time.Time) ([]*models.ConversationEvent, error) {
	if f.blockFor[userID] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.failFor[userID] {
		return nil, errors.New("event source unreachable")
	}
	return f.events[userID], nil
}

type fakeStreaks struct{ streaks map[string]int }

func (f *fakeStreaks) GetStreak(ctx context.Context, userID string) (int, error) {
	return f.streaks[userID], nil
}

type fakeSender struct {
	mu      sync.Mutex
	sent    []mail.Message
	failFor map[string]bool
}

func (f *fakeSender) Send(ctx context.Context, msg mail.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[msg.To] {
		return errors.New("bounce")
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// stubTx replaces the transaction helper so the in-memory repository can be
// used without a database handle.
func stubTx(t *testing.T) {
	t.Helper()
	orig := withTx
	withTx = func(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(context.Context, dbx.DBTX) error) error {
		return fn(ctx, db)
	}
	t.Cleanup(func() { withTx = orig })
}

type fixture struct {
	svc    *ReportService
	repo   *memReportRepo
	sender *fakeSender
	events *fakeEvents
	blobs  *blob.MemoryStore
}

func fptr(v float64) *float64 { return &v }

func newFixture(t *testing.T, users []*models.User, sender mail.Sender) *fixture {
	t.Helper()
	stubTx(t)

	repo := newMemReportRepo()
	ev := &fakeEvents{events: map[string][]*models.ConversationEvent{}, failFor: map[string]bool{}}
	blobs := blob.NewMemoryStore()
	fs, _ := sender.(*fakeSender)

	svc := NewReportService(
		nil,
		&repoManagerAdapter{repo: repo},
		&fakeUsers{users: users},
		ev,
		&fakeStreaks{streaks: map[string]int{}},
		blobs,
		sender,
		testLogger(),
		Options{Workers: 4, OpTimeout: 5 * time.Second},
	)
	svc.now = func() time.Time { return time.Date(2025, 6, 9, 8, 0, 0, 0, time.UTC) }

	return &fixture{svc: svc, repo: repo, sender: fs, events: ev, blobs: blobs}
}

func TestRunForUser_CreatesAndDeliversReport(t *testing.T) {
	user := &models.User{ID: "u1", Tier: "premium", Email: "u1@example.com", Name: "Ann"}
	sender := &fakeSender{failFor: map[string]bool{}}
	f := newFixture(t, []*models.User{user}, sender)
	f.events.events["u1"] = []*models.ConversationEvent{
		{UserID: "u1", Detections: []models.BiasDetection{
			{Name: "Catastrophizing", Confidence: fptr(0.9)},
			{Name: "MindReading", Intensity: fptr(30)},
		}},
		{UserID: "u1", Detections: []models.BiasDetection{
			{Name: "Catastrophizing", Confidence: fptr(0.7)},
		}},
	}

	rep, err := f.svc.RunForUser(context.Background(), "u1", false)
	require.NoError(t, err)

	require.Equal(t, "u1", rep.UserID)
	require.Equal(t, 2, rep.SessionCount)
	require.Equal(t, []models.BiasAggregate{
		{Name: "Catastrophizing", Count: 2, AvgIntensity: 80},
		{Name: "MindReading", Count: 1, AvgIntensity: 30},
	}, rep.TopBiases)
	require.True(t, rep.WindowStart.Before(rep.WindowEnd))
	require.NotEmpty(t, rep.ArtifactRef)
	require.Equal(t, 1, sender.sentCount())

	stored, err := f.svc.GetReport(context.Background(), "u1", rep.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.EmailSentAt, "successful delivery must set email_sent_at")
}

func TestRunForUser_SecondCallReturnsExisting(t *testing.T) {
	user := &models.User{ID: "u1", Tier: "premium", Email: "u1@example.com"}
	sender := &fakeSender{failFor: map[string]bool{}}
	f := newFixture(t, []*models.User{user}, sender)

	first, err := f.svc.RunForUser(context.Background(), "u1", false)
	require.NoError(t, err)

	second, err := f.svc.RunForUser(context.Background(), "u1", false)
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID, "same window must yield the same report")
	require.Equal(t, 1, f.repo.count(), "exactly one row per (user, window)")
	require.Equal(t, 1, sender.sentCount(), "no re-delivery without force")
}

func TestRunForUser_UnknownUser(t *testing.T) {
	f := newFixture(t, nil, &fakeSender{failFor: map[string]bool{}})

	_, err := f.svc.RunForUser(context.Background(), "ghost", false)
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestRunForUser_EmptyWindowStillProducesReport(t *testing.T) {
	user := &models.User{ID: "u1", Tier: "pro"}
	f := newFixture(t, []*models.User{user}, &fakeSender{failFor: map[string]bool{}})

	rep, err := f.svc.RunForUser(context.Background(), "u1", false)
	require.NoError(t, err)
	require.Zero(t, rep.SessionCount)
	require.Empty(t, rep.TopBiases)
	require.NotEmpty(t, rep.ArtifactRef, "empty window still renders an artifact")
}

func TestRunBatch_IsolatesPerUserFailures(t *testing.T) {
	users := []*models.User{
		{ID: "u1", Tier: "premium", Email: "u1@example.com"},
		{ID: "u2", Tier: "premium", Email: "u2@example.com"},
		{ID: "u3", Tier: "premium", Email: "u3@example.com"},
	}
	sender := &fakeSender{failFor: map[string]bool{}}
	f := newFixture(t, users, sender)
	f.events.failFor["u2"] = true

	summary, err := f.svc.RunBatch(context.Background())
	require.NoError(t, err)

	require.Equal(t, 2, summary.Succeeded)
	require.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Errors, 1)
	require.Equal(t, "u2", summary.Errors[0].UserID)
	require.Equal(t, 2, f.repo.count(), "no report row for the failed user")
}

func TestRunBatch_FiftyUsersTwoFailures(t *testing.T) {
	var users []*models.User
	for i := 0; i < 50; i++ {
		users = append(users, &models.User{
			ID:    fmt.Sprintf("u%02d", i),
			Tier:  "premium",
			Email: fmt.Sprintf("u%02d@example.com", i),
		})
	}
	sender := &fakeSender{failFor: map[string]bool{}}
	f := newFixture(t, users, sender)
	f.events.failFor["u07"] = true
	f.events.failFor["u33"] = true

	summary, err := f.svc.RunBatch(context.Background())
	require.NoError(t, err)

	require.Equal(t, 48, summary.Succeeded)
	require.Equal(t, 2, summary.Failed)
	require.Equal(t, 48, f.repo.count())
}

func TestRunBatch_DeliveryFailureIsNotPipelineFailure(t *testing.T) {
	users := []*models.User{{ID: "u1", Tier: "premium", Email: "u1@example.com"}}
	sender := &fakeSender{failFor: map[string]bool{"u1@example.com": true}}
	f := newFixture(t, users, sender)

	summary, err := f.svc.RunBatch(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, summary.Succeeded)
	require.Equal(t, 0, summary.Failed)
	require.Equal(t, 1, summary.DeliveryFailed)
	require.Equal(t, 1, f.repo.count(), "report survives delivery failure")

	reports, err := f.svc.ListReports(context.Background(), "u1", 10)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	require.Nil(t, reports[0].EmailSentAt)
}

func TestRunBatch_NoTransportSkipsDelivery(t *testing.T) {
	users := []*models.User{{ID: "u1", Tier: "premium", Email: "u1@example.com"}}

	stubTx(t)
	repo := newMemReportRepo()
	svc := NewReportService(
		nil,
		&repoManagerAdapter{repo: repo},
		&fakeUsers{users: users},
		&fakeEvents{events: map[string][]*models.ConversationEvent{}, failFor: map[string]bool{}},
		&fakeStreaks{streaks: map[string]int{}},
		blob.NewMemoryStore(),
		nil, // no transport configured
		testLogger(),
		Options{},
	)

	summary, err := svc.RunBatch(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, summary.Succeeded)
	require.Zero(t, summary.DeliveryFailed, "absent transport is skipped, not failed")
	require.Equal(t, 1, repo.count())
}

func TestResendReport_DeliversStoredArtifact(t *testing.T) {
	user := &models.User{ID: "u1", Tier: "premium", Email: "u1@example.com"}
	sender := &fakeSender{failFor: map[string]bool{"u1@example.com": true}}
	f := newFixture(t, []*models.User{user}, sender)

	rep, err := f.svc.RunForUser(context.Background(), "u1", false)
	require.NoError(t, err)

	stored, err := f.svc.GetReport(context.Background(), "u1", rep.ID)
	require.NoError(t, err)
	require.Nil(t, stored.EmailSentAt)

	// The bounce clears; the retry must reuse the stored artifact.
	sender.failFor["u1@example.com"] = false
	require.NoError(t, f.svc.ResendReport(context.Background(), "u1", rep.ID))

	stored, err = f.svc.GetReport(context.Background(), "u1", rep.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.EmailSentAt)
	require.Equal(t, 1, sender.sentCount())
	require.Equal(t, "%PDF", string(sender.sent[0].Attachment[:4]))
}

func TestResendReport_NoTransport(t *testing.T) {
	user := &models.User{ID: "u1", Tier: "premium", Email: "u1@example.com"}
	repo := newMemReportRepo()
	svc := NewReportService(
		nil,
		&repoManagerAdapter{repo: repo},
		&fakeUsers{users: []*models.User{user}},
		&fakeEvents{events: map[string][]*models.ConversationEvent{}, failFor: map[string]bool{}},
		&fakeStreaks{streaks: map[string]int{}},
		blob.NewMemoryStore(),
		nil,
		testLogger(),
		Options{},
	)

	err := svc.ResendReport(context.Background(), "u1", "r1")
	require.ErrorIs(t, err, common.ErrNoTransport)
}

func TestRunForUser_StoresReportTransactionally(t *testing.T) {
	user := &models.User{ID: "u1", Tier: "premium", Email: "u1@example.com"}
	f := newFixture(t, []*models.User{user}, &fakeSender{failFor: map[string]bool{}})

	calls := 0
	withTx = func(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(context.Context, dbx.DBTX) error) error {
		calls++
		return fn(ctx, db)
	}

	_, err := f.svc.RunForUser(context.Background(), "u1", false)
	require.NoError(t, err)
	require.Equal(t, 1, calls, "insert and conflict read must share one transaction")
}

func TestRunForUser_RerunLeavesNoOrphanArtifact(t *testing.T) {
	user := &models.User{ID: "u1", Tier: "premium", Email: "u1@example.com"}
	f := newFixture(t, []*models.User{user}, &fakeSender{failFor: map[string]bool{}})

	_, err := f.svc.RunForUser(context.Background(), "u1", false)
	require.NoError(t, err)
	require.Equal(t, 1, f.blobs.Len())

	_, err = f.svc.RunForUser(context.Background(), "u1", false)
	require.NoError(t, err)
	require.Equal(t, 1, f.blobs.Len(), "re-run must not leave an unreferenced artifact behind")
}

func TestRunBatch_SlowUserTimesOutWithoutStallingOthers(t *testing.T) {
	users := []*models.User{
		{ID: "u1", Tier: "premium", Email: "u1@example.com"},
		{ID: "u2", Tier: "premium", Email: "u2@example.com"},
	}

	stubTx(t)
	repo := newMemReportRepo()
	ev := &fakeEvents{
		events:   map[string][]*models.ConversationEvent{},
		failFor:  map[string]bool{},
		blockFor: map[string]bool{"u1": true},
	}
	sender := &fakeSender{failFor: map[string]bool{}}
	svc := NewReportService(
		nil,
		&repoManagerAdapter{repo: repo},
		&fakeUsers{users: users},
		ev,
		&fakeStreaks{streaks: map[string]int{}},
		blob.NewMemoryStore(),
		sender,
		testLogger(),
		Options{Workers: 2, OpTimeout: 50 * time.Millisecond},
	)
	svc.now = func() time.Time { return time.Date(2025, 6, 9, 8, 0, 0, 0, time.UTC) }

	start := time.Now()
	summary, err := svc.RunBatch(context.Background())
	require.NoError(t, err)
	require.Less(t, time.Since(start), 5*time.Second, "timed-out user must release its worker")

	require.Equal(t, 1, summary.Succeeded)
	require.Equal(t, 1, summary.Failed)
	require.Equal(t, "u1", summary.Errors[0].UserID)
	require.Contains(t, summary.Errors[0].Reason, "context deadline exceeded")
	require.Equal(t, 1, repo.count(), "the healthy user's report must still land")
}

func TestCurrentWindow_HalfOpenWeek(t *testing.T) {
	f := newFixture(t, nil, &fakeSender{failFor: map[string]bool{}})

	start, end := f.svc.currentWindow()
	require.Equal(t, time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC), end)
	require.Equal(t, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), start)
}
