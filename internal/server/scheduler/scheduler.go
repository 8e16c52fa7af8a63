// Package scheduler fires the batch runner on a fixed cadence in a
// configured timezone. A single-run lock guarantees that ticks never
// overlap: if a batch is still in flight when the next tick arrives, that
// tick is logged and dropped, never queued.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/insightly/internal/logging"
	"github.com/dmitrijs2005/insightly/internal/server/models"
	"github.com/robfig/cron/v3"
)

// BatchRunner is the slice of the orchestrator the scheduler needs.
type BatchRunner interface {
	RunBatch(ctx context.Context) (*models.BatchSummary, error)
}

// Scheduler owns the process-wide "is a batch running" state. It is created
// stopped; Start begins ticking and Stop waits for a running tick to finish.
type Scheduler struct {
	cron    *cron.Cron
	runner  BatchRunner
	logger  logging.Logger
	running sync.Mutex
}

// New builds a scheduler for the given cron spec (standard 5-field format)
// and location.
func New(spec string, loc *time.Location, runner BatchRunner, logger logging.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(cron.WithLocation(loc)),
		runner: runner,
		logger: logger,
	}
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, err
	}
	return s, nil
}

// tick runs one batch if no other batch is in flight; otherwise it skips.
// Lock acquisition failure is non-fatal.
func (s *Scheduler) tick() {
	if !s.running.TryLock() {
		s.logger.Warn(context.Background(), "previous batch run still in flight, skipping tick")
		return
	}
	defer s.running.Unlock()

	ctx := context.Background()
	summary, err := s.runner.RunBatch(ctx)
	if err != nil {
		s.logger.Error(ctx, "scheduled batch run failed", "error", err)
		return
	}
	s.logger.Info(ctx, "scheduled batch run complete",
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"delivery_failed", summary.DeliveryFailed)
}

// Start begins firing ticks.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the cadence and waits for an in-flight tick to finish, or for
// ctx to expire, whichever comes first.
func (s *Scheduler) Stop(ctx context.Context) {
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
	}
}
