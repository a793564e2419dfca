package scheduler

import (
	"context"
	"time"

	"birthday_notification_service/internal/app"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// CycleScheduler drives the periodic cycles: the fine-grained trigger
// scan, the coarse recovery sweep, and the operator status snapshot.
// Cycles are idempotent, so overlapping or duplicated runs across
// replicas are harmless.
type CycleScheduler struct {
	cronEngine *cron.Cron
	scanner    *app.ScannerService
	sweeper    *app.SweeperService
	status     *app.StatusService
	logger     *logrus.Logger

	specScan   string
	specSweep  string
	specStatus string
}

func NewCycleScheduler(
	scanner *app.ScannerService,
	sweeper *app.SweeperService,
	status *app.StatusService,
	logger *logrus.Logger,
	specScan string, // e.g. "* * * * *" (every minute)
	specSweep string, // e.g. "*/10 * * * *" (every 10 minutes)
	specStatus string, // e.g. "*/5 * * * *"
) *CycleScheduler {
	return &CycleScheduler{
		// All trigger computation is UTC-anchored; per-user zones are
		// resolved inside the scan, never by cron.
		cronEngine: cron.New(cron.WithLocation(time.UTC)),
		scanner:    scanner,
		sweeper:    sweeper,
		status:     status,
		logger:     logger,
		specScan:   specScan,
		specSweep:  specSweep,
		specStatus: specStatus,
	}
}

func (s *CycleScheduler) Start() error {
	if _, err := s.cronEngine.AddFunc(s.specScan, s.runScan); err != nil {
		return err
	}
	if _, err := s.cronEngine.AddFunc(s.specSweep, s.runSweep); err != nil {
		return err
	}
	if _, err := s.cronEngine.AddFunc(s.specStatus, s.runStatus); err != nil {
		return err
	}
	s.cronEngine.Start()
	s.logger.Info("Cycle scheduler started (scan, sweep, status)")
	return nil
}

func (s *CycleScheduler) runScan() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	report, err := s.scanner.Scan(ctx)
	if err != nil {
		// Cycle-level failures are retried on the next tick, not escalated.
		s.logger.Errorf("Scan cycle failed: %v", err)
		return
	}
	if report.Created > 0 || report.Enqueued > 0 || report.UserErrors > 0 {
		s.logger.WithFields(logrus.Fields{
			"users_scanned": report.UsersScanned,
			"created":       report.Created,
			"enqueued":      report.Enqueued,
			"user_errors":   report.UserErrors,
		}).Info("Scan cycle completed")
	}
}

func (s *CycleScheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if _, err := s.sweeper.Sweep(ctx); err != nil {
		s.logger.Errorf("Recovery sweep failed: %v", err)
	}
}

func (s *CycleScheduler) runStatus() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := s.status.LogSnapshot(ctx); err != nil {
		s.logger.Errorf("Status snapshot failed: %v", err)
	}
}

func (s *CycleScheduler) Stop() {
	s.logger.Info("Stopping cycle scheduler...")
	ctx := s.cronEngine.Stop() // Stops new runs, waits for running jobs.
	<-ctx.Done()               // Wait for graceful shutdown
	s.logger.Info("Cycle scheduler stopped")
}
