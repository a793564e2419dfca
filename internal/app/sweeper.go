// internal/app/sweeper.go
package app

import (
	"context"
	"fmt"
	"time"

	"birthday_notification_service/internal/domain/occurrence"
	"birthday_notification_service/internal/schedule"

	"github.com/sirupsen/logrus"
)

const sweepBatchLimit = 1000

// SweepReport summarizes one recovery pass for the status surface.
type SweepReport struct {
	DuePendingRequeued  int
	StaleQueuedRequeued int
}

// SweeperService is the downtime-recovery mechanism. On a coarse
// interval it re-enqueues occurrences that are due but never reached the
// queue (scanner crashed before enqueue, or the process was down at
// trigger time) and QUEUED occurrences whose message appears lost. Its
// first pass after a restart catches everything missed while down,
// without re-scanning the user set: occurrences, once created, are
// self-describing.
type SweeperService struct {
	occRepo    occurrence.Repository
	enqueuer   *Enqueuer
	clock      schedule.Clock
	logger     *logrus.Logger
	staleAfter time.Duration
}

func NewSweeperService(
	occRepo occurrence.Repository,
	enqueuer *Enqueuer,
	clock schedule.Clock,
	logger *logrus.Logger,
	staleAfter time.Duration,
) *SweeperService {
	if clock == nil {
		clock = schedule.RealClock{}
	}
	return &SweeperService{
		occRepo:    occRepo,
		enqueuer:   enqueuer,
		clock:      clock,
		logger:     logger,
		staleAfter: staleAfter,
	}
}

// Sweep runs one recovery pass. It is idempotent: requeued rows are
// marked QUEUED (or touched), so an immediate second pass finds nothing
// new to do.
func (s *SweeperService) Sweep(ctx context.Context) (SweepReport, error) {
	report := SweepReport{}
	now := s.clock.Now().UTC()

	due, err := s.occRepo.ListDuePending(ctx, now, sweepBatchLimit)
	if err != nil {
		return report, fmt.Errorf("failed to list due pending occurrences: %w", err)
	}
	for _, o := range due {
		if err := s.enqueuer.EnqueuePending(ctx, o); err != nil {
			return report, fmt.Errorf("failed to recover occurrence %d: %w", o.ID, err)
		}
		report.DuePendingRequeued++
	}

	stale, err := s.occRepo.ListStaleQueued(ctx, now.Add(-s.staleAfter), sweepBatchLimit)
	if err != nil {
		return report, fmt.Errorf("failed to list stale queued occurrences: %w", err)
	}
	for _, o := range stale {
		if err := s.enqueuer.RequeueStale(ctx, o); err != nil {
			return report, fmt.Errorf("failed to requeue stale occurrence %d: %w", o.ID, err)
		}
		report.StaleQueuedRequeued++
	}

	if report.DuePendingRequeued > 0 || report.StaleQueuedRequeued > 0 {
		s.logger.WithFields(logrus.Fields{
			"due_pending":  report.DuePendingRequeued,
			"stale_queued": report.StaleQueuedRequeued,
		}).Info("Recovery sweep requeued occurrences")
	}
	return report, nil
}
