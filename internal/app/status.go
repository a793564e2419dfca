// internal/app/status.go
package app

import (
	"context"
	"fmt"

	"birthday_notification_service/internal/domain/occurrence"

	"github.com/sirupsen/logrus"
)

// StatusSnapshot is the operator-facing view: occurrence population per
// status plus the breaker state. External observability tooling consumes
// the logged form; nothing here emits metrics directly.
type StatusSnapshot struct {
	Pending         int
	Queued          int
	Sent            int
	FailedPermanent int
	BreakerState    BreakerState
}

// StatusService assembles and logs the periodic status snapshot.
type StatusService struct {
	occRepo occurrence.Repository
	breaker *Breaker
	logger  *logrus.Logger
}

func NewStatusService(occRepo occurrence.Repository, breaker *Breaker, logger *logrus.Logger) *StatusService {
	return &StatusService{occRepo: occRepo, breaker: breaker, logger: logger}
}

func (s *StatusService) Snapshot(ctx context.Context) (StatusSnapshot, error) {
	counts, err := s.occRepo.CountByStatus(ctx)
	if err != nil {
		return StatusSnapshot{}, fmt.Errorf("failed to count occurrences: %w", err)
	}
	return StatusSnapshot{
		Pending:         counts[occurrence.StatusPending],
		Queued:          counts[occurrence.StatusQueued],
		Sent:            counts[occurrence.StatusSent],
		FailedPermanent: counts[occurrence.StatusFailedPermanent],
		BreakerState:    s.breaker.State(),
	}, nil
}

// LogSnapshot is the cron entry point for the status cycle.
func (s *StatusService) LogSnapshot(ctx context.Context) error {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{
		"pending":          snap.Pending,
		"queued":           snap.Queued,
		"sent":             snap.Sent,
		"failed_permanent": snap.FailedPermanent,
		"breaker":          snap.BreakerState,
	}).Info("Occurrence status snapshot")
	return nil
}
