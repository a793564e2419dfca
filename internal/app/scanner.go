// internal/app/scanner.go
package app

import (
	"context"
	"fmt"
	"time"

	"birthday_notification_service/internal/domain/occurrence"
	"birthday_notification_service/internal/domain/user"
	"birthday_notification_service/internal/schedule"

	"github.com/sirupsen/logrus"
)

const enqueueBatchLimit = 500

// ScanReport summarizes one scan cycle for the status surface.
type ScanReport struct {
	UsersScanned int
	Created      int
	Enqueued     int
	UserErrors   int
}

// ScannerService walks the active user set once per cycle, creates
// today's occurrence for every user whose event date it is, and publishes
// the occurrences that are due within the enqueue horizon.
//
// Multiple replicas may scan simultaneously: correctness rests entirely on
// the store's insert-if-absent semantics, so a duplicate creation attempt
// is silently absorbed.
type ScannerService struct {
	userRepo user.Repository
	occRepo  occurrence.Repository
	enqueuer *Enqueuer
	resolver *schedule.Resolver
	clock    schedule.Clock
	logger   *logrus.Logger
	horizon  time.Duration
}

func NewScannerService(
	userRepo user.Repository,
	occRepo occurrence.Repository,
	enqueuer *Enqueuer,
	resolver *schedule.Resolver,
	clock schedule.Clock,
	logger *logrus.Logger,
	horizon time.Duration,
) *ScannerService {
	if clock == nil {
		clock = schedule.RealClock{}
	}
	return &ScannerService{
		userRepo: userRepo,
		occRepo:  occRepo,
		enqueuer: enqueuer,
		resolver: resolver,
		clock:    clock,
		logger:   logger,
		horizon:  horizon,
	}
}

// Scan runs one trigger cycle. Per-user resolution errors are isolated:
// one bad zone never blocks the rest of the scan. A store or queue
// failure aborts the cycle with an error; the next cron tick retries it.
func (s *ScannerService) Scan(ctx context.Context) (ScanReport, error) {
	report := ScanReport{}
	nowUTC := s.clock.Now().UTC()

	activeUsers, err := s.userRepo.ListActive(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list active users: %w", err)
	}
	report.UsersScanned = len(activeUsers)

	for _, u := range activeUsers {
		if err := s.scanUser(ctx, u, nowUTC, &report); err != nil {
			report.UserErrors++
			s.logger.WithFields(logrus.Fields{
				"user_id":   u.ID,
				"time_zone": u.TimeZone,
			}).Warnf("Skipping user in scan cycle: %v", err)
		}
	}

	enqueued, err := s.enqueueDue(ctx, nowUTC)
	report.Enqueued = enqueued
	if err != nil {
		return report, err
	}
	return report, nil
}

func (s *ScannerService) scanUser(ctx context.Context, u *user.User, nowUTC time.Time, report *ScanReport) error {
	loc, err := schedule.LoadZone(u.TimeZone)
	if err != nil {
		// Data-quality condition owned by the registry: fail closed on
		// this user, keep scanning the others.
		return err
	}

	res, due := s.resolver.Resolve(u.BirthDate.Month(), u.BirthDate.Day(), loc, nowUTC)
	if !due {
		return nil
	}

	occ := &occurrence.Occurrence{
		UserID:          u.ID,
		EventKind:       occurrence.KindBirthday,
		OccurrenceDate:  res.OccurrenceDate,
		ScheduledForUTC: res.ScheduledForUTC,
	}
	created, err := s.occRepo.CreateIfAbsent(ctx, occ)
	if err != nil {
		return fmt.Errorf("failed to create occurrence: %w", err)
	}
	if created {
		report.Created++
		s.logger.WithFields(logrus.Fields{
			"user_id":         u.ID,
			"occurrence_id":   occ.ID,
			"occurrence_date": res.OccurrenceDate.Format("2006-01-02"),
			"scheduled_for":   res.ScheduledForUTC.Format(time.RFC3339),
		}).Info("Occurrence created")
	}
	return nil
}

// enqueueDue is the fine-grained enqueue pass: occurrences created earlier
// in the day become due as their scheduled instant arrives, and this scan
// hands them to the dispatch queue at the right moment.
func (s *ScannerService) enqueueDue(ctx context.Context, nowUTC time.Time) (int, error) {
	due, err := s.occRepo.ListDuePending(ctx, nowUTC.Add(s.horizon), enqueueBatchLimit)
	if err != nil {
		return 0, fmt.Errorf("failed to list due occurrences: %w", err)
	}

	enqueued := 0
	for _, o := range due {
		if err := s.enqueuer.EnqueuePending(ctx, o); err != nil {
			// Queue trouble affects the whole cycle; report it and let the
			// next tick retry the remainder.
			return enqueued, fmt.Errorf("failed to enqueue occurrence %d: %w", o.ID, err)
		}
		enqueued++
	}
	return enqueued, nil
}
