package app

import (
	"context"
	"testing"
	"time"

	"birthday_notification_service/internal/domain/occurrence"
	"birthday_notification_service/internal/schedule"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSweeper(occs *fakeOccurrenceRepo, pub *fakePublisher, clock schedule.Clock) *SweeperService {
	occs.nowFn = clock.Now // keep row timestamps on the test clock
	return NewSweeperService(occs, NewEnqueuer(occs, pub), clock, testLogger(), 15*time.Minute)
}

func TestSweeper_RecoversDuePendingAfterDowntime(t *testing.T) {
	occs := newFakeOccurrenceRepo()
	pub := &fakePublisher{}
	now := time.Date(2026, time.March, 15, 4, 0, 0, 0, time.UTC)
	clock := schedule.NewFakeClock(now)

	// Created before the crash, never enqueued: scheduled 09:00 Jakarta
	// (02:00 UTC), found two hours overdue at restart.
	occs.seed(&occurrence.Occurrence{
		UserID:          1,
		EventKind:       occurrence.KindBirthday,
		OccurrenceDate:  time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC),
		ScheduledForUTC: time.Date(2026, time.March, 15, 2, 0, 0, 0, time.UTC),
		Status:          occurrence.StatusPending,
	})

	s := newSweeper(occs, pub, clock)
	report, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.DuePendingRequeued)
	assert.Equal(t, 1, pub.count())
	assert.Equal(t, occurrence.StatusQueued, occs.status(1))
}

func TestSweeper_SecondPassIsIdempotent(t *testing.T) {
	occs := newFakeOccurrenceRepo()
	pub := &fakePublisher{}
	now := time.Date(2026, time.March, 15, 4, 0, 0, 0, time.UTC)
	clock := schedule.NewFakeClock(now)

	occs.seed(&occurrence.Occurrence{
		UserID:          1,
		EventKind:       occurrence.KindBirthday,
		OccurrenceDate:  time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC),
		ScheduledForUTC: now.Add(-time.Hour),
		Status:          occurrence.StatusPending,
	})

	s := newSweeper(occs, pub, clock)
	_, err := s.Sweep(context.Background())
	require.NoError(t, err)

	report, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.DuePendingRequeued)
	assert.Equal(t, 0, report.StaleQueuedRequeued)
	assert.Equal(t, 1, pub.count(), "no new enqueue on an unchanged state")
}

func TestSweeper_ReclaimsStaleQueued(t *testing.T) {
	occs := newFakeOccurrenceRepo()
	pub := &fakePublisher{}
	now := time.Date(2026, time.March, 15, 4, 0, 0, 0, time.UTC)
	clock := schedule.NewFakeClock(now)

	// QUEUED 20 minutes ago and never delivered: the message is presumed
	// lost and must be re-published without a status change.
	occs.seed(&occurrence.Occurrence{
		UserID:          1,
		EventKind:       occurrence.KindBirthday,
		OccurrenceDate:  time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC),
		ScheduledForUTC: now.Add(-time.Hour),
		Status:          occurrence.StatusQueued,
		UpdatedAt:       now.Add(-20 * time.Minute),
	})

	s := newSweeper(occs, pub, clock)
	report, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.StaleQueuedRequeued)
	assert.Equal(t, 1, pub.count())
	assert.Equal(t, occurrence.StatusQueued, occs.status(1))

	// The touch restarted the staleness clock: nothing on a second pass.
	report, err = s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.StaleQueuedRequeued)
	assert.Equal(t, 1, pub.count())
}

func TestSweeper_FreshQueuedIsLeftAlone(t *testing.T) {
	occs := newFakeOccurrenceRepo()
	pub := &fakePublisher{}
	now := time.Date(2026, time.March, 15, 4, 0, 0, 0, time.UTC)
	clock := schedule.NewFakeClock(now)

	occs.seed(&occurrence.Occurrence{
		UserID:          1,
		EventKind:       occurrence.KindBirthday,
		OccurrenceDate:  time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC),
		ScheduledForUTC: now.Add(-time.Minute),
		Status:          occurrence.StatusQueued,
		UpdatedAt:       now.Add(-time.Minute),
	})

	s := newSweeper(occs, pub, clock)
	report, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.StaleQueuedRequeued)
	assert.Equal(t, 0, pub.count())
}

func TestSweeper_TerminalRowsAreNeverTouched(t *testing.T) {
	occs := newFakeOccurrenceRepo()
	pub := &fakePublisher{}
	now := time.Date(2026, time.March, 15, 4, 0, 0, 0, time.UTC)
	clock := schedule.NewFakeClock(now)

	occs.seed(&occurrence.Occurrence{
		UserID:          1,
		EventKind:       occurrence.KindBirthday,
		OccurrenceDate:  time.Date(2026, time.March, 14, 0, 0, 0, 0, time.UTC),
		ScheduledForUTC: now.Add(-25 * time.Hour),
		Status:          occurrence.StatusSent,
		UpdatedAt:       now.Add(-25 * time.Hour),
	})
	occs.seed(&occurrence.Occurrence{
		UserID:          2,
		EventKind:       occurrence.KindBirthday,
		OccurrenceDate:  time.Date(2026, time.March, 14, 0, 0, 0, 0, time.UTC),
		ScheduledForUTC: now.Add(-25 * time.Hour),
		Status:          occurrence.StatusFailedPermanent,
		UpdatedAt:       now.Add(-25 * time.Hour),
	})

	s := newSweeper(occs, pub, clock)
	report, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.DuePendingRequeued)
	assert.Equal(t, 0, report.StaleQueuedRequeued)
	assert.Equal(t, 0, pub.count())
}
