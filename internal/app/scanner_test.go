package app

import (
	"context"
	"testing"
	"time"
	_ "time/tzdata"

	"birthday_notification_service/internal/domain/occurrence"
	"birthday_notification_service/internal/domain/user"
	"birthday_notification_service/internal/schedule"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jakartaUser(id int64) *user.User {
	return &user.User{
		ID:        id,
		FirstName: "Udin",
		BirthDate: time.Date(1990, time.March, 15, 0, 0, 0, 0, time.UTC),
		TimeZone:  "Asia/Jakarta",
		Active:    true,
	}
}

func newScanner(users *fakeUserRepo, occs *fakeOccurrenceRepo, pub *fakePublisher, clock schedule.Clock) *ScannerService {
	resolver := &schedule.Resolver{TargetHour: 9, Grace: 24 * time.Hour, Policy: schedule.LeapDayFeb28}
	return NewScannerService(users, occs, NewEnqueuer(occs, pub), resolver, clock, testLogger(), time.Minute)
}

func TestScanner_CreatesThenEnqueuesAtTriggerInstant(t *testing.T) {
	users := newFakeUserRepo(jakartaUser(1))
	occs := newFakeOccurrenceRepo()
	pub := &fakePublisher{}
	// 08:30 Asia/Jakarta on the birthday: occurrence is created but the
	// 09:00 trigger instant (02:00 UTC) is still outside the horizon.
	clock := schedule.NewFakeClock(time.Date(2026, time.March, 15, 1, 30, 0, 0, time.UTC))
	s := newScanner(users, occs, pub, clock)

	report, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 0, report.Enqueued)
	assert.Equal(t, 0, pub.count())
	assert.Equal(t, occurrence.StatusPending, occs.status(1))

	// Re-scanning before the instant neither duplicates nor enqueues.
	report, err = s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Created)
	assert.Equal(t, 0, report.Enqueued)

	// At 09:00 local the fine-grained pass hands it to the queue.
	clock.Set(time.Date(2026, time.March, 15, 2, 0, 0, 0, time.UTC))
	report, err = s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Created)
	assert.Equal(t, 1, report.Enqueued)
	assert.Equal(t, 1, pub.count())
	assert.Equal(t, occurrence.StatusQueued, occs.status(1))

	// Idempotent across further cycles: exactly one message total.
	report, err = s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Enqueued)
	assert.Equal(t, 1, pub.count())
}

func TestScanner_RacingScannersEnqueueOnce(t *testing.T) {
	users := newFakeUserRepo(jakartaUser(1))
	occs := newFakeOccurrenceRepo()
	pub := &fakePublisher{}
	clock := schedule.NewFakeClock(time.Date(2026, time.March, 15, 2, 0, 0, 0, time.UTC))

	// Two replicas share the store and queue, as in a rolling deploy.
	s1 := newScanner(users, occs, pub, clock)
	s2 := newScanner(users, occs, pub, clock)

	r1, err := s1.Scan(context.Background())
	require.NoError(t, err)
	r2, err := s2.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, r1.Created+r2.Created, "unique insert must absorb the duplicate create")
	assert.Equal(t, 1, pub.count(), "only one replica may win the PENDING->QUEUED transition")
}

func TestScanner_LateRestartStillDeliversSameDay(t *testing.T) {
	users := newFakeUserRepo(jakartaUser(1))
	occs := newFakeOccurrenceRepo()
	pub := &fakePublisher{}
	// Process was down across 09:00 local; first scan happens at 11:00
	// Asia/Jakarta (04:00 UTC). The occurrence is created late, already
	// due, and enqueued in the same cycle.
	clock := schedule.NewFakeClock(time.Date(2026, time.March, 15, 4, 0, 0, 0, time.UTC))
	s := newScanner(users, occs, pub, clock)

	report, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.Enqueued)
	assert.Equal(t, occurrence.StatusQueued, occs.status(1))
}

func TestScanner_BadZoneIsIsolated(t *testing.T) {
	broken := &user.User{
		ID:        2,
		FirstName: "Ana",
		BirthDate: time.Date(1985, time.March, 15, 0, 0, 0, 0, time.UTC),
		TimeZone:  "Not/AZone",
		Active:    true,
	}
	users := newFakeUserRepo(jakartaUser(1), broken)
	occs := newFakeOccurrenceRepo()
	pub := &fakePublisher{}
	clock := schedule.NewFakeClock(time.Date(2026, time.March, 15, 2, 0, 0, 0, time.UTC))
	s := newScanner(users, occs, pub, clock)

	report, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.UserErrors, "bad zone fails closed for that user only")
	assert.Equal(t, 1, report.Created, "the healthy user is unaffected")
}

func TestScanner_NonBirthdayUsersProduceNothing(t *testing.T) {
	u := jakartaUser(1)
	u.BirthDate = time.Date(1990, time.July, 1, 0, 0, 0, 0, time.UTC)
	users := newFakeUserRepo(u)
	occs := newFakeOccurrenceRepo()
	pub := &fakePublisher{}
	clock := schedule.NewFakeClock(time.Date(2026, time.March, 15, 2, 0, 0, 0, time.UTC))
	s := newScanner(users, occs, pub, clock)

	report, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Created)
	assert.Equal(t, 0, pub.count())
}
