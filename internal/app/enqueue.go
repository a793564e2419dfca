package app

import (
	"context"
	"errors"
	"fmt"

	"birthday_notification_service/internal/domain/occurrence"
	"birthday_notification_service/internal/domain/queue"
	idb "birthday_notification_service/internal/infra/database"

	"github.com/google/uuid"
)

// Enqueuer is the single publish path shared by the trigger scanner and
// the recovery sweeper. The ordering is deliberate: publish first, then
// record the transition. A crash in between leaves the row PENDING and
// the sweeper re-publishes it; the duplicate message is harmless because
// workers re-check status before delivering.
type Enqueuer struct {
	occRepo   occurrence.Repository
	publisher queue.Publisher
}

func NewEnqueuer(occRepo occurrence.Repository, publisher queue.Publisher) *Enqueuer {
	return &Enqueuer{occRepo: occRepo, publisher: publisher}
}

// EnqueuePending publishes a due PENDING occurrence and marks it QUEUED.
// A status conflict on the mark means another replica already queued it;
// that race is absorbed, not reported.
func (e *Enqueuer) EnqueuePending(ctx context.Context, o *occurrence.Occurrence) error {
	if err := e.publish(ctx, o); err != nil {
		return err
	}
	if err := e.occRepo.MarkQueued(ctx, o.ID); err != nil {
		if errors.Is(err, idb.ErrStatusConflict) {
			return nil
		}
		return fmt.Errorf("marking occurrence %d queued: %w", o.ID, err)
	}
	return nil
}

// RequeueStale re-publishes a QUEUED occurrence whose message appears
// lost, and touches updated_at so the staleness clock restarts. The
// status stays QUEUED; only the queue message is refreshed.
func (e *Enqueuer) RequeueStale(ctx context.Context, o *occurrence.Occurrence) error {
	if err := e.publish(ctx, o); err != nil {
		return err
	}
	if err := e.occRepo.TouchQueued(ctx, o.ID); err != nil {
		if errors.Is(err, idb.ErrStatusConflict) {
			return nil // reached a terminal state since we listed it
		}
		return fmt.Errorf("touching occurrence %d: %w", o.ID, err)
	}
	return nil
}

func (e *Enqueuer) publish(ctx context.Context, o *occurrence.Occurrence) error {
	msg := queue.Message{
		OccurrenceID:  o.ID,
		UserID:        o.UserID,
		EventKind:     o.EventKind,
		CorrelationID: uuid.NewString(),
	}
	if err := e.publisher.Publish(ctx, msg); err != nil {
		return fmt.Errorf("publishing occurrence %d: %w", o.ID, err)
	}
	return nil
}
