// internal/app/dispatch.go
package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"birthday_notification_service/internal/domain/delivery"
	"birthday_notification_service/internal/domain/occurrence"
	"birthday_notification_service/internal/domain/queue"
	"birthday_notification_service/internal/domain/user"
	idb "birthday_notification_service/internal/infra/database"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// DispatchConfig tunes the worker pool and its retry policy.
type DispatchConfig struct {
	Workers         int
	RetryMax        int // total delivery attempts per occurrence
	RetryBaseDelay  time.Duration
	RetryMaxDelay   time.Duration
	RetryJitter     float64 // 0.2 = ±20%
	DeliveryTimeout time.Duration
	RateLimit       float64 // sends per second against the remote API
}

func (c DispatchConfig) withDefaults() DispatchConfig {
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 5
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 2 * time.Second
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 5 * time.Minute
	}
	if c.RetryJitter <= 0 {
		c.RetryJitter = 0.2
	}
	if c.DeliveryTimeout <= 0 {
		c.DeliveryTimeout = 10 * time.Second
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 50
	}
	return c
}

// Dispatcher drains the dispatch queue with a bounded worker pool and
// drives each occurrence to a terminal status. It is the only component
// that talks to the delivery client, always through the circuit breaker
// and the rate limiter.
type Dispatcher struct {
	occRepo   occurrence.Repository
	userRepo  user.Repository
	client    delivery.Client
	consumer  queue.Consumer
	breaker   *Breaker
	limiter   *rate.Limiter
	renderers RenderRegistry
	logger    *logrus.Logger
	cfg       DispatchConfig
}

func NewDispatcher(
	occRepo occurrence.Repository,
	userRepo user.Repository,
	client delivery.Client,
	consumer queue.Consumer,
	breaker *Breaker,
	renderers RenderRegistry,
	logger *logrus.Logger,
	cfg DispatchConfig,
) *Dispatcher {
	cfg = cfg.withDefaults()
	return &Dispatcher{
		occRepo:   occRepo,
		userRepo:  userRepo,
		client:    client,
		consumer:  consumer,
		breaker:   breaker,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		renderers: renderers,
		logger:    logger,
		cfg:       cfg,
	}
}

// Run starts the worker pool and blocks until ctx is cancelled and all
// in-flight deliveries have finished or timed out. Anything unacknowledged
// at shutdown is redelivered by the queue.
func (d *Dispatcher) Run(ctx context.Context) error {
	deliveries, err := d.consumer.Consume(ctx)
	if err != nil {
		return fmt.Errorf("failed to start queue consumer: %w", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < d.cfg.Workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			d.worker(ctx, deliveries, idx)
		}(i)
	}
	wg.Wait()
	d.logger.Info("Dispatcher worker pool drained")
	return nil
}

func (d *Dispatcher) worker(ctx context.Context, deliveries <-chan queue.Delivery, idx int) {
	// Per-worker RNG: avoids global lock contention when many messages
	// back off concurrently.
	rng := rand.New(rand.NewSource(time.Now().UnixNano() ^ (int64(idx) << 32)))

	for {
		select {
		case <-ctx.Done():
			return
		case del, ok := <-deliveries:
			if !ok {
				return
			}
			d.handle(ctx, del, rng)
		}
	}
}

// handle processes one queue delivery end to end. The acknowledgment
// discipline is the durability contract: a message is acked only after
// the terminal (or retried) state is recorded, so a crash mid-handling
// results in redelivery, never loss.
func (d *Dispatcher) handle(ctx context.Context, del queue.Delivery, rng *rand.Rand) {
	log := d.logger.WithFields(logrus.Fields{
		"occurrence_id":  del.Message.OccurrenceID,
		"user_id":        del.Message.UserID,
		"correlation_id": del.Message.CorrelationID,
	})

	occ, err := d.occRepo.GetByID(ctx, del.Message.OccurrenceID)
	if err != nil {
		if errors.Is(err, idb.ErrOccurrenceNotFound) {
			// The ledger row is authoritative; a message without one is
			// garbage and must not circulate.
			log.Error("Dropping message for unknown occurrence")
			d.ack(del, log)
			return
		}
		log.Warnf("Store unavailable, returning message to queue: %v", err)
		d.nack(del, log)
		return
	}

	// Guard against duplicate/redelivered messages: at-least-once
	// publishing makes these routine.
	if occ.Terminal() {
		log.Debugf("Occurrence already %s, discarding message", occ.Status)
		d.ack(del, log)
		return
	}

	u, err := d.userRepo.GetByID(ctx, occ.UserID)
	if err != nil {
		if errors.Is(err, idb.ErrUserNotFound) {
			log.Error("Occurrence references a missing user, failing permanently")
			d.failPermanent(ctx, occ, del, log)
			return
		}
		log.Warnf("Store unavailable, returning message to queue: %v", err)
		d.nack(del, log)
		return
	}

	message, err := d.renderers.Render(occ.EventKind, u)
	if err != nil {
		log.Errorf("Cannot render message, failing permanently: %v", err)
		d.failPermanent(ctx, occ, del, log)
		return
	}

	if err := d.limiter.Wait(ctx); err != nil {
		d.nack(del, log) // shutting down; redeliver later
		return
	}

	// The breaker fast-fails without touching the remote API. Messages
	// rejected here are requeued, not failed: the breaker produces
	// backpressure, never data loss, and the retry budget is untouched.
	if !d.breaker.Allow() {
		log.Debug("Circuit breaker open, requeueing for later")
		d.nackDelay(del, d.breaker.Cooldown(), log)
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, d.cfg.DeliveryTimeout)
	result, err := d.client.Send(callCtx, occ.UserID, message)
	cancel()

	switch {
	case err == nil && result.Outcome == delivery.Accepted:
		d.breaker.RecordSuccess()
		d.markSent(ctx, occ, del, log)

	case err == nil && result.Outcome == delivery.Rejected:
		// The remote answered; not an availability failure.
		d.breaker.RecordSuccess()
		log.Warnf("Delivery rejected permanently: %s", result.Reason)
		d.failPermanent(ctx, occ, del, log)

	default:
		d.breaker.RecordFailure()
		if err != nil {
			log.Warnf("Transient delivery failure: %v", err)
		} else {
			log.Warnf("Transient delivery failure: %s", result.Reason)
		}
		d.retryOrFail(ctx, occ, del, rng, log)
	}
}

func (d *Dispatcher) markSent(ctx context.Context, occ *occurrence.Occurrence, del queue.Delivery, log *logrus.Entry) {
	if err := d.occRepo.MarkSent(ctx, occ.ID); err != nil {
		if errors.Is(err, idb.ErrStatusConflict) {
			// Another worker already recorded a terminal state; the remote
			// may have seen a duplicate send, which at-least-once allows.
			d.ack(del, log)
			return
		}
		// Terminal status not durable yet: do not ack, redelivery will
		// re-check status and discard after the write succeeds.
		log.Errorf("Failed to mark occurrence sent: %v", err)
		d.nack(del, log)
		return
	}
	log.Info("Notification delivered")
	d.ack(del, log)
}

func (d *Dispatcher) failPermanent(ctx context.Context, occ *occurrence.Occurrence, del queue.Delivery, log *logrus.Entry) {
	if err := d.occRepo.MarkFailedPermanent(ctx, occ.ID); err != nil && !errors.Is(err, idb.ErrStatusConflict) {
		log.Errorf("Failed to mark occurrence failed: %v", err)
		d.nack(del, log)
		return
	}
	d.ack(del, log)
}

func (d *Dispatcher) retryOrFail(ctx context.Context, occ *occurrence.Occurrence, del queue.Delivery, rng *rand.Rand, log *logrus.Entry) {
	attempts, err := d.occRepo.IncrementAttempt(ctx, occ.ID)
	if err != nil {
		log.Errorf("Failed to increment attempt count: %v", err)
		d.nack(del, log)
		return
	}
	if attempts >= d.cfg.RetryMax {
		log.WithField("attempts", attempts).Error("Retry budget exhausted, failing permanently")
		d.failPermanent(ctx, occ, del, log)
		return
	}

	delay := BackoffDelay(d.cfg.RetryBaseDelay, d.cfg.RetryMaxDelay, attempts, d.cfg.RetryJitter, rng)
	log.WithFields(logrus.Fields{"attempts": attempts, "delay": delay.String()}).Info("Scheduling delivery retry")
	d.nackDelay(del, delay, log)
}

func (d *Dispatcher) ack(del queue.Delivery, log *logrus.Entry) {
	if err := del.Ack(); err != nil {
		log.Warnf("Failed to ack message: %v", err)
	}
}

func (d *Dispatcher) nack(del queue.Delivery, log *logrus.Entry) {
	if err := del.Nack(true); err != nil {
		log.Warnf("Failed to nack message: %v", err)
	}
}

func (d *Dispatcher) nackDelay(del queue.Delivery, delay time.Duration, log *logrus.Entry) {
	if err := del.NackDelay(delay); err != nil {
		log.Warnf("Failed to requeue message with delay, falling back to nack: %v", err)
		d.nack(del, log)
	}
}
