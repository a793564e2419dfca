package queue

import (
	"context"
	"time"

	"birthday_notification_service/internal/domain/occurrence"
)

// Message is the ephemeral payload carried between "occurrence is due" and
// "worker attempts delivery". It is owned by the queue infrastructure
// between publish and acknowledgment; workers never persist it beyond the
// occurrence status update.
type Message struct {
	OccurrenceID  int64                `json:"occurrence_id"`
	UserID        int64                `json:"user_id"`
	EventKind     occurrence.EventKind `json:"event_kind"`
	CorrelationID string               `json:"correlation_id"`
}

// Delivery is one received message plus its acknowledgment handle.
type Delivery struct {
	Message     Message
	Redelivered bool

	// Ack confirms processing; the broker drops the message.
	Ack func() error
	// Nack returns the message for redelivery (requeue) or dead-lettering.
	Nack func(requeue bool) error
	// NackDelay re-publishes the message so it is redelivered after at
	// least d, then acknowledges the original. Used for backoff retries
	// and breaker backpressure.
	NackDelay func(d time.Duration) error
}

// Publisher pushes due occurrences onto the durable dispatch queue.
// Publish is at-least-once; duplicate publishes are acceptable because the
// consumer side is idempotent via occurrence status checks.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Consumer provides the worker pool's intake. The returned channel closes
// when ctx is cancelled or the underlying channel drops; unacknowledged
// deliveries are redelivered by the broker.
type Consumer interface {
	Consume(ctx context.Context) (<-chan Delivery, error)
}
