// internal/infra/rabbitmq/dispatch_queue.go
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"birthday_notification_service/internal/domain/queue"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// WorkQueue carries due occurrences to the worker pool.
	WorkQueue = "notifications.dispatch"
	// RetryQueue holds delayed redeliveries: messages are published here
	// with a per-message TTL and dead-letter back into WorkQueue when it
	// expires. Head-of-line expiry means a long delay can briefly hold up
	// shorter ones behind it; retry delays here are bounded and coarse
	// enough that this stays harmless.
	RetryQueue = "notifications.dispatch.retry"
	// DeadLetterQueue receives messages nacked without requeue. Nothing in
	// the normal flow routes here; it exists so malformed messages are
	// parked for inspection instead of looping.
	DeadLetterQueue = "notifications.dispatch.dlq"
)

// DispatchQueue is the durable at-least-once channel between "occurrence
// is due" and "worker attempts delivery". It implements both the
// queue.Publisher and queue.Consumer domain interfaces over AMQP.
type DispatchQueue struct {
	conn     *Connection
	prefetch int

	// AMQP channels are not safe for concurrent use; publishing (including
	// the NackDelay path used by many workers) goes through pubCh under
	// pubMu.
	pubMu sync.Mutex
	pubCh *amqp.Channel
}

// NewDispatchQueue declares the queue topology and returns the adapter.
// Declarations are idempotent, so every replica performs them at startup.
func NewDispatchQueue(conn *Connection, prefetch int) (*DispatchQueue, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open publish channel: %w", err)
	}

	if _, err := ch.QueueDeclare(DeadLetterQueue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("failed to declare dead-letter queue: %w", err)
	}

	workArgs := amqp.Table{
		"x-dead-letter-exchange":    "", // default exchange
		"x-dead-letter-routing-key": DeadLetterQueue,
	}
	if _, err := ch.QueueDeclare(WorkQueue, true, false, false, false, workArgs); err != nil {
		return nil, fmt.Errorf("failed to declare work queue: %w", err)
	}

	retryArgs := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": WorkQueue,
	}
	if _, err := ch.QueueDeclare(RetryQueue, true, false, false, false, retryArgs); err != nil {
		return nil, fmt.Errorf("failed to declare retry queue: %w", err)
	}

	if prefetch <= 0 {
		prefetch = 8
	}
	return &DispatchQueue{conn: conn, prefetch: prefetch, pubCh: ch}, nil
}

// Publish sends a persistent message to the work queue. At-least-once:
// duplicate publishes are acceptable because consumers re-check the
// occurrence status before delivering.
func (q *DispatchQueue) Publish(ctx context.Context, msg queue.Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal queue message: %w", err)
	}
	return q.publishRaw(ctx, WorkQueue, body, msg.CorrelationID, 0)
}

func (q *DispatchQueue) publishRaw(ctx context.Context, routingKey string, body []byte, correlationID string, ttl time.Duration) error {
	pub := amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: correlationID,
		Body:          body,
		DeliveryMode:  amqp.Persistent,
		Timestamp:     time.Now(),
	}
	if ttl > 0 {
		pub.Expiration = strconv.FormatInt(ttl.Milliseconds(), 10)
	}

	q.pubMu.Lock()
	defer q.pubMu.Unlock()
	if err := q.pubCh.PublishWithContext(ctx, "", routingKey, false, false, pub); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", routingKey, err)
	}
	return nil
}

// Consume opens a dedicated channel with manual acknowledgment and adapts
// AMQP deliveries to the domain type. The returned channel closes when
// ctx is cancelled or the AMQP channel drops; anything unacknowledged at
// that point is redelivered by the broker.
func (q *DispatchQueue) Consume(ctx context.Context) (<-chan queue.Delivery, error) {
	ch, err := q.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open consume channel: %w", err)
	}
	if err := ch.Qos(q.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set prefetch: %w", err)
	}

	msgs, err := ch.Consume(WorkQueue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming %s: %w", WorkQueue, err)
	}

	out := make(chan queue.Delivery)
	go func() {
		defer close(out)
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				del, err := q.adapt(m)
				if err != nil {
					// Undecodable payload: park it on the DLQ via
					// nack-without-requeue rather than loop forever.
					_ = m.Nack(false, false)
					continue
				}
				select {
				case <-ctx.Done():
					// Not handed to a worker; leave it unacked for
					// redelivery after the channel closes.
					return
				case out <- del:
				}
			}
		}
	}()
	return out, nil
}

func (q *DispatchQueue) adapt(m amqp.Delivery) (queue.Delivery, error) {
	var msg queue.Message
	if err := json.Unmarshal(m.Body, &msg); err != nil {
		return queue.Delivery{}, fmt.Errorf("failed to unmarshal queue message: %w", err)
	}
	return queue.Delivery{
		Message:     msg,
		Redelivered: m.Redelivered,
		Ack: func() error {
			return m.Ack(false)
		},
		Nack: func(requeue bool) error {
			return m.Nack(false, requeue)
		},
		NackDelay: func(d time.Duration) error {
			// Delayed redelivery: re-publish onto the TTL retry queue,
			// then ack the original so it does not double-deliver.
			if d < time.Second {
				d = time.Second
			}
			if err := q.publishRaw(context.Background(), RetryQueue, m.Body, m.CorrelationId, d); err != nil {
				return err
			}
			return m.Ack(false)
		},
	}, nil
}

// Close releases the publish channel. The connection itself is owned by
// the caller.
func (q *DispatchQueue) Close() error {
	q.pubMu.Lock()
	defer q.pubMu.Unlock()
	if q.pubCh != nil {
		return q.pubCh.Close()
	}
	return nil
}
