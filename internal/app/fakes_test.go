package app

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"birthday_notification_service/internal/domain/delivery"
	"birthday_notification_service/internal/domain/occurrence"
	"birthday_notification_service/internal/domain/queue"
	"birthday_notification_service/internal/domain/user"
	idb "birthday_notification_service/internal/infra/database"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// fakeOccurrenceRepo mirrors the Postgres repository's semantics in
// memory: unique (user, kind, date) creation and CAS status transitions
// returning the same sentinel errors.
type fakeOccurrenceRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*occurrence.Occurrence
	byKey  map[string]int64
	nowFn  func() time.Time // timestamp source; real clock unless a test injects one
}

func newFakeOccurrenceRepo() *fakeOccurrenceRepo {
	return &fakeOccurrenceRepo{rows: make(map[int64]*occurrence.Occurrence), byKey: make(map[string]int64)}
}

func (r *fakeOccurrenceRepo) now() time.Time {
	if r.nowFn != nil {
		return r.nowFn().UTC()
	}
	return time.Now().UTC()
}

func occKey(userID int64, kind occurrence.EventKind, date time.Time) string {
	return fmt.Sprintf("%d|%s|%s", userID, kind, date.Format("2006-01-02"))
}

func (r *fakeOccurrenceRepo) CreateIfAbsent(ctx context.Context, o *occurrence.Occurrence) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := occKey(o.UserID, o.EventKind, o.OccurrenceDate)
	if _, exists := r.byKey[key]; exists {
		return false, nil
	}
	r.nextID++
	o.ID = r.nextID
	o.Status = occurrence.StatusPending
	now := r.now()
	o.CreatedAt, o.UpdatedAt = now, now
	cp := *o
	r.rows[o.ID] = &cp
	r.byKey[key] = o.ID
	return true, nil
}

func (r *fakeOccurrenceRepo) GetByID(ctx context.Context, id int64) (*occurrence.Occurrence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.rows[id]
	if !ok {
		return nil, idb.ErrOccurrenceNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *fakeOccurrenceRepo) transition(id int64, from []occurrence.Status, to occurrence.Status, touchOnly bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.rows[id]
	if !ok {
		return idb.ErrOccurrenceNotFound
	}
	for _, f := range from {
		if o.Status == f {
			if !touchOnly {
				o.Status = to
			}
			o.UpdatedAt = r.now()
			return nil
		}
	}
	return idb.ErrStatusConflict
}

func (r *fakeOccurrenceRepo) MarkQueued(ctx context.Context, id int64) error {
	return r.transition(id, []occurrence.Status{occurrence.StatusPending}, occurrence.StatusQueued, false)
}

func (r *fakeOccurrenceRepo) TouchQueued(ctx context.Context, id int64) error {
	return r.transition(id, []occurrence.Status{occurrence.StatusQueued}, occurrence.StatusQueued, true)
}

func (r *fakeOccurrenceRepo) MarkSent(ctx context.Context, id int64) error {
	return r.transition(id, []occurrence.Status{occurrence.StatusPending, occurrence.StatusQueued}, occurrence.StatusSent, false)
}

func (r *fakeOccurrenceRepo) MarkFailedPermanent(ctx context.Context, id int64) error {
	return r.transition(id, []occurrence.Status{occurrence.StatusPending, occurrence.StatusQueued}, occurrence.StatusFailedPermanent, false)
}

func (r *fakeOccurrenceRepo) IncrementAttempt(ctx context.Context, id int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.rows[id]
	if !ok {
		return 0, idb.ErrOccurrenceNotFound
	}
	o.AttemptCount++
	o.UpdatedAt = r.now()
	return o.AttemptCount, nil
}

func (r *fakeOccurrenceRepo) ListDuePending(ctx context.Context, dueBy time.Time, limit int) ([]*occurrence.Occurrence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*occurrence.Occurrence
	for _, o := range r.rows {
		if o.Status == occurrence.StatusPending && !o.ScheduledForUTC.After(dueBy) {
			cp := *o
			out = append(out, &cp)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeOccurrenceRepo) ListStaleQueued(ctx context.Context, staleBefore time.Time, limit int) ([]*occurrence.Occurrence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*occurrence.Occurrence
	for _, o := range r.rows {
		if o.Status == occurrence.StatusQueued && o.UpdatedAt.Before(staleBefore) {
			cp := *o
			out = append(out, &cp)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeOccurrenceRepo) CountByStatus(ctx context.Context) (map[occurrence.Status]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[occurrence.Status]int)
	for _, o := range r.rows {
		counts[o.Status]++
	}
	return counts, nil
}

// seed inserts a row directly in the given status, bypassing CreateIfAbsent.
func (r *fakeOccurrenceRepo) seed(o *occurrence.Occurrence) *occurrence.Occurrence {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	o.ID = r.nextID
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = r.now()
	}
	cp := *o
	r.rows[o.ID] = &cp
	r.byKey[occKey(o.UserID, o.EventKind, o.OccurrenceDate)] = o.ID
	return o
}

func (r *fakeOccurrenceRepo) status(id int64) occurrence.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[id].Status
}

func (r *fakeOccurrenceRepo) attempts(id int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[id].AttemptCount
}

// fakeUserRepo serves a fixed user set.
type fakeUserRepo struct {
	mu    sync.Mutex
	users map[int64]*user.User
}

func newFakeUserRepo(users ...*user.User) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[int64]*user.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) Create(ctx context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
	return nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id int64) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, idb.ErrUserNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) Update(ctx context.Context, u *user.User) error { return nil }

func (r *fakeUserRepo) Deactivate(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.Active = false
	}
	return nil
}

func (r *fakeUserRepo) ListActive(ctx context.Context) ([]*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*user.User
	for _, u := range r.users {
		if u.Active {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *fakeUserRepo) ListAll(ctx context.Context) ([]*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*user.User
	for _, u := range r.users {
		out = append(out, u)
	}
	return out, nil
}

// fakePublisher records published messages.
type fakePublisher struct {
	mu       sync.Mutex
	messages []queue.Message
	err      error
}

func (p *fakePublisher) Publish(ctx context.Context, msg queue.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

// fakeClient scripts delivery results in order; the last one repeats.
type fakeClient struct {
	mu      sync.Mutex
	results []fakeResult
	calls   []int64
}

type fakeResult struct {
	res delivery.Result
	err error
}

func (c *fakeClient) Send(ctx context.Context, userID int64, message string) (delivery.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, userID)
	if len(c.results) == 0 {
		return delivery.Result{Outcome: delivery.Accepted}, nil
	}
	r := c.results[0]
	if len(c.results) > 1 {
		c.results = c.results[1:]
	}
	return r.res, r.err
}

func (c *fakeClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// recordingDelivery builds a queue.Delivery whose ack/nack outcomes are
// observable.
type recordingDelivery struct {
	mu         sync.Mutex
	acked      int
	nacked     int
	delayed    []time.Duration
	delayError error
}

func (r *recordingDelivery) delivery(msg queue.Message) queue.Delivery {
	return queue.Delivery{
		Message: msg,
		Ack: func() error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.acked++
			return nil
		},
		Nack: func(requeue bool) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.nacked++
			return nil
		},
		NackDelay: func(d time.Duration) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			if r.delayError != nil {
				return r.delayError
			}
			r.delayed = append(r.delayed, d)
			return nil
		},
	}
}
