package app

import (
	"sync"
	"time"

	"birthday_notification_service/internal/schedule"
)

// BreakerState is the circuit breaker's externally visible state.
type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"
	BreakerOpen     BreakerState = "OPEN"
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

// BreakerConfig controls the rolling-window circuit breaker.
type BreakerConfig struct {
	// Window is the rolling interval over which outcomes are counted.
	Window time.Duration
	// MinSamples is the minimum number of outcomes in the window before
	// the failure ratio is considered meaningful.
	MinSamples int
	// FailureRatio opens the breaker once failures/total crosses it.
	FailureRatio float64
	// Cooldown is how long the breaker stays open before half-opening.
	Cooldown time.Duration
	// HalfOpenProbes caps concurrent probe calls while half-open.
	HalfOpenProbes int
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.Window <= 0 {
		c.Window = time.Minute
	}
	if c.MinSamples <= 0 {
		c.MinSamples = 10
	}
	if c.FailureRatio <= 0 || c.FailureRatio > 1 {
		c.FailureRatio = 0.5
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
	if c.HalfOpenProbes <= 0 {
		c.HalfOpenProbes = 3
	}
	return c
}

type breakerSample struct {
	at     time.Time
	failed bool
}

// Breaker guards the delivery client with a rolling failure-rate window.
// Once the failure ratio in the window crosses the threshold it opens and
// fast-fails without calling the remote API; after the cooldown it
// half-opens and lets a bounded number of probes through. A probe success
// closes it, a probe failure re-opens it.
//
// The breaker only produces backpressure: while open, callers requeue the
// message instead of failing the occurrence, so an outage never destroys
// data.
type Breaker struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	clock    schedule.Clock
	samples  []breakerSample
	state    BreakerState
	openedAt time.Time
	inProbe  int
}

func NewBreaker(cfg BreakerConfig, clock schedule.Clock) *Breaker {
	if clock == nil {
		clock = schedule.RealClock{}
	}
	return &Breaker{
		cfg:   cfg.withDefaults(),
		clock: clock,
		state: BreakerClosed,
	}
}

// Allow reports whether a delivery call may proceed. Callers that get
// true must follow up with exactly one RecordSuccess or RecordFailure.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if now.Sub(b.openedAt) < b.cfg.Cooldown {
			return false
		}
		b.state = BreakerHalfOpen
		b.inProbe = 0
		fallthrough
	case BreakerHalfOpen:
		if b.inProbe >= b.cfg.HalfOpenProbes {
			return false
		}
		b.inProbe++
		return true
	}
	return true
}

// RecordSuccess records a remote call that got a definitive answer.
// Note that a permanent rejection counts as success here: the dependency
// responded, so it is not an availability failure.
func (b *Breaker) RecordSuccess() {
	b.record(false)
}

// RecordFailure records a transient remote failure (timeout, 5xx-class,
// connection error).
func (b *Breaker) RecordFailure() {
	b.record(true)
}

func (b *Breaker) record(failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()

	if b.state == BreakerHalfOpen {
		if b.inProbe > 0 {
			b.inProbe--
		}
		if failed {
			b.state = BreakerOpen
			b.openedAt = now
			b.samples = nil
			return
		}
		// Probe succeeded: close and start a fresh window.
		b.state = BreakerClosed
		b.samples = nil
		return
	}

	b.samples = append(b.samples, breakerSample{at: now, failed: failed})
	b.prune(now)

	total, failures := 0, 0
	for _, s := range b.samples {
		total++
		if s.failed {
			failures++
		}
	}
	if total >= b.cfg.MinSamples && float64(failures)/float64(total) >= b.cfg.FailureRatio {
		b.state = BreakerOpen
		b.openedAt = now
		b.samples = nil
	}
}

func (b *Breaker) prune(now time.Time) {
	cutoff := now.Add(-b.cfg.Window)
	i := 0
	for ; i < len(b.samples); i++ {
		if b.samples[i].at.After(cutoff) {
			break
		}
	}
	if i > 0 {
		b.samples = append(b.samples[:0], b.samples[i:]...)
	}
}

// State returns the current breaker state for the status surface.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && b.clock.Now().Sub(b.openedAt) >= b.cfg.Cooldown {
		return BreakerHalfOpen
	}
	return b.state
}

// Cooldown exposes the configured cooldown so callers can requeue
// breaker-rejected messages with a sensible delay.
func (b *Breaker) Cooldown() time.Duration {
	return b.cfg.Cooldown
}
