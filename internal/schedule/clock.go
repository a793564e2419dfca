package schedule

import (
	"sync"
	"time"
)

// Clock provides the current time and can be mocked for testing.
// Injecting it keeps trigger computation and retry policy deterministic
// under test without real delays.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the standard time package.
// This is the default clock used in production.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// FakeClock provides a controllable clock for testing.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a new FakeClock initialized to the given time.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t}
}

// Now returns the fake clock's current time.
func (f *FakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set moves the fake clock to the specified time.
func (f *FakeClock) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}

// Advance moves the fake clock forward by d.
func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}
