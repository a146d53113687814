// Package clock provides the wall-clock source used by the scheduler.
// Production code uses Real; tests use Mock, whose Sleep advances virtual
// time instead of blocking.
package clock

import (
	"context"
	"sync"
	"time"
)

// Clock supplies the current time and cancellable sleeps.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, whichever comes first.
	// It returns ctx.Err() when interrupted.
	Sleep(ctx context.Context, d time.Duration) error
}

// Real is the system clock. Times are reported in Location, or in the
// process local zone when it is nil.
type Real struct {
	Location *time.Location
}

// Now returns time.Now() in the clock's zone.
func (r Real) Now() time.Time {
	if r.Location != nil {
		return time.Now().In(r.Location)
	}
	return time.Now()
}

// Sleep waits on a timer and the context.
func (Real) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Mock is a virtual clock. Sleep returns immediately after moving the
// current time forward by d, so a whole day of cadence runs in microseconds.
type Mock struct {
	mu      sync.Mutex
	current time.Time
	sleeps  []time.Duration

	// OnSleep, when set, is called after every sleep with the new time.
	// Tests use it to cancel a context at a given point of the day.
	OnSleep func(now time.Time)
}

// NewMock returns a Mock set to start.
func NewMock(start time.Time) *Mock {
	return &Mock{current: start}
}

// Now returns the virtual time.
func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Sleep advances the virtual time by d (negative durations are ignored).
func (m *Mock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	if d > 0 {
		m.current = m.current.Add(d)
	}
	m.sleeps = append(m.sleeps, d)
	now := m.current
	hook := m.OnSleep
	m.mu.Unlock()

	if hook != nil {
		hook(now)
	}
	return ctx.Err()
}

// Advance moves the virtual time forward without recording a sleep.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.current.Add(d)
}

// Set jumps to t.
func (m *Mock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = t
}

// Sleeps returns a copy of every duration passed to Sleep.
func (m *Mock) Sleeps() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Duration, len(m.sleeps))
	copy(out, m.sleeps)
	return out
}
