// Package clock provides monotonic instants and a one-shot deadline timer.
package clock

import (
	"sync"
	"sync/atomic"
	"time"
)

// Instant is an opaque monotonic reading.
type Instant struct {
	t time.Time
}

// Now returns the current instant.
func Now() Instant {
	return Instant{t: time.Now()}
}

// ElapsedSince returns the seconds between start and i.
func (i Instant) ElapsedSince(start Instant) float64 {
	return i.t.Sub(start.t).Seconds()
}

// Time exposes the wall-clock reading, including its monotonic component.
func (i Instant) Time() time.Time { return i.t }

// Since returns the seconds elapsed since start.
func Since(start Instant) float64 {
	return Now().ElapsedSince(start)
}

// Timer reports whether a fixed duration has elapsed since it was armed.
// Finished is safe to poll from any goroutine.
type Timer struct {
	d        time.Duration
	once     sync.Once
	mu       sync.Mutex
	t        *time.Timer
	finished atomic.Bool
}

func NewTimer(d time.Duration) *Timer {
	return &Timer{d: d}
}

// Start arms the timer. Later calls do nothing.
func (t *Timer) Start() {
	t.once.Do(func() {
		if t.d <= 0 {
			t.finished.Store(true)
			return
		}
		t.mu.Lock()
		t.t = time.AfterFunc(t.d, func() { t.finished.Store(true) })
		t.mu.Unlock()
	})
}

// Finished is false until the duration has elapsed after Start, then true forever.
func (t *Timer) Finished() bool {
	return t.finished.Load()
}

// Stop releases the underlying timer. A stopped timer that has not fired never will.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.t != nil {
		t.t.Stop()
	}
}
