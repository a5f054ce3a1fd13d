package testutil

import (
	"slices"
	"sync"
	"time"
)

// ManualClock is a wall clock that only moves when told to. Timers created
// with AfterFunc fire from Advance or Set, on the caller's goroutine, in
// deadline order.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	at time.Time
	fn func()
}

// NewManualClock creates a clock reading start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the current reading. Pass the method value as a clock func.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and fires the timers it reaches.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	due := c.takeDue()
	c.mu.Unlock()
	fire(due)
}

// Set moves the clock to t and fires the timers it reaches.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	due := c.takeDue()
	c.mu.Unlock()
	fire(due)
}

// AfterFunc schedules fn for d after the current reading. The returned
// function cancels the timer and reports whether it was still pending.
func (c *ManualClock) AfterFunc(d time.Duration, fn func()) func() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{at: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		i := slices.Index(c.timers, t)
		if i < 0 {
			return false
		}
		c.timers = slices.Delete(c.timers, i, i+1)
		return true
	}
}

// Pending returns the number of timers that have not fired or been stopped.
func (c *ManualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// takeDue removes and returns the timers at or before now. Callers hold mu.
func (c *ManualClock) takeDue() []*manualTimer {
	var due, rest []*manualTimer
	for _, t := range c.timers {
		if t.at.After(c.now) {
			rest = append(rest, t)
		} else {
			due = append(due, t)
		}
	}
	c.timers = rest
	slices.SortStableFunc(due, func(a, b *manualTimer) int { return a.at.Compare(b.at) })
	return due
}

func fire(due []*manualTimer) {
	for _, t := range due {
		t.fn()
	}
}
