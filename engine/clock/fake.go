package clock

import (
	"sort"
	"sync"
	"time"
)

// =============================================================================
// Fake Clock
// =============================================================================

// FakeClock is a manually advanced Clock for deterministic tests.
//
// Advance moves the fake instant forward and fires every timer and ticker
// whose deadline falls inside the window, in deadline order. Callbacks run
// without the clock lock held, so a firing timer may schedule new timers.
type FakeClock struct {
	mu      sync.Mutex
	cond    *sync.Cond
	now     time.Time
	waiters []*fakeWaiter
}

// NewFake returns a FakeClock pinned at start.
func NewFake(start time.Time) *FakeClock {
	f := &FakeClock{now: start}
	f.cond = sync.NewCond(&f.mu)
	return f
}

type fakeWaiter struct {
	clock    *FakeClock
	deadline time.Time
	interval time.Duration // zero for one-shot timers
	fn       func()        // one-shot callback
	ch       chan time.Time
	stopped  bool
}

// Now returns the fake instant.
func (f *FakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// NowMS returns the fake instant as epoch milliseconds.
func (f *FakeClock) NowMS() int64 {
	return f.Now().UnixMilli()
}

// AfterFunc schedules fn to fire when the fake clock advances past d.
func (f *FakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := &fakeWaiter{clock: f, deadline: f.now.Add(d), fn: fn}
	f.waiters = append(f.waiters, w)
	f.cond.Broadcast()
	return w
}

// NewTicker schedules periodic delivery on each advance past the interval.
func (f *FakeClock) NewTicker(d time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := &fakeWaiter{clock: f, deadline: f.now.Add(d), interval: d, ch: make(chan time.Time, 64)}
	f.waiters = append(f.waiters, w)
	f.cond.Broadcast()
	return fakeTicker{w: w}
}

// Advance moves the fake instant forward by d, firing due waiters in
// deadline order. Tickers fire once per elapsed interval.
func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)

	for {
		next := f.nextDueLocked(target)
		if next == nil {
			break
		}
		f.now = next.deadline
		var fire func()
		if next.interval > 0 {
			next.deadline = next.deadline.Add(next.interval)
			tickAt := f.now
			ch := next.ch
			fire = func() {
				select {
				case ch <- tickAt:
				default:
				}
			}
		} else {
			next.stopped = true
			next.removeLocked()
			fire = next.fn
		}
		f.mu.Unlock()
		if fire != nil {
			fire()
		}
		f.mu.Lock()
	}

	f.now = target
	f.mu.Unlock()
}

// nextDueLocked returns the waiter with the earliest deadline at or before
// target, or nil when none is due.
func (f *FakeClock) nextDueLocked(target time.Time) *fakeWaiter {
	var due *fakeWaiter
	for _, w := range f.waiters {
		if w.stopped || w.deadline.After(target) {
			continue
		}
		if due == nil || w.deadline.Before(due.deadline) {
			due = w
		}
	}
	return due
}

// PendingCount returns how many timers and tickers are armed.
func (f *FakeClock) PendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, w := range f.waiters {
		if !w.stopped {
			n++
		}
	}
	return n
}

// WaitForTimers blocks until at least n timers/tickers are armed.
// Used to synchronize with code that schedules from another goroutine
// before advancing.
func (f *FakeClock) WaitForTimers(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for f.armedLocked() < n {
		f.cond.Wait()
	}
}

func (f *FakeClock) armedLocked() int {
	n := 0
	for _, w := range f.waiters {
		if !w.stopped {
			n++
		}
	}
	return n
}

// Deadlines returns the armed deadlines in ascending order.
// Assertion helper for backoff schedules.
func (f *FakeClock) Deadlines() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Time, 0, len(f.waiters))
	for _, w := range f.waiters {
		if !w.stopped {
			out = append(out, w.deadline)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Stop implements Timer.
func (w *fakeWaiter) Stop() bool {
	w.clock.mu.Lock()
	defer w.clock.mu.Unlock()
	wasArmed := !w.stopped
	w.stopped = true
	w.removeLocked()
	return wasArmed
}

// fakeTicker adapts a periodic waiter to the Ticker face.
type fakeTicker struct {
	w *fakeWaiter
}

func (t fakeTicker) C() <-chan time.Time { return t.w.ch }

func (t fakeTicker) Stop() { t.w.Stop() }

func (w *fakeWaiter) removeLocked() {
	waiters := w.clock.waiters
	for i, other := range waiters {
		if other == w {
			w.clock.waiters = append(waiters[:i], waiters[i+1:]...)
			return
		}
	}
}

var _ Clock = (*FakeClock)(nil)
