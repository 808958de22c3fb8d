// Package clock abstracts time for the playback and live subsystems.
//
// Both the frame loop and the reconnect/heartbeat timers are scheduled
// through this protocol so tests can drive them deterministically with a
// fake instead of sleeping.
package clock

import "time"

// Timer is a one-shot scheduled callback.
// Stop reports whether the callback was prevented from firing.
type Timer interface {
	Stop() bool
}

// Ticker delivers periodic instants on C until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock is the canonical protocol for time operations.
type Clock interface {
	// Now returns the current instant.
	Now() time.Time
	// NowMS returns the current instant as epoch milliseconds.
	NowMS() int64
	// AfterFunc schedules fn to run once after d.
	AfterFunc(d time.Duration, fn func()) Timer
	// NewTicker schedules periodic delivery every d.
	NewTicker(d time.Duration) Ticker
}

// =============================================================================
// System Clock
// =============================================================================

// System returns the wall-clock implementation.
func System() Clock { return systemClock{} }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) NowMS() int64 { return time.Now().UnixMilli() }

func (systemClock) AfterFunc(d time.Duration, fn func()) Timer {
	return systemTimer{t: time.AfterFunc(d, fn)}
}

func (systemClock) NewTicker(d time.Duration) Ticker {
	return &systemTicker{t: time.NewTicker(d)}
}

type systemTimer struct {
	t *time.Timer
}

func (s systemTimer) Stop() bool { return s.t.Stop() }

type systemTicker struct {
	t *time.Ticker
}

func (s *systemTicker) C() <-chan time.Time { return s.t.C }

func (s *systemTicker) Stop() { s.t.Stop() }

var _ Clock = systemClock{}
