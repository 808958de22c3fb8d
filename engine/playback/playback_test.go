package playback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mortality-lab/telemetry/engine/bundle"
	"github.com/mortality-lab/telemetry/engine/clock"
	"github.com/mortality-lab/telemetry/engine/config"
	"github.com/mortality-lab/telemetry/event"
)

func testTimeline() bundle.Timeline {
	return bundle.Timeline{StartMS: 1000, EndMS: 3000, DurationMS: 2000}
}

func newTestClock(t *testing.T) (*PlaybackClock, *clock.FakeClock, chan Status) {
	t.Helper()
	fc := clock.NewFake(time.UnixMilli(0))
	p := New(config.DefaultEngineConfig(), fc, event.NopLogger{})
	changes := make(chan Status, 64)
	p.OnChange(func(s Status) { changes <- s })
	t.Cleanup(p.Close)
	return p, fc, changes
}

func waitStatus(t *testing.T, changes chan Status) Status {
	t.Helper()
	select {
	case s := <-changes:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a status change")
		return Status{}
	}
}

func drain(changes chan Status) {
	for {
		select {
		case <-changes:
		default:
			return
		}
	}
}

// =============================================================================
// SEEK AND SPEED TESTS
// =============================================================================

func TestNewStartsPaused(t *testing.T) {
	p, _, _ := newTestClock(t)

	assert.False(t, p.Playing())
	assert.Equal(t, int64(0), p.PlayheadMS())
	assert.Equal(t, 1.0, p.Speed())
}

func TestSeekClampsToTimeline(t *testing.T) {
	p, _, _ := newTestClock(t)
	p.SetTimeline(testTimeline())

	p.Seek(500)
	assert.Equal(t, int64(1000), p.PlayheadMS())

	p.Seek(2000)
	assert.Equal(t, int64(2000), p.PlayheadMS())

	p.Seek(5000)
	assert.Equal(t, int64(3000), p.PlayheadMS())
}

func TestSeekFractionMapsOntoTimeline(t *testing.T) {
	// The midpoint of [1000, 3000] is 2000; out-of-range fractions clamp.
	p, _, _ := newTestClock(t)
	p.SetTimeline(testTimeline())

	p.SeekFraction(0.5)
	assert.Equal(t, int64(2000), p.PlayheadMS())

	p.SeekFraction(0)
	assert.Equal(t, int64(1000), p.PlayheadMS())

	p.SeekFraction(1)
	assert.Equal(t, int64(3000), p.PlayheadMS())

	p.SeekFraction(-0.5)
	assert.Equal(t, int64(1000), p.PlayheadMS())

	p.SeekFraction(2)
	assert.Equal(t, int64(3000), p.PlayheadMS())
}

func TestSetSpeedRejectsNonPositive(t *testing.T) {
	p, _, _ := newTestClock(t)

	p.SetSpeed(2.5)
	assert.Equal(t, 2.5, p.Speed())

	p.SetSpeed(0)
	assert.Equal(t, 2.5, p.Speed())

	p.SetSpeed(-1)
	assert.Equal(t, 2.5, p.Speed())
}

func TestSetTimelineResetsAndPauses(t *testing.T) {
	p, fc, changes := newTestClock(t)
	p.SetTimeline(testTimeline())
	p.TogglePlay()
	require.True(t, p.Playing())
	fc.WaitForTimers(1)
	drain(changes)

	p.SetTimeline(bundle.Timeline{StartMS: 5000, EndMS: 9000, DurationMS: 4000})

	assert.False(t, p.Playing())
	assert.Equal(t, int64(5000), p.PlayheadMS())
	require.Eventually(t, func() bool { return fc.PendingCount() == 0 }, 2*time.Second, time.Millisecond)
}

// =============================================================================
// FRAME LOOP TESTS
// =============================================================================

func TestFrameAdvancesPlayhead(t *testing.T) {
	p, fc, changes := newTestClock(t)
	p.SetTimeline(testTimeline())
	drain(changes)

	p.TogglePlay()
	s := waitStatus(t, changes)
	require.True(t, s.Playing)
	fc.WaitForTimers(1)

	fc.Advance(16 * time.Millisecond)
	s = waitStatus(t, changes)
	assert.Equal(t, int64(1016), s.PlayheadMS)
	assert.True(t, s.Playing)

	fc.Advance(16 * time.Millisecond)
	s = waitStatus(t, changes)
	assert.Equal(t, int64(1032), s.PlayheadMS)
}

func TestSpeedMultiplierScalesAdvance(t *testing.T) {
	// One 16 ms frame at 2x moves the playhead 32 ms.
	p, fc, changes := newTestClock(t)
	p.SetTimeline(testTimeline())
	p.SetSpeed(2)
	drain(changes)

	p.TogglePlay()
	waitStatus(t, changes)
	fc.WaitForTimers(1)

	fc.Advance(16 * time.Millisecond)
	s := waitStatus(t, changes)
	assert.Equal(t, int64(1032), s.PlayheadMS)
}

func TestReachingEndPausesExactly(t *testing.T) {
	// Overshooting the timeline clamps to EndMS and forces a pause.
	p, fc, changes := newTestClock(t)
	p.SetTimeline(testTimeline())
	p.Seek(2990)
	drain(changes)

	p.TogglePlay()
	waitStatus(t, changes)
	fc.WaitForTimers(1)

	fc.Advance(16 * time.Millisecond)
	s := waitStatus(t, changes)
	assert.Equal(t, int64(3000), s.PlayheadMS)
	assert.False(t, s.Playing)

	// The frame loop tears its ticker down once the end is reached.
	require.Eventually(t, func() bool { return fc.PendingCount() == 0 }, 2*time.Second, time.Millisecond)
	fc.Advance(16 * time.Millisecond)
	assert.Equal(t, int64(3000), p.PlayheadMS())
}

func TestTogglePlayAtEndStaysPaused(t *testing.T) {
	// Replay past the end requires an explicit seek first.
	p, _, _ := newTestClock(t)
	p.SetTimeline(testTimeline())
	p.Seek(3000)

	p.TogglePlay()
	assert.False(t, p.Playing())

	p.Seek(1000)
	p.TogglePlay()
	assert.True(t, p.Playing())
}

func TestToggleToPauseStopsFrameLoop(t *testing.T) {
	p, fc, changes := newTestClock(t)
	p.SetTimeline(testTimeline())
	drain(changes)

	p.TogglePlay()
	waitStatus(t, changes)
	fc.WaitForTimers(1)

	p.TogglePlay()
	require.False(t, p.Playing())
	require.Eventually(t, func() bool { return fc.PendingCount() == 0 }, 2*time.Second, time.Millisecond)

	before := p.PlayheadMS()
	fc.Advance(16 * time.Millisecond)
	assert.Equal(t, before, p.PlayheadMS())
}

func TestSeekWhilePlayingKeepsPlaying(t *testing.T) {
	p, fc, changes := newTestClock(t)
	p.SetTimeline(testTimeline())
	drain(changes)

	p.TogglePlay()
	waitStatus(t, changes)
	fc.WaitForTimers(1)

	p.Seek(2500)
	s := waitStatus(t, changes)
	assert.Equal(t, int64(2500), s.PlayheadMS)
	assert.True(t, s.Playing)
}

func TestCloseCancelsFrameLoopAndIsIdempotent(t *testing.T) {
	p, fc, changes := newTestClock(t)
	p.SetTimeline(testTimeline())
	drain(changes)

	p.TogglePlay()
	waitStatus(t, changes)
	fc.WaitForTimers(1)

	p.Close()
	p.Close()
	require.Eventually(t, func() bool { return fc.PendingCount() == 0 }, 2*time.Second, time.Millisecond)

	p.TogglePlay()
	assert.False(t, p.Playing())
}
