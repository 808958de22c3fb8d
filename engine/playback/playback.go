// Package playback provides the virtual clock that drives archival replay.
//
// A PlaybackClock owns a single playhead instant inside a bundle timeline.
// While playing, a frame loop advances the playhead by wall-clock delta
// times the speed multiplier, clamped to the timeline. Reaching the end of
// the timeline pauses the clock; replay resumes after an explicit seek.
//
// Key concepts:
//   - Playhead: the current virtual instant, always within timeline bounds
//   - Frame loop: one goroutine per play cycle, ticking at a configured rate
//   - Status: an immutable copy of the clock state handed to observers
//
// All mutation funnels through the clock's own methods. Callers never touch
// the frame loop or its ticker directly.
package playback

import (
	"sync"
	"time"

	"github.com/mortality-lab/telemetry/engine/bundle"
	"github.com/mortality-lab/telemetry/engine/clock"
	"github.com/mortality-lab/telemetry/engine/config"
	"github.com/mortality-lab/telemetry/event"
)

// =============================================================================
// STATUS
// =============================================================================

// Status is a point-in-time copy of the clock state.
type Status struct {
	PlayheadMS int64
	Playing    bool
	Speed      float64
	Timeline   bundle.Timeline
}

// =============================================================================
// PLAYBACK CLOCK
// =============================================================================

// PlaybackClock is the owned state machine for replay position.
//
// State transitions:
//
//	paused  --TogglePlay-->  playing
//	playing --TogglePlay-->  paused
//	playing --playhead reaches EndMS--> paused
//	any     --SetTimeline--> paused (playhead reset to StartMS)
type PlaybackClock struct {
	cfg    *config.EngineConfig
	clk    clock.Clock
	logger event.Logger

	mu       sync.Mutex
	timeline bundle.Timeline
	playhead float64
	playing  bool
	speed    float64
	onChange func(Status)
	stop     chan struct{}
	closed   bool
}

// New constructs a paused clock with an empty timeline. Nil arguments fall
// back to the global config, the system clock, and a no-op logger.
func New(cfg *config.EngineConfig, clk clock.Clock, logger event.Logger) *PlaybackClock {
	if cfg == nil {
		cfg = config.GetEngineConfig()
	}
	if clk == nil {
		clk = clock.System()
	}
	if logger == nil {
		logger = event.NopLogger{}
	}
	return &PlaybackClock{
		cfg:    cfg,
		clk:    clk,
		logger: logger,
		speed:  cfg.DefaultSpeed,
	}
}

// OnChange registers the observer invoked after every state change. The
// callback receives a copy and may call back into the clock.
func (p *PlaybackClock) OnChange(fn func(Status)) {
	p.mu.Lock()
	p.onChange = fn
	p.mu.Unlock()
}

// Snapshot returns the current state.
func (p *PlaybackClock) Snapshot() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statusLocked()
}

// PlayheadMS returns the current virtual instant in epoch milliseconds.
func (p *PlaybackClock) PlayheadMS() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int64(p.playhead)
}

// Playing reports whether the frame loop is running.
func (p *PlaybackClock) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Speed returns the current speed multiplier.
func (p *PlaybackClock) Speed() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speed
}

// Timeline returns the bounds the playhead is clamped to.
func (p *PlaybackClock) Timeline() bundle.Timeline {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timeline
}

// SetTimeline adopts a new bundle's bounds, resets the playhead to the
// start, and pauses.
func (p *PlaybackClock) SetTimeline(tl bundle.Timeline) {
	p.mu.Lock()
	p.pauseLocked()
	p.timeline = tl
	p.playhead = float64(tl.StartMS)
	p.logger.Info("playback_timeline_set", "start_ms", tl.StartMS, "end_ms", tl.EndMS)
	p.notifyAfter(p.statusLocked())
}

// Seek moves the playhead to ms, clamped to the timeline. Allowed while
// playing or paused.
func (p *PlaybackClock) Seek(ms int64) {
	p.mu.Lock()
	p.playhead = float64(p.timeline.Clamp(ms))
	p.logger.Debug("playback_seek", "playhead_ms", int64(p.playhead))
	p.notifyAfter(p.statusLocked())
}

// SeekFraction moves the playhead to a fraction of the timeline, where 0 is
// the start and 1 is the end.
func (p *PlaybackClock) SeekFraction(fraction float64) {
	p.Seek(p.Timeline().At(fraction))
}

// SetSpeed changes the speed multiplier. Non-positive values are rejected.
func (p *PlaybackClock) SetSpeed(speed float64) {
	p.mu.Lock()
	if speed <= 0 {
		p.logger.Warn("playback_invalid_speed", "speed", speed)
		p.mu.Unlock()
		return
	}
	p.speed = speed
	p.notifyAfter(p.statusLocked())
}

// TogglePlay flips between paused and playing. Toggling at the end of the
// timeline stays paused; seek first to replay.
func (p *PlaybackClock) TogglePlay() {
	p.mu.Lock()
	switch {
	case p.closed:
		p.mu.Unlock()
		return
	case p.playing:
		p.pauseLocked()
		p.logger.Info("playback_paused", "playhead_ms", int64(p.playhead))
	case p.playhead >= float64(p.timeline.EndMS):
		p.logger.Debug("playback_at_end", "playhead_ms", int64(p.playhead))
		p.mu.Unlock()
		return
	default:
		p.playing = true
		p.stop = make(chan struct{})
		go p.frameLoop(p.stop)
		p.logger.Info("playback_playing", "playhead_ms", int64(p.playhead), "speed", p.speed)
	}
	p.notifyAfter(p.statusLocked())
}

// Close pauses the clock and cancels any pending frame callback. The clock
// cannot be restarted afterwards.
func (p *PlaybackClock) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.pauseLocked()
	p.closed = true
	p.mu.Unlock()
}

// =============================================================================
// FRAME LOOP
// =============================================================================

// frameLoop advances the playhead once per tick until stopped or the end of
// the timeline is reached. Each play cycle owns exactly one loop goroutine.
func (p *PlaybackClock) frameLoop(done chan struct{}) {
	ticker := p.clk.NewTicker(time.Duration(p.cfg.FrameIntervalMS) * time.Millisecond)
	defer ticker.Stop()
	last := p.clk.Now()
	for {
		select {
		case now := <-ticker.C():
			delta := now.Sub(last)
			last = now
			if !p.step(delta) {
				return
			}
		case <-done:
			return
		}
	}
}

// step applies one frame's wall-clock delta. Returns false once the loop
// must exit, either because playback was paused underneath it or because
// the playhead reached the end of the timeline.
func (p *PlaybackClock) step(delta time.Duration) bool {
	p.mu.Lock()
	if !p.playing {
		p.mu.Unlock()
		return false
	}
	p.playhead += delta.Seconds() * 1000 * p.speed
	keepGoing := true
	if p.playhead >= float64(p.timeline.EndMS) {
		p.playhead = float64(p.timeline.EndMS)
		p.playing = false
		p.stop = nil
		keepGoing = false
		p.logger.Info("playback_reached_end", "playhead_ms", int64(p.playhead))
	}
	if p.playhead < float64(p.timeline.StartMS) {
		p.playhead = float64(p.timeline.StartMS)
	}
	p.notifyAfter(p.statusLocked())
	return keepGoing
}

// pauseLocked stops the current frame loop, if any. Callers hold mu.
func (p *PlaybackClock) pauseLocked() {
	if !p.playing {
		return
	}
	p.playing = false
	if p.stop != nil {
		close(p.stop)
		p.stop = nil
	}
}

func (p *PlaybackClock) statusLocked() Status {
	return Status{
		PlayheadMS: int64(p.playhead),
		Playing:    p.playing,
		Speed:      p.speed,
		Timeline:   p.timeline,
	}
}

// notifyAfter releases mu and then invokes the observer, so the callback
// can safely call back into the clock.
func (p *PlaybackClock) notifyAfter(s Status) {
	fn := p.onChange
	p.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}
