// Package snapshot derives per-agent lifecycle state at an instant.
//
// A snapshot is never stored: it is recomputed from the ordered event log on
// every playhead change, which is what makes scrubbing time-travel safe. The
// same per-kind transitions drive the live reconciler, so a live view and a
// replayed view of identical event prefixes agree.
//
// Key concepts:
//   - LifecycleStatus: agent lifecycle (pending -> alive -> expired -> respawning)
//   - AgentSnapshot: one agent's state at the playhead
//   - Fold/SnapshotsAt: pure reductions over the ordered log
package snapshot

import (
	"github.com/mortality-lab/telemetry/engine/bundle"
	"github.com/mortality-lab/telemetry/event"
)

// =============================================================================
// Lifecycle Status
// =============================================================================

// LifecycleStatus represents an agent's position in its mortality cycle.
// State transitions:
//
//	PENDING -> ALIVE (spawn or timer start)
//	ALIVE -> EXPIRED (death)
//	EXPIRED -> RESPAWNING (respawn grant)
//	RESPAWNING -> ALIVE (next timer start)
type LifecycleStatus string

const (
	// StatusPending indicates an agent known to the bundle but not yet spawned.
	StatusPending LifecycleStatus = "pending"
	// StatusAlive indicates a running life with or without an active countdown.
	StatusAlive LifecycleStatus = "alive"
	// StatusRespawning indicates a granted new life whose countdown has not started.
	StatusRespawning LifecycleStatus = "respawning"
	// StatusExpired indicates the countdown ran out and no new life has begun.
	StatusExpired LifecycleStatus = "expired"
)

// IsAlive returns true while the agent holds a running life.
func (s LifecycleStatus) IsAlive() bool {
	return s == StatusAlive
}

// Ended returns true once the countdown has run out and nothing replaced it.
func (s LifecycleStatus) Ended() bool {
	return s == StatusExpired
}

// =============================================================================
// Agent Snapshot
// =============================================================================

// AgentSnapshot is one agent's derived state at the playhead.
//
// Nil pointers mean "never observed": MSLeft is nil before any countdown and
// after a respawn, 0 after death. LastChunk and LastDiary hold the most
// recent streamed fragment and diary entry at or before the playhead.
type AgentSnapshot struct {
	AgentID         string
	Status          LifecycleStatus
	LifeIndex       int
	MSLeft          *int64
	TimerDurationMS *int64
	TickSeconds     *float64
	LastChunk       string
	LastDiary       *event.DiaryEntry
}

// New returns the pre-spawn snapshot for an agent.
func New(agentID string) *AgentSnapshot {
	return &AgentSnapshot{AgentID: agentID, Status: StatusPending}
}

// Clone returns a deep copy. Live state publication hands snapshots to
// readers, so the owning goroutine must never mutate a published copy.
func (s *AgentSnapshot) Clone() *AgentSnapshot {
	if s == nil {
		return nil
	}
	out := *s
	if s.MSLeft != nil {
		v := *s.MSLeft
		out.MSLeft = &v
	}
	if s.TimerDurationMS != nil {
		v := *s.TimerDurationMS
		out.TimerDurationMS = &v
	}
	if s.TickSeconds != nil {
		v := *s.TickSeconds
		out.TickSeconds = &v
	}
	if s.LastDiary != nil {
		d := *s.LastDiary
		if d.Tags != nil {
			d.Tags = append([]string(nil), d.Tags...)
		}
		out.LastDiary = &d
	}
	return &out
}

// Apply transitions the snapshot by event kind.
//
// Transitions are field-skipping on malformed payloads: whatever the payload
// does carry is applied, the missing field's update is skipped, and the
// malformed error is returned for logging. Unknown kinds are no-ops.
func (s *AgentSnapshot) Apply(e *event.Event) error {
	switch e.Kind {
	case event.KindAgentSpawned:
		s.Status = StatusAlive
		s.LifeIndex = 0
		s.MSLeft = nil

	case event.KindTimerStarted:
		view := e.TimerStart()
		s.Status = StatusAlive
		if view.DurationMS != nil {
			duration := *view.DurationMS
			left := duration
			s.TimerDurationMS = &duration
			s.MSLeft = &left
		}
		if view.TickSeconds != nil {
			tick := *view.TickSeconds
			s.TickSeconds = &tick
		}

	case event.KindTimerTick:
		view := e.TimerTick()
		if view.MSLeft != nil {
			left := *view.MSLeft
			s.MSLeft = &left
		}

	case event.KindAgentChunk:
		view := e.Chunk()
		if view.HasContent {
			s.LastChunk = view.Content
		}

	case event.KindAgentDiary:
		if _, ok := e.Payload.String("text"); ok {
			entry := e.Diary(func() int64 { return e.TSMs })
			s.LastDiary = &entry
			s.LifeIndex = entry.LifeIndex
		}

	case event.KindAgentDeath:
		zero := int64(0)
		s.Status = StatusExpired
		s.MSLeft = &zero

	case event.KindAgentRespawn:
		view := e.Respawn()
		s.Status = StatusRespawning
		if view.LifeIndex != nil {
			s.LifeIndex = int(*view.LifeIndex)
		} else {
			s.LifeIndex++
		}
		s.MSLeft = nil
		s.TimerDurationMS = nil
	}

	return e.Malformed()
}

// =============================================================================
// Reductions
// =============================================================================

// Fold applies every event at or before playheadMS onto snaps, creating
// snapshots the first time an agent id resolves. Events must already be in
// log order; events without a resolvable agent are skipped.
func Fold(snaps map[string]*AgentSnapshot, events []*event.Event, playheadMS int64) {
	for _, e := range events {
		if e.TSMs > playheadMS {
			break
		}
		agentID := e.AgentID()
		if agentID == "" {
			continue
		}
		s := snaps[agentID]
		if s == nil {
			s = New(agentID)
			snaps[agentID] = s
		}
		s.Apply(e)
	}
}

// SnapshotsAt computes every agent's snapshot at playheadMS.
//
// Pure in (bundle, playheadMS): no state survives between calls, so replaying
// any prefix always lands on the same result. Agents with no events by the
// playhead sit at pending.
func SnapshotsAt(b *bundle.Bundle, playheadMS int64) map[string]*AgentSnapshot {
	snaps := make(map[string]*AgentSnapshot)
	for _, agentID := range b.AgentIDs() {
		snaps[agentID] = New(agentID)
	}
	Fold(snaps, b.Events, playheadMS)
	return snaps
}
