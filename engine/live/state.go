// Package live provides the reconciler that mirrors a running session over
// a websocket feed - NO rendering, NO persistence.
//
// Key concepts:
//   - LiveState: the single mutable aggregate, replaced copy-on-write per
//     inbound frame; readers always hold an immutable snapshot
//   - Reconciler: the only owner of LiveState; a mailbox run loop applies
//     socket frames, timer fires and caller commands one at a time
//   - Ring: bounded window of recent events with eviction accounting
//
// The live fold uses the same per-kind transitions as archival replay, so a
// view backed by either source behaves identically.
package live

import (
	"sort"

	"github.com/mortality-lab/telemetry/engine/snapshot"
	"github.com/mortality-lab/telemetry/event"
)

// =============================================================================
// TIMER TABLE
// =============================================================================

// Timer status strings as the feed reports them.
const (
	TimerActive  = "active"
	TimerExpired = "expired"
	TimerDead    = "dead"
)

// TimerInfo is one agent's countdown as the feed's timer table describes it.
type TimerInfo struct {
	AgentID     string
	Status      string
	DurationMS  *int64
	MSLeft      *int64
	TickSeconds *float64
	StartedAt   string
	LifeIndex   *int
}

func decodeTimerInfo(agentID string, p event.Payload) *TimerInfo {
	info := &TimerInfo{AgentID: agentID, Status: p.StringDefault("status", TimerActive)}
	if ms, ok := p.Int64("duration_ms"); ok {
		info.DurationMS = &ms
	}
	if ms, ok := p.Int64("ms_left"); ok {
		info.MSLeft = &ms
	}
	if s, ok := p.Float64("tick_seconds"); ok {
		info.TickSeconds = &s
	}
	info.StartedAt = p.StringDefault("started_at", "")
	if idx, ok := p.Int64("life_index"); ok {
		i := int(idx)
		info.LifeIndex = &i
	}
	return info
}

func (t *TimerInfo) clone() *TimerInfo {
	if t == nil {
		return nil
	}
	out := &TimerInfo{AgentID: t.AgentID, Status: t.Status, StartedAt: t.StartedAt}
	if t.DurationMS != nil {
		ms := *t.DurationMS
		out.DurationMS = &ms
	}
	if t.MSLeft != nil {
		ms := *t.MSLeft
		out.MSLeft = &ms
	}
	if t.TickSeconds != nil {
		s := *t.TickSeconds
		out.TickSeconds = &s
	}
	if t.LifeIndex != nil {
		i := *t.LifeIndex
		out.LifeIndex = &i
	}
	return out
}

// =============================================================================
// METRICS FOLD
// =============================================================================

// Metrics are the running totals the live view displays. They accumulate
// from the initial event window and every event frame thereafter.
type Metrics struct {
	TotalMessages     int
	TotalDiaryEntries int
	TotalBroadcasts   int
	TotalToolCalls    int
	TotalDeaths       int
	PerAgent          map[string]int
}

func newMetrics() Metrics {
	return Metrics{PerAgent: make(map[string]int)}
}

func (m Metrics) clone() Metrics {
	out := m
	out.PerAgent = make(map[string]int, len(m.PerAgent))
	for k, v := range m.PerAgent {
		out.PerAgent[k] = v
	}
	return out
}

// =============================================================================
// LIVE STATE
// =============================================================================

// LiveState is the reconciled mirror of the running session.
//
// Instances are immutable to everyone but the reconciler, which mutates only
// fresh clones before publishing them. Holding a *LiveState across frames is
// safe; it simply goes stale.
type LiveState struct {
	Agents   map[string]*snapshot.AgentSnapshot
	Profiles map[string]event.AgentProfile
	Timers   map[string]*TimerInfo
	Diaries  map[string][]event.DiaryEntry
	Ring     *Ring
	Metrics  Metrics

	// OriginMS is the earliest event instant seen on this connection, used
	// as the elapsed-time origin. Zero until the first event arrives.
	OriginMS int64
}

// NewLiveState returns the empty default state.
func NewLiveState(ringCapacity int) *LiveState {
	return &LiveState{
		Agents:   make(map[string]*snapshot.AgentSnapshot),
		Profiles: make(map[string]event.AgentProfile),
		Timers:   make(map[string]*TimerInfo),
		Diaries:  make(map[string][]event.DiaryEntry),
		Ring:     NewRing(ringCapacity),
		Metrics:  newMetrics(),
	}
}

// Clone returns an independent copy suitable for mutation.
func (s *LiveState) Clone() *LiveState {
	out := &LiveState{
		Agents:   make(map[string]*snapshot.AgentSnapshot, len(s.Agents)),
		Profiles: make(map[string]event.AgentProfile, len(s.Profiles)),
		Timers:   make(map[string]*TimerInfo, len(s.Timers)),
		Diaries:  make(map[string][]event.DiaryEntry, len(s.Diaries)),
		Ring:     s.Ring.Clone(),
		Metrics:  s.Metrics.clone(),
		OriginMS: s.OriginMS,
	}
	for id, snap := range s.Agents {
		out.Agents[id] = snap.Clone()
	}
	for id, profile := range s.Profiles {
		out.Profiles[id] = profile
	}
	for id, info := range s.Timers {
		out.Timers[id] = info.clone()
	}
	for id, entries := range s.Diaries {
		out.Diaries[id] = entries
	}
	return out
}

// AgentIDs returns every known agent id in sorted order.
func (s *LiveState) AgentIDs() []string {
	seen := make(map[string]struct{}, len(s.Agents))
	for id := range s.Agents {
		seen[id] = struct{}{}
	}
	for id := range s.Profiles {
		seen[id] = struct{}{}
	}
	for id := range s.Timers {
		seen[id] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RecentEvents returns the ring contents, oldest first.
func (s *LiveState) RecentEvents() []*event.Event {
	return s.Ring.Events()
}

// ElapsedMS returns milliseconds since the earliest observed event, or zero
// when no event has arrived yet.
func (s *LiveState) ElapsedMS(nowMS int64) int64 {
	if s.OriginMS == 0 || nowMS < s.OriginMS {
		return 0
	}
	return nowMS - s.OriginMS
}

// =============================================================================
// REDUCER
// =============================================================================

// applyEvent folds one event into the state: ring append, per-kind snapshot
// transition, metrics counters, diary capture, timer table. Reports whether
// the ring evicted an entry; the returned error is the malformed-payload
// degradation, never a failure (counters and the ring keep the event either
// way).
func (s *LiveState) applyEvent(e *event.Event) (dropped bool, err error) {
	dropped = s.Ring.Append(e)
	if s.OriginMS == 0 || e.TSMs < s.OriginMS {
		s.OriginMS = e.TSMs
	}

	s.countEvent(e)

	agentID := e.AgentID()
	if agentID == "" {
		return dropped, nil
	}
	snap := s.Agents[agentID]
	if snap == nil {
		snap = snapshot.New(agentID)
		s.Agents[agentID] = snap
	}
	err = snap.Apply(e)

	if e.Kind == event.KindAgentDiary {
		entry := e.Diary(func() int64 { return e.TSMs })
		if entry.Text != "" {
			s.Diaries[agentID] = append(append([]event.DiaryEntry(nil), s.Diaries[agentID]...), entry)
		}
	}

	s.applyTimerTable(e, agentID)
	return dropped, err
}

// countEvent accumulates the metric totals. Totals are per kind regardless
// of attribution; per-agent counts need a resolvable id.
func (s *LiveState) countEvent(e *event.Event) {
	switch e.Kind {
	case event.KindAgentMessage:
		s.Metrics.TotalMessages++
	case event.KindAgentDiary:
		s.Metrics.TotalDiaryEntries++
	case event.KindAgentBroadcast:
		s.Metrics.TotalBroadcasts++
	case event.KindAgentToolCall:
		s.Metrics.TotalToolCalls++
	case event.KindAgentDeath:
		s.Metrics.TotalDeaths++
	}
	if agentID := e.AgentID(); agentID != "" {
		s.Metrics.PerAgent[agentID]++
	}
}

// applyTimerTable keeps the live timer table in step with the event stream,
// matching the transitions the feed itself applies before snapshotting.
func (s *LiveState) applyTimerTable(e *event.Event, agentID string) {
	switch e.Kind {
	case event.KindTimerStarted:
		v := e.TimerStart()
		info := &TimerInfo{
			AgentID:     agentID,
			Status:      TimerActive,
			DurationMS:  v.DurationMS,
			TickSeconds: v.TickSeconds,
			StartedAt:   v.StartedAt,
		}
		if v.DurationMS != nil {
			left := *v.DurationMS
			info.MSLeft = &left
		}
		if snap := s.Agents[agentID]; snap != nil {
			life := snap.LifeIndex
			info.LifeIndex = &life
		}
		s.Timers[agentID] = info
	case event.KindTimerTick:
		info := s.Timers[agentID]
		if info == nil {
			return
		}
		if v := e.TimerTick(); v.MSLeft != nil {
			left := *v.MSLeft
			info.MSLeft = &left
		}
	case event.KindTimerExpired:
		info := s.Timers[agentID]
		if info == nil {
			return
		}
		info.Status = TimerExpired
		zero := int64(0)
		info.MSLeft = &zero
	case event.KindAgentDeath:
		if info := s.Timers[agentID]; info != nil {
			info.Status = TimerDead
		}
	}
}

// overlayTimer applies a feed timer-table row onto an agent snapshot. The
// table is the feed's present truth, so it wins over whatever the replayed
// event window left behind.
func overlayTimer(snap *snapshot.AgentSnapshot, info *TimerInfo) {
	switch info.Status {
	case TimerExpired, TimerDead:
		snap.Status = snapshot.StatusExpired
		zero := int64(0)
		snap.MSLeft = &zero
	default:
		snap.Status = snapshot.StatusAlive
	}
	if info.MSLeft != nil {
		left := *info.MSLeft
		snap.MSLeft = &left
	}
	if info.DurationMS != nil {
		d := *info.DurationMS
		snap.TimerDurationMS = &d
	}
	if info.TickSeconds != nil {
		ts := *info.TickSeconds
		snap.TickSeconds = &ts
	}
	if info.LifeIndex != nil {
		snap.LifeIndex = *info.LifeIndex
	}
}
