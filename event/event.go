package event

// =============================================================================
// Normalized Event
// =============================================================================

// Event is one normalized telemetry occurrence.
//
// Seq is a source-assigned monotonically increasing identifier; it breaks
// ordering ties because timestamp resolution may collide. TSMs is derived
// from TSRaw at normalization time and never re-parsed afterwards. Events are
// immutable once constructed: reducers read them, nothing mutates them.
type Event struct {
	Seq      int64   `json:"seq"`
	Kind     Kind    `json:"event"`
	TSRaw    string  `json:"ts"`
	TSMs     int64   `json:"-"`
	Degraded bool    `json:"-"`
	Payload  Payload `json:"payload,omitempty"`
}

// FromMap builds a normalized Event from a decoded JSON object.
//
// Decoding never fails: absent fields become zero values and an absent or
// unparseable timestamp falls back to nowMS with the degraded flag set.
// Structural guarantees are the bundle validator's job, not this one's.
func FromMap(m map[string]any, nowMS func() int64) *Event {
	p := Payload(m)
	seq, _ := p.Int64("seq")
	kind, _ := p.String("event")
	tsRaw, _ := p.String("ts")
	payload, _ := p.Map("payload")

	tsMs, degraded := ParseTimestampMS(tsRaw, nowMS)
	return &Event{
		Seq:      seq,
		Kind:     Kind(kind),
		TSRaw:    tsRaw,
		TSMs:     tsMs,
		Degraded: degraded,
		Payload:  payload,
	}
}

// Less is the total order on events: (TSMs, Seq) ascending.
// Every sorted view in the system uses this comparator; applying events in
// any other order changes terminal state.
func Less(a, b *Event) bool {
	if a.TSMs != b.TSMs {
		return a.TSMs < b.TSMs
	}
	return a.Seq < b.Seq
}

// AgentID resolves the owning agent via the shared payload rules.
func (e *Event) AgentID() string {
	return e.Payload.AgentID()
}

// ToMap renders the event in its wire shape (seq, event, ts, payload).
func (e *Event) ToMap() map[string]any {
	m := map[string]any{
		"seq":   e.Seq,
		"event": string(e.Kind),
		"ts":    e.TSRaw,
	}
	if e.Payload != nil {
		m["payload"] = map[string]any(e.Payload.Clone())
	}
	return m
}

// =============================================================================
// Per-Kind Payload Views
// =============================================================================

// The views below are the recognized payload shapes for each kind. Decoding
// never fails: absent fields come back as nil pointers or zero values, which
// reducers translate into "leave the previous value alone".

// TimerStartView is the recognized shape of timer.started.
type TimerStartView struct {
	AgentID     string
	DurationMS  *int64
	TickSeconds *float64
	StartedAt   string
}

// TimerStart decodes the timer.started payload.
func (e *Event) TimerStart() TimerStartView {
	v := TimerStartView{AgentID: e.AgentID()}
	if ms, ok := e.Payload.Int64("duration_ms"); ok {
		v.DurationMS = &ms
	}
	if s, ok := e.Payload.Float64("tick_seconds"); ok {
		v.TickSeconds = &s
	}
	v.StartedAt = e.Payload.StringDefault("started_at", "")
	return v
}

// TimerTickView is the recognized shape of timer.tick.
type TimerTickView struct {
	AgentID     string
	MSLeft      *int64
	TickIndex   *int64
	IsTerminal  bool
	DurationMS  *int64
	TickSeconds *float64
}

// TimerTick decodes the timer.tick payload.
func (e *Event) TimerTick() TimerTickView {
	v := TimerTickView{AgentID: e.AgentID()}
	if ms, ok := e.Payload.Int64("ms_left"); ok {
		v.MSLeft = &ms
	}
	if idx, ok := e.Payload.Int64("tick_index"); ok {
		v.TickIndex = &idx
	}
	v.IsTerminal, _ = e.Payload.Bool("is_terminal")
	if ms, ok := e.Payload.Int64("duration_ms"); ok {
		v.DurationMS = &ms
	}
	if s, ok := e.Payload.Float64("tick_seconds"); ok {
		v.TickSeconds = &s
	}
	return v
}

// ChunkView is the recognized shape of agent.chunk.
// Content is only considered present when the payload value is a string.
type ChunkView struct {
	AgentID    string
	Content    string
	HasContent bool
	TickMSLeft *int64
	Cause      string
}

// Chunk decodes the agent.chunk payload.
func (e *Event) Chunk() ChunkView {
	v := ChunkView{AgentID: e.AgentID()}
	v.Content, v.HasContent = e.Payload.String("content")
	if ms, ok := e.Payload.Int64("tick_ms_left"); ok {
		v.TickMSLeft = &ms
	}
	v.Cause = e.Payload.StringDefault("cause", "")
	return v
}

// DeathView is the recognized shape of agent.death.
type DeathView struct {
	AgentID    string
	LastTickMS *int64
}

// Death decodes the agent.death payload.
func (e *Event) Death() DeathView {
	v := DeathView{AgentID: e.AgentID()}
	if ms, ok := e.Payload.Int64("last_tick_ms"); ok {
		v.LastTickMS = &ms
	}
	return v
}

// RespawnView is the recognized shape of agent.respawn.
type RespawnView struct {
	AgentID   string
	LifeIndex *int64
}

// Respawn decodes the agent.respawn payload.
func (e *Event) Respawn() RespawnView {
	v := RespawnView{AgentID: e.AgentID()}
	if idx, ok := e.Payload.Int64("life_index"); ok {
		v.LifeIndex = &idx
	}
	return v
}

// RouteView is the recognized shape of agent.route.
type RouteView struct {
	AgentID string
	Model   string
	History []string
}

// Route decodes the agent.route payload.
func (e *Event) Route() RouteView {
	v := RouteView{AgentID: e.AgentID()}
	v.Model = e.Payload.StringDefault("model", "")
	v.History, _ = e.Payload.StringSlice("history")
	return v
}

// SpawnView is the recognized shape of agent.spawned.
type SpawnView struct {
	AgentID  string
	Profile  Payload
	Provider string
	Model    string
}

// Spawn decodes the agent.spawned payload.
func (e *Event) Spawn() SpawnView {
	v := SpawnView{AgentID: e.AgentID()}
	v.Profile, _ = e.Payload.Map("profile")
	if session, ok := e.Payload.Map("session"); ok {
		v.Provider = session.StringDefault("provider", "")
		v.Model = session.StringDefault("model", "")
	}
	return v
}

// Diary decodes the agent.diary_entry payload into a DiaryEntry record.
func (e *Event) Diary(nowMS func() int64) DiaryEntry {
	return DecodeDiaryEntry(e.Payload, nowMS)
}
