package event

// =============================================================================
// Event Kinds
// =============================================================================

// Kind is the wire identifier of a telemetry event.
//
// The value always carries the raw string from the source so unrecognized
// kinds survive round-trips; the constants below form the closed set every
// reducer switches over. Anything outside the set must be treated as a no-op.
type Kind string

const (
	// KindAgentSpawned marks an agent entering its first life.
	KindAgentSpawned Kind = "agent.spawned"
	// KindAgentMessage is a completed agent utterance.
	KindAgentMessage Kind = "agent.message"
	// KindAgentChunk is a streamed output fragment.
	KindAgentChunk Kind = "agent.chunk"
	// KindAgentDiary is a diary entry written by an agent.
	KindAgentDiary Kind = "agent.diary_entry"
	// KindAgentToolCall is an outbound tool invocation.
	KindAgentToolCall Kind = "agent.tool_call"
	// KindAgentToolResult is a tool invocation result.
	KindAgentToolResult Kind = "agent.tool_result"
	// KindAgentBroadcast is a message fanned out to all agents.
	KindAgentBroadcast Kind = "agent.broadcast"
	// KindAgentDeath marks an agent's countdown reaching zero.
	KindAgentDeath Kind = "agent.death"
	// KindAgentRespawn marks an agent starting a new life.
	KindAgentRespawn Kind = "agent.respawn"
	// KindAgentRoute records which backing model an agent was routed to.
	KindAgentRoute Kind = "agent.route"
	// KindTimerStarted marks a lifetime countdown starting.
	KindTimerStarted Kind = "timer.started"
	// KindTimerTick is a periodic countdown pulse.
	KindTimerTick Kind = "timer.tick"
	// KindTimerExpired marks a countdown running out.
	KindTimerExpired Kind = "timer.expired"
)

// recognizedKinds is the closed set reducers switch over.
var recognizedKinds = map[Kind]struct{}{
	KindAgentSpawned:    {},
	KindAgentMessage:    {},
	KindAgentChunk:      {},
	KindAgentDiary:      {},
	KindAgentToolCall:   {},
	KindAgentToolResult: {},
	KindAgentBroadcast:  {},
	KindAgentDeath:      {},
	KindAgentRespawn:    {},
	KindAgentRoute:      {},
	KindTimerStarted:    {},
	KindTimerTick:       {},
	KindTimerExpired:    {},
}

// Known returns true when the kind belongs to the recognized set.
// Unknown kinds are retained in logs but never drive state transitions.
func (k Kind) Known() bool {
	_, ok := recognizedKinds[k]
	return ok
}
