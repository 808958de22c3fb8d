package event

import "fmt"

// =============================================================================
// Error Taxonomy
// =============================================================================

// Four failure classes cover this core. SchemaViolationError is fatal to a
// bundle load; ConnectionError drives the live retry machinery;
// MalformedEventError is a per-event degradation that never fails a fold;
// degraded timestamps are not errors at all, they are carried as a flag on
// the Event/DiaryEntry so tests and metrics can observe the substitution.

// SchemaViolationError reports an archival bundle failing structural
// validation. Fatal to that load attempt: the caller gets the offending
// field path and no partial state is committed.
type SchemaViolationError struct {
	Path   string
	Detail string
}

func (e *SchemaViolationError) Error() string {
	if e.Path == "" {
		return "schema violation: " + e.Detail
	}
	return fmt.Sprintf("schema violation at %s: %s", e.Path, e.Detail)
}

// ConnectionError records a live transport failure in human-readable form.
// Attempt is the reconnect attempt that failed (0 for the initial connect).
type ConnectionError struct {
	URL     string
	Attempt int
	Detail  string
	Err     error
}

func (e *ConnectionError) Error() string {
	msg := fmt.Sprintf("feed connection failed (%s): %s", e.URL, e.Detail)
	if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d)", msg, e.Attempt)
	}
	return msg
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// MalformedEventError reports a payload missing the field its kind's
// transition depends on. Non-fatal: the derived field is left alone and the
// event still lands in logs and counters.
type MalformedEventError struct {
	Kind  Kind
	Field string
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed %s event: missing %s", e.Kind, e.Field)
}

// Malformed reports whether the event's payload is missing the field its
// kind's primary transition needs. Kinds with no payload requirement and
// unknown kinds always pass.
func (e *Event) Malformed() error {
	switch e.Kind {
	case KindTimerStarted:
		if _, ok := e.Payload.Int64("duration_ms"); !ok {
			return &MalformedEventError{Kind: e.Kind, Field: "duration_ms"}
		}
	case KindTimerTick:
		if _, ok := e.Payload.Int64("ms_left"); !ok {
			return &MalformedEventError{Kind: e.Kind, Field: "ms_left"}
		}
	case KindAgentChunk:
		if _, ok := e.Payload.String("content"); !ok {
			return &MalformedEventError{Kind: e.Kind, Field: "content"}
		}
	case KindAgentDiary:
		if _, ok := e.Payload.String("text"); !ok {
			return &MalformedEventError{Kind: e.Kind, Field: "text"}
		}
	case KindAgentRoute:
		if _, ok := e.Payload.String("model"); !ok {
			if _, ok := e.Payload.StringSlice("history"); !ok {
				return &MalformedEventError{Kind: e.Kind, Field: "model"}
			}
		}
	}
	return nil
}
