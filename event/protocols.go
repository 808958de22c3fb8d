// Package event defines the canonical telemetry vocabulary and protocols.
//
// This package declares the types every subsystem depends on: the normalized
// event shape, the closed set of recognized event kinds, timestamp
// normalization, payload field access, diary/profile records, and the error
// taxonomy. Subsystems (bundle normalization, snapshot replay, live
// reconciliation) depend on these protocols, not on each other's internals.
//
// Protocol Categories:
//   - Event Model: Event, Kind, Payload
//   - Time: timestamp normalization (total, repair-based)
//   - Records: DiaryEntry, AgentProfile
//   - Ambient: Logger
package event

// Logger is the canonical protocol for structured logging.
// Implementations live in the binary (stdlib adapter) and in testutil.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// NopLogger is a Logger that discards everything.
// Used as the default when no logger is injected.
type NopLogger struct{}

func (NopLogger) Debug(msg string, keysAndValues ...any) {}
func (NopLogger) Info(msg string, keysAndValues ...any)  {}
func (NopLogger) Warn(msg string, keysAndValues ...any)  {}
func (NopLogger) Error(msg string, keysAndValues ...any) {}

var _ Logger = NopLogger{}
