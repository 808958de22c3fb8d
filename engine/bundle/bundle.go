// Package bundle validates archival telemetry exports and normalizes them
// into the canonical in-memory model the reducers consume.
//
// A raw export is weakly typed JSON: free-form config and metadata maps, a
// flat event list, per-agent diaries. Normalization validates the structure,
// repairs timestamps, imposes the (tsMs, seq) total order on the event log,
// builds per-agent indices, derives the timeline bounds, merges model-route
// evidence, and links deaths to the diary entries they plausibly provoked.
// The resulting Bundle is immutable: reducers read it, nothing mutates it.
package bundle

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mortality-lab/telemetry/engine/clock"
	"github.com/mortality-lab/telemetry/engine/config"
	"github.com/mortality-lab/telemetry/engine/observability"
	"github.com/mortality-lab/telemetry/event"
)

var tracer = otel.Tracer("telemetry/bundle")

// ExpectedBundleType is the envelope marker written by the recording side.
// Mismatches are logged, not fatal: older exports remain loadable.
const ExpectedBundleType = "mortality/ui#events"

// SupportedSchemaVersion is the envelope version this normalizer targets.
const SupportedSchemaVersion = 1

// =============================================================================
// Canonical Model
// =============================================================================

// Experiment identifies the recorded run.
type Experiment struct {
	Slug        string `json:"slug"`
	Description string `json:"description"`
}

// Timeline is the closed playback range covering every normalized timestamp
// in the bundle. DurationMS is never below 1 so fraction math stays defined
// for single-instant bundles.
type Timeline struct {
	StartMS    int64 `json:"start_ms"`
	EndMS      int64 `json:"end_ms"`
	DurationMS int64 `json:"duration_ms"`
}

// Clamp forces ms into [StartMS, EndMS].
func (t Timeline) Clamp(ms int64) int64 {
	if ms < t.StartMS {
		return t.StartMS
	}
	if ms > t.EndMS {
		return t.EndMS
	}
	return ms
}

// At maps a fraction in [0, 1] onto the timeline. Out-of-range fractions
// clamp to the nearest bound.
func (t Timeline) At(fraction float64) int64 {
	if fraction <= 0 {
		return t.StartMS
	}
	if fraction >= 1 {
		return t.EndMS
	}
	return t.StartMS + int64(fraction*float64(t.DurationMS))
}

// Bundle is the canonical in-memory model of one recorded session.
//
// Events is sorted by (TSMs, Seq) ascending; ByAgent holds the same event
// pointers partitioned by resolved agent id, in the same order. Events with
// no resolvable agent stay in the flat log only.
type Bundle struct {
	BundleType    string
	SchemaVersion int
	ExportedAtRaw string
	ExportedAtMS  int64
	Experiment    Experiment
	Config        event.Payload
	LLM           event.Payload
	Agents        map[string]event.AgentProfile
	Metadata      event.Payload
	Diaries       map[string][]event.DiaryEntry
	Events        []*event.Event
	Extra         event.Payload

	ByAgent    map[string][]*event.Event
	Timeline   Timeline
	Routes     map[string]*RouteInfo
	Connectors []DiaryConnector

	// DegradedTimestamps counts event and diary timestamps that fell back to
	// the wall clock during normalization.
	DegradedTimestamps int
}

// EventsForAgent returns the agent's ordered event slice, nil when the agent
// produced nothing attributable.
func (b *Bundle) EventsForAgent(agentID string) []*event.Event {
	return b.ByAgent[agentID]
}

// AgentIDs returns every agent known to the bundle, sorted. The union covers
// profile keys, diary keys and ids resolved from event payloads, so agents
// that died before their profile was exported still appear.
func (b *Bundle) AgentIDs() []string {
	seen := make(map[string]struct{}, len(b.Agents))
	for id := range b.Agents {
		seen[id] = struct{}{}
	}
	for id := range b.Diaries {
		seen[id] = struct{}{}
	}
	for id := range b.ByAgent {
		seen[id] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DiaryGroups returns the agent's diary partitioned by life.
func (b *Bundle) DiaryGroups(agentID string) []event.DiaryLifeGroup {
	return event.GroupDiariesByLife(b.Diaries[agentID])
}

// DeathNotes returns the exporter's metadata.deaths list, empty when absent.
func (b *Bundle) DeathNotes() []string {
	notes, _ := b.Metadata.StringSlice("deaths")
	return notes
}

// RunDurations returns the exporter's metadata.durations list in seconds,
// empty when absent. Non-numeric entries are skipped.
func (b *Bundle) RunDurations() []float64 {
	durations, _ := b.Metadata.Float64Slice("durations")
	return durations
}

// =============================================================================
// Normalizer
// =============================================================================

// Normalizer turns raw archival payloads into Bundles.
type Normalizer struct {
	cfg    *config.EngineConfig
	clk    clock.Clock
	logger event.Logger
}

// NewNormalizer builds a Normalizer. Nil arguments fall back to the global
// config, the system clock and the no-op logger.
func NewNormalizer(cfg *config.EngineConfig, clk clock.Clock, logger event.Logger) *Normalizer {
	if cfg == nil {
		cfg = config.GetEngineConfig()
	}
	if clk == nil {
		clk = clock.System()
	}
	if logger == nil {
		logger = event.NopLogger{}
	}
	return &Normalizer{cfg: cfg, clk: clk, logger: logger}
}

// Decode unmarshals and normalizes a wire-format bundle document.
func (n *Normalizer) Decode(data []byte) (*Bundle, error) {
	_, span := tracer.Start(context.Background(), "bundle.normalize",
		trace.WithAttributes(attribute.Int("mortality.bundle_bytes", len(data))))
	defer span.End()

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		observability.RecordSchemaViolation()
		sv := &event.SchemaViolationError{Detail: "invalid json: " + err.Error()}
		span.RecordError(sv)
		span.SetStatus(codes.Error, "invalid json")
		return nil, sv
	}
	if err := validateShape(doc); err != nil {
		observability.RecordSchemaViolation()
		if sv, ok := err.(*event.SchemaViolationError); ok {
			n.logger.Error("bundle_schema_violation", "path", sv.Path, "detail", sv.Detail)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "schema violation")
		return nil, err
	}
	root, _ := doc.(map[string]any)
	b := n.build(event.Payload(root))
	span.SetAttributes(attribute.Int("mortality.event_count", len(b.Events)))
	span.SetStatus(codes.Ok, "normalized")
	return b, nil
}

// Normalize validates and normalizes an already-decoded payload. The payload
// is round-tripped through JSON first so numeric types match what Decode
// sees and the input map is never aliased.
func (n *Normalizer) Normalize(raw map[string]any) (*Bundle, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, &event.SchemaViolationError{Detail: "payload not json-encodable: " + err.Error()}
	}
	return n.Decode(data)
}

// build assembles the Bundle from a schema-valid document.
func (n *Normalizer) build(root event.Payload) *Bundle {
	start := time.Now()
	degraded := 0

	b := &Bundle{
		BundleType:    root.StringDefault("bundle_type", ""),
		ExportedAtRaw: root.StringDefault("exported_at", ""),
	}
	if v, ok := root.Int64("schema_version"); ok {
		b.SchemaVersion = int(v)
	}
	if b.BundleType != "" && b.BundleType != ExpectedBundleType {
		n.logger.Warn("unexpected_bundle_type", "expected", ExpectedBundleType, "got", b.BundleType)
	}
	if b.SchemaVersion != 0 && b.SchemaVersion != SupportedSchemaVersion {
		n.logger.Warn("unexpected_schema_version", "supported", SupportedSchemaVersion, "got", b.SchemaVersion)
	}
	if b.ExportedAtRaw != "" {
		b.ExportedAtMS, _ = event.ParseTimestampMS(b.ExportedAtRaw, n.clk.NowMS)
	}

	if exp, ok := root.Map("experiment"); ok {
		b.Experiment = Experiment{
			Slug:        exp.StringDefault("slug", ""),
			Description: exp.StringDefault("description", ""),
		}
	}
	b.Config, _ = root.Map("config")
	b.LLM, _ = root.Map("llm")
	b.Metadata, _ = root.Map("metadata")
	b.Extra, _ = root.Map("extra")

	if agentsRaw, ok := root.Map("agents"); ok {
		b.Agents = make(map[string]event.AgentProfile, len(agentsRaw))
		for id, v := range agentsRaw {
			body, _ := v.(map[string]any)
			b.Agents[id] = event.DecodeAgentProfile(event.Payload(body), id)
		}
	}

	if diariesRaw, ok := root.Map("diaries"); ok {
		b.Diaries = make(map[string][]event.DiaryEntry, len(diariesRaw))
		for id, v := range diariesRaw {
			list, _ := v.([]any)
			entries := make([]event.DiaryEntry, 0, len(list))
			for _, item := range list {
				body, _ := item.(map[string]any)
				entry := event.DecodeDiaryEntry(event.Payload(body), n.clk.NowMS)
				if entry.Degraded {
					degraded++
				}
				entries = append(entries, entry)
			}
			b.Diaries[id] = entries
		}
	}

	rawEvents, _ := root["events"].([]any)
	b.Events = make([]*event.Event, 0, len(rawEvents))
	unknown := 0
	for _, item := range rawEvents {
		body, _ := item.(map[string]any)
		e := event.FromMap(body, n.clk.NowMS)
		if e.Degraded {
			degraded++
		}
		if !e.Kind.Known() {
			unknown++
		}
		b.Events = append(b.Events, e)
		observability.RecordEventIngested("bundle", string(e.Kind))
		if e.Malformed() != nil {
			observability.RecordMalformedEvent(string(e.Kind))
		}
	}
	sort.SliceStable(b.Events, func(i, j int) bool {
		return event.Less(b.Events[i], b.Events[j])
	})

	b.ByAgent = make(map[string][]*event.Event)
	for _, e := range b.Events {
		if id := e.AgentID(); id != "" {
			b.ByAgent[id] = append(b.ByAgent[id], e)
		}
	}

	b.Timeline = deriveTimeline(b.Events, b.Diaries, n.clk.NowMS())
	b.Routes = deriveRoutes(b.Events, b.Metadata)
	b.Connectors = deriveConnectors(b.Events, b.Diaries, n.cfg.ConnectorWindowMS, n.cfg.ConnectorMaxPerDeath)
	b.DegradedTimestamps = degraded

	if unknown > 0 {
		n.logger.Debug("unknown_event_kinds_retained", "count", unknown)
	}
	if degraded > 0 {
		observability.RecordDegradedTimestamps(degraded)
		n.logger.Warn("timestamps_degraded_to_wall_clock", "count", degraded)
	}
	observability.RecordBundleNormalized(len(b.Events), int(time.Since(start).Milliseconds()))
	n.logger.Info("bundle_normalized",
		"experiment", b.Experiment.Slug,
		"events", len(b.Events),
		"agents", len(b.AgentIDs()),
		"connectors", len(b.Connectors),
	)
	return b
}

// deriveTimeline computes the closed range over every event and diary
// timestamp, or [now, now+1] when the bundle is empty.
func deriveTimeline(events []*event.Event, diaries map[string][]event.DiaryEntry, nowMS int64) Timeline {
	haveAny := false
	var minMS, maxMS int64
	observe := func(ms int64) {
		if !haveAny {
			minMS, maxMS = ms, ms
			haveAny = true
			return
		}
		if ms < minMS {
			minMS = ms
		}
		if ms > maxMS {
			maxMS = ms
		}
	}
	for _, e := range events {
		observe(e.TSMs)
	}
	for _, entries := range diaries {
		for _, entry := range entries {
			observe(entry.CreatedAtMS)
		}
	}
	if !haveAny {
		minMS, maxMS = nowMS, nowMS+1
	}
	duration := maxMS - minMS
	if duration < 1 {
		duration = 1
	}
	return Timeline{StartMS: minMS, EndMS: maxMS, DurationMS: duration}
}
