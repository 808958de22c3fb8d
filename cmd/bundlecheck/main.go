// Package main provides the bundlecheck CLI for pipeline bundle processing.
//
// This CLI reads telemetry JSON from stdin, performs one operation, and
// writes the result JSON to stdout. Designed for shell pipelines and
// subprocess-based interop.
//
// Usage:
//
//	# Check bundle structure
//	cat run.json | bundlecheck validate
//
//	# Rewrite a bundle in canonical wire form
//	cat run.json | bundlecheck normalize > canonical.json
//
//	# Report bundle contents as JSON
//	cat run.json | bundlecheck summary
//
//	# Normalize a single event object
//	echo '{"seq":1,"event":"agent.death","ts":"2024-01-01T10:01:01Z"}' | bundlecheck event
package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mortality-lab/telemetry/engine/bundle"
	"github.com/mortality-lab/telemetry/engine/clock"
	"github.com/mortality-lab/telemetry/engine/snapshot"
	"github.com/mortality-lab/telemetry/event"
)

const (
	cmdValidate  = "validate"
	cmdNormalize = "normalize"
	cmdSummary   = "summary"
	cmdEvent     = "event"
	cmdVersion   = "version"
)

// Version information
const (
	Version   = "1.0.0"
	BuildTime = "2026-08-25"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]

	switch cmd {
	case cmdVersion:
		handleVersion()
	case cmdValidate:
		handleValidate()
	case cmdNormalize:
		handleNormalize()
	case cmdSummary:
		handleSummary()
	case cmdEvent:
		handleEvent()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: bundlecheck <command>

Commands:
  validate   Check bundle JSON structure, report verdict and violation
  normalize  Rewrite a bundle in canonical wire form (sorted, repaired)
  summary    Report bundle contents as JSON
  event      Normalize a single event object
  version    Print version information

Input/Output:
  All commands read JSON from stdin and write JSON to stdout.
  Errors are written to stderr.

Examples:
  cat run.json | bundlecheck validate
  cat run.json | bundlecheck normalize > canonical.json
  echo '{"seq":1,"event":"agent.death"}' | bundlecheck event`)
}

// handleVersion prints version information.
func handleVersion() {
	output := map[string]string{
		"version":    Version,
		"build_time": BuildTime,
		"go_version": "1.24+",
	}
	writeJSON(output)
}

// handleValidate reports the schema verdict without failing the process;
// an invalid bundle is an answer, not an error.
func handleValidate() {
	input, err := readInput()
	if err != nil {
		writeError("read_error", err.Error())
		os.Exit(1)
	}

	n := bundle.NewNormalizer(nil, nil, nil)
	b, err := n.Decode(input)
	if err != nil {
		result := map[string]any{"valid": false}
		var sv *event.SchemaViolationError
		if errors.As(err, &sv) {
			result["path"] = sv.Path
			result["detail"] = sv.Detail
		} else {
			result["detail"] = err.Error()
		}
		writeJSON(result)
		return
	}

	writeJSON(map[string]any{
		"valid":               true,
		"events":              len(b.Events),
		"agents":              len(b.AgentIDs()),
		"degraded_timestamps": b.DegradedTimestamps,
	})
}

// handleNormalize rewrites the bundle in canonical wire form: events in
// (tsMs, seq) order, raw timestamps and unknown fields preserved.
func handleNormalize() {
	input, err := readInput()
	if err != nil {
		writeError("read_error", err.Error())
		os.Exit(1)
	}

	n := bundle.NewNormalizer(nil, nil, nil)
	b, err := n.Decode(input)
	if err != nil {
		writeError("invalid_bundle", err.Error())
		os.Exit(1)
	}

	writeJSON(b.ToMap())
}

// handleSummary reports bundle contents machine-readably.
func handleSummary() {
	input, err := readInput()
	if err != nil {
		writeError("read_error", err.Error())
		os.Exit(1)
	}

	n := bundle.NewNormalizer(nil, nil, nil)
	b, err := n.Decode(input)
	if err != nil {
		writeError("invalid_bundle", err.Error())
		os.Exit(1)
	}

	byKind := make(map[string]int)
	for _, e := range b.Events {
		byKind[string(e.Kind)]++
	}

	final := snapshot.SnapshotsAt(b, b.Timeline.EndMS)
	agents := make(map[string]any, len(final))
	for _, id := range b.AgentIDs() {
		s := final[id]
		entry := map[string]any{
			"status":        string(s.Status),
			"lives":         s.LifeIndex + 1,
			"diary_entries": len(b.Diaries[id]),
		}
		if route := b.Routes[id]; route != nil && route.Last != "" {
			entry["model"] = route.Last
		}
		agents[id] = entry
	}

	writeJSON(map[string]any{
		"experiment": b.Experiment.Slug,
		"timeline": map[string]any{
			"start_ms":    b.Timeline.StartMS,
			"end_ms":      b.Timeline.EndMS,
			"duration_ms": b.Timeline.DurationMS,
		},
		"events_total":        len(b.Events),
		"events_by_kind":      byKind,
		"agents":              agents,
		"connectors":          len(b.Connectors),
		"degraded_timestamps": b.DegradedTimestamps,
	})
}

// handleEvent normalizes one event object.
func handleEvent() {
	input, err := readInput()
	if err != nil {
		writeError("read_error", err.Error())
		os.Exit(1)
	}

	var body map[string]any
	if err := json.Unmarshal(input, &body); err != nil {
		writeError("parse_error", fmt.Sprintf("Invalid JSON: %s", err.Error()))
		os.Exit(1)
	}

	e := event.FromMap(body, clock.System().NowMS)
	writeJSON(map[string]any{
		"seq":      e.Seq,
		"event":    string(e.Kind),
		"ts":       e.TSRaw,
		"ts_ms":    e.TSMs,
		"degraded": e.Degraded,
		"agent_id": e.AgentID(),
		"known":    e.Kind.Known(),
	})
}

// readInput reads all input from stdin.
func readInput() ([]byte, error) {
	reader := bufio.NewReader(os.Stdin)
	return io.ReadAll(reader)
}

// writeJSON writes a JSON object to stdout.
func writeJSON(v any) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "")
	if err := encoder.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %s\n", err.Error())
		os.Exit(1)
	}
}

// writeError writes an error response to stdout.
func writeError(code, message string) {
	result := map[string]any{
		"error":   true,
		"code":    code,
		"message": message,
	}
	writeJSON(result)
}
