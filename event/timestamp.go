package event

import (
	"strings"
	"time"
)

// =============================================================================
// Timestamp Normalization
// =============================================================================

// Timestamps arrive in several near-ISO dialects depending on which exporter
// produced them. Parsing is total: a value that survives neither the direct
// parse nor the repair pipeline falls back to the caller's wall clock and is
// flagged as degraded. Degraded instants can reorder an event relative to
// well-formed neighbors; callers surface the flag rather than hiding it.

// tsLayouts are tried in order on the direct parse and again after repair.
var tsLayouts = []string{
	time.RFC3339Nano,                     // 2024-01-01T10:00:00.123Z, +00:00 offsets
	"2006-01-02T15:04:05.999999999-0700", // collapsed offsets
	"2006-01-02T15:04:05.999999999-07",   // hour-only offsets
}

// ParseTimestampMS converts a raw timestamp string into epoch milliseconds.
//
// Total function, never fails: unparseable input yields nowMS() with
// degraded=true. The repair pipeline applied before the retry:
//   - convert a space date/time separator to 'T'
//   - collapse a colon-separated UTC offset (+00:00 -> +0000)
//   - truncate fractional seconds beyond millisecond precision
//   - normalize a lowercase 'z' suffix to 'Z'
//   - append 'Z' when no zone designator is present
func ParseTimestampMS(raw string, nowMS func() int64) (int64, bool) {
	s := strings.TrimSpace(raw)
	if ms, ok := parseISOMillis(s); ok {
		return ms, false
	}
	if ms, ok := parseISOMillis(repairTimestamp(s)); ok {
		return ms, false
	}
	return nowMS(), true
}

// NormalizeTimestamp is ParseTimestampMS against the system wall clock.
func NormalizeTimestamp(raw string) (int64, bool) {
	return ParseTimestampMS(raw, func() int64 { return time.Now().UnixMilli() })
}

// FormatTimestampMS renders epoch milliseconds in the canonical export shape:
// UTC, millisecond precision, 'Z' designator. Round-trips through
// ParseTimestampMS without loss.
func FormatTimestampMS(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

func parseISOMillis(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	for _, layout := range tsLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixMilli(), true
		}
	}
	return 0, false
}

// repairTimestamp applies the repair steps in a fixed order.
func repairTimestamp(s string) string {
	if len(s) > 10 && s[10] == ' ' {
		s = s[:10] + "T" + s[11:]
	}
	s = collapseOffsetColon(s)
	s = truncateFraction(s)
	if strings.HasSuffix(s, "z") {
		s = s[:len(s)-1] + "Z"
	}
	if !hasZoneDesignator(s) {
		s += "Z"
	}
	return s
}

// collapseOffsetColon rewrites a trailing ±HH:MM offset as ±HHMM.
func collapseOffsetColon(s string) string {
	if len(s) < 6 {
		return s
	}
	sign := s[len(s)-6]
	if (sign == '+' || sign == '-') && s[len(s)-3] == ':' {
		return s[:len(s)-3] + s[len(s)-2:]
	}
	return s
}

// truncateFraction drops fractional-second digits beyond the third.
func truncateFraction(s string) string {
	dot := strings.IndexByte(s, '.')
	if dot < 0 {
		return s
	}
	end := dot + 1
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end-dot-1 <= 3 {
		return s
	}
	return s[:dot+4] + s[end:]
}

// hasZoneDesignator reports whether the time portion carries a zone.
// Only characters after the 'T' separator count; the date portion's dashes
// are not offsets.
func hasZoneDesignator(s string) bool {
	t := strings.IndexByte(s, 'T')
	if t < 0 || t+1 >= len(s) {
		return false
	}
	return strings.ContainsAny(s[t+1:], "Zz+-")
}
