package event

import "strconv"

// =============================================================================
// Payload Access
// =============================================================================

// Payload is the loosely typed body of a telemetry event.
//
// Sources hand these over as decoded JSON, so numbers arrive as float64 and
// nested records as map[string]any. The accessors below use the comma-ok
// idiom throughout: a missing or mistyped field is reported, never panicked
// on, which is what lets reducers treat malformed events as degradations
// instead of failures.
type Payload map[string]any

// String returns the string value under key.
func (p Payload) String(key string) (string, bool) {
	if p == nil {
		return "", false
	}
	s, ok := p[key].(string)
	return s, ok
}

// StringDefault returns the string under key or def when absent.
func (p Payload) StringDefault(key, def string) string {
	if s, ok := p.String(key); ok {
		return s
	}
	return def
}

// Int64 returns the integer value under key.
// Handles float64 (the JSON default), plus int/int64 from in-process sources.
func (p Payload) Int64(key string) (int64, bool) {
	if p == nil {
		return 0, false
	}
	switch v := p[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case float64:
		return int64(v), true
	case float32:
		return int64(v), true
	default:
		return 0, false
	}
}

// Float64 returns the numeric value under key.
func (p Payload) Float64(key string) (float64, bool) {
	if p == nil {
		return 0, false
	}
	switch v := p[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	default:
		return 0, false
	}
}

// Bool returns the boolean value under key.
func (p Payload) Bool(key string) (bool, bool) {
	if p == nil {
		return false, false
	}
	b, ok := p[key].(bool)
	return b, ok
}

// Map returns the nested map under key.
func (p Payload) Map(key string) (Payload, bool) {
	if p == nil {
		return nil, false
	}
	switch v := p[key].(type) {
	case map[string]any:
		return Payload(v), true
	case Payload:
		return v, true
	default:
		return nil, false
	}
}

// StringSlice returns the string list under key.
// Handles []any of strings (the JSON default); non-string elements are skipped.
func (p Payload) StringSlice(key string) ([]string, bool) {
	if p == nil {
		return nil, false
	}
	switch v := p[key].(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out, true
	default:
		return nil, false
	}
}

// Float64Slice returns the numeric list under key.
// Handles []any of numbers (the JSON default); non-numeric elements are skipped.
func (p Payload) Float64Slice(key string) ([]float64, bool) {
	if p == nil {
		return nil, false
	}
	switch v := p[key].(type) {
	case []float64:
		out := make([]float64, len(v))
		copy(out, v)
		return out, true
	case []any:
		out := make([]float64, 0, len(v))
		for _, item := range v {
			switch n := item.(type) {
			case float64:
				out = append(out, n)
			case float32:
				out = append(out, float64(n))
			case int:
				out = append(out, float64(n))
			case int64:
				out = append(out, float64(n))
			}
		}
		return out, true
	default:
		return nil, false
	}
}

// Clone returns a deep copy of the payload.
// Slices and nested maps are copied; primitives are copied by value.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return map[string]any(Payload(val).Clone())
	case Payload:
		return val.Clone()
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		out := make([]string, len(val))
		copy(out, val)
		return out
	default:
		return v
	}
}

// =============================================================================
// Agent Identity Resolution
// =============================================================================

// AgentID resolves the agent an event belongs to.
//
// Sources are inconsistent about where the identity lives, so resolution is
// centralized here and used identically by normalization, snapshotting, and
// live reconciliation. Lookup order:
//  1. payload agent_id as a string
//  2. payload agent_id as a number, coerced to its decimal string
//  3. nested profile.agent_id
//
// Returns "" when no identity is present; such events stay in the flat log
// but are excluded from per-agent views.
func (p Payload) AgentID() string {
	if p == nil {
		return ""
	}
	if s, ok := p.String("agent_id"); ok && s != "" {
		return s
	}
	if n, ok := p.Int64("agent_id"); ok {
		return strconv.FormatInt(n, 10)
	}
	if profile, ok := p.Map("profile"); ok {
		if s, ok := profile.String("agent_id"); ok && s != "" {
			return s
		}
	}
	return ""
}
