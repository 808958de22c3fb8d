package bundle

import "encoding/json"

// =============================================================================
// Canonical Export
// =============================================================================

// ToMap renders the bundle back to its wire envelope. Events come out in
// normalized order with their original raw timestamps, so a decode of the
// result reproduces this bundle.
func (b *Bundle) ToMap() map[string]any {
	m := map[string]any{}
	if b.BundleType != "" {
		m["bundle_type"] = b.BundleType
	}
	if b.SchemaVersion != 0 {
		m["schema_version"] = b.SchemaVersion
	}
	if b.ExportedAtRaw != "" {
		m["exported_at"] = b.ExportedAtRaw
	}
	if b.Experiment.Slug != "" || b.Experiment.Description != "" {
		m["experiment"] = map[string]any{
			"slug":        b.Experiment.Slug,
			"description": b.Experiment.Description,
		}
	}
	if b.Config != nil {
		m["config"] = map[string]any(b.Config.Clone())
	}
	if b.LLM != nil {
		m["llm"] = map[string]any(b.LLM.Clone())
	}
	if b.Agents != nil {
		agents := make(map[string]any, len(b.Agents))
		for id, profile := range b.Agents {
			agents[id] = profile.ToMap()
		}
		m["agents"] = agents
	}
	if b.Metadata != nil {
		m["metadata"] = map[string]any(b.Metadata.Clone())
	}
	if b.Diaries != nil {
		diaries := make(map[string]any, len(b.Diaries))
		for id, entries := range b.Diaries {
			list := make([]any, len(entries))
			for i, entry := range entries {
				list[i] = entry.ToMap()
			}
			diaries[id] = list
		}
		m["diaries"] = diaries
	}
	events := make([]any, len(b.Events))
	for i, e := range b.Events {
		events[i] = e.ToMap()
	}
	m["events"] = events
	if b.Extra != nil {
		m["extra"] = map[string]any(b.Extra.Clone())
	}
	return m
}

// Encode marshals the wire envelope.
func (b *Bundle) Encode() ([]byte, error) {
	return json.Marshal(b.ToMap())
}

// EncodeIndent marshals the wire envelope human-readably.
func (b *Bundle) EncodeIndent() ([]byte, error) {
	return json.MarshalIndent(b.ToMap(), "", "  ")
}
