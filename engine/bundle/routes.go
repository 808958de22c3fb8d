package bundle

import "github.com/mortality-lab/telemetry/event"

// =============================================================================
// Model Route Resolution
// =============================================================================

// RouteInfo records which backing models served an agent over time.
// History preserves first-seen order with duplicates removed; Last is the
// most recent evidence.
type RouteInfo struct {
	Last    string   `json:"last,omitempty"`
	History []string `json:"history"`
}

func (r *RouteInfo) observe(model string, isLatest bool) {
	if model == "" {
		return
	}
	for _, seen := range r.History {
		if seen == model {
			if isLatest {
				r.Last = model
			}
			return
		}
	}
	r.History = append(r.History, model)
	if isLatest {
		r.Last = model
	}
}

// deriveRoutes merges route evidence from the event stream with the archival
// metadata.routed_models record.
//
// Events are scanned in log order: spawn sessions and route updates both
// count, so a later event's model wins the Last slot. Metadata is applied
// afterwards and only fills agents the event stream said nothing about; it
// never overrides event evidence, since the snapshot was taken once at
// export while events carry per-occurrence truth.
func deriveRoutes(events []*event.Event, metadata event.Payload) map[string]*RouteInfo {
	routes := make(map[string]*RouteInfo)
	ensure := func(agentID string) *RouteInfo {
		info := routes[agentID]
		if info == nil {
			info = &RouteInfo{}
			routes[agentID] = info
		}
		return info
	}

	for _, e := range events {
		agentID := e.AgentID()
		if agentID == "" {
			continue
		}
		switch e.Kind {
		case event.KindAgentRoute:
			view := e.Route()
			info := ensure(agentID)
			for _, past := range view.History {
				info.observe(past, false)
			}
			info.observe(view.Model, true)
		case event.KindAgentSpawned:
			if model := e.Spawn().Model; model != "" {
				ensure(agentID).observe(model, true)
			}
		}
	}

	routed, ok := metadata.Map("routed_models")
	if !ok {
		return routes
	}
	for agentID, v := range routed {
		switch record := v.(type) {
		case string:
			info := ensure(agentID)
			info.observe(record, info.Last == "")
		case map[string]any:
			p := event.Payload(record)
			info := ensure(agentID)
			if history, ok := p.StringSlice("history"); ok {
				for _, past := range history {
					info.observe(past, false)
				}
			}
			model := p.StringDefault("model", "")
			info.observe(model, info.Last == "")
		}
	}
	return routes
}
