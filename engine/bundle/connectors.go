package bundle

import (
	"sort"

	"github.com/mortality-lab/telemetry/event"
)

// =============================================================================
// Diary Connectors
// =============================================================================

// DiaryConnector is a directed link from a death to another agent's diary
// entry written shortly after it. The window is a heuristic: it approximates
// causal influence without claiming certainty.
type DiaryConnector struct {
	FromAgentID string `json:"from_agent_id"`
	ToAgentID   string `json:"to_agent_id"`
	FromTSMs    int64  `json:"from_ts_ms"`
	ToTSMs      int64  `json:"to_ts_ms"`
}

// deriveConnectors links each death event to diary entries other agents
// created within windowMS after it, keeping the earliest maxPerDeath entries
// chronologically. Candidate order is made deterministic by breaking equal
// instants on the writing agent's id.
func deriveConnectors(events []*event.Event, diaries map[string][]event.DiaryEntry, windowMS int64, maxPerDeath int) []DiaryConnector {
	if maxPerDeath <= 0 || len(diaries) == 0 {
		return nil
	}

	var connectors []DiaryConnector
	for _, e := range events {
		if e.Kind != event.KindAgentDeath {
			continue
		}
		deadID := e.AgentID()
		if deadID == "" {
			continue
		}

		var candidates []DiaryConnector
		for otherID, entries := range diaries {
			if otherID == deadID {
				continue
			}
			for _, entry := range entries {
				if entry.CreatedAtMS < e.TSMs || entry.CreatedAtMS > e.TSMs+windowMS {
					continue
				}
				candidates = append(candidates, DiaryConnector{
					FromAgentID: deadID,
					ToAgentID:   otherID,
					FromTSMs:    e.TSMs,
					ToTSMs:      entry.CreatedAtMS,
				})
			}
		}
		sort.Slice(candidates, func(i, j int) bool {
			if candidates[i].ToTSMs != candidates[j].ToTSMs {
				return candidates[i].ToTSMs < candidates[j].ToTSMs
			}
			return candidates[i].ToAgentID < candidates[j].ToAgentID
		})
		if len(candidates) > maxPerDeath {
			candidates = candidates[:maxPerDeath]
		}
		connectors = append(connectors, candidates...)
	}
	return connectors
}
