package event

import "sort"

// =============================================================================
// Diary Records
// =============================================================================

// DiaryEntry is one reflective note written by an agent, tagged with the
// life it belongs to and how much countdown remained when it was written.
type DiaryEntry struct {
	LifeIndex    int      `json:"life_index"`
	EntryIndex   int      `json:"entry_index"`
	TickMSLeft   int64    `json:"tick_ms_left"`
	Text         string   `json:"text"`
	Tags         []string `json:"tags,omitempty"`
	CreatedAtRaw string   `json:"created_at"`
	CreatedAtMS  int64    `json:"-"`
	Degraded     bool     `json:"-"`
}

// DecodeDiaryEntry builds a DiaryEntry from a decoded JSON object.
// Absent fields default (entry_index to 0, tags to nil); the created_at
// timestamp is normalized with the usual repair-or-degrade rules.
func DecodeDiaryEntry(p Payload, nowMS func() int64) DiaryEntry {
	entry := DiaryEntry{}
	if idx, ok := p.Int64("life_index"); ok {
		entry.LifeIndex = int(idx)
	}
	if idx, ok := p.Int64("entry_index"); ok {
		entry.EntryIndex = int(idx)
	}
	if ms, ok := p.Int64("tick_ms_left"); ok {
		entry.TickMSLeft = ms
	}
	entry.Text = p.StringDefault("text", "")
	entry.Tags, _ = p.StringSlice("tags")
	entry.CreatedAtRaw = p.StringDefault("created_at", "")
	entry.CreatedAtMS, entry.Degraded = ParseTimestampMS(entry.CreatedAtRaw, nowMS)
	return entry
}

// ToMap renders the entry in its wire shape.
func (d DiaryEntry) ToMap() map[string]any {
	m := map[string]any{
		"life_index":   d.LifeIndex,
		"entry_index":  d.EntryIndex,
		"tick_ms_left": d.TickMSLeft,
		"text":         d.Text,
		"created_at":   d.CreatedAtRaw,
	}
	if d.Tags != nil {
		tags := make([]any, len(d.Tags))
		for i, t := range d.Tags {
			tags[i] = t
		}
		m["tags"] = tags
	}
	return m
}

// DiaryLifeGroup is one life's diary entries in creation order.
type DiaryLifeGroup struct {
	LifeIndex int
	Entries   []DiaryEntry
}

// GroupDiariesByLife partitions entries by life.
//
// Groups ascend by LifeIndex; entries within a group are stable-sorted by
// CreatedAtMS, so equal instants keep their input order. Flattening the
// groups back reproduces the original entry set exactly.
func GroupDiariesByLife(entries []DiaryEntry) []DiaryLifeGroup {
	if len(entries) == 0 {
		return nil
	}

	byLife := make(map[int][]DiaryEntry)
	lives := make([]int, 0, 4)
	for _, entry := range entries {
		if _, seen := byLife[entry.LifeIndex]; !seen {
			lives = append(lives, entry.LifeIndex)
		}
		byLife[entry.LifeIndex] = append(byLife[entry.LifeIndex], entry)
	}
	sort.Ints(lives)

	groups := make([]DiaryLifeGroup, 0, len(lives))
	for _, life := range lives {
		group := byLife[life]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].CreatedAtMS < group[j].CreatedAtMS
		})
		groups = append(groups, DiaryLifeGroup{LifeIndex: life, Entries: group})
	}
	return groups
}

// =============================================================================
// Agent Profiles
// =============================================================================

// AgentProfile is the archival description of one agent.
type AgentProfile struct {
	AgentID     string   `json:"agent_id"`
	DisplayName string   `json:"display_name"`
	Archetype   string   `json:"archetype"`
	Summary     string   `json:"summary"`
	Goals       []string `json:"goals,omitempty"`
	Traits      []string `json:"traits,omitempty"`
}

// DecodeAgentProfile builds an AgentProfile from a decoded JSON object.
// The fallbackID is used when the profile body omits agent_id (bundles key
// profiles by agent id, so the key is authoritative).
func DecodeAgentProfile(p Payload, fallbackID string) AgentProfile {
	profile := AgentProfile{AgentID: fallbackID}
	if id, ok := p.String("agent_id"); ok && id != "" {
		profile.AgentID = id
	}
	profile.DisplayName = p.StringDefault("display_name", "")
	profile.Archetype = p.StringDefault("archetype", "")
	profile.Summary = p.StringDefault("summary", "")
	profile.Goals, _ = p.StringSlice("goals")
	profile.Traits, _ = p.StringSlice("traits")
	return profile
}

// ToMap renders the profile in its wire shape.
func (a AgentProfile) ToMap() map[string]any {
	m := map[string]any{
		"agent_id":     a.AgentID,
		"display_name": a.DisplayName,
		"archetype":    a.Archetype,
		"summary":      a.Summary,
	}
	if a.Goals != nil {
		goals := make([]any, len(a.Goals))
		for i, g := range a.Goals {
			goals[i] = g
		}
		m["goals"] = goals
	}
	if a.Traits != nil {
		traits := make([]any, len(a.Traits))
		for i, t := range a.Traits {
			traits[i] = t
		}
		m["traits"] = traits
	}
	return m
}
