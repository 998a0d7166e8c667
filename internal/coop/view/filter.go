// Package view computes role-redacted projections of room state.
//
// The filter is total: every field of FullState is explicitly classified as
// visible or hidden for every role. There is no default-visible fallback, so
// adding a field without a classification decision fails the package tests.
package view

import (
	"github.com/louisbranch/wayfarer.quest/internal/coop/domain"
)

// FullState is the unredacted projection the service assembles for a room.
// It is the complete schema the filter classifies; fields never bypass it.
type FullState struct {
	RoomCode    string
	NodeID      string
	NodeText    string
	RoundNumber int
	RoundPhase  string

	// Committed lists players who have sealed an action this round. The
	// payloads themselves are never part of any pre-reveal view.
	Committed []string

	// Physical layer (BODY).
	HP              map[string]int
	Armor           map[string]int
	PhysicalThreats []string

	// Qualitative HP bands derived from HP (MIND sees bands, not numbers).
	HPBands map[string]string

	// Analytical layer (MIND).
	WeakPointProbability map[string]float64
	AnomalyTags          []string

	// Social layer (SOCIAL).
	NPCIntents    map[string]string
	DialogueHints []string
	Morale        map[string]int
	// PlayerIntents holds the social intent each connected player declared
	// with their heartbeat.
	PlayerIntents map[string]string

	// Shared narrative state.
	Reactions    []domain.Reaction
	ScoreCurrent int
	ScoreTarget  int
	Flags        []string
}

// View is the redacted state delivered to one device. Hidden fields stay at
// their zero value and are additionally absent from Fields.
type View struct {
	FullState
	// Role is the perspective this view was computed for.
	Role string
	// Fields lists which schema fields are populated, so clients can
	// distinguish "hidden" from "empty".
	Fields []string
}

// fieldSpec classifies one FullState field. Visible must carry an explicit
// entry for every role; the tests enforce both directions of totality.
type fieldSpec struct {
	name    string
	visible map[domain.Role]bool
	copy    func(src FullState, dst *FullState)
}

// all marks a field as shared. Shared fields are also visible before roles
// are dealt, so lobby participants (RoleUnspecified) still see them.
func all() map[domain.Role]bool {
	return map[domain.Role]bool{
		domain.RoleUnspecified: true,
		domain.RoleBody:        true,
		domain.RoleMind:        true,
		domain.RoleSocial:      true,
	}
}

func only(roles ...domain.Role) map[domain.Role]bool {
	m := map[domain.Role]bool{
		domain.RoleUnspecified: false,
		domain.RoleBody:        false,
		domain.RoleMind:        false,
		domain.RoleSocial:      false,
	}
	for _, r := range roles {
		m[r] = true
	}
	return m
}

// schema is the single source of truth for field visibility. Order follows
// the FullState declaration.
var schema = []fieldSpec{
	{"RoomCode", all(), func(s FullState, d *FullState) { d.RoomCode = s.RoomCode }},
	{"NodeID", all(), func(s FullState, d *FullState) { d.NodeID = s.NodeID }},
	{"NodeText", all(), func(s FullState, d *FullState) { d.NodeText = s.NodeText }},
	{"RoundNumber", all(), func(s FullState, d *FullState) { d.RoundNumber = s.RoundNumber }},
	{"RoundPhase", all(), func(s FullState, d *FullState) { d.RoundPhase = s.RoundPhase }},
	{"Committed", all(), func(s FullState, d *FullState) { d.Committed = copyStrings(s.Committed) }},

	{"HP", only(domain.RoleBody), func(s FullState, d *FullState) { d.HP = copyIntMap(s.HP) }},
	{"Armor", only(domain.RoleBody), func(s FullState, d *FullState) { d.Armor = copyIntMap(s.Armor) }},
	{"PhysicalThreats", only(domain.RoleBody), func(s FullState, d *FullState) { d.PhysicalThreats = copyStrings(s.PhysicalThreats) }},

	{"HPBands", only(domain.RoleMind), func(s FullState, d *FullState) { d.HPBands = copyStringMap(s.HPBands) }},
	{"WeakPointProbability", only(domain.RoleMind), func(s FullState, d *FullState) { d.WeakPointProbability = copyFloatMap(s.WeakPointProbability) }},
	{"AnomalyTags", only(domain.RoleMind), func(s FullState, d *FullState) { d.AnomalyTags = copyStrings(s.AnomalyTags) }},

	{"NPCIntents", only(domain.RoleSocial), func(s FullState, d *FullState) { d.NPCIntents = copyStringMap(s.NPCIntents) }},
	{"DialogueHints", only(domain.RoleSocial), func(s FullState, d *FullState) { d.DialogueHints = copyStrings(s.DialogueHints) }},
	{"Morale", only(domain.RoleSocial), func(s FullState, d *FullState) { d.Morale = copyIntMap(s.Morale) }},
	{"PlayerIntents", only(domain.RoleSocial), func(s FullState, d *FullState) { d.PlayerIntents = copyStringMap(s.PlayerIntents) }},

	{"Reactions", all(), func(s FullState, d *FullState) { d.Reactions = append([]domain.Reaction(nil), s.Reactions...) }},
	{"ScoreCurrent", all(), func(s FullState, d *FullState) { d.ScoreCurrent = s.ScoreCurrent }},
	{"ScoreTarget", all(), func(s FullState, d *FullState) { d.ScoreTarget = s.ScoreTarget }},
	{"Flags", all(), func(s FullState, d *FullState) { d.Flags = copyStrings(s.Flags) }},
}

// FilterState computes the redacted view for a role. It is stateless and
// side-effect-free: the same inputs always produce the same output.
func FilterState(full FullState, role domain.Role) View {
	v := View{Role: domain.RoleLabel(role)}
	for _, field := range schema {
		if !field.visible[role] {
			continue
		}
		field.copy(full, &v.FullState)
		v.Fields = append(v.Fields, field.name)
	}
	return v
}

// HPBand converts a numeric HP ratio into the qualitative band MIND-role
// players are allowed to see.
func HPBand(hp, maxHP int) string {
	if maxHP <= 0 || hp <= 0 {
		return "down"
	}
	ratio := float64(hp) / float64(maxHP)
	switch {
	case ratio > 0.66:
		return "healthy"
	case ratio > 0.33:
		return "wounded"
	default:
		return "critical"
	}
}

func copyStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func copyIntMap(in map[string]int) map[string]int {
	if in == nil {
		return nil
	}
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyFloatMap(in map[string]float64) map[string]float64 {
	if in == nil {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
