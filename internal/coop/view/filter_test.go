package view

import (
	"reflect"
	"testing"

	"github.com/louisbranch/wayfarer.quest/internal/coop/domain"
)

func sampleState() FullState {
	return FullState{
		RoomCode:    "WXYZ",
		NodeID:      "vault",
		NodeText:    "The vault door hums.",
		RoundNumber: 2,
		RoundPhase:  "PLANNING",
		Committed:   []string{"p1"},

		HP:              map[string]int{"warden": 12},
		Armor:           map[string]int{"warden": 3},
		PhysicalThreats: []string{"collapsing beam"},

		HPBands:              map[string]string{"warden": "wounded"},
		WeakPointProbability: map[string]float64{"warden": 0.7},
		AnomalyTags:          []string{"unstable ward"},

		NPCIntents:    map[string]string{"warden": "stalling"},
		DialogueHints: []string{"mention the seal"},
		Morale:        map[string]int{"warden": 2},
		PlayerIntents: map[string]string{"p2": "wants to parley"},

		Reactions:    []domain.Reaction{{PlayerID: "p2", Text: "careful"}},
		ScoreCurrent: 8,
		ScoreTarget:  20,
		Flags:        []string{"runes_read"},
	}
}

// Every exported FullState field must appear in the schema exactly once, and
// every schema entry must classify every asymmetric role. A new field cannot
// ship without a visibility decision.
func TestSchemaIsTotal(t *testing.T) {
	roles := append([]domain.Role{domain.RoleUnspecified}, domain.AsymmetricRoles...)
	classified := make(map[string]int)
	for _, field := range schema {
		classified[field.name]++
		for _, role := range roles {
			if _, ok := field.visible[role]; !ok {
				t.Errorf("field %s missing classification for %s", field.name, domain.RoleLabel(role))
			}
		}
	}

	typ := reflect.TypeOf(FullState{})
	for i := 0; i < typ.NumField(); i++ {
		name := typ.Field(i).Name
		if classified[name] != 1 {
			t.Errorf("field %s classified %d times, want exactly 1", name, classified[name])
		}
	}
	if len(classified) != typ.NumField() {
		t.Errorf("schema has %d entries, struct has %d fields", len(classified), typ.NumField())
	}
}

func TestFilterStateBody(t *testing.T) {
	v := FilterState(sampleState(), domain.RoleBody)

	if v.HP["warden"] != 12 || v.Armor["warden"] != 3 {
		t.Fatalf("physical layer missing: %+v", v.FullState)
	}
	if v.HPBands != nil || v.WeakPointProbability != nil || v.AnomalyTags != nil {
		t.Fatal("analytical layer leaked to BODY")
	}
	if v.NPCIntents != nil || v.DialogueHints != nil || v.Morale != nil || v.PlayerIntents != nil {
		t.Fatal("social layer leaked to BODY")
	}
	if v.RoomCode != "WXYZ" || v.ScoreTarget != 20 {
		t.Fatalf("shared fields missing: %+v", v.FullState)
	}
}

func TestFilterStateMind(t *testing.T) {
	v := FilterState(sampleState(), domain.RoleMind)

	if v.HPBands["warden"] != "wounded" || v.WeakPointProbability["warden"] != 0.7 {
		t.Fatalf("analytical layer missing: %+v", v.FullState)
	}
	if v.HP != nil || v.Armor != nil || v.PhysicalThreats != nil {
		t.Fatal("raw numbers leaked to MIND")
	}
	if v.NPCIntents != nil {
		t.Fatal("social layer leaked to MIND")
	}
}

func TestFilterStateSocial(t *testing.T) {
	v := FilterState(sampleState(), domain.RoleSocial)

	if v.NPCIntents["warden"] != "stalling" || v.Morale["warden"] != 2 {
		t.Fatalf("social layer missing: %+v", v.FullState)
	}
	if v.PlayerIntents["p2"] != "wants to parley" {
		t.Fatalf("player intents missing: %+v", v.PlayerIntents)
	}
	if v.HP != nil || v.HPBands != nil {
		t.Fatal("other layers leaked to SOCIAL")
	}
	if len(v.Reactions) != 1 || v.Reactions[0].PlayerID != "p2" {
		t.Fatalf("shared reactions missing: %+v", v.Reactions)
	}
}

// Lobby participants have no role yet; they see the shared fields and none of
// the asymmetric layers.
func TestFilterStateUnassignedRole(t *testing.T) {
	v := FilterState(sampleState(), domain.RoleUnspecified)

	if v.RoomCode != "WXYZ" || v.NodeID != "vault" || v.ScoreTarget != 20 {
		t.Fatalf("shared fields missing: %+v", v.FullState)
	}
	if v.HP != nil || v.Armor != nil || v.PhysicalThreats != nil {
		t.Fatal("physical layer leaked to unassigned role")
	}
	if v.HPBands != nil || v.WeakPointProbability != nil || v.AnomalyTags != nil {
		t.Fatal("analytical layer leaked to unassigned role")
	}
	if v.NPCIntents != nil || v.DialogueHints != nil || v.Morale != nil || v.PlayerIntents != nil {
		t.Fatal("social layer leaked to unassigned role")
	}
}

func TestFilterStateFieldsListMatchesPopulation(t *testing.T) {
	v := FilterState(sampleState(), domain.RoleMind)
	has := make(map[string]bool)
	for _, name := range v.Fields {
		has[name] = true
	}
	if !has["HPBands"] || has["HP"] || has["NPCIntents"] {
		t.Fatalf("fields list = %v", v.Fields)
	}
}

func TestFilterStateDoesNotAliasSource(t *testing.T) {
	full := sampleState()
	v := FilterState(full, domain.RoleBody)
	v.HP["warden"] = 1
	if full.HP["warden"] != 12 {
		t.Fatal("view aliases source map")
	}
}

func TestHPBand(t *testing.T) {
	tests := []struct {
		hp, max int
		want    string
	}{
		{10, 10, "healthy"},
		{7, 10, "healthy"},
		{5, 10, "wounded"},
		{3, 10, "critical"},
		{0, 10, "down"},
		{5, 0, "down"},
	}
	for _, tt := range tests {
		if got := HPBand(tt.hp, tt.max); got != tt.want {
			t.Errorf("HPBand(%d, %d) = %q, want %q", tt.hp, tt.max, got, tt.want)
		}
	}
}
