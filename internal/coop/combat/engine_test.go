package combat

import (
	"strings"
	"testing"
	"time"

	"github.com/louisbranch/wayfarer.quest/internal/coop/domain"
)

func fixedClock() func() time.Time {
	at := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func testBattle() *domain.Battle {
	units := []domain.Unit{
		{ID: "u-p1", PlayerID: "p1", Name: "Bruna", Role: domain.RoleBody, Rank: 0, HP: 20, MaxHP: 20, Armor: 1, Attack: 6, Initiative: 4},
		{ID: "u-p2", PlayerID: "p2", Name: "Miro", Role: domain.RoleMind, Rank: 1, HP: 14, MaxHP: 14, Armor: 0, Attack: 4, Initiative: 4},
		{ID: "u-warden", Name: "Warden", Rank: 0, HP: 18, MaxHP: 18, Armor: 2, Attack: 5, Initiative: 3, Behavior: domain.BehaviorAggressive},
	}
	return domain.NewBattle("warden", "victory", "defeat", units, fixedClock())
}

func commitAll(t *testing.T, b *domain.Battle, actions map[string]domain.ActionPayload) {
	t.Helper()
	for playerID, payload := range actions {
		if err := b.Round.Commit(playerID, payload, false, fixedClock()); err != nil {
			t.Fatalf("commit %s: %v", playerID, err)
		}
	}
	b.Round.Reveal()
}

func TestResolveRoundAppliesAttacks(t *testing.T) {
	b := testBattle()
	commitAll(t, b, map[string]domain.ActionPayload{
		"p1": {Kind: domain.ActionKindAttack, TargetID: "u-warden"},
		"p2": {Kind: domain.ActionKindDefend},
	})

	result := ResolveRound(b)
	if result != domain.BattleUndecided {
		t.Fatalf("result = %v", result)
	}

	warden, _ := b.Unit("u-warden")
	// Attack 6 against armor 2.
	if warden.HP != 14 {
		t.Fatalf("warden HP = %d, want 14", warden.HP)
	}
	// Aggressive enemy targets the weakest player (Miro, 14 HP). Miro
	// defends first because of higher initiative: (5 at back rank -> 2,
	// armor 0, halved to 1).
	miro, _ := b.Unit("u-p2")
	if miro.HP != 13 {
		t.Fatalf("miro HP = %d, want 13", miro.HP)
	}
	if b.Round.Phase != domain.RoundPhaseResolution {
		t.Fatalf("phase = %v", b.Round.Phase)
	}
}

func TestResolveRoundDeterministic(t *testing.T) {
	reference := ""
	for i := 0; i < 10; i++ {
		b := testBattle()
		commitAll(t, b, map[string]domain.ActionPayload{
			"p1": {Kind: domain.ActionKindAttack, TargetID: "u-warden"},
			"p2": {Kind: domain.ActionKindAttack, TargetID: "u-warden"},
		})
		ResolveRound(b)
		log := strings.Join(b.Log, "\n")
		if reference == "" {
			reference = log
		} else if log != reference {
			t.Fatalf("log diverged:\n%s\n---\n%s", reference, log)
		}
	}
}

func TestResolveRoundInitiativeOrder(t *testing.T) {
	b := testBattle()
	commitAll(t, b, map[string]domain.ActionPayload{
		"p1": {Kind: domain.ActionKindAttack, TargetID: "u-warden"},
		"p2": {Kind: domain.ActionKindAttack, TargetID: "u-warden"},
	})
	ResolveRound(b)

	// Same initiative: BODY acts before MIND, enemy acts last.
	if len(b.Log) < 3 {
		t.Fatalf("log = %v", b.Log)
	}
	if !strings.HasPrefix(b.Log[0], "Bruna") {
		t.Fatalf("first actor = %q, want Bruna", b.Log[0])
	}
	if !strings.HasPrefix(b.Log[1], "Miro") {
		t.Fatalf("second actor = %q, want Miro", b.Log[1])
	}
}

func TestDefendHalvesIncomingDamage(t *testing.T) {
	attacker := &domain.Unit{Attack: 8, Rank: 0}
	target := &domain.Unit{Armor: 0, Rank: 0}
	if got := Damage(attacker, target); got != 8 {
		t.Fatalf("damage = %d, want 8", got)
	}
	target.Defending = true
	if got := Damage(attacker, target); got != 4 {
		t.Fatalf("defended damage = %d, want 4", got)
	}
}

func TestDamageRankPenaltiesAndFloor(t *testing.T) {
	attacker := &domain.Unit{Attack: 8, Rank: 1}
	target := &domain.Unit{Armor: 3, Rank: 1}
	// 8 halved twice is 2, armor 3 soaks past zero, floor keeps 1.
	if got := Damage(attacker, target); got != 1 {
		t.Fatalf("damage = %d, want floor 1", got)
	}
}

func TestResolveRoundStopsAtDecision(t *testing.T) {
	b := testBattle()
	warden, _ := b.Unit("u-warden")
	warden.HP = 3
	commitAll(t, b, map[string]domain.ActionPayload{
		"p1": {Kind: domain.ActionKindAttack, TargetID: "u-warden"},
		"p2": {Kind: domain.ActionKindAttack, TargetID: "u-warden"},
	})

	if result := ResolveRound(b); result != domain.BattleVictory {
		t.Fatalf("result = %v, want victory", result)
	}
	// The downed enemy never got to act.
	for _, line := range b.Log {
		if strings.HasPrefix(line, "Warden hits") {
			t.Fatalf("defeated enemy acted: %v", b.Log)
		}
	}
}

func TestSubstitutedDefenseIsAppliedAndLabeled(t *testing.T) {
	b := testBattle()
	if err := b.Round.Commit("p1", domain.ActionPayload{Kind: domain.ActionKindAttack, TargetID: "u-warden"}, false, fixedClock()); err != nil {
		t.Fatal(err)
	}
	if !b.Round.Substitute("p2", fixedClock()) {
		t.Fatal("expected substitution")
	}
	b.Round.Reveal()
	ResolveRound(b)

	found := false
	for _, line := range b.Log {
		if strings.Contains(line, "auto-defense") {
			found = true
		}
	}
	if !found {
		t.Fatalf("log = %v, want auto-defense entry", b.Log)
	}
}

func TestDefensiveEnemyBracesWhenHurt(t *testing.T) {
	b := testBattle()
	warden, _ := b.Unit("u-warden")
	warden.Behavior = domain.BehaviorDefensive
	warden.HP = 5

	commitAll(t, b, map[string]domain.ActionPayload{
		"p1": {Kind: domain.ActionKindPass},
		"p2": {Kind: domain.ActionKindPass},
	})
	ResolveRound(b)

	found := false
	for _, line := range b.Log {
		if strings.HasPrefix(line, "Warden braces") {
			found = true
		}
	}
	if !found {
		t.Fatalf("log = %v, want warden bracing", b.Log)
	}
}

func TestTacticalEnemyTargetsLeastArmored(t *testing.T) {
	b := testBattle()
	warden, _ := b.Unit("u-warden")
	warden.Behavior = domain.BehaviorTactical

	commitAll(t, b, map[string]domain.ActionPayload{
		"p1": {Kind: domain.ActionKindPass},
		"p2": {Kind: domain.ActionKindPass},
	})
	ResolveRound(b)

	hitMiro := false
	for _, line := range b.Log {
		if strings.Contains(line, "Warden hits Miro") {
			hitMiro = true
		}
	}
	if !hitMiro {
		t.Fatalf("log = %v, want warden hitting the unarmored Miro", b.Log)
	}
}

func TestMoveChangesRank(t *testing.T) {
	b := testBattle()
	commitAll(t, b, map[string]domain.ActionPayload{
		"p1": {Kind: domain.ActionKindMove, ToRank: 1},
		"p2": {Kind: domain.ActionKindPass},
	})
	ResolveRound(b)

	bruna, _ := b.Unit("u-p1")
	if bruna.Rank != 1 {
		t.Fatalf("rank = %d, want 1", bruna.Rank)
	}
}
