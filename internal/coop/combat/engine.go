// Package combat resolves revealed battle rounds. Resolution is a pure
// function of battle state and revealed commitments: given the same inputs it
// always produces the same unit states and log, so every device replays to an
// identical outcome.
package combat

import (
	"fmt"
	"sort"

	"github.com/louisbranch/wayfarer.quest/internal/coop/domain"
)

// ResolveRound applies every revealed commitment plus enemy decisions to the
// battle and advances it to RESOLUTION. Units act in initiative order, highest
// first; ties break by role order (BODY, MIND, SOCIAL, then enemies) and then
// by position in the unit list, which follows join order for players and
// declaration order for enemies.
func ResolveRound(battle *domain.Battle) domain.BattleResult {
	round := battle.Round
	round.Phase = domain.RoundPhaseResolution

	for _, idx := range actingOrder(battle) {
		unit := &battle.Units[idx]
		if !unit.Alive() {
			continue
		}
		if unit.PlayerID != "" {
			commitment, ok := round.Commitments[unit.PlayerID]
			if !ok {
				continue
			}
			applyAction(battle, unit, commitment.Payload, commitment.Substituted)
		} else {
			applyAction(battle, unit, decideEnemy(battle, unit), false)
		}
		if battle.Decide() != domain.BattleUndecided {
			break
		}
	}

	result := battle.Decide()
	clearDefending(battle)
	return result
}

// actingOrder returns unit indexes sorted into resolution order.
func actingOrder(battle *domain.Battle) []int {
	order := make([]int, len(battle.Units))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ua, ub := battle.Units[order[a]], battle.Units[order[b]]
		if ua.Initiative != ub.Initiative {
			return ua.Initiative > ub.Initiative
		}
		return roleOrder(ua) < roleOrder(ub)
	})
	return order
}

func roleOrder(u domain.Unit) int {
	if u.PlayerID == "" {
		return 3
	}
	return u.Role.Initiative()
}

func applyAction(battle *domain.Battle, actor *domain.Unit, payload domain.ActionPayload, substituted bool) {
	switch payload.Kind {
	case domain.ActionKindAttack:
		target, ok := battle.Unit(payload.TargetID)
		if !ok || !target.Alive() {
			battle.Log = append(battle.Log, fmt.Sprintf("%s swings at nothing", actor.Name))
			return
		}
		dmg := Damage(actor, target)
		target.HP -= dmg
		if target.HP < 0 {
			target.HP = 0
		}
		battle.Log = append(battle.Log, fmt.Sprintf("%s hits %s for %d", actor.Name, target.Name, dmg))
		if !target.Alive() {
			battle.Log = append(battle.Log, fmt.Sprintf("%s is down", target.Name))
		}
	case domain.ActionKindDefend:
		actor.Defending = true
		if substituted {
			battle.Log = append(battle.Log, fmt.Sprintf("%s braces (auto-defense)", actor.Name))
		} else {
			battle.Log = append(battle.Log, fmt.Sprintf("%s braces", actor.Name))
		}
	case domain.ActionKindMove:
		actor.Rank = payload.ToRank
		battle.Log = append(battle.Log, fmt.Sprintf("%s moves to rank %d", actor.Name, actor.Rank))
	case domain.ActionKindUseCard:
		battle.Log = append(battle.Log, fmt.Sprintf("%s plays %s", actor.Name, payload.CardID))
	case domain.ActionKindPass:
		battle.Log = append(battle.Log, fmt.Sprintf("%s holds", actor.Name))
	}
}

// Damage computes attack damage. Back-rank attackers and back-rank targets
// each halve the base attack, armor soaks the remainder, and defending halves
// what gets through. Every live hit deals at least 1.
func Damage(attacker, target *domain.Unit) int {
	dmg := attacker.Attack
	if attacker.Rank > 0 {
		dmg /= 2
	}
	if target.Rank > 0 {
		dmg /= 2
	}
	dmg -= target.Armor
	if target.Defending {
		dmg /= 2
	}
	if dmg < 1 {
		dmg = 1
	}
	return dmg
}

// decideEnemy runs the unit's behavior tree against current battle state.
func decideEnemy(battle *domain.Battle, enemy *domain.Unit) domain.ActionPayload {
	switch enemy.Behavior {
	case domain.BehaviorDefensive:
		if enemy.HP*2 < enemy.MaxHP {
			return domain.ActionPayload{Kind: domain.ActionKindDefend}
		}
		if target := frontmostPlayer(battle); target != "" {
			return domain.ActionPayload{Kind: domain.ActionKindAttack, TargetID: target}
		}
	case domain.BehaviorTactical:
		if target := leastArmoredPlayer(battle); target != "" {
			return domain.ActionPayload{Kind: domain.ActionKindAttack, TargetID: target}
		}
	default: // aggressive
		if target := weakestPlayer(battle); target != "" {
			return domain.ActionPayload{Kind: domain.ActionKindAttack, TargetID: target}
		}
	}
	return domain.ActionPayload{Kind: domain.ActionKindPass}
}

// weakestPlayer picks the live player unit with the lowest HP, breaking ties
// by list position.
func weakestPlayer(battle *domain.Battle) string {
	best := ""
	bestHP := 0
	for i := range battle.Units {
		u := &battle.Units[i]
		if u.PlayerID == "" || !u.Alive() {
			continue
		}
		if best == "" || u.HP < bestHP {
			best = u.ID
			bestHP = u.HP
		}
	}
	return best
}

// frontmostPlayer picks the live player unit with the lowest rank.
func frontmostPlayer(battle *domain.Battle) string {
	best := ""
	bestRank := 0
	for i := range battle.Units {
		u := &battle.Units[i]
		if u.PlayerID == "" || !u.Alive() {
			continue
		}
		if best == "" || u.Rank < bestRank {
			best = u.ID
			bestRank = u.Rank
		}
	}
	return best
}

// leastArmoredPlayer picks the live player unit with the lowest armor.
func leastArmoredPlayer(battle *domain.Battle) string {
	best := ""
	bestArmor := 0
	for i := range battle.Units {
		u := &battle.Units[i]
		if u.PlayerID == "" || !u.Alive() {
			continue
		}
		if best == "" || u.Armor < bestArmor {
			best = u.ID
			bestArmor = u.Armor
		}
	}
	return best
}

func clearDefending(battle *domain.Battle) {
	for i := range battle.Units {
		battle.Units[i].Defending = false
	}
}
