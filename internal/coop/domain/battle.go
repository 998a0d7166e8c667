package domain

import (
	"strings"
	"time"
)

// BattleResult describes the terminal outcome of a battle.
type BattleResult int

const (
	// BattleUndecided means the battle is still running.
	BattleUndecided BattleResult = iota
	// BattleVictory means every enemy unit is down.
	BattleVictory
	// BattleDefeat means every player unit is down.
	BattleDefeat
)

// BattleResultLabel returns the string label for a battle result.
func BattleResultLabel(result BattleResult) string {
	switch result {
	case BattleVictory:
		return "VICTORY"
	case BattleDefeat:
		return "DEFEAT"
	default:
		return "UNDECIDED"
	}
}

// BehaviorKind selects the enemy decision tree.
type BehaviorKind int

const (
	// BehaviorUnspecified represents an invalid behavior value.
	BehaviorUnspecified BehaviorKind = iota
	// BehaviorAggressive always attacks the weakest reachable player.
	BehaviorAggressive
	// BehaviorDefensive defends when hurt, otherwise attacks the nearest rank.
	BehaviorDefensive
	// BehaviorTactical focuses the least-armored living player.
	BehaviorTactical
)

// BehaviorFromLabel converts a behavior label to a BehaviorKind value.
func BehaviorFromLabel(label string) BehaviorKind {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "aggressive":
		return BehaviorAggressive
	case "defensive":
		return BehaviorDefensive
	case "tactical":
		return BehaviorTactical
	default:
		return BehaviorUnspecified
	}
}

// Unit is one combatant in a battle. Player units carry the owning PlayerID;
// enemy units leave it empty and act through their behavior tree.
type Unit struct {
	ID       string
	PlayerID string
	Name     string
	// Role is set for player units and drives initiative tie-breaks.
	Role Role
	// Rank is the unit's row: 0 front, 1 back. Back-rank units take reduced
	// melee damage but deal reduced melee damage.
	Rank       int
	HP         int
	MaxHP      int
	Armor      int
	Attack     int
	Initiative int
	Behavior   BehaviorKind
	Defending  bool
}

// Alive reports whether the unit can still act.
func (u *Unit) Alive() bool {
	return u.HP > 0
}

// Battle is the sub-state-machine reached via a quest node's
// start_coop_battle action. Rounds inside a battle follow the commit-reveal
// protocol.
type Battle struct {
	EncounterID   string
	VictoryNodeID string
	DefeatNodeID  string
	Units         []Unit
	Round         *Round
	Result        BattleResult
	// Log keeps human-readable resolution lines in application order so
	// players can audit substituted and revealed actions.
	Log []string

	StartedAt time.Time
}

// NewBattle opens a battle with round one in PLANNING.
func NewBattle(encounterID, victoryNodeID, defeatNodeID string, units []Unit, now func() time.Time) *Battle {
	if now == nil {
		now = time.Now
	}
	return &Battle{
		EncounterID:   encounterID,
		VictoryNodeID: victoryNodeID,
		DefeatNodeID:  defeatNodeID,
		Units:         units,
		Round:         NewRound(now),
		StartedAt:     now().UTC(),
	}
}

// Unit returns the unit with the given id.
func (b *Battle) Unit(id string) (*Unit, bool) {
	for i := range b.Units {
		if b.Units[i].ID == id {
			return &b.Units[i], true
		}
	}
	return nil, false
}

// PlayerUnit returns the unit owned by a player.
func (b *Battle) PlayerUnit(playerID string) (*Unit, bool) {
	for i := range b.Units {
		if b.Units[i].PlayerID == playerID {
			return &b.Units[i], true
		}
	}
	return nil, false
}

// Decide recomputes the battle result from unit liveness.
func (b *Battle) Decide() BattleResult {
	playersAlive := false
	enemiesAlive := false
	for i := range b.Units {
		if !b.Units[i].Alive() {
			continue
		}
		if b.Units[i].PlayerID != "" {
			playersAlive = true
		} else {
			enemiesAlive = true
		}
	}
	switch {
	case !enemiesAlive:
		b.Result = BattleVictory
	case !playersAlive:
		b.Result = BattleDefeat
	default:
		b.Result = BattleUndecided
	}
	return b.Result
}
