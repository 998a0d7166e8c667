package service

import (
	"context"
	"fmt"

	"github.com/louisbranch/wayfarer.quest/internal/coop/combat"
	"github.com/louisbranch/wayfarer.quest/internal/coop/domain"
	"github.com/louisbranch/wayfarer.quest/internal/coop/graph"
	"github.com/louisbranch/wayfarer.quest/internal/coop/storage"
	apperrors "github.com/louisbranch/wayfarer.quest/internal/platform/errors"
	"github.com/louisbranch/wayfarer.quest/internal/platform/timeouts"
)

// roleUnitStats is the base combat statline per role. Player units are
// derived deterministically from role and join order, so every device builds
// the identical battle.
var roleUnitStats = map[domain.Role]domain.Unit{
	domain.RoleBody:   {Rank: 0, MaxHP: 24, Armor: 2, Attack: 6, Initiative: 2},
	domain.RoleMind:   {Rank: 1, MaxHP: 16, Armor: 0, Attack: 4, Initiative: 4},
	domain.RoleSocial: {Rank: 1, MaxHP: 18, Armor: 1, Attack: 5, Initiative: 3},
}

// openBattle starts a commit-reveal battle from an encounter reference.
func (s *Service) openBattle(ctx context.Context, room *domain.Room, g *graph.Graph, action graph.Action) error {
	encounter, ok := g.Encounter(action.EncounterID)
	if !ok {
		return apperrors.WithMetadata(apperrors.CodeNotFound,
			"encounter is missing from the graph",
			map[string]string{"Encounter": action.EncounterID})
	}

	units := make([]domain.Unit, 0, len(room.Participants)+len(encounter.Enemies))
	for _, participant := range room.Participants {
		base, ok := roleUnitStats[participant.Role]
		if !ok {
			base = roleUnitStats[domain.RoleBody]
		}
		base.ID = "u-" + participant.PlayerID
		base.PlayerID = participant.PlayerID
		base.Name = participant.PlayerID
		base.Role = participant.Role
		base.HP = base.MaxHP
		units = append(units, base)
	}
	for i, enemy := range encounter.Enemies {
		units = append(units, domain.Unit{
			ID:         fmt.Sprintf("e-%s-%d", encounter.ID, i),
			Name:       enemy.Name,
			Rank:       enemy.Rank,
			HP:         enemy.HP,
			MaxHP:      enemy.HP,
			Armor:      enemy.Armor,
			Attack:     enemy.Attack,
			Initiative: enemy.Initiative,
			Behavior:   enemy.Behavior,
		})
	}

	room.Quest.Battle = domain.NewBattle(encounter.ID, action.VictoryNodeID, action.DefeatNodeID, units, s.now)
	s.appendJournal(ctx, storage.JournalEntry{RoomCode: room.Code, Kind: "battle_started", Detail: encounter.ID})
	s.emit(ctx, storage.TelemetryEvent{
		Name:       "battle_started",
		RoomCode:   room.Code,
		Attributes: map[string]string{"encounter": encounter.ID},
	})
	return nil
}

// CommitAction seals a player's action for the current battle round. The
// payload stays hidden from other players until the round reveals. A commit
// that arrives after the planning window closed is queued for the next round
// when queueNext is set, otherwise rejected.
func (s *Service) CommitAction(ctx context.Context, code, playerID string, payload domain.ActionPayload, queueNext bool) (domain.Room, error) {
	return s.withRoom(ctx, code, func(room *domain.Room) error {
		battle, err := s.activeBattle(room)
		if err != nil {
			return err
		}
		if _, ok := battle.PlayerUnit(playerID); !ok {
			return apperrors.New(apperrors.CodeRoomUnknownPlayer, "player has no unit in this battle")
		}
		if err := battle.Round.Commit(playerID, payload, queueNext, s.now); err != nil {
			return err
		}
		s.appendJournal(ctx, storage.JournalEntry{
			RoomCode: room.Code,
			Kind:     "action_committed",
			ActorID:  playerID,
			Detail:   fmt.Sprintf("round=%d", battle.Round.Number),
		})
		return s.maybeResolveRound(ctx, room, battle)
	})
}

// CancelAction withdraws a player's commitment during planning.
func (s *Service) CancelAction(ctx context.Context, code, playerID string) (domain.Room, error) {
	return s.withRoom(ctx, code, func(room *domain.Room) error {
		battle, err := s.activeBattle(room)
		if err != nil {
			return err
		}
		return battle.Round.Cancel(playerID)
	})
}

// TickRound closes an expired planning window: absent players get an
// auto-defense substitution and the round resolves. It is a no-op while the
// window is still open.
func (s *Service) TickRound(ctx context.Context, code string) (domain.Room, error) {
	return s.withRoom(ctx, code, func(room *domain.Room) error {
		battle, err := s.activeBattle(room)
		if err != nil {
			return err
		}
		if !battle.Round.Expired(timeouts.RoundPlanning, s.now) {
			return nil
		}
		for _, playerID := range s.alivePlayers(battle) {
			if battle.Round.Substitute(playerID, s.now) {
				room.Quest.AppendNote(playerID, "auto-defense substituted", s.now)
				s.appendJournal(ctx, storage.JournalEntry{
					RoomCode: room.Code,
					Kind:     "action_substituted",
					ActorID:  playerID,
					Detail:   fmt.Sprintf("round=%d", battle.Round.Number),
				})
			}
		}
		return s.resolveRound(ctx, room, battle)
	})
}

// TickRounds closes expired planning windows across every live room.
// Intended to run on a periodic sweep alongside the presence check.
func (s *Service) TickRounds(ctx context.Context) error {
	rooms, err := s.rooms.ListRooms(ctx)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeUnknown, "list rooms", err)
	}
	for _, room := range rooms {
		if room.Status != domain.RoomStatusActive || room.Quest == nil || room.Quest.Battle == nil {
			continue
		}
		_, err := s.TickRound(ctx, room.Code)
		if err == nil || apperrors.IsCode(err, apperrors.CodeRoundNoBattle) || apperrors.IsCode(err, apperrors.CodeRoomNotFound) {
			continue
		}
		return err
	}
	return nil
}

// activeBattle checks the room is mid-battle and returns it.
func (s *Service) activeBattle(room *domain.Room) (*domain.Battle, error) {
	if room.Status != domain.RoomStatusActive || room.Quest == nil {
		return nil, apperrors.New(apperrors.CodeQuestNotStarted, "room has no active quest")
	}
	battle := room.Quest.Battle
	if battle == nil || battle.Result != domain.BattleUndecided {
		return nil, apperrors.New(apperrors.CodeRoundNoBattle, "room has no open battle")
	}
	return battle, nil
}

// alivePlayers lists players whose units can still act.
func (s *Service) alivePlayers(battle *domain.Battle) []string {
	var out []string
	for i := range battle.Units {
		u := &battle.Units[i]
		if u.PlayerID != "" && u.Alive() {
			out = append(out, u.PlayerID)
		}
	}
	return out
}

// maybeResolveRound reveals and resolves once every required player has
// committed. Disconnected players are not waited on; the sweep substitutes
// for them.
func (s *Service) maybeResolveRound(ctx context.Context, room *domain.Room, battle *domain.Battle) error {
	required := make(map[string]bool)
	for _, playerID := range s.requiredPlayers(room) {
		required[playerID] = true
	}
	var gating []string
	for _, playerID := range s.alivePlayers(battle) {
		if required[playerID] {
			gating = append(gating, playerID)
		}
	}
	if len(gating) == 0 {
		gating = s.alivePlayers(battle)
	}
	if !battle.Round.AllCommitted(gating) {
		return nil
	}
	return s.resolveRound(ctx, room, battle)
}

// resolveRound reveals commitments atomically, applies them in
// deterministic order and either opens the next round or exits the battle
// through its victory or defeat node.
func (s *Service) resolveRound(ctx context.Context, room *domain.Room, battle *domain.Battle) error {
	battle.Round.Reveal()
	round := battle.Round.Number
	result := combat.ResolveRound(battle)
	s.appendJournal(ctx, storage.JournalEntry{
		RoomCode: room.Code,
		Kind:     "round_resolved",
		Detail:   fmt.Sprintf("round=%d result=%s", round, domain.BattleResultLabel(result)),
	})

	if result == domain.BattleUndecided {
		battle.Round.Next(s.now)
		return nil
	}

	g, ok := s.library.Graph(room.Quest.QuestID)
	if !ok {
		return apperrors.New(apperrors.CodeNotFound, "quest is not loaded")
	}
	exit := battle.VictoryNodeID
	if result == domain.BattleDefeat {
		exit = battle.DefeatNodeID
	}
	room.Quest.Battle = nil
	s.emit(ctx, storage.TelemetryEvent{
		Name:     "battle_finished",
		RoomCode: room.Code,
		Attributes: map[string]string{
			"result": domain.BattleResultLabel(result),
			"rounds": fmt.Sprintf("%d", round),
		},
	})
	return s.advance(ctx, room, g, exit, "", "", "battle "+domain.BattleResultLabel(result))
}
