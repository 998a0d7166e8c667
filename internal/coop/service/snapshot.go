package service

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/louisbranch/wayfarer.quest/internal/coop/domain"
	"github.com/louisbranch/wayfarer.quest/internal/coop/token"
	"github.com/louisbranch/wayfarer.quest/internal/coop/view"
	apperrors "github.com/louisbranch/wayfarer.quest/internal/platform/errors"
)

// Snapshot returns the role-filtered view of a room for one player. Lobby
// rooms have no asymmetric layers yet, so every participant sees the same
// shared fields.
func (s *Service) Snapshot(ctx context.Context, code, playerID string) (view.View, error) {
	room, err := s.readRoom(ctx, code)
	if err != nil {
		return view.View{}, err
	}
	if _, ok := room.Participant(playerID); !ok {
		return view.View{}, apperrors.New(apperrors.CodeRoomUnknownPlayer, "player is not in the room")
	}
	full := s.assembleState(&room)
	return view.FilterState(full, room.RoleOf(playerID)), nil
}

// assembleState projects room state into the unredacted view schema.
func (s *Service) assembleState(room *domain.Room) view.FullState {
	full := view.FullState{
		RoomCode:      room.Code,
		PlayerIntents: s.tracker.Intents(room.Code),
	}

	quest := room.Quest
	if quest == nil {
		return full
	}
	full.NodeID = quest.NodeID
	full.Flags = append([]string(nil), quest.Flags...)
	full.Reactions = append([]domain.Reaction(nil), quest.Reactions...)
	if g, ok := s.library.Graph(quest.QuestID); ok {
		if node, ok := g.Node(quest.NodeID); ok {
			full.NodeText = node.Text
		}
	}
	if quest.Score != nil {
		full.ScoreCurrent = quest.Score.Current
		full.ScoreTarget = quest.Score.Target
	}

	for key := range quest.Modifiers {
		if quest.ActiveModifier(key, s.now) != 1.0 {
			full.AnomalyTags = append(full.AnomalyTags, key)
		}
	}
	sort.Strings(full.AnomalyTags)

	battle := quest.Battle
	if battle == nil {
		return full
	}

	full.RoundNumber = battle.Round.Number
	full.RoundPhase = domain.RoundPhaseLabel(battle.Round.Phase)
	for playerID := range battle.Round.Commitments {
		full.Committed = append(full.Committed, playerID)
	}
	sort.Strings(full.Committed)

	full.HP = make(map[string]int)
	full.Armor = make(map[string]int)
	full.HPBands = make(map[string]string)
	full.WeakPointProbability = make(map[string]float64)
	full.NPCIntents = make(map[string]string)
	full.Morale = make(map[string]int)

	for i := range battle.Units {
		unit := &battle.Units[i]
		full.HP[unit.Name] = unit.HP
		full.Armor[unit.Name] = unit.Armor
		full.HPBands[unit.Name] = view.HPBand(unit.HP, unit.MaxHP)
		if unit.PlayerID != "" {
			continue
		}
		if unit.Alive() && unit.Rank == 0 {
			full.PhysicalThreats = append(full.PhysicalThreats, unit.Name)
		}
		full.WeakPointProbability[unit.Name] = weakPointProbability(unit)
		full.NPCIntents[unit.Name] = npcIntent(unit)
		full.Morale[unit.Name] = morale(unit)
		if hint := dialogueHint(unit); hint != "" {
			full.DialogueHints = append(full.DialogueHints, hint)
		}
	}
	sort.Strings(full.PhysicalThreats)
	sort.Strings(full.DialogueHints)
	return full
}

// weakPointProbability estimates how exposed an enemy is. Purely derived
// from unit state so every device computes the same number.
func weakPointProbability(unit *domain.Unit) float64 {
	if unit.MaxHP <= 0 {
		return 0
	}
	wounded := float64(unit.MaxHP-unit.HP) / float64(unit.MaxHP)
	base := 0.2 + 0.6*wounded - 0.1*float64(unit.Armor)
	if base < 0.05 {
		base = 0.05
	}
	if base > 0.95 {
		base = 0.95
	}
	return base
}

func npcIntent(unit *domain.Unit) string {
	if !unit.Alive() {
		return "down"
	}
	switch unit.Behavior {
	case domain.BehaviorDefensive:
		return "guarding"
	case domain.BehaviorTactical:
		return "probing for weakness"
	default:
		return "pressing the attack"
	}
}

func morale(unit *domain.Unit) int {
	if !unit.Alive() || unit.MaxHP <= 0 {
		return 0
	}
	return 1 + (3*unit.HP-1)/unit.MaxHP
}

func dialogueHint(unit *domain.Unit) string {
	if !unit.Alive() {
		return ""
	}
	if unit.HP*3 <= unit.MaxHP {
		return unit.Name + " is close to breaking"
	}
	if unit.Behavior == domain.BehaviorDefensive {
		return unit.Name + " can be talked down"
	}
	return ""
}

// IssueSessionToken signs a session token binding the player to the room's
// current state. Requires a token config to be wired at construction.
func (s *Service) IssueSessionToken(ctx context.Context, code, playerID string) (string, error) {
	if s.tokens == nil {
		return "", apperrors.New(apperrors.CodeTokenInvalid, "session tokens are not configured")
	}
	room, err := s.readRoom(ctx, code)
	if err != nil {
		return "", err
	}
	if _, ok := room.Participant(playerID); !ok {
		return "", apperrors.New(apperrors.CodeRoomUnknownPlayer, "player is not in the room")
	}

	jti, err := s.newID()
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeUnknown, "generate token id", err)
	}
	snapshot, err := json.Marshal(room)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeUnknown, "serialize room state", err)
	}

	claims := token.Claims{
		RoomCode:     room.Code,
		PlayerID:     playerID,
		Seed:         roomSeed(room.Code),
		SnapshotHash: token.SnapshotHash(snapshot),
		StateVersion: room.Version,
		JWTID:        jti,
	}
	signed, err := token.Issue(claims, *s.tokens)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeUnknown, "sign session token", err)
	}
	return signed, nil
}

// validateToken verifies a presented session token against a room identity.
func (s *Service) validateToken(raw, code, playerID string) (token.Claims, error) {
	return token.Validate(raw, token.Expectation{RoomCode: code, PlayerID: playerID}, *s.tokens)
}

// roomSeed derives the deterministic random seed shared by every client of a
// room.
func roomSeed(code string) int64 {
	h := fnv.New64a()
	fmt.Fprint(h, code)
	return int64(h.Sum64())
}
