package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/louisbranch/wayfarer.quest/internal/coop/domain"
	"github.com/louisbranch/wayfarer.quest/internal/coop/graph"
	"github.com/louisbranch/wayfarer.quest/internal/coop/storage"
	apperrors "github.com/louisbranch/wayfarer.quest/internal/platform/errors"
)

// StartQuest begins a quest session for a lobby room. Only the host may
// start; roles are assigned by the domain layer.
func (s *Service) StartQuest(ctx context.Context, code, callerID, questID string) (domain.Room, error) {
	g, ok := s.library.Graph(questID)
	if !ok {
		return domain.Room{}, apperrors.WithMetadata(apperrors.CodeNotFound,
			"quest is not loaded",
			map[string]string{"Quest": questID})
	}

	room, err := s.withRoom(ctx, code, func(room *domain.Room) error {
		if err := room.Start(callerID, questID, g.EntryNodeID, s.now); err != nil {
			return err
		}
		return s.enterNode(ctx, room, g, g.EntryNodeID)
	})
	if err != nil {
		return domain.Room{}, err
	}

	s.appendJournal(ctx, storage.JournalEntry{RoomCode: room.Code, Kind: "quest_started", ActorID: callerID, Detail: questID})
	s.emit(ctx, storage.TelemetryEvent{
		Name:       "quest_started",
		RoomCode:   room.Code,
		PlayerID:   callerID,
		Attributes: map[string]string{"quest": questID},
	})
	return room, nil
}

// CastVote records a player's choice on the current node and resolves the
// node once every required participant has spoken. On vote nodes the choice
// is shared; on individual nodes it branches the caller; on sequential
// broadcast nodes it is revealed immediately in turn order.
func (s *Service) CastVote(ctx context.Context, code, playerID, choiceID string) (domain.Room, error) {
	return s.withRoom(ctx, code, func(room *domain.Room) error {
		quest, g, err := s.activeQuest(room)
		if err != nil {
			return err
		}
		if _, ok := room.Participant(playerID); !ok {
			return apperrors.New(apperrors.CodeRoomUnknownPlayer, "player is not in the room")
		}

		if quest.Diverged() {
			return s.voteOnBranch(ctx, room, g, playerID, choiceID)
		}

		node, ok := g.Node(quest.NodeID)
		if !ok {
			return apperrors.New(apperrors.CodeQuestNodeNotFound, "current node is missing from the graph")
		}

		switch node.Interaction {
		case graph.InteractionVote:
			if err := s.recordVote(ctx, room, node, playerID, choiceID); err != nil {
				return err
			}
			required := s.requiredPlayers(room)
			if !allVoted(quest.Votes, required) {
				return nil
			}
			choice, ok := graph.ResolveVote(node, quest.Votes, room.HostID)
			if !ok {
				return apperrors.New(apperrors.CodeQuestChoiceNotFound, "vote did not resolve to a choice")
			}
			return s.applyChoice(ctx, room, g, node, choice, "")

		case graph.InteractionIndividual:
			if err := s.recordVote(ctx, room, node, playerID, choiceID); err != nil {
				return err
			}
			required := s.requiredPlayers(room)
			branches, done := graph.ResolveIndividual(node, quest.Votes, required)
			if !done {
				return nil
			}
			return s.openBranches(ctx, room, g, node, branches)

		case graph.InteractionSequentialBroadcast:
			return s.broadcastTurn(ctx, room, g, node, playerID, choiceID)

		default:
			return apperrors.WithMetadata(apperrors.CodeQuestWrongInteraction,
				"current node does not take votes",
				map[string]string{"Interaction": graph.InteractionLabel(node.Interaction)})
		}
	})
}

// NodeReady confirms a player on a sync node. The node advances when every
// required participant has confirmed.
func (s *Service) NodeReady(ctx context.Context, code, playerID string) (domain.Room, error) {
	return s.withRoom(ctx, code, func(room *domain.Room) error {
		quest, g, err := s.activeQuest(room)
		if err != nil {
			return err
		}
		if _, ok := room.Participant(playerID); !ok {
			return apperrors.New(apperrors.CodeRoomUnknownPlayer, "player is not in the room")
		}
		node, ok := g.Node(quest.NodeID)
		if !ok {
			return apperrors.New(apperrors.CodeQuestNodeNotFound, "current node is missing from the graph")
		}
		if node.Interaction != graph.InteractionSync {
			return apperrors.WithMetadata(apperrors.CodeQuestWrongInteraction,
				"current node is not a sync point",
				map[string]string{"Interaction": graph.InteractionLabel(node.Interaction)})
		}

		quest.Ready[playerID] = true
		if !graph.ResolveSync(quest.Ready, s.requiredPlayers(room)) {
			return nil
		}
		if node.Terminal || node.NextNodeID == "" {
			return s.finishQuest(ctx, room, "completed")
		}
		return s.advance(ctx, room, g, node.NextNodeID, "", "", "sync complete")
	})
}

// Contribute applies one scored contribution on a contribute node. The node
// exits through its success branch when the target is met, or through its
// failure branch when the turn budget runs out first.
func (s *Service) Contribute(ctx context.Context, code, playerID, tag string, base int) (domain.Room, error) {
	return s.withRoom(ctx, code, func(room *domain.Room) error {
		quest, g, err := s.activeQuest(room)
		if err != nil {
			return err
		}
		participant, ok := room.Participant(playerID)
		if !ok {
			return apperrors.New(apperrors.CodeRoomUnknownPlayer, "player is not in the room")
		}
		node, ok := g.Node(quest.NodeID)
		if !ok {
			return apperrors.New(apperrors.CodeQuestNodeNotFound, "current node is missing from the graph")
		}
		if node.Interaction != graph.InteractionContribute || node.Score == nil {
			return apperrors.WithMetadata(apperrors.CodeQuestWrongInteraction,
				"current node does not take contributions",
				map[string]string{"Interaction": graph.InteractionLabel(node.Interaction)})
		}

		if quest.Score == nil {
			quest.Score = &domain.Score{Target: node.Score.Target}
		}

		modifier := quest.ActiveModifier(tag, s.now)
		applied := graph.ContributionAmount(participant.Role, tag, base, modifier)
		quest.Score.Current += applied
		quest.Score.History = append(quest.Score.History, domain.ScoreEntry{
			PlayerID: playerID,
			Tag:      tag,
			Base:     base,
			Applied:  applied,
			At:       s.now().UTC(),
		})
		s.appendJournal(ctx, storage.JournalEntry{
			RoomCode: room.Code,
			Kind:     "contribution",
			ActorID:  playerID,
			Detail:   fmt.Sprintf("tag=%s applied=%d total=%d", tag, applied, quest.Score.Current),
		})

		if quest.Score.Current >= node.Score.Target {
			quest.Score = nil
			return s.advance(ctx, room, g, node.Score.SuccessNodeID, "", playerID, "objective met")
		}
		if len(quest.Score.History) >= node.Score.TurnBudget {
			quest.Score = nil
			return s.advance(ctx, room, g, node.Score.FailureNodeID, "", playerID, "turn budget exhausted")
		}
		return nil
	})
}

// activeQuest checks the room is mid-quest and returns the session plus its
// graph.
func (s *Service) activeQuest(room *domain.Room) (*domain.QuestSession, *graph.Graph, error) {
	if room.Status != domain.RoomStatusActive || room.Quest == nil {
		return nil, nil, apperrors.New(apperrors.CodeQuestNotStarted, "room has no active quest")
	}
	g, ok := s.library.Graph(room.Quest.QuestID)
	if !ok {
		return nil, nil, apperrors.WithMetadata(apperrors.CodeNotFound,
			"quest is not loaded",
			map[string]string{"Quest": room.Quest.QuestID})
	}
	return room.Quest, g, nil
}

// requiredPlayers returns the participants whose input gates node
// resolution. Disconnected players are excluded so the room cannot stall on
// an absent device; a fully cold tracker falls back to the whole roster.
func (s *Service) requiredPlayers(room *domain.Room) []string {
	connected := make(map[string]bool)
	for _, playerID := range s.tracker.Connected(room.Code) {
		connected[playerID] = true
	}
	if len(connected) == 0 {
		return room.PlayerIDs()
	}
	var required []string
	for _, playerID := range room.PlayerIDs() {
		if connected[playerID] {
			required = append(required, playerID)
		}
	}
	if len(required) == 0 {
		return room.PlayerIDs()
	}
	return required
}

// recordVote validates gating and stores a vote. Re-voting before resolution
// overwrites the prior vote.
func (s *Service) recordVote(ctx context.Context, room *domain.Room, node graph.Node, playerID, choiceID string) error {
	choice, ok := node.Choice(choiceID)
	if !ok {
		return apperrors.WithMetadata(apperrors.CodeQuestChoiceNotFound,
			"choice does not exist on this node",
			map[string]string{"Choice": choiceID})
	}
	player, err := s.playerFacts(ctx, room, playerID)
	if err != nil {
		return err
	}
	if err := graph.CheckRequirements(choice, player); err != nil {
		return err
	}
	room.Quest.Votes[playerID] = choiceID
	return nil
}

// playerFacts merges the external profile with session-earned items.
func (s *Service) playerFacts(ctx context.Context, room *domain.Room, playerID string) (graph.Player, error) {
	player, err := s.profiles.Profile(ctx, playerID)
	if err != nil {
		return graph.Player{}, apperrors.Wrap(apperrors.CodeUnknown, "load player profile", err)
	}
	player.ID = playerID
	player.Role = room.RoleOf(playerID)
	if room.Quest != nil {
		player.Items = append(player.Items, room.Quest.Items[playerID]...)
	}
	return player, nil
}

func allVoted(votes map[string]string, required []string) bool {
	for _, playerID := range required {
		if _, ok := votes[playerID]; !ok {
			return false
		}
	}
	return true
}

// broadcastTurn handles one pick on a sequential broadcast node. Picks are
// revealed to everyone the moment they land, in strict turn order; after the
// last turn the node resolves like a vote.
func (s *Service) broadcastTurn(ctx context.Context, room *domain.Room, g *graph.Graph, node graph.Node, playerID, choiceID string) error {
	quest := room.Quest
	current, ok := quest.CurrentTurn()
	if !ok || current != playerID {
		return apperrors.WithMetadata(apperrors.CodeQuestNotPlayersTurn,
			"it is not this player's turn",
			map[string]string{"CurrentTurn": current})
	}
	if err := s.recordVote(ctx, room, node, playerID, choiceID); err != nil {
		return err
	}
	choice, _ := node.Choice(choiceID)
	quest.Reactions = append(quest.Reactions, domain.Reaction{
		PlayerID: playerID,
		ChoiceID: choiceID,
		Text:     choice.Text,
		At:       s.now().UTC(),
	})
	quest.TurnIndex++

	if quest.TurnIndex < len(quest.TurnOrder) {
		return nil
	}
	resolved, ok := graph.ResolveVote(node, quest.Votes, room.HostID)
	if !ok {
		return apperrors.New(apperrors.CodeQuestChoiceNotFound, "broadcast did not resolve to a choice")
	}
	return s.applyChoice(ctx, room, g, node, resolved, "")
}

// openBranches diverges the party after an individual node resolves. When
// every branch already points at the same node the divergence is skipped.
func (s *Service) openBranches(ctx context.Context, room *domain.Room, g *graph.Graph, node graph.Node, branches map[string]string) error {
	common := ""
	same := true
	for _, next := range branches {
		if common == "" {
			common = next
		} else if next != common {
			same = false
			break
		}
	}
	if same {
		return s.advance(ctx, room, g, common, "", "", "party chose together")
	}

	quest := room.Quest
	quest.Branches = branches
	quest.Votes = make(map[string]string)
	quest.AppendNote("", "party diverged", s.now)
	s.appendJournal(ctx, storage.JournalEntry{RoomCode: room.Code, Kind: "party_diverged"})
	return nil
}

// voteOnBranch advances a single diverged player along their private branch.
// The party reconverges once every branch reaches the same node.
func (s *Service) voteOnBranch(ctx context.Context, room *domain.Room, g *graph.Graph, playerID, choiceID string) error {
	quest := room.Quest
	branchNodeID, ok := quest.Branches[playerID]
	if !ok {
		return apperrors.New(apperrors.CodeQuestNodeAlreadyResolved, "player has already rejoined the party")
	}
	node, ok := g.Node(branchNodeID)
	if !ok {
		return apperrors.New(apperrors.CodeQuestNodeNotFound, "branch node is missing from the graph")
	}

	var nextID string
	switch node.Interaction {
	case graph.InteractionSync:
		nextID = node.NextNodeID
	default:
		choice, ok := node.Choice(choiceID)
		if !ok {
			return apperrors.WithMetadata(apperrors.CodeQuestChoiceNotFound,
				"choice does not exist on this node",
				map[string]string{"Choice": choiceID})
		}
		player, err := s.playerFacts(ctx, room, playerID)
		if err != nil {
			return err
		}
		if err := graph.CheckRequirements(choice, player); err != nil {
			return err
		}
		s.grantChoiceRewards(room, choice, playerID)
		nextID = choice.NextNodeID
	}
	if nextID == "" {
		return apperrors.New(apperrors.CodeQuestNodeNotFound, "branch has no outgoing node")
	}

	quest.Branches[playerID] = nextID
	s.appendJournal(ctx, storage.JournalEntry{
		RoomCode: room.Code,
		Kind:     "branch_step",
		ActorID:  playerID,
		Detail:   nextID,
	})

	common := ""
	for _, at := range quest.Branches {
		if common == "" {
			common = at
		} else if at != common {
			return nil
		}
	}
	quest.Branches = make(map[string]string)
	return s.advance(ctx, room, g, common, "", "", "party reconverged")
}

// grantChoiceRewards applies a choice's flags, items and status effect.
func (s *Service) grantChoiceRewards(room *domain.Room, choice graph.Choice, actorID string) {
	quest := room.Quest
	for _, flag := range choice.Flags {
		if !hasString(quest.Flags, flag) {
			quest.Flags = append(quest.Flags, flag)
		}
	}
	if actorID != "" {
		for _, item := range choice.ItemRewards {
			quest.GrantItem(actorID, item)
		}
	}
	if choice.ApplyStatus != nil {
		mod := domain.Modifier{
			Key:        choice.ApplyStatus.Key,
			Multiplier: choice.ApplyStatus.Multiplier,
		}
		if choice.ApplyStatus.DurationSeconds > 0 {
			mod.ExpiresAt = s.now().UTC().Add(time.Duration(choice.ApplyStatus.DurationSeconds) * time.Second)
		}
		quest.Modifiers[mod.Key] = mod
	}
}

// applyChoice applies a resolved choice's consequences and moves the
// session: a plain choice advances the graph, an action choice opens a
// battle, switches quests or finishes the session.
func (s *Service) applyChoice(ctx context.Context, room *domain.Room, g *graph.Graph, node graph.Node, choice graph.Choice, actorID string) error {
	s.grantChoiceRewards(room, choice, actorID)
	s.appendJournal(ctx, storage.JournalEntry{
		RoomCode: room.Code,
		Kind:     "choice_resolved",
		ActorID:  actorID,
		Detail:   fmt.Sprintf("node=%s choice=%s", node.ID, choice.ID),
	})

	if choice.Action != nil {
		switch choice.Action.Kind {
		case graph.ActionStartCoopBattle:
			return s.openBattle(ctx, room, g, *choice.Action)
		case graph.ActionStartSubQuest:
			return s.switchQuest(ctx, room, choice.Action.QuestID)
		case graph.ActionFinishQuest:
			return s.finishQuest(ctx, room, "completed")
		}
	}

	if choice.NextNodeID == "" {
		if node.Terminal {
			return s.finishQuest(ctx, room, "completed")
		}
		return apperrors.New(apperrors.CodeQuestNodeNotFound, "choice has no outgoing node")
	}
	return s.advance(ctx, room, g, choice.NextNodeID, choice.ID, actorID, "")
}

// switchQuest repositions the session at a sub-quest's entry node. History
// carries over so the full run stays auditable.
func (s *Service) switchQuest(ctx context.Context, room *domain.Room, questID string) error {
	sub, ok := s.library.Graph(questID)
	if !ok {
		return apperrors.WithMetadata(apperrors.CodeNotFound,
			"quest is not loaded",
			map[string]string{"Quest": questID})
	}
	quest := room.Quest
	quest.QuestID = questID
	quest.AdvanceTo(sub.EntryNodeID, "", "", "entered "+questID, s.now)
	s.appendJournal(ctx, storage.JournalEntry{RoomCode: room.Code, Kind: "sub_quest_started", Detail: questID})
	return s.enterNode(ctx, room, sub, sub.EntryNodeID)
}

// advance moves the session to nodeID and runs node-entry effects.
func (s *Service) advance(ctx context.Context, room *domain.Room, g *graph.Graph, nodeID, choiceID, actorID, note string) error {
	node, ok := g.Node(nodeID)
	if !ok {
		return apperrors.WithMetadata(apperrors.CodeQuestNodeNotFound,
			"next node is missing from the graph",
			map[string]string{"Node": nodeID})
	}
	room.Quest.AdvanceTo(nodeID, choiceID, actorID, note, s.now)
	s.appendJournal(ctx, storage.JournalEntry{
		RoomCode: room.Code,
		Kind:     "node_entered",
		ActorID:  actorID,
		Detail:   nodeID,
	})
	if node.Terminal && len(node.Choices) == 0 && node.Interaction != graph.InteractionSync {
		return s.finishQuest(ctx, room, "completed")
	}
	return s.enterNode(ctx, room, g, nodeID)
}

// enterNode runs on-entry effects for the current node: passive checks are
// evaluated once and their reveals journaled against the owning player.
func (s *Service) enterNode(ctx context.Context, room *domain.Room, g *graph.Graph, nodeID string) error {
	node, ok := g.Node(nodeID)
	if !ok {
		return apperrors.New(apperrors.CodeQuestNodeNotFound, "node is missing from the graph")
	}
	if len(node.Passive) == 0 {
		return nil
	}

	players := make([]graph.Player, 0, len(room.Participants))
	for _, participant := range room.Participants {
		player, err := s.playerFacts(ctx, room, participant.PlayerID)
		if err != nil {
			return err
		}
		players = append(players, player)
	}
	for _, reveal := range graph.EvaluatePassive(node, players) {
		if reveal.Flag != "" && reveal.Passed && !hasString(room.Quest.Flags, reveal.Flag) {
			room.Quest.Flags = append(room.Quest.Flags, reveal.Flag)
		}
		room.Quest.AppendNote(reveal.PlayerID, reveal.Text, s.now)
		s.appendJournal(ctx, storage.JournalEntry{
			RoomCode: room.Code,
			Kind:     "passive_reveal",
			ActorID:  reveal.PlayerID,
			Detail:   reveal.Text,
		})
	}
	return nil
}

// finishQuest flips the room to FINISHED and pushes session-earned rewards
// to the profile store. The room itself is reaped later by the cleanup sweep
// so clients can read the final state.
func (s *Service) finishQuest(ctx context.Context, room *domain.Room, outcome string) error {
	room.Finish(s.now)
	s.pushRewards(ctx, room, outcome)
	s.appendJournal(ctx, storage.JournalEntry{RoomCode: room.Code, Kind: "quest_finished", Detail: outcome})
	s.emit(ctx, storage.TelemetryEvent{
		Name:       "quest_finished",
		RoomCode:   room.Code,
		Attributes: map[string]string{"outcome": outcome},
	})
	return nil
}

// pushRewards writes each participant's session-earned items and the shared
// quest flags back through the profile mutator.
func (s *Service) pushRewards(ctx context.Context, room *domain.Room, outcome string) {
	if s.rewards == nil || room.Quest == nil {
		return
	}
	for _, participant := range room.Participants {
		reward := QuestReward{
			QuestID: room.Quest.QuestID,
			Outcome: outcome,
			Items:   append([]string(nil), room.Quest.Items[participant.PlayerID]...),
			Flags:   append([]string(nil), room.Quest.Flags...),
		}
		if err := s.rewards.GrantQuestRewards(ctx, participant.PlayerID, reward); err != nil {
			log.Printf("reward push failed room=%s player=%s err=%v", room.Code, participant.PlayerID, err)
		}
	}
}

func hasString(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
