// Package graph defines static quest content: nodes, choices, encounters and
// the resolution rules for each interaction type. Graphs are validated at
// load time and consumed read-only at runtime.
package graph

import (
	"strings"

	"github.com/louisbranch/wayfarer.quest/internal/coop/domain"
)

// InteractionType governs how a node's choices resolve.
type InteractionType int

const (
	// InteractionUnspecified represents an invalid interaction value.
	InteractionUnspecified InteractionType = iota
	// InteractionVote resolves by plurality among cast votes.
	InteractionVote
	// InteractionIndividual branches each player independently.
	InteractionIndividual
	// InteractionSync waits for every participant to confirm.
	InteractionSync
	// InteractionContribute accumulates scored contributions.
	InteractionContribute
	// InteractionSequentialBroadcast reveals choices in strict turn order.
	InteractionSequentialBroadcast
)

// InteractionLabel returns the string label for an interaction type.
func InteractionLabel(it InteractionType) string {
	switch it {
	case InteractionVote:
		return "VOTE"
	case InteractionIndividual:
		return "INDIVIDUAL"
	case InteractionSync:
		return "SYNC"
	case InteractionContribute:
		return "CONTRIBUTE"
	case InteractionSequentialBroadcast:
		return "SEQUENTIAL_BROADCAST"
	default:
		return "UNSPECIFIED"
	}
}

// InteractionFromLabel converts an interaction label to its value.
func InteractionFromLabel(label string) InteractionType {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "VOTE":
		return InteractionVote
	case "INDIVIDUAL":
		return InteractionIndividual
	case "SYNC":
		return InteractionSync
	case "CONTRIBUTE":
		return InteractionContribute
	case "SEQUENTIAL_BROADCAST":
		return InteractionSequentialBroadcast
	default:
		return InteractionUnspecified
	}
}

// ActionKind is the closed set of choice side effects.
type ActionKind int

const (
	// ActionNone means the choice only branches.
	ActionNone ActionKind = iota
	// ActionStartSubQuest switches the room to another quest graph.
	ActionStartSubQuest
	// ActionStartCoopBattle opens a commit-reveal battle.
	ActionStartCoopBattle
	// ActionFinishQuest ends the quest session.
	ActionFinishQuest
)

// ActionKindFromLabel converts an action label to its value.
func ActionKindFromLabel(label string) ActionKind {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "start_sub_quest":
		return ActionStartSubQuest
	case "start_coop_battle":
		return ActionStartCoopBattle
	case "finish_quest":
		return ActionFinishQuest
	default:
		return ActionNone
	}
}

// Action is a tagged side-effect variant attached to a choice. The payload
// shape is fixed per kind and validated at content load.
type Action struct {
	Kind ActionKind
	// QuestID targets the sub-quest for ActionStartSubQuest.
	QuestID string
	// EncounterID, VictoryNodeID and DefeatNodeID configure
	// ActionStartCoopBattle.
	EncounterID   string
	VictoryNodeID string
	DefeatNodeID  string
}

// StatusEffect is a time-bounded multiplier applied when a choice resolves.
type StatusEffect struct {
	Key        string
	Multiplier float64
	// DurationSeconds bounds the effect; zero means until quest end.
	DurationSeconds int
}

// Choice is one selectable edge out of a node, with optional gating and
// consequences.
type Choice struct {
	ID         string
	Text       string
	NextNodeID string

	RequiredRole       domain.Role
	RequiredStats      map[string]int
	RequiredAttributes map[string]int
	RequiredTraits     []string
	RequiredItem       string

	Flags       []string
	ItemRewards []string
	ApplyStatus *StatusEffect
	Action      *Action
}

// PassiveCheck is a role/attribute-gated reveal resolved independently of the
// node's interaction type. Passive checks never block advancement.
type PassiveCheck struct {
	Role      domain.Role
	Attribute string
	Min       int
	Reveal    string
	FailText  string
	Flag      string
}

// ScoreSpec configures a contribute node.
type ScoreSpec struct {
	Target int
	// TurnBudget caps contribution turns; the node advances when the
	// target is met or the budget is exhausted, whichever first.
	TurnBudget int
	// SuccessNodeID and FailureNodeID are the two exits.
	SuccessNodeID string
	FailureNodeID string
}

// Node is one narrative beat of a quest graph.
type Node struct {
	ID          string
	Title       string
	Text        string
	Interaction InteractionType
	Choices     []Choice
	Passive     []PassiveCheck
	// NextNodeID is the single exit of a sync node.
	NextNodeID string
	// Score configures contribute nodes.
	Score *ScoreSpec
	// Terminal marks quest-ending nodes.
	Terminal bool
}

// Choice returns the choice with the given id.
func (n *Node) Choice(id string) (Choice, bool) {
	for _, c := range n.Choices {
		if c.ID == id {
			return c, true
		}
	}
	return Choice{}, false
}

// EnemySpec declares one enemy unit of an encounter.
type EnemySpec struct {
	Name       string
	Rank       int
	HP         int
	Armor      int
	Attack     int
	Initiative int
	Behavior   domain.BehaviorKind
}

// Encounter is a static battle definition referenced by
// ActionStartCoopBattle.
type Encounter struct {
	ID      string
	Name    string
	Enemies []EnemySpec
}

// Graph is a validated quest content graph.
type Graph struct {
	QuestID     string
	EntryNodeID string
	Nodes       map[string]Node
	Encounters  map[string]Encounter
	// nodeOrder preserves declaration order for deterministic iteration.
	nodeOrder []string
}

// NewGraph creates an empty graph for the loader to populate.
func NewGraph(questID, entryNodeID string) *Graph {
	return &Graph{
		QuestID:     questID,
		EntryNodeID: entryNodeID,
		Nodes:       make(map[string]Node),
		Encounters:  make(map[string]Encounter),
	}
}

// AddNode registers a node, preserving declaration order.
func (g *Graph) AddNode(n Node) {
	if _, exists := g.Nodes[n.ID]; !exists {
		g.nodeOrder = append(g.nodeOrder, n.ID)
	}
	g.Nodes[n.ID] = n
}

// AddEncounter registers a battle encounter.
func (g *Graph) AddEncounter(e Encounter) {
	g.Encounters[e.ID] = e
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.Nodes[id]
	return n, ok
}

// Encounter returns the encounter with the given id.
func (g *Graph) Encounter(id string) (Encounter, bool) {
	e, ok := g.Encounters[id]
	return e, ok
}

// NodeOrder returns node ids in declaration order.
func (g *Graph) NodeOrder() []string {
	return append([]string(nil), g.nodeOrder...)
}
