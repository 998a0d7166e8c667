package domain

import "time"

// HistoryEntry is one resolved step in the quest audit trail. The history is
// append-only; prior entries are never mutated.
type HistoryEntry struct {
	NodeID   string
	ChoiceID string
	ActorID  string
	Note     string
	At       time.Time
}

// ScoreEntry records a single contribution toward a scored objective.
type ScoreEntry struct {
	PlayerID string
	Tag      string
	Base     int
	Applied  int
	At       time.Time
}

// Score accumulates contributions toward a cooperative side objective.
type Score struct {
	Current int
	Target  int
	History []ScoreEntry
}

// Modifier is a time-bounded status multiplier affecting future checks.
type Modifier struct {
	Key        string
	Multiplier float64
	ExpiresAt  time.Time
}

// Reaction is one entry of the shared log produced by sequential-broadcast
// nodes; it is visible to every participant.
type Reaction struct {
	PlayerID string
	ChoiceID string
	Text     string
	At       time.Time
}

// QuestSession is the quest state machine instance bound to a room.
type QuestSession struct {
	QuestID string
	NodeID  string

	// Votes maps playerID to choiceID on the current node; cleared on
	// every node transition.
	Votes map[string]string
	// Ready maps playerID to confirmation on sync nodes; cleared on every
	// node transition.
	Ready map[string]bool
	// Branches holds per-player node positions while an individual
	// interaction has the party diverged. Empty once branches reconverge.
	Branches map[string]string

	Reactions []Reaction
	TurnOrder []string
	TurnIndex int

	Score     *Score
	Modifiers map[string]Modifier
	Flags     []string
	// Items holds per-player item rewards earned during the session; they
	// are pushed to the external profile store when the quest finishes.
	Items map[string][]string

	History []HistoryEntry

	Battle *Battle

	StartedAt time.Time
}

// NewQuestSession creates a session positioned at the quest entry node. The
// entry node is recorded as history[0].
func NewQuestSession(questID, entryNodeID string, turnOrder []string, now func() time.Time) *QuestSession {
	if now == nil {
		now = time.Now
	}
	startedAt := now().UTC()
	return &QuestSession{
		QuestID:   questID,
		NodeID:    entryNodeID,
		Votes:     make(map[string]string),
		Ready:     make(map[string]bool),
		Branches:  make(map[string]string),
		Modifiers: make(map[string]Modifier),
		Items:     make(map[string][]string),
		TurnOrder: append([]string(nil), turnOrder...),
		History: []HistoryEntry{{
			NodeID: entryNodeID,
			At:     startedAt,
		}},
		StartedAt: startedAt,
	}
}

// AdvanceTo moves the session to the next node, clears per-node state and
// appends the transition to the history.
func (q *QuestSession) AdvanceTo(nodeID, choiceID, actorID, note string, now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	q.NodeID = nodeID
	q.Votes = make(map[string]string)
	q.Ready = make(map[string]bool)
	q.Reactions = nil
	q.TurnIndex = 0
	q.History = append(q.History, HistoryEntry{
		NodeID:   nodeID,
		ChoiceID: choiceID,
		ActorID:  actorID,
		Note:     note,
		At:       now().UTC(),
	})
}

// AppendNote records an audit entry on the current node without advancing,
// used for disconnect substitutions and passive reveals.
func (q *QuestSession) AppendNote(actorID, note string, now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	q.History = append(q.History, HistoryEntry{
		NodeID:  q.NodeID,
		ActorID: actorID,
		Note:    note,
		At:      now().UTC(),
	})
}

// Diverged reports whether the party is split across individual branches.
func (q *QuestSession) Diverged() bool {
	return len(q.Branches) > 0
}

// ActiveModifier returns the multiplier for a tag, honoring expiry. Missing
// or expired modifiers contribute a neutral 1.0.
func (q *QuestSession) ActiveModifier(key string, now func() time.Time) float64 {
	if now == nil {
		now = time.Now
	}
	mod, ok := q.Modifiers[key]
	if !ok {
		return 1.0
	}
	if !mod.ExpiresAt.IsZero() && now().UTC().After(mod.ExpiresAt) {
		return 1.0
	}
	return mod.Multiplier
}

// GrantItem records an item reward for a player.
func (q *QuestSession) GrantItem(playerID, item string) {
	if q.Items == nil {
		q.Items = make(map[string][]string)
	}
	q.Items[playerID] = append(q.Items[playerID], item)
}

// CurrentTurn returns the player whose turn it is on a sequential node.
func (q *QuestSession) CurrentTurn() (string, bool) {
	if q.TurnIndex < 0 || q.TurnIndex >= len(q.TurnOrder) {
		return "", false
	}
	return q.TurnOrder[q.TurnIndex], true
}
