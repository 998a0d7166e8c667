package domain

import (
	"strings"
	"time"

	apperrors "github.com/louisbranch/wayfarer.quest/internal/platform/errors"
)

// RoundPhase describes the commit-reveal state machine phase.
type RoundPhase int

const (
	// RoundPhaseUnspecified represents an invalid phase value.
	RoundPhaseUnspecified RoundPhase = iota
	// RoundPhasePlanning accepts commitments; payloads stay hidden.
	RoundPhasePlanning
	// RoundPhaseExecuting reveals all commitments atomically.
	RoundPhaseExecuting
	// RoundPhaseResolution applies actions in deterministic order.
	RoundPhaseResolution
)

// RoundPhaseLabel returns the string label for a round phase.
func RoundPhaseLabel(phase RoundPhase) string {
	switch phase {
	case RoundPhasePlanning:
		return "PLANNING"
	case RoundPhaseExecuting:
		return "EXECUTING"
	case RoundPhaseResolution:
		return "RESOLUTION"
	default:
		return "UNSPECIFIED"
	}
}

// ActionKind is the closed set of combat action variants.
type ActionKind int

const (
	// ActionKindUnspecified represents an invalid action value.
	ActionKindUnspecified ActionKind = iota
	// ActionKindAttack strikes a target unit.
	ActionKindAttack
	// ActionKindDefend halves incoming damage for the round.
	ActionKindDefend
	// ActionKindMove changes the unit's rank.
	ActionKindMove
	// ActionKindUseCard plays a combat card.
	ActionKindUseCard
	// ActionKindPass does nothing.
	ActionKindPass
)

// ActionKindLabel returns the string label for an action kind.
func ActionKindLabel(kind ActionKind) string {
	switch kind {
	case ActionKindAttack:
		return "ATTACK"
	case ActionKindDefend:
		return "DEFEND"
	case ActionKindMove:
		return "MOVE"
	case ActionKindUseCard:
		return "USE_CARD"
	case ActionKindPass:
		return "PASS"
	default:
		return "UNSPECIFIED"
	}
}

// ActionKindFromLabel converts an action label to an ActionKind value.
func ActionKindFromLabel(label string) ActionKind {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "ATTACK":
		return ActionKindAttack
	case "DEFEND":
		return ActionKindDefend
	case "MOVE":
		return ActionKindMove
	case "USE_CARD":
		return ActionKindUseCard
	case "PASS":
		return ActionKindPass
	default:
		return ActionKindUnspecified
	}
}

// ActionPayload is a committed combat action. Payloads are opaque to other
// players until the round reveals.
type ActionPayload struct {
	Kind     ActionKind
	TargetID string
	CardID   string
	ToRank   int
}

// Commitment is one player's sealed action for the current round.
type Commitment struct {
	PlayerID    string
	Payload     ActionPayload
	CommittedAt time.Time
	Revealed    bool
	// Substituted marks auto-defense actions recorded on behalf of
	// disconnected or unresponsive players.
	Substituted bool
}

// Round is the per-round commitment buffer for the commit-reveal protocol.
type Round struct {
	Number      int
	Phase       RoundPhase
	Commitments map[string]Commitment
	// Queued holds payloads explicitly deferred to the next round by
	// players who committed after close.
	Queued   map[string]ActionPayload
	OpenedAt time.Time
}

// NewRound opens round one in PLANNING.
func NewRound(now func() time.Time) *Round {
	if now == nil {
		now = time.Now
	}
	return &Round{
		Number:      1,
		Phase:       RoundPhasePlanning,
		Commitments: make(map[string]Commitment),
		Queued:      make(map[string]ActionPayload),
		OpenedAt:    now().UTC(),
	}
}

// Commit records a player's action. Re-committing overwrites the prior
// commitment. Committing after PLANNING closed fails with RoundClosed; when
// queueNext is set the payload is kept for the next round instead of dropped.
func (r *Round) Commit(playerID string, payload ActionPayload, queueNext bool, now func() time.Time) error {
	if now == nil {
		now = time.Now
	}
	if r.Phase != RoundPhasePlanning {
		if queueNext {
			r.Queued[playerID] = payload
		}
		return apperrors.WithMetadata(apperrors.CodeRoundClosed,
			"round is no longer accepting commitments",
			map[string]string{"Round": RoundPhaseLabel(r.Phase)})
	}
	r.Commitments[playerID] = Commitment{
		PlayerID:    playerID,
		Payload:     payload,
		CommittedAt: now().UTC(),
	}
	return nil
}

// Cancel clears a player's commitment during PLANNING.
func (r *Round) Cancel(playerID string) error {
	if r.Phase != RoundPhasePlanning {
		return apperrors.New(apperrors.CodeRoundClosed, "round is no longer accepting commitments")
	}
	if _, ok := r.Commitments[playerID]; !ok {
		return apperrors.New(apperrors.CodeRoundNoCommitment, "no commitment to cancel")
	}
	delete(r.Commitments, playerID)
	return nil
}

// Substitute records a conservative default action on behalf of a player.
// Existing commitments are kept; substitution never overwrites real input.
func (r *Round) Substitute(playerID string, now func() time.Time) bool {
	if now == nil {
		now = time.Now
	}
	if r.Phase != RoundPhasePlanning {
		return false
	}
	if _, ok := r.Commitments[playerID]; ok {
		return false
	}
	r.Commitments[playerID] = Commitment{
		PlayerID:    playerID,
		Payload:     ActionPayload{Kind: ActionKindDefend},
		CommittedAt: now().UTC(),
		Substituted: true,
	}
	return true
}

// AllCommitted reports whether every required player has a commitment.
func (r *Round) AllCommitted(required []string) bool {
	for _, id := range required {
		if _, ok := r.Commitments[id]; !ok {
			return false
		}
	}
	return true
}

// Expired reports whether the planning window has elapsed.
func (r *Round) Expired(timeout time.Duration, now func() time.Time) bool {
	if now == nil {
		now = time.Now
	}
	return r.Phase == RoundPhasePlanning && now().UTC().Sub(r.OpenedAt) >= timeout
}

// Reveal transitions PLANNING -> EXECUTING and marks every commitment
// revealed. All payloads become visible in the same state change; there is no
// partial-reveal window.
func (r *Round) Reveal() {
	r.Phase = RoundPhaseExecuting
	for id, c := range r.Commitments {
		c.Revealed = true
		r.Commitments[id] = c
	}
}

// Next closes RESOLUTION and opens the following round, promoting any queued
// payloads into fresh commitments.
func (r *Round) Next(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	at := now().UTC()
	r.Number++
	r.Phase = RoundPhasePlanning
	r.Commitments = make(map[string]Commitment)
	r.OpenedAt = at
	for id, payload := range r.Queued {
		r.Commitments[id] = Commitment{
			PlayerID:    id,
			Payload:     payload,
			CommittedAt: at,
		}
	}
	r.Queued = make(map[string]ActionPayload)
}
