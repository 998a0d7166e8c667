package domain

import (
	"testing"
	"time"

	apperrors "github.com/louisbranch/wayfarer.quest/internal/platform/errors"
)

func TestCommitOverwrites(t *testing.T) {
	round := NewRound(fixedClock(baseTime))
	if err := round.Commit("p1", ActionPayload{Kind: ActionKindAttack, TargetID: "e1"}, false, fixedClock(baseTime)); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := round.Commit("p1", ActionPayload{Kind: ActionKindDefend}, false, fixedClock(baseTime)); err != nil {
		t.Fatalf("recommit: %v", err)
	}
	if len(round.Commitments) != 1 {
		t.Fatalf("commitments = %d, want 1", len(round.Commitments))
	}
	if round.Commitments["p1"].Payload.Kind != ActionKindDefend {
		t.Fatal("expected overwrite, kept original payload")
	}
}

func TestCommitAfterCloseFails(t *testing.T) {
	round := NewRound(fixedClock(baseTime))
	round.Reveal()

	err := round.Commit("p1", ActionPayload{Kind: ActionKindAttack}, false, fixedClock(baseTime))
	if !apperrors.IsCode(err, apperrors.CodeRoundClosed) {
		t.Fatalf("err = %v, want ROUND_CLOSED", err)
	}
	if len(round.Queued) != 0 {
		t.Fatal("default must drop the payload, not queue it")
	}
}

func TestCommitAfterCloseQueuesOnRequest(t *testing.T) {
	round := NewRound(fixedClock(baseTime))
	round.Reveal()

	err := round.Commit("p1", ActionPayload{Kind: ActionKindAttack, TargetID: "e1"}, true, fixedClock(baseTime))
	if !apperrors.IsCode(err, apperrors.CodeRoundClosed) {
		t.Fatalf("err = %v, want ROUND_CLOSED", err)
	}

	round.Phase = RoundPhaseResolution
	round.Next(fixedClock(baseTime.Add(time.Second)))

	if round.Number != 2 {
		t.Fatalf("round = %d, want 2", round.Number)
	}
	c, ok := round.Commitments["p1"]
	if !ok {
		t.Fatal("queued payload should carry into next round")
	}
	if c.Payload.TargetID != "e1" {
		t.Fatalf("payload target = %q", c.Payload.TargetID)
	}
}

func TestCancelClearsCommitment(t *testing.T) {
	round := NewRound(fixedClock(baseTime))
	if err := round.Commit("p1", ActionPayload{Kind: ActionKindAttack}, false, fixedClock(baseTime)); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := round.Cancel("p1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if len(round.Commitments) != 0 {
		t.Fatal("expected no commitments after cancel")
	}
	if err := round.Cancel("p1"); !apperrors.IsCode(err, apperrors.CodeRoundNoCommitment) {
		t.Fatalf("err = %v, want ROUND_NO_COMMITMENT", err)
	}
}

func TestSubstituteNeverOverwrites(t *testing.T) {
	round := NewRound(fixedClock(baseTime))
	if err := round.Commit("p1", ActionPayload{Kind: ActionKindAttack}, false, fixedClock(baseTime)); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if round.Substitute("p1", fixedClock(baseTime)) {
		t.Fatal("substitution must not replace a real commitment")
	}
	if !round.Substitute("p2", fixedClock(baseTime)) {
		t.Fatal("expected substitution for missing commitment")
	}
	c := round.Commitments["p2"]
	if !c.Substituted || c.Payload.Kind != ActionKindDefend {
		t.Fatalf("substituted commitment = %+v", c)
	}
}

func TestAllCommittedIgnoresExcluded(t *testing.T) {
	round := NewRound(fixedClock(baseTime))
	if err := round.Commit("p1", ActionPayload{Kind: ActionKindPass}, false, fixedClock(baseTime)); err != nil {
		t.Fatalf("commit: %v", err)
	}
	// p2 is disconnected and excluded from the required set.
	if !round.AllCommitted([]string{"p1"}) {
		t.Fatal("expected all-committed with reduced required set")
	}
	if round.AllCommitted([]string{"p1", "p2"}) {
		t.Fatal("p2 has no commitment")
	}
}

func TestExpired(t *testing.T) {
	round := NewRound(fixedClock(baseTime))
	if round.Expired(time.Minute, fixedClock(baseTime.Add(30*time.Second))) {
		t.Fatal("round should not be expired yet")
	}
	if !round.Expired(time.Minute, fixedClock(baseTime.Add(2*time.Minute))) {
		t.Fatal("round should be expired")
	}
}

func TestRevealMarksAllAtomically(t *testing.T) {
	round := NewRound(fixedClock(baseTime))
	for _, p := range []string{"p1", "p2", "p3"} {
		if err := round.Commit(p, ActionPayload{Kind: ActionKindPass}, false, fixedClock(baseTime)); err != nil {
			t.Fatalf("commit %s: %v", p, err)
		}
	}
	round.Reveal()
	if round.Phase != RoundPhaseExecuting {
		t.Fatalf("phase = %s", RoundPhaseLabel(round.Phase))
	}
	for id, c := range round.Commitments {
		if !c.Revealed {
			t.Fatalf("commitment %s not revealed", id)
		}
	}
}

func TestNextClearsCommitments(t *testing.T) {
	round := NewRound(fixedClock(baseTime))
	if err := round.Commit("p1", ActionPayload{Kind: ActionKindPass}, false, fixedClock(baseTime)); err != nil {
		t.Fatalf("commit: %v", err)
	}
	round.Reveal()
	round.Phase = RoundPhaseResolution
	round.Next(fixedClock(baseTime.Add(time.Second)))

	if round.Number != 2 || round.Phase != RoundPhasePlanning {
		t.Fatalf("round = %d phase = %s", round.Number, RoundPhaseLabel(round.Phase))
	}
	if len(round.Commitments) != 0 {
		t.Fatal("expected cleared commitments")
	}
}

func TestQuestSessionAdvanceClearsNodeState(t *testing.T) {
	q := NewQuestSession("ember", "arrival", []string{"p1", "p2"}, fixedClock(baseTime))
	q.Votes["p1"] = "gate"
	q.Ready["p2"] = true
	q.Reactions = append(q.Reactions, Reaction{PlayerID: "p1", Text: "..."})

	q.AdvanceTo("gate", "gate", "p1", "", fixedClock(baseTime.Add(time.Second)))

	if q.NodeID != "gate" {
		t.Fatalf("node = %q", q.NodeID)
	}
	if len(q.Votes) != 0 || len(q.Ready) != 0 || len(q.Reactions) != 0 {
		t.Fatal("per-node state must clear on transition")
	}
	if len(q.History) != 2 {
		t.Fatalf("history = %d entries, want 2", len(q.History))
	}
	if q.History[0].NodeID != "arrival" {
		t.Fatal("prior history entries must not change")
	}
}

func TestActiveModifierHonorsExpiry(t *testing.T) {
	q := NewQuestSession("ember", "arrival", nil, fixedClock(baseTime))
	q.Modifiers["blessed"] = Modifier{Key: "blessed", Multiplier: 2, ExpiresAt: baseTime.Add(time.Minute)}

	if got := q.ActiveModifier("blessed", fixedClock(baseTime.Add(30*time.Second))); got != 2 {
		t.Fatalf("active multiplier = %v, want 2", got)
	}
	if got := q.ActiveModifier("blessed", fixedClock(baseTime.Add(2*time.Minute))); got != 1 {
		t.Fatalf("expired multiplier = %v, want 1", got)
	}
	if got := q.ActiveModifier("missing", fixedClock(baseTime)); got != 1 {
		t.Fatalf("missing multiplier = %v, want 1", got)
	}
}
