package service

import (
	"context"
	"testing"
	"time"

	"github.com/louisbranch/wayfarer.quest/internal/coop/content"
	"github.com/louisbranch/wayfarer.quest/internal/coop/storage/memory"
	"github.com/louisbranch/wayfarer.quest/internal/coop/token"
	apperrors "github.com/louisbranch/wayfarer.quest/internal/platform/errors"
)

func newTokenFixture(t *testing.T) *fixture {
	t.Helper()
	clock := newFakeClock()
	store := memory.New()
	seq := &codeSeq{codes: []string{"WXYZ", "ABCD"}}
	cfg := &token.Config{
		Issuer:   "wayfarer.quest",
		Audience: "wayfarer.quest/session",
		Key:      []byte("0123456789abcdef0123456789abcdef"),
		TTL:      10 * time.Minute,
		Now:      clock.now,
	}
	svc := New(store, content.NewLibrary(emberGraph(t), councilGraph(t)), Options{
		Journal: store,
		Tokens:  cfg,
		Now:     clock.now,
		NewCode: seq.newCode,
	})
	return &fixture{svc: svc, store: store, clock: clock}
}

func TestSnapshotFiltersByRole(t *testing.T) {
	f := newFixture(t)
	room := f.startedRoom(t)
	f.walkToStandoff(t, room.Code)
	ctx := context.Background()

	f.svc.CastVote(ctx, room.Code, "p1", "fight")
	f.svc.CastVote(ctx, room.Code, "p2", "fight")

	body, err := f.svc.Snapshot(ctx, room.Code, "p1")
	if err != nil {
		t.Fatalf("snapshot p1: %v", err)
	}
	if body.Role != "BODY" {
		t.Fatalf("role = %s, want BODY", body.Role)
	}
	if len(body.HP) == 0 {
		t.Fatal("BODY view must include raw HP")
	}
	if body.HPBands != nil || body.WeakPointProbability != nil {
		t.Fatal("MIND fields leaked into the BODY view")
	}
	if body.NPCIntents != nil {
		t.Fatal("SOCIAL fields leaked into the BODY view")
	}

	mind, err := f.svc.Snapshot(ctx, room.Code, "p2")
	if err != nil {
		t.Fatalf("snapshot p2: %v", err)
	}
	if len(mind.HPBands) == 0 || len(mind.WeakPointProbability) == 0 {
		t.Fatal("MIND view must include analytical layers")
	}
	if mind.HP != nil || mind.Armor != nil {
		t.Fatal("raw numbers leaked into the MIND view")
	}

	// Shared fields reach both roles identically.
	if body.RoomCode != mind.RoomCode || body.RoundNumber != mind.RoundNumber {
		t.Fatalf("shared fields differ: %+v vs %+v", body, mind)
	}
	if body.RoundNumber != 1 || body.RoundPhase != "PLANNING" {
		t.Fatalf("round = %d %s", body.RoundNumber, body.RoundPhase)
	}
}

// A heartbeat-declared intent surfaces only in the SOCIAL view. The third
// join lands the SOCIAL role under round-robin assignment.
func TestSnapshotShowsIntentsToSocialOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	room, err := f.svc.CreateRoom(ctx, "p1")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	for _, playerID := range []string{"p2", "p3"} {
		if _, err := f.svc.JoinRoom(ctx, room.Code, playerID); err != nil {
			t.Fatalf("join %s: %v", playerID, err)
		}
	}
	if _, err := f.svc.SetReady(ctx, room.Code, "p2", true); err != nil {
		t.Fatalf("set ready: %v", err)
	}
	if _, err := f.svc.StartQuest(ctx, room.Code, "p1", "ember"); err != nil {
		t.Fatalf("start quest: %v", err)
	}

	if _, err := f.svc.Heartbeat(ctx, room.Code, "p1", "circle around the gate"); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}

	social, err := f.svc.Snapshot(ctx, room.Code, "p3")
	if err != nil {
		t.Fatalf("snapshot p3: %v", err)
	}
	if social.Role != "SOCIAL" {
		t.Fatalf("role = %s, want SOCIAL", social.Role)
	}
	if social.PlayerIntents["p1"] != "circle around the gate" {
		t.Fatalf("intents = %v", social.PlayerIntents)
	}

	body, err := f.svc.Snapshot(ctx, room.Code, "p1")
	if err != nil {
		t.Fatalf("snapshot p1: %v", err)
	}
	if body.PlayerIntents != nil {
		t.Fatal("player intents leaked outside the SOCIAL view")
	}
}

func TestSnapshotRejectsOutsiders(t *testing.T) {
	f := newFixture(t)
	room := f.startedRoom(t)

	_, err := f.svc.Snapshot(context.Background(), room.Code, "stranger")
	if !apperrors.IsCode(err, apperrors.CodeRoomUnknownPlayer) {
		t.Fatalf("err = %v, want ROOM_UNKNOWN_PLAYER", err)
	}
}

func TestSessionTokenRoundTrip(t *testing.T) {
	f := newTokenFixture(t)
	room := f.startedRoom(t)
	ctx := context.Background()

	signed, err := f.svc.IssueSessionToken(ctx, room.Code, "p2")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	got, entries, err := f.svc.Reconnect(ctx, room.Code, "p2", signed)
	if err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if got.Code != room.Code {
		t.Fatalf("code = %s, want %s", got.Code, room.Code)
	}
	if len(entries) == 0 {
		t.Fatal("reconnect must replay the journal")
	}

	// A token issued for p2 cannot reconnect p1.
	_, _, err = f.svc.Reconnect(ctx, room.Code, "p1", signed)
	if !apperrors.IsCode(err, apperrors.CodeTokenMismatch) {
		t.Fatalf("err = %v, want TOKEN_MISMATCH", err)
	}
}

func TestSessionTokenExpires(t *testing.T) {
	f := newTokenFixture(t)
	room := f.startedRoom(t)
	ctx := context.Background()

	signed, err := f.svc.IssueSessionToken(ctx, room.Code, "p2")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	f.clock.advance(11 * time.Minute)
	_, _, err = f.svc.Reconnect(ctx, room.Code, "p2", signed)
	if !apperrors.IsCode(err, apperrors.CodeTokenExpired) {
		t.Fatalf("err = %v, want TOKEN_EXPIRED", err)
	}
}

func TestIssueSessionTokenRequiresConfig(t *testing.T) {
	f := newFixture(t)
	room := f.startedRoom(t)

	_, err := f.svc.IssueSessionToken(context.Background(), room.Code, "p1")
	if !apperrors.IsCode(err, apperrors.CodeTokenInvalid) {
		t.Fatalf("err = %v, want TOKEN_INVALID", err)
	}
}
