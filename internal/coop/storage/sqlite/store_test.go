package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/louisbranch/wayfarer.quest/internal/coop/storage"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sessions.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func TestAppendAndReadJournal(t *testing.T) {
	store := openTempStore(t)
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	entries := []storage.JournalEntry{
		{RoomCode: "WXYZ", Kind: "room_created", ActorID: "p1", At: now},
		{RoomCode: "WXYZ", Kind: "player_joined", ActorID: "p2", Detail: "role=MIND", At: now.Add(time.Second)},
		{RoomCode: "ABCD", Kind: "room_created", ActorID: "p9", At: now},
	}
	for _, entry := range entries {
		if err := store.AppendJournal(context.Background(), entry); err != nil {
			t.Fatalf("append journal: %v", err)
		}
	}

	got, err := store.JournalByRoom(context.Background(), "WXYZ")
	if err != nil {
		t.Fatalf("journal by room: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("entries len = %d, want 2", len(got))
	}
	if got[0].Kind != "room_created" || got[1].Detail != "role=MIND" {
		t.Fatalf("entries = %+v", got)
	}
	if !got[0].At.Equal(now) {
		t.Fatalf("at = %v, want %v", got[0].At, now)
	}
}

func TestAppendJournalValidation(t *testing.T) {
	store := openTempStore(t)

	if err := store.AppendJournal(context.Background(), storage.JournalEntry{}); err == nil {
		t.Fatal("expected validation error for empty entry")
	}
	if err := store.AppendJournal(context.Background(), storage.JournalEntry{RoomCode: "WXYZ"}); err == nil {
		t.Fatal("expected validation error for missing kind")
	}
}

func TestArchiveRoom(t *testing.T) {
	store := openTempStore(t)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	if _, err := store.ArchivedAt(context.Background(), "WXYZ"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	if err := store.ArchiveRoom(context.Background(), "WXYZ", now); err != nil {
		t.Fatalf("archive room: %v", err)
	}
	at, err := store.ArchivedAt(context.Background(), "WXYZ")
	if err != nil {
		t.Fatalf("archived at: %v", err)
	}
	if !at.Equal(now) {
		t.Fatalf("archived at = %v, want %v", at, now)
	}

	// Re-archiving updates the timestamp instead of failing.
	if err := store.ArchiveRoom(context.Background(), "WXYZ", now.Add(time.Hour)); err != nil {
		t.Fatalf("re-archive room: %v", err)
	}
}

func TestAppendTelemetryEvent(t *testing.T) {
	store := openTempStore(t)

	err := store.AppendTelemetryEvent(context.Background(), storage.TelemetryEvent{
		Name:       "quest_started",
		RoomCode:   "WXYZ",
		PlayerID:   "p1",
		Attributes: map[string]string{"quest": "ember"},
		At:         time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("append telemetry: %v", err)
	}

	if err := store.AppendTelemetryEvent(context.Background(), storage.TelemetryEvent{}); err == nil {
		t.Fatal("expected validation error for unnamed event")
	}
}
