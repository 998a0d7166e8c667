// Package storage defines the persistence boundary for session state. Live
// rooms are authoritative in the room store; the journal keeps an append-only
// record for reconnect catch-up and post-session archiving.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/louisbranch/wayfarer.quest/internal/coop/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrVersionConflict is returned by CompareAndSwap when the stored room's
// version no longer matches the expected one.
var ErrVersionConflict = errors.New("version conflict")

// RoomStore persists live room state keyed by join code.
type RoomStore interface {
	// GetRoom loads a room by join code. Returns ErrNotFound when absent.
	GetRoom(ctx context.Context, code string) (domain.Room, error)

	// PutRoom stores a room unconditionally.
	PutRoom(ctx context.Context, room domain.Room) error

	// CompareAndSwapRoom stores a room only when the persisted version
	// equals expected. Returns ErrVersionConflict otherwise. The stored
	// room's version is incremented on success.
	CompareAndSwapRoom(ctx context.Context, room domain.Room, expected uint64) (domain.Room, error)

	// DeleteRoom removes a room. Deleting an absent room returns
	// ErrNotFound.
	DeleteRoom(ctx context.Context, code string) error

	// ListRooms returns every stored room.
	ListRooms(ctx context.Context) ([]domain.Room, error)
}

// JournalEntry is one appended record of room activity.
type JournalEntry struct {
	RoomCode string
	Kind     string
	ActorID  string
	Detail   string
	At       time.Time
}

// JournalStore keeps the append-only activity record per room.
type JournalStore interface {
	// AppendJournal adds one entry to a room's journal.
	AppendJournal(ctx context.Context, entry JournalEntry) error

	// JournalByRoom returns a room's entries in append order.
	JournalByRoom(ctx context.Context, code string) ([]JournalEntry, error)

	// ArchiveRoom marks a finished room's journal as archived and detaches
	// it from the live code so the code can be reissued.
	ArchiveRoom(ctx context.Context, code string, finishedAt time.Time) error
}

// TelemetryEvent is a coarse product analytics record.
type TelemetryEvent struct {
	Name       string
	RoomCode   string
	PlayerID   string
	Attributes map[string]string
	At         time.Time
}

// TelemetryStore persists telemetry events for later export.
type TelemetryStore interface {
	AppendTelemetryEvent(ctx context.Context, event TelemetryEvent) error
}
