// Package memory provides an in-memory storage implementation used by tests
// and single-process deployments.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/louisbranch/wayfarer.quest/internal/coop/domain"
	"github.com/louisbranch/wayfarer.quest/internal/coop/storage"
)

// Store is an in-memory implementation of the storage interfaces. Rooms are
// deep-copied on the way in and out so callers cannot mutate stored state
// behind the version counter.
type Store struct {
	mu        sync.RWMutex
	rooms     map[string]domain.Room
	journals  map[string][]storage.JournalEntry
	archived  map[string]time.Time
	telemetry []storage.TelemetryEvent
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		rooms:    make(map[string]domain.Room),
		journals: make(map[string][]storage.JournalEntry),
		archived: make(map[string]time.Time),
	}
}

// GetRoom implements storage.RoomStore.
func (s *Store) GetRoom(ctx context.Context, code string) (domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[code]
	if !ok {
		return domain.Room{}, storage.ErrNotFound
	}
	return cloneRoom(room), nil
}

// PutRoom implements storage.RoomStore.
func (s *Store) PutRoom(ctx context.Context, room domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rooms[room.Code] = cloneRoom(room)
	return nil
}

// CompareAndSwapRoom implements storage.RoomStore.
func (s *Store) CompareAndSwapRoom(ctx context.Context, room domain.Room, expected uint64) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.rooms[room.Code]
	if !ok {
		return domain.Room{}, storage.ErrNotFound
	}
	if current.Version != expected {
		return domain.Room{}, storage.ErrVersionConflict
	}
	room.Version = expected + 1
	s.rooms[room.Code] = cloneRoom(room)
	return cloneRoom(room), nil
}

// DeleteRoom implements storage.RoomStore.
func (s *Store) DeleteRoom(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[code]; !ok {
		return storage.ErrNotFound
	}
	delete(s.rooms, code)
	return nil
}

// ListRooms implements storage.RoomStore.
func (s *Store) ListRooms(ctx context.Context) ([]domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		out = append(out, cloneRoom(room))
	}
	return out, nil
}

// AppendJournal implements storage.JournalStore.
func (s *Store) AppendJournal(ctx context.Context, entry storage.JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.journals[entry.RoomCode] = append(s.journals[entry.RoomCode], entry)
	return nil
}

// JournalByRoom implements storage.JournalStore.
func (s *Store) JournalByRoom(ctx context.Context, code string) ([]storage.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.journals[code]
	return append([]storage.JournalEntry(nil), entries...), nil
}

// ArchiveRoom implements storage.JournalStore.
func (s *Store) ArchiveRoom(ctx context.Context, code string, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.archived[code] = finishedAt
	return nil
}

// Archived reports whether a room's journal was archived. Test helper.
func (s *Store) Archived(code string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.archived[code]
	return ok
}

// AppendTelemetryEvent implements storage.TelemetryStore.
func (s *Store) AppendTelemetryEvent(ctx context.Context, event storage.TelemetryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.telemetry = append(s.telemetry, event)
	return nil
}

// TelemetryEvents returns appended telemetry events. Test helper.
func (s *Store) TelemetryEvents() []storage.TelemetryEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]storage.TelemetryEvent(nil), s.telemetry...)
}

func cloneRoom(room domain.Room) domain.Room {
	out := room
	out.Participants = append([]domain.Participant(nil), room.Participants...)
	if room.Quest != nil {
		quest := *room.Quest
		quest.Votes = cloneStringMap(room.Quest.Votes)
		quest.Ready = cloneBoolMap(room.Quest.Ready)
		quest.Branches = cloneStringMap(room.Quest.Branches)
		quest.Reactions = append([]domain.Reaction(nil), room.Quest.Reactions...)
		quest.TurnOrder = append([]string(nil), room.Quest.TurnOrder...)
		if room.Quest.Modifiers != nil {
			quest.Modifiers = make(map[string]domain.Modifier, len(room.Quest.Modifiers))
			for k, v := range room.Quest.Modifiers {
				quest.Modifiers[k] = v
			}
		}
		quest.Flags = append([]string(nil), room.Quest.Flags...)
		quest.History = append([]domain.HistoryEntry(nil), room.Quest.History...)
		if room.Quest.Items != nil {
			quest.Items = make(map[string][]string, len(room.Quest.Items))
			for k, v := range room.Quest.Items {
				quest.Items[k] = append([]string(nil), v...)
			}
		}
		if room.Quest.Score != nil {
			score := *room.Quest.Score
			score.History = append([]domain.ScoreEntry(nil), room.Quest.Score.History...)
			quest.Score = &score
		}
		if room.Quest.Battle != nil {
			battle := *room.Quest.Battle
			battle.Units = append([]domain.Unit(nil), room.Quest.Battle.Units...)
			battle.Log = append([]string(nil), room.Quest.Battle.Log...)
			if room.Quest.Battle.Round != nil {
				round := *room.Quest.Battle.Round
				round.Commitments = make(map[string]domain.Commitment, len(room.Quest.Battle.Round.Commitments))
				for k, v := range room.Quest.Battle.Round.Commitments {
					round.Commitments[k] = v
				}
				round.Queued = make(map[string]domain.ActionPayload, len(room.Quest.Battle.Round.Queued))
				for k, v := range room.Quest.Battle.Round.Queued {
					round.Queued[k] = v
				}
				battle.Round = &round
			}
			quest.Battle = &battle
		}
		out.Quest = &quest
	}
	return out
}

func cloneStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneBoolMap(in map[string]bool) map[string]bool {
	if in == nil {
		return nil
	}
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
