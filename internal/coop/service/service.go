// Package service orchestrates rooms, quest progression, battles and
// presence on top of the storage layer. Every mutation of a room flows
// through a per-room lock, so at most one writer touches a room's state at a
// time and handlers never take partial effect.
package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/louisbranch/wayfarer.quest/internal/coop/content"
	"github.com/louisbranch/wayfarer.quest/internal/coop/domain"
	"github.com/louisbranch/wayfarer.quest/internal/coop/graph"
	"github.com/louisbranch/wayfarer.quest/internal/coop/presence"
	"github.com/louisbranch/wayfarer.quest/internal/coop/storage"
	"github.com/louisbranch/wayfarer.quest/internal/coop/token"
	apperrors "github.com/louisbranch/wayfarer.quest/internal/platform/errors"
	"github.com/louisbranch/wayfarer.quest/internal/platform/id"
	"github.com/louisbranch/wayfarer.quest/internal/platform/timeouts"
	"github.com/louisbranch/wayfarer.quest/internal/telemetry"
)

// maxCodeAttempts bounds join code generation retries before giving up.
const maxCodeAttempts = 16

// Notifier receives room-changed signals for push transports. Implementations
// must not block; the service calls it while holding the room lock.
type Notifier interface {
	RoomChanged(code string)
}

// ProfileProvider resolves player profile facts used for choice gating.
type ProfileProvider interface {
	Profile(ctx context.Context, playerID string) (graph.Player, error)
}

// QuestReward is one player's write-back payload when a quest finishes.
type QuestReward struct {
	QuestID string
	Outcome string
	Items   []string
	Flags   []string
}

// ProfileMutator pushes quest-completion rewards back to the profile store.
// Push failures are logged and do not block quest completion.
type ProfileMutator interface {
	GrantQuestRewards(ctx context.Context, playerID string, reward QuestReward) error
}

// emptyProfiles is the fallback provider when no profile store is wired.
type emptyProfiles struct{}

func (emptyProfiles) Profile(ctx context.Context, playerID string) (graph.Player, error) {
	return graph.Player{ID: playerID}, nil
}

// Service coordinates cooperative quest sessions.
type Service struct {
	rooms    storage.RoomStore
	journal  storage.JournalStore
	library  *content.Library
	tracker  *presence.Tracker
	emitter  *telemetry.Emitter
	profiles ProfileProvider
	rewards  ProfileMutator
	notifier Notifier
	tokens   *token.Config

	now     func() time.Time
	newID   func() (string, error)
	newCode func() (string, error)

	// locks holds one mutex per live room code. Entries are dropped when
	// the room is deleted.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Options configures optional service collaborators.
type Options struct {
	Journal  storage.JournalStore
	Emitter  *telemetry.Emitter
	Profiles ProfileProvider
	Rewards  ProfileMutator
	Notifier Notifier
	Tokens   *token.Config
	Now      func() time.Time
	NewID    func() (string, error)
	NewCode  func() (string, error)
}

// New creates a session service. The room store and quest library are
// required; everything else defaults to inert implementations.
func New(rooms storage.RoomStore, library *content.Library, opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	newID := opts.NewID
	if newID == nil {
		newID = id.NewID
	}
	newCode := opts.NewCode
	if newCode == nil {
		newCode = func() (string, error) { return domain.NewJoinCode(nil) }
	}
	profiles := opts.Profiles
	if profiles == nil {
		profiles = emptyProfiles{}
	}
	return &Service{
		rooms:    rooms,
		journal:  opts.Journal,
		library:  library,
		tracker:  presence.NewTracker(timeouts.DisconnectThreshold, now),
		emitter:  opts.Emitter,
		profiles: profiles,
		rewards:  opts.Rewards,
		notifier: opts.Notifier,
		tokens:   opts.Tokens,
		now:      now,
		newID:    newID,
		newCode:  newCode,
		locks:    make(map[string]*sync.Mutex),
	}
}

// Tracker exposes the presence tracker to the transport layer.
func (s *Service) Tracker() *presence.Tracker {
	return s.tracker
}

func (s *Service) roomLock(code string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[code]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[code] = lock
	}
	return lock
}

func (s *Service) dropLock(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.locks, code)
}

// withRoom runs fn under the room's writer lock and persists the mutated
// room via compare-and-swap. fn sees a private copy; nothing is visible to
// readers until the swap lands.
func (s *Service) withRoom(ctx context.Context, code string, fn func(room *domain.Room) error) (domain.Room, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	lock := s.roomLock(code)
	lock.Lock()
	defer lock.Unlock()

	room, err := s.rooms.GetRoom(ctx, code)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.Room{}, apperrors.New(apperrors.CodeRoomNotFound, "room not found")
	}
	if err != nil {
		return domain.Room{}, apperrors.Wrap(apperrors.CodeUnknown, "load room", err)
	}

	expected := room.Version
	if err := fn(&room); err != nil {
		return domain.Room{}, err
	}

	saved, err := s.rooms.CompareAndSwapRoom(ctx, room, expected)
	if errors.Is(err, storage.ErrVersionConflict) {
		return domain.Room{}, apperrors.New(apperrors.CodeVersionConflict, "room was modified concurrently")
	}
	if err != nil {
		return domain.Room{}, apperrors.Wrap(apperrors.CodeUnknown, "save room", err)
	}

	if s.notifier != nil {
		s.notifier.RoomChanged(code)
	}
	return saved, nil
}

// Room returns the current state of a room.
func (s *Service) Room(ctx context.Context, code string) (domain.Room, error) {
	return s.readRoom(ctx, code)
}

// readRoom loads a room without taking the writer lock.
func (s *Service) readRoom(ctx context.Context, code string) (domain.Room, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	room, err := s.rooms.GetRoom(ctx, code)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.Room{}, apperrors.New(apperrors.CodeRoomNotFound, "room not found")
	}
	if err != nil {
		return domain.Room{}, apperrors.Wrap(apperrors.CodeUnknown, "load room", err)
	}
	return room, nil
}

func (s *Service) appendJournal(ctx context.Context, entry storage.JournalEntry) {
	if s.journal == nil {
		return
	}
	if entry.At.IsZero() {
		entry.At = s.now().UTC()
	}
	if err := s.journal.AppendJournal(ctx, entry); err != nil {
		log.Printf("append journal room=%s kind=%s err=%v", entry.RoomCode, entry.Kind, err)
	}
}

func (s *Service) emit(ctx context.Context, event storage.TelemetryEvent) {
	if s.emitter == nil {
		return
	}
	s.emitter.Emit(ctx, event)
}

// CreateRoom creates a lobby room with a fresh join code and the caller as
// host. Code collisions retry against the store; exhaustion is surfaced as a
// typed error rather than an unbounded loop.
func (s *Service) CreateRoom(ctx context.Context, hostID string) (domain.Room, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return domain.Room{}, apperrors.Wrap(apperrors.CodeUnknown, "generate join code", err)
		}
		if _, err := s.rooms.GetRoom(ctx, code); err == nil {
			continue
		} else if !errors.Is(err, storage.ErrNotFound) {
			return domain.Room{}, apperrors.Wrap(apperrors.CodeUnknown, "check join code", err)
		}

		room, err := domain.CreateRoom(code, hostID, s.now)
		if err != nil {
			return domain.Room{}, err
		}
		if err := s.rooms.PutRoom(ctx, room); err != nil {
			return domain.Room{}, apperrors.Wrap(apperrors.CodeUnknown, "store room", err)
		}

		s.tracker.Heartbeat(code, room.HostID, "")
		s.appendJournal(ctx, storage.JournalEntry{RoomCode: code, Kind: "room_created", ActorID: room.HostID})
		s.emit(ctx, storage.TelemetryEvent{Name: "room_created", RoomCode: code, PlayerID: room.HostID})
		log.Printf("room created code=%s host=%s", code, room.HostID)
		return room, nil
	}
	return domain.Room{}, apperrors.New(apperrors.CodeRoomCodeExhausted, "could not allocate a join code")
}

// JoinRoom adds a player to a lobby room.
func (s *Service) JoinRoom(ctx context.Context, code, playerID string) (domain.Room, error) {
	room, err := s.withRoom(ctx, code, func(room *domain.Room) error {
		return room.Join(playerID, s.now)
	})
	if err != nil {
		return domain.Room{}, err
	}
	s.tracker.Heartbeat(room.Code, playerID, "")
	s.appendJournal(ctx, storage.JournalEntry{RoomCode: room.Code, Kind: "player_joined", ActorID: playerID})
	s.emit(ctx, storage.TelemetryEvent{Name: "player_joined", RoomCode: room.Code, PlayerID: playerID})
	return room, nil
}

// LeaveRoom removes a player. The last participant leaving tears the room
// down entirely.
func (s *Service) LeaveRoom(ctx context.Context, code, playerID string) error {
	empty := false
	room, err := s.withRoom(ctx, code, func(room *domain.Room) error {
		var leaveErr error
		empty, leaveErr = room.Leave(playerID, s.now)
		return leaveErr
	})
	if err != nil {
		return err
	}

	s.tracker.Remove(room.Code, playerID)
	s.appendJournal(ctx, storage.JournalEntry{RoomCode: room.Code, Kind: "player_left", ActorID: playerID})

	if empty {
		return s.teardownRoom(ctx, room.Code, "empty")
	}
	if room.HostID != playerID {
		return nil
	}
	return nil
}

// SetReady toggles a participant's lobby ready flag.
func (s *Service) SetReady(ctx context.Context, code, playerID string, ready bool) (domain.Room, error) {
	return s.withRoom(ctx, code, func(room *domain.Room) error {
		return room.SetReady(playerID, ready, s.now)
	})
}

// teardownRoom deletes a room, archives its journal and forgets its
// presence and lock state.
func (s *Service) teardownRoom(ctx context.Context, code, reason string) error {
	if err := s.rooms.DeleteRoom(ctx, code); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return apperrors.Wrap(apperrors.CodeUnknown, "delete room", err)
	}
	s.tracker.DropRoom(code)
	s.dropLock(code)
	if s.journal != nil {
		if err := s.journal.ArchiveRoom(ctx, code, s.now().UTC()); err != nil {
			log.Printf("archive room code=%s err=%v", code, err)
		}
	}
	s.emit(ctx, storage.TelemetryEvent{
		Name:       "room_torn_down",
		RoomCode:   code,
		Attributes: map[string]string{"reason": reason},
	})
	log.Printf("room torn down code=%s reason=%s", code, reason)
	return nil
}

// CleanupExpiredRooms removes idle lobbies and finished rooms. Intended to
// run on a periodic sweep.
func (s *Service) CleanupExpiredRooms(ctx context.Context) (int, error) {
	rooms, err := s.rooms.ListRooms(ctx)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeUnknown, "list rooms", err)
	}

	now := s.now().UTC()
	removed := 0
	for _, room := range rooms {
		expired := false
		switch room.Status {
		case domain.RoomStatusLobby:
			expired = now.Sub(room.UpdatedAt) >= timeouts.LobbyIdleTTL
		case domain.RoomStatusFinished:
			expired = true
		}
		if !expired {
			continue
		}
		if err := s.teardownRoom(ctx, room.Code, "expired"); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
