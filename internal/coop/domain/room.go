package domain

import (
	"strings"
	"time"

	apperrors "github.com/louisbranch/wayfarer.quest/internal/platform/errors"
)

// RoomStatus describes the lifecycle state of a room.
type RoomStatus int

const (
	// RoomStatusUnspecified represents an invalid room status value.
	RoomStatusUnspecified RoomStatus = iota
	// RoomStatusLobby indicates the room is gathering participants.
	RoomStatusLobby
	// RoomStatusActive indicates a quest session is in progress.
	RoomStatusActive
	// RoomStatusFinished indicates the quest completed or was abandoned.
	RoomStatusFinished
)

// RoomStatusLabel returns the string label for a room status.
func RoomStatusLabel(status RoomStatus) string {
	switch status {
	case RoomStatusLobby:
		return "LOBBY"
	case RoomStatusActive:
		return "ACTIVE"
	case RoomStatusFinished:
		return "FINISHED"
	default:
		return "UNSPECIFIED"
	}
}

// RoomStatusFromLabel converts a status label to a RoomStatus value.
func RoomStatusFromLabel(label string) RoomStatus {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "LOBBY":
		return RoomStatusLobby
	case "ACTIVE":
		return RoomStatusActive
	case "FINISHED":
		return RoomStatusFinished
	default:
		return RoomStatusUnspecified
	}
}

// MaxParticipants caps room membership.
const MaxParticipants = 6

// MinParticipantsToStart is the design-minimum participant count for a quest.
const MinParticipantsToStart = 2

// Participant is a player's membership record within a room, ordered by join
// time. Liveness is tracked separately by the presence tracker.
type Participant struct {
	PlayerID string
	Role     Role
	Ready    bool
	JoinedAt time.Time
}

// Room is the session aggregate. All mutations go through the single-writer
// discipline enforced by the service layer; Version backs optimistic
// compare-and-swap in the store.
type Room struct {
	Code         string
	HostID       string
	Status       RoomStatus
	Participants []Participant
	Quest        *QuestSession
	Version      uint64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CreateRoom creates a lobby room with the host as sole participant. The code
// must already be collision-checked by the caller.
func CreateRoom(code, hostID string, now func() time.Time) (Room, error) {
	if now == nil {
		now = time.Now
	}
	hostID = strings.TrimSpace(hostID)
	if hostID == "" {
		return Room{}, apperrors.New(apperrors.CodeRoomEmptyHostID, "host id is required")
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != JoinCodeLength {
		return Room{}, apperrors.New(apperrors.CodeRoomNotFound, "join code must be 4 letters")
	}

	createdAt := now().UTC()
	return Room{
		Code:   code,
		HostID: hostID,
		Status: RoomStatusLobby,
		Participants: []Participant{{
			PlayerID: hostID,
			JoinedAt: createdAt,
		}},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}, nil
}

// Participant returns the membership record for a player.
func (r *Room) Participant(playerID string) (*Participant, bool) {
	for i := range r.Participants {
		if r.Participants[i].PlayerID == playerID {
			return &r.Participants[i], true
		}
	}
	return nil, false
}

// IsHost reports whether the player currently holds host authority.
func (r *Room) IsHost(playerID string) bool {
	return r.HostID == playerID
}

// PlayerIDs returns participant ids in join order.
func (r *Room) PlayerIDs() []string {
	ids := make([]string, 0, len(r.Participants))
	for _, p := range r.Participants {
		ids = append(ids, p.PlayerID)
	}
	return ids
}

// Join adds a player to a lobby room. Joining twice with the same player id
// is idempotent and leaves the participant list unchanged.
func (r *Room) Join(playerID string, now func() time.Time) error {
	if now == nil {
		now = time.Now
	}
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return apperrors.New(apperrors.CodeRoomEmptyPlayerID, "player id is required")
	}
	if _, ok := r.Participant(playerID); ok {
		return nil
	}
	if r.Status != RoomStatusLobby {
		return apperrors.WithMetadata(apperrors.CodeRoomAlreadyActive,
			"room already started",
			map[string]string{"Status": RoomStatusLabel(r.Status)})
	}
	if len(r.Participants) >= MaxParticipants {
		return apperrors.New(apperrors.CodeRoomFull, "room is full")
	}
	r.Participants = append(r.Participants, Participant{
		PlayerID: playerID,
		JoinedAt: now().UTC(),
	})
	r.Touch(now)
	return nil
}

// Leave removes a player. When the host leaves, host authority transfers to
// the longest-tenured remaining participant. Leave reports whether the room
// is now empty and should be torn down by the caller.
func (r *Room) Leave(playerID string, now func() time.Time) (empty bool, err error) {
	if now == nil {
		now = time.Now
	}
	idx := -1
	for i := range r.Participants {
		if r.Participants[i].PlayerID == playerID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return false, apperrors.New(apperrors.CodeRoomUnknownPlayer, "player is not in the room")
	}
	r.Participants = append(r.Participants[:idx], r.Participants[idx+1:]...)
	if len(r.Participants) == 0 {
		return true, nil
	}
	if r.HostID == playerID {
		// Participants are kept in join order, so the first entry is the
		// longest-tenured member.
		r.HostID = r.Participants[0].PlayerID
	}
	r.Touch(now)
	return false, nil
}

// SetReady toggles a lobby participant's ready flag.
func (r *Room) SetReady(playerID string, ready bool, now func() time.Time) error {
	p, ok := r.Participant(playerID)
	if !ok {
		return apperrors.New(apperrors.CodeRoomUnknownPlayer, "player is not in the room")
	}
	p.Ready = ready
	r.Touch(now)
	return nil
}

// Start flips the room to ACTIVE, assigns roles round-robin by join order and
// creates the quest session at the graph's entry node. Only the host may
// start, and at least one other participant must be ready.
func (r *Room) Start(callerID, questID, entryNodeID string, now func() time.Time) error {
	if now == nil {
		now = time.Now
	}
	if !r.IsHost(callerID) {
		return apperrors.New(apperrors.CodeRoomNotHost, "only the host can start the quest")
	}
	if r.Status != RoomStatusLobby {
		return apperrors.New(apperrors.CodeRoomAlreadyActive, "room already started")
	}
	if len(r.Participants) < MinParticipantsToStart {
		return apperrors.WithMetadata(apperrors.CodeRoomNotEnoughPlayers,
			"not enough players to start",
			map[string]string{"Minimum": "2"})
	}
	othersReady := false
	for _, p := range r.Participants {
		if p.PlayerID != r.HostID && p.Ready {
			othersReady = true
			break
		}
	}
	if !othersReady {
		return apperrors.New(apperrors.CodeRoomNotEnoughPlayers, "no other participant is ready")
	}

	// Deterministic role assignment: round-robin over the declared role set
	// in join order, so reruns with the same membership reproduce exactly.
	for i := range r.Participants {
		r.Participants[i].Role = AsymmetricRoles[i%len(AsymmetricRoles)]
	}

	r.Status = RoomStatusActive
	r.Quest = NewQuestSession(questID, entryNodeID, r.PlayerIDs(), now)
	r.Touch(now)
	return nil
}

// Finish marks the quest complete or abandoned.
func (r *Room) Finish(now func() time.Time) {
	r.Status = RoomStatusFinished
	r.Touch(now)
}

// RoleOf returns the assigned role for a player, or RoleUnspecified.
func (r *Room) RoleOf(playerID string) Role {
	if p, ok := r.Participant(playerID); ok {
		return p.Role
	}
	return RoleUnspecified
}

// Touch bumps the monotonic update marker. Clients use UpdatedAt and Version
// for staleness checks.
func (r *Room) Touch(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	r.UpdatedAt = now().UTC()
}
