package service

import (
	"context"

	"github.com/louisbranch/wayfarer.quest/internal/coop/domain"
	"github.com/louisbranch/wayfarer.quest/internal/coop/presence"
	"github.com/louisbranch/wayfarer.quest/internal/coop/storage"
	apperrors "github.com/louisbranch/wayfarer.quest/internal/platform/errors"
)

// Heartbeat records a liveness signal for a player, with an optional social
// intent the SOCIAL view layer surfaces to the party. It reports whether the
// signal was a reconnect after a tracked disconnect.
func (s *Service) Heartbeat(ctx context.Context, code, playerID, intent string) (bool, error) {
	room, err := s.readRoom(ctx, code)
	if err != nil {
		return false, err
	}
	if _, ok := room.Participant(playerID); !ok {
		return false, apperrors.New(apperrors.CodeRoomUnknownPlayer, "player is not in the room")
	}

	event := s.tracker.Heartbeat(room.Code, playerID, intent)
	if event == nil || event.State != presence.StateConnected {
		return false, nil
	}
	s.appendJournal(ctx, storage.JournalEntry{RoomCode: room.Code, Kind: "player_connected", ActorID: playerID})
	if s.notifier != nil {
		s.notifier.RoomChanged(room.Code)
	}
	return true, nil
}

// CheckDisconnects sweeps the presence tracker and applies disconnect
// consequences: the event is journaled, and a player absent during battle
// planning gets an auto-defense substitution so the round cannot stall.
func (s *Service) CheckDisconnects(ctx context.Context) ([]presence.Event, error) {
	events := s.tracker.Sweep()
	for _, event := range events {
		if event.State != presence.StateDisconnected {
			continue
		}
		_, err := s.withRoom(ctx, event.RoomCode, func(room *domain.Room) error {
			room.Touch(s.now)
			s.appendJournal(ctx, storage.JournalEntry{
				RoomCode: room.Code,
				Kind:     "player_disconnected",
				ActorID:  event.PlayerID,
			})
			battle := room.Quest
			if battle == nil || battle.Battle == nil || battle.Battle.Result != domain.BattleUndecided {
				return nil
			}
			if battle.Battle.Round.Substitute(event.PlayerID, s.now) {
				room.Quest.AppendNote(event.PlayerID, "auto-defense substituted", s.now)
				s.appendJournal(ctx, storage.JournalEntry{
					RoomCode: room.Code,
					Kind:     "action_substituted",
					ActorID:  event.PlayerID,
				})
				return s.maybeResolveRound(ctx, room, battle.Battle)
			}
			return nil
		})
		if err != nil && !apperrors.IsCode(err, apperrors.CodeRoomNotFound) {
			return events, err
		}
	}
	return events, nil
}

// Reconnect validates a session token against the live room and returns the
// room plus the journal entries appended since the client's last known state
// version, letting the device replay what it missed.
func (s *Service) Reconnect(ctx context.Context, code, playerID, sessionToken string) (domain.Room, []storage.JournalEntry, error) {
	room, err := s.readRoom(ctx, code)
	if err != nil {
		return domain.Room{}, nil, err
	}
	if _, ok := room.Participant(playerID); !ok {
		return domain.Room{}, nil, apperrors.New(apperrors.CodeRoomUnknownPlayer, "player is not in the room")
	}
	// The player stays in the reconnecting state if token validation fails;
	// the next sweep reverts them to disconnected.
	s.tracker.MarkReconnecting(room.Code, playerID)
	if s.tokens != nil {
		if _, err := s.validateToken(sessionToken, room.Code, playerID); err != nil {
			return domain.Room{}, nil, err
		}
	}

	s.tracker.Heartbeat(room.Code, playerID, "")
	s.appendJournal(ctx, storage.JournalEntry{RoomCode: room.Code, Kind: "player_reconnected", ActorID: playerID})

	var entries []storage.JournalEntry
	if s.journal != nil {
		entries, err = s.journal.JournalByRoom(ctx, room.Code)
		if err != nil {
			return domain.Room{}, nil, apperrors.Wrap(apperrors.CodeUnknown, "load journal", err)
		}
	}
	if s.notifier != nil {
		s.notifier.RoomChanged(room.Code)
	}
	return room, entries, nil
}
