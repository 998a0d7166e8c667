package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Room errors
	CodeRoomNotFound         Code = "ROOM_NOT_FOUND"
	CodeRoomFull             Code = "ROOM_FULL"
	CodeRoomAlreadyActive    Code = "ROOM_ALREADY_ACTIVE"
	CodeRoomNotActive        Code = "ROOM_NOT_ACTIVE"
	CodeRoomEmptyHostID      Code = "ROOM_EMPTY_HOST_ID"
	CodeRoomEmptyPlayerID    Code = "ROOM_EMPTY_PLAYER_ID"
	CodeRoomNotHost          Code = "ROOM_NOT_HOST"
	CodeRoomNotEnoughPlayers Code = "ROOM_NOT_ENOUGH_PLAYERS"
	CodeRoomUnknownPlayer    Code = "ROOM_UNKNOWN_PLAYER"
	CodeRoomCodeExhausted    Code = "ROOM_CODE_EXHAUSTED"

	// Quest errors
	CodeQuestNodeNotFound        Code = "QUEST_NODE_NOT_FOUND"
	CodeQuestChoiceNotFound      Code = "QUEST_CHOICE_NOT_FOUND"
	CodeQuestNodeAlreadyResolved Code = "QUEST_NODE_ALREADY_RESOLVED"
	CodeQuestRequirementsNotMet  Code = "QUEST_REQUIREMENTS_NOT_MET"
	CodeQuestNotPlayersTurn      Code = "QUEST_NOT_PLAYERS_TURN"
	CodeQuestWrongInteraction    Code = "QUEST_WRONG_INTERACTION"
	CodeQuestNotStarted          Code = "QUEST_NOT_STARTED"

	// Round errors
	CodeRoundClosed       Code = "ROUND_CLOSED"
	CodeRoundNoCommitment Code = "ROUND_NO_COMMITMENT"
	CodeRoundNoBattle     Code = "ROUND_NO_BATTLE"

	// Token errors
	CodeTokenInvalid  Code = "TOKEN_INVALID"
	CodeTokenExpired  Code = "TOKEN_EXPIRED"
	CodeTokenMismatch Code = "TOKEN_MISMATCH"
	CodeTokenOpDenied Code = "TOKEN_OPERATION_DENIED"

	// Storage errors
	CodeNotFound        Code = "NOT_FOUND"
	CodeVersionConflict Code = "VERSION_CONFLICT"

	// Transport errors
	CodeInvalidRequest Code = "INVALID_REQUEST"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeRoomEmptyHostID,
		CodeRoomEmptyPlayerID,
		CodeTokenInvalid,
		CodeInvalidRequest:
		return codes.InvalidArgument

	// FailedPrecondition - state doesn't allow operation
	case CodeRoomFull,
		CodeRoomAlreadyActive,
		CodeRoomNotActive,
		CodeRoomNotEnoughPlayers,
		CodeQuestNodeAlreadyResolved,
		CodeQuestRequirementsNotMet,
		CodeQuestNotPlayersTurn,
		CodeQuestWrongInteraction,
		CodeQuestNotStarted,
		CodeRoundClosed,
		CodeRoundNoBattle,
		CodeTokenExpired:
		return codes.FailedPrecondition

	// NotFound - resource doesn't exist
	case CodeRoomNotFound,
		CodeRoomUnknownPlayer,
		CodeQuestNodeNotFound,
		CodeQuestChoiceNotFound,
		CodeRoundNoCommitment,
		CodeNotFound:
		return codes.NotFound

	// PermissionDenied - caller lacks authority
	case CodeRoomNotHost,
		CodeTokenMismatch,
		CodeTokenOpDenied:
		return codes.PermissionDenied

	// Aborted - optimistic concurrency conflict, retryable
	case CodeVersionConflict:
		return codes.Aborted

	// ResourceExhausted - generator could not produce a value
	case CodeRoomCodeExhausted:
		return codes.ResourceExhausted

	default:
		return codes.Internal
	}
}
