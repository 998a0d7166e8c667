package errors

import (
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	a := New(CodeRoomNotFound, "room ABCD not found")
	b := New(CodeRoomNotFound, "different message")
	if !errors.Is(a, b) {
		t.Fatal("expected errors with the same code to match")
	}

	c := New(CodeRoomFull, "room full")
	if errors.Is(a, c) {
		t.Fatal("expected errors with different codes not to match")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk error")
	err := Wrap(CodeNotFound, "load room", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected wrapped cause to be reachable")
	}
}

func TestGetCodeFromWrappedError(t *testing.T) {
	err := fmt.Errorf("handler: %w", New(CodeRoundClosed, "round closed"))
	if got := GetCode(err); got != CodeRoundClosed {
		t.Fatalf("code = %q, want %q", got, CodeRoundClosed)
	}
	if got := GetCode(errors.New("plain")); got != CodeUnknown {
		t.Fatalf("code = %q, want %q", got, CodeUnknown)
	}
}

func TestGRPCCodeMapping(t *testing.T) {
	tests := []struct {
		code Code
		want codes.Code
	}{
		{CodeRoomNotFound, codes.NotFound},
		{CodeRoomFull, codes.FailedPrecondition},
		{CodeRoomAlreadyActive, codes.FailedPrecondition},
		{CodeRoomNotHost, codes.PermissionDenied},
		{CodeRoundClosed, codes.FailedPrecondition},
		{CodeVersionConflict, codes.Aborted},
		{CodeRoomEmptyPlayerID, codes.InvalidArgument},
		{Code("BOGUS"), codes.Internal},
	}
	for _, tt := range tests {
		if got := tt.code.GRPCCode(); got != tt.want {
			t.Errorf("%s -> %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestHandleErrorAttachesErrorInfo(t *testing.T) {
	err := WithMetadata(CodeQuestRequirementsNotMet, "choice requires role", map[string]string{
		"RequiredRole": "MIND",
	})
	st, ok := status.FromError(HandleError(err))
	if !ok {
		t.Fatal("expected grpc status")
	}
	if st.Code() != codes.FailedPrecondition {
		t.Fatalf("status code = %v", st.Code())
	}
	if len(st.Details()) != 1 {
		t.Fatalf("details = %d, want 1", len(st.Details()))
	}
}

func TestHandleErrorUnknown(t *testing.T) {
	st, ok := status.FromError(HandleError(errors.New("boom")))
	if !ok {
		t.Fatal("expected grpc status")
	}
	if st.Code() != codes.Internal {
		t.Fatalf("status code = %v", st.Code())
	}
}
