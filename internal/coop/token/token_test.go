package token

import (
	"bytes"
	"encoding/base64"
	"testing"
	"time"

	apperrors "github.com/louisbranch/wayfarer.quest/internal/platform/errors"
)

const (
	envIssuer   = "WAYFARER_QUEST_SESSION_TOKEN_ISSUER"
	envAudience = "WAYFARER_QUEST_SESSION_TOKEN_AUDIENCE"
	envKey      = "WAYFARER_QUEST_SESSION_TOKEN_KEY"
)

func testConfig(now time.Time) Config {
	return Config{
		Issuer:   "wayfarer",
		Audience: "game",
		Key:      bytes.Repeat([]byte{0x42}, 32),
		TTL:      10 * time.Minute,
		Now:      func() time.Time { return now },
	}
}

func testClaims() Claims {
	return Claims{
		RoomCode:     "WXYZ",
		PlayerID:     "p1",
		Seed:         991,
		SnapshotHash: SnapshotHash([]byte("snapshot")),
		StateVersion: 7,
		AllowedOps:   []string{"heartbeat", "commit_action"},
		JWTID:        "jti-1",
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv(envIssuer, "")
	t.Setenv(envAudience, "")
	t.Setenv(envKey, "")

	if _, err := LoadConfigFromEnv(nil); err == nil {
		t.Fatal("expected error when env vars are missing")
	}

	t.Setenv(envIssuer, "wayfarer")
	t.Setenv(envAudience, "game")
	t.Setenv(envKey, base64.RawStdEncoding.EncodeToString(bytes.Repeat([]byte{0x42}, 32)))

	cfg, err := LoadConfigFromEnv(nil)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Issuer != "wayfarer" || cfg.Audience != "game" || len(cfg.Key) != 32 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadConfigFromEnvRejectsShortKey(t *testing.T) {
	t.Setenv(envIssuer, "wayfarer")
	t.Setenv(envAudience, "game")
	t.Setenv(envKey, base64.RawStdEncoding.EncodeToString([]byte("short")))

	if _, err := LoadConfigFromEnv(nil); err == nil {
		t.Fatal("expected error for short key")
	}
}

func TestIssueAndValidate(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	cfg := testConfig(now)

	signed, err := Issue(testClaims(), cfg)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := Validate(signed, Expectation{RoomCode: "WXYZ", PlayerID: "p1"}, cfg)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Seed != 991 || claims.StateVersion != 7 {
		t.Fatalf("claims = %+v", claims)
	}
	if !claims.ExpiresAt.Equal(now.Add(10 * time.Minute)) {
		t.Fatalf("exp = %v", claims.ExpiresAt)
	}
}

func TestValidateExpired(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	cfg := testConfig(now)
	signed, err := Issue(testClaims(), cfg)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	later := testConfig(now.Add(11 * time.Minute))
	_, err = Validate(signed, Expectation{RoomCode: "WXYZ", PlayerID: "p1"}, later)
	if !apperrors.IsCode(err, apperrors.CodeTokenExpired) {
		t.Fatalf("err = %v, want TOKEN_EXPIRED", err)
	}
}

func TestValidateWrongKey(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	cfg := testConfig(now)
	signed, err := Issue(testClaims(), cfg)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	other := testConfig(now)
	other.Key = bytes.Repeat([]byte{0x13}, 32)
	_, err = Validate(signed, Expectation{RoomCode: "WXYZ", PlayerID: "p1"}, other)
	if !apperrors.IsCode(err, apperrors.CodeTokenInvalid) {
		t.Fatalf("err = %v, want TOKEN_INVALID", err)
	}
}

func TestValidateIdentityMismatch(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	cfg := testConfig(now)
	signed, err := Issue(testClaims(), cfg)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	_, err = Validate(signed, Expectation{RoomCode: "ABCD", PlayerID: "p1"}, cfg)
	if !apperrors.IsCode(err, apperrors.CodeTokenMismatch) {
		t.Fatalf("err = %v, want TOKEN_MISMATCH", err)
	}
	_, err = Validate(signed, Expectation{RoomCode: "WXYZ", PlayerID: "p9"}, cfg)
	if !apperrors.IsCode(err, apperrors.CodeTokenMismatch) {
		t.Fatalf("err = %v, want TOKEN_MISMATCH", err)
	}
}

func TestClaimsAllows(t *testing.T) {
	claims := Claims{AllowedOps: []string{"heartbeat"}}
	if err := claims.Allows("heartbeat"); err != nil {
		t.Fatalf("allows heartbeat: %v", err)
	}
	err := claims.Allows("start_quest")
	if !apperrors.IsCode(err, apperrors.CodeTokenOpDenied) {
		t.Fatalf("err = %v, want TOKEN_OP_DENIED", err)
	}

	open := Claims{}
	if err := open.Allows("anything"); err != nil {
		t.Fatalf("empty list must allow: %v", err)
	}
}

func TestSnapshotHash(t *testing.T) {
	a := SnapshotHash([]byte("state-a"))
	b := SnapshotHash([]byte("state-b"))
	if a == b {
		t.Fatal("distinct states must hash differently")
	}
	if !VerifySnapshotHash([]byte("state-a"), a) {
		t.Fatal("hash must verify against its input")
	}
	if VerifySnapshotHash([]byte("state-b"), a) {
		t.Fatal("hash must not verify against other input")
	}
}
