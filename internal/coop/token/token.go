// Package token issues and verifies HMAC-signed session tokens. A token
// binds a device to a room snapshot: the seed, snapshot hash and state
// version it carries let a reconnecting client prove which state it resumed
// from, and the allowed-ops list scopes what the bearer may call.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/louisbranch/wayfarer.quest/internal/platform/errors"
	"github.com/louisbranch/wayfarer.quest/internal/platform/timeouts"
)

// sessionEnv holds raw env values before post-parse validation.
type sessionEnv struct {
	Issuer   string `env:"WAYFARER_QUEST_SESSION_TOKEN_ISSUER"`
	Audience string `env:"WAYFARER_QUEST_SESSION_TOKEN_AUDIENCE"`
	Key      string `env:"WAYFARER_QUEST_SESSION_TOKEN_KEY"`
}

// minKeySize rejects keys shorter than the HMAC-SHA256 block guidance.
const minKeySize = 32

// Config defines how session tokens are signed and verified.
type Config struct {
	Issuer   string
	Audience string
	Key      []byte
	TTL      time.Duration
	Now      func() time.Time
}

// Claims captures a validated session token.
type Claims struct {
	RoomCode     string
	PlayerID     string
	Seed         int64
	SnapshotHash string
	StateVersion uint64
	AllowedOps   []string
	ExpiresAt    time.Time
	IssuedAt     time.Time
	JWTID        string
}

// Expectation defines the identity a presented token must match.
type Expectation struct {
	RoomCode string
	PlayerID string
}

// sessionClaims is the internal claims type used for JWT parsing.
type sessionClaims struct {
	jwt.RegisteredClaims
	RoomCode     string   `json:"room_code"`
	PlayerID     string   `json:"player_id"`
	Seed         int64    `json:"seed"`
	SnapshotHash string   `json:"snapshot_hash"`
	StateVersion uint64   `json:"state_version"`
	AllowedOps   []string `json:"allowed_ops"`
}

// LoadConfigFromEnv reads session token configuration.
func LoadConfigFromEnv(now func() time.Time) (Config, error) {
	var raw sessionEnv
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("parse session token env: %w", err)
	}
	issuer := strings.TrimSpace(raw.Issuer)
	audience := strings.TrimSpace(raw.Audience)
	key := strings.TrimSpace(raw.Key)
	if issuer == "" {
		return Config{}, fmt.Errorf("WAYFARER_QUEST_SESSION_TOKEN_ISSUER is required")
	}
	if audience == "" {
		return Config{}, fmt.Errorf("WAYFARER_QUEST_SESSION_TOKEN_AUDIENCE is required")
	}
	if key == "" {
		return Config{}, fmt.Errorf("WAYFARER_QUEST_SESSION_TOKEN_KEY is required")
	}
	keyBytes, err := decodeKey(key)
	if err != nil {
		return Config{}, fmt.Errorf("decode session token key: %w", err)
	}
	if len(keyBytes) < minKeySize {
		return Config{}, fmt.Errorf("session token key must be at least %d bytes", minKeySize)
	}
	if now == nil {
		now = time.Now
	}
	return Config{
		Issuer:   issuer,
		Audience: audience,
		Key:      keyBytes,
		TTL:      timeouts.SessionToken,
		Now:      now,
	}, nil
}

// Issue signs a session token for the given claims. JWTID must be unique per
// token; the id generator from the platform package is the usual source.
func Issue(claims Claims, cfg Config) (string, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.TTL <= 0 {
		cfg.TTL = timeouts.SessionToken
	}
	if cfg.Issuer == "" || cfg.Audience == "" || len(cfg.Key) < minKeySize {
		return "", errors.New("session token signer is not configured")
	}
	if claims.RoomCode == "" || claims.PlayerID == "" {
		return "", errors.New("room code and player id are required")
	}
	if claims.JWTID == "" {
		return "", errors.New("token id is required")
	}

	now := cfg.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TTL)),
			ID:        claims.JWTID,
		},
		RoomCode:     claims.RoomCode,
		PlayerID:     claims.PlayerID,
		Seed:         claims.Seed,
		SnapshotHash: claims.SnapshotHash,
		StateVersion: claims.StateVersion,
		AllowedOps:   claims.AllowedOps,
	})
	signed, err := token.SignedString(cfg.Key)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Validate verifies a session token and checks it against the expected
// room and player identity.
func Validate(raw string, expected Expectation, cfg Config) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Claims{}, apperrors.New(apperrors.CodeTokenInvalid, "session token is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Issuer == "" || cfg.Audience == "" || len(cfg.Key) < minKeySize {
		return Claims{}, errors.New("session token verifier is not configured")
	}

	var parsed sessionClaims
	_, err := jwt.ParseWithClaims(raw, &parsed, func(token *jwt.Token) (any, error) {
		return cfg.Key, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return Claims{}, mapJWTError(err)
	}

	if parsed.Issuer == "" || parsed.Issuer != cfg.Issuer {
		return Claims{}, apperrors.WithMetadata(apperrors.CodeTokenMismatch,
			"session token issuer mismatch",
			map[string]string{"Field": "issuer"})
	}
	if !audienceContains(parsed.Audience, cfg.Audience) {
		return Claims{}, apperrors.WithMetadata(apperrors.CodeTokenMismatch,
			"session token audience mismatch",
			map[string]string{"Field": "audience"})
	}
	if parsed.ID == "" {
		return Claims{}, apperrors.New(apperrors.CodeTokenInvalid, "session token jti is required")
	}
	if parsed.ExpiresAt == nil {
		return Claims{}, apperrors.New(apperrors.CodeTokenInvalid, "session token exp is required")
	}

	now := cfg.Now().UTC()
	exp := parsed.ExpiresAt.Time.UTC()
	if !exp.After(now) {
		return Claims{}, apperrors.New(apperrors.CodeTokenExpired, "session token is expired")
	}

	if strings.TrimSpace(parsed.RoomCode) == "" || parsed.RoomCode != expected.RoomCode {
		return Claims{}, apperrors.WithMetadata(apperrors.CodeTokenMismatch,
			"session token room mismatch",
			map[string]string{"Field": "room_code"})
	}
	if strings.TrimSpace(parsed.PlayerID) == "" || parsed.PlayerID != expected.PlayerID {
		return Claims{}, apperrors.WithMetadata(apperrors.CodeTokenMismatch,
			"session token player mismatch",
			map[string]string{"Field": "player_id"})
	}

	claims := Claims{
		RoomCode:     parsed.RoomCode,
		PlayerID:     parsed.PlayerID,
		Seed:         parsed.Seed,
		SnapshotHash: parsed.SnapshotHash,
		StateVersion: parsed.StateVersion,
		AllowedOps:   parsed.AllowedOps,
		ExpiresAt:    exp,
		JWTID:        parsed.ID,
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	return claims, nil
}

// Allows reports whether the token's allowed-ops list covers an operation.
// An empty list allows everything; tokens narrow, they never widen.
func (c Claims) Allows(op string) error {
	if len(c.AllowedOps) == 0 {
		return nil
	}
	for _, allowed := range c.AllowedOps {
		if allowed == op {
			return nil
		}
	}
	return apperrors.WithMetadata(apperrors.CodeTokenOpDenied,
		"operation is not covered by this session token",
		map[string]string{"Operation": op})
}

// SnapshotHash fingerprints serialized room state for token binding.
func SnapshotHash(state []byte) string {
	sum := sha256.Sum256(state)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// VerifySnapshotHash compares fingerprints in constant time.
func VerifySnapshotHash(state []byte, want string) bool {
	return hmac.Equal([]byte(SnapshotHash(state)), []byte(want))
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		return apperrors.New(apperrors.CodeTokenInvalid, "session token signature is invalid")
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		return apperrors.New(apperrors.CodeTokenInvalid, "session token alg is invalid")
	}
	return apperrors.New(apperrors.CodeTokenInvalid, "session token is invalid")
}

// audienceContains reports whether the audience list contains the value.
func audienceContains(aud jwt.ClaimStrings, value string) bool {
	for _, item := range aud {
		if item == value {
			return true
		}
	}
	return false
}

// decodeKey accepts keys in hex (the hmac-key tool's output) or base64.
func decodeKey(value string) ([]byte, error) {
	if value == "" {
		return nil, errors.New("empty key value")
	}
	if decoded, err := hex.DecodeString(value); err == nil {
		return decoded, nil
	}
	if decoded, err := base64.RawStdEncoding.DecodeString(value); err == nil {
		return decoded, nil
	}
	return base64.StdEncoding.DecodeString(value)
}
