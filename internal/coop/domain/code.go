package domain

import (
	"crypto/rand"
	"fmt"
	"io"
)

// JoinCodeLength is the length of generated room join codes.
const JoinCodeLength = 4

// joinCodeAlphabet excludes visually-ambiguous letters (I, O).
const joinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ"

// NewJoinCode generates a short human-typeable room code. The reader defaults
// to crypto/rand; tests inject a deterministic source.
func NewJoinCode(reader io.Reader) (string, error) {
	if reader == nil {
		reader = rand.Reader
	}
	buf := make([]byte, JoinCodeLength)
	if _, err := io.ReadFull(reader, buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	code := make([]byte, JoinCodeLength)
	for i, b := range buf {
		code[i] = joinCodeAlphabet[int(b)%len(joinCodeAlphabet)]
	}
	return string(code), nil
}
