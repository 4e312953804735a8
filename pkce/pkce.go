package pkce

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/oauth2"
)

const (
	// RandomBytes is the number of random bytes behind every verifier and state value.
	RandomBytes = 32

	// EncodedLength is the length of a RandomBytes value encoded as base64url without padding.
	EncodedLength = 43

	// MethodS256 is the only code challenge method this package produces.
	MethodS256 = "S256"
)

// ErrEnvironmentUnsupported is returned when the platform cannot provide secure
// randomness. The flow cannot proceed; callers surface it separately from auth failures.
var ErrEnvironmentUnsupported = errors.New("secure random source unavailable")

// randReader is swapped in tests to simulate a broken randomness source.
var randReader io.Reader = rand.Reader

// Secrets are the flow-scoped values of a single authorization attempt.
type Secrets struct {
	CodeVerifier string
	State        string
}

// GenerateRandom returns a cryptographically strong URL-safe random string of
// EncodedLength characters.
func GenerateRandom() (string, error) {
	b := make([]byte, RandomBytes)
	if _, err := io.ReadFull(randReader, b); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEnvironmentUnsupported, err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Challenge derives the S256 code challenge for verifier. The verifier string is hashed
// as-is, byte for byte, which is what the authorization server does.
func Challenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// NewSecrets generates a fresh verifier and state pair.
func NewSecrets() (Secrets, error) {
	verifier, err := GenerateRandom()
	if err != nil {
		return Secrets{}, fmt.Errorf("failed to generate code verifier: %w", err)
	}
	state, err := GenerateRandom()
	if err != nil {
		return Secrets{}, fmt.Errorf("failed to generate state: %w", err)
	}
	return Secrets{CodeVerifier: verifier, State: state}, nil
}

// IsWellFormed reports whether s has the shape of a value produced by GenerateRandom.
func IsWellFormed(s string) bool {
	if len(s) != EncodedLength {
		return false
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	return err == nil && len(b) == RandomBytes
}
