package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Defaults used by ValidClaims.
const (
	TestIssuer   = "https://auth.example.com"
	TestAudience = "test-client-id"
	TestSubject  = "user-123"
	TestKeyID    = "test-key-1"
)

// NewRSAKey generates a 2048-bit RSA key for signing test tokens.
func NewRSAKey(t testing.TB) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}
	return key
}

// PublicKeyPEM encodes the public half of key as a PKIX PEM block.
func PublicKeyPEM(t testing.TB, key *rsa.PrivateKey) []byte {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("failed to marshal public key: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
}

// ValidClaims returns claims that pass every verifier check at now.
func ValidClaims(now time.Time) jwt.MapClaims {
	return jwt.MapClaims{
		"iss":   TestIssuer,
		"aud":   TestAudience,
		"sub":   TestSubject,
		"email": "user@example.com",
		"iat":   now.Add(-time.Minute).Unix(),
		"nbf":   now.Add(-time.Minute).Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
}

// MintToken signs claims with RS256 and sets kid in the header.
// An empty kid leaves the header without one.
func MintToken(t testing.TB, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

// MintWithHeader signs header and claims with RS256 regardless of the alg the
// header claims, so tests can build tokens whose header lies about alg.
func MintWithHeader(t testing.TB, key *rsa.PrivateKey, header map[string]any, claims map[string]any) string {
	t.Helper()
	signingString := Segment(t, header) + "." + Segment(t, claims)
	sig, err := jwt.SigningMethodRS256.Sign(signingString, key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signingString + "." + base64.RawURLEncoding.EncodeToString(sig)
}

// Segment returns the base64url JSON encoding of v, as used for JWT segments.
func Segment(t testing.TB, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal segment: %v", err)
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

// TamperSignature changes the first character of the signature segment, so
// the segment still decodes but to different signature bytes.
func TamperSignature(token string) string {
	i := strings.LastIndex(token, ".")
	if i < 0 || i == len(token)-1 {
		return token + "x"
	}
	replacement := byte('A')
	if token[i+1] == 'A' {
		replacement = 'B'
	}
	return token[:i+1] + string(replacement) + token[i+2:]
}
