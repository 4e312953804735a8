package signing

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/giantswarm/tokengate/verifier"
)

// defaultReloadDelay debounces directory change events before a reload.
const defaultReloadDelay = 500 * time.Millisecond

var (
	// ErrUnknownKey is returned when no key is registered under the key id.
	ErrUnknownKey = errors.New("unknown signing key")

	// ErrUnsupportedAlgorithm is returned for any algorithm other than
	// verifier.SigningAlgorithm.
	ErrUnsupportedAlgorithm = errors.New("unsupported signing algorithm")
)

// KeySet maps key ids to RSA public keys. It is safe for concurrent use.
type KeySet struct {
	mu     sync.RWMutex
	keys   map[string]*rsa.PublicKey
	logger *slog.Logger

	reloadDelay time.Duration
}

var _ verifier.SignatureVerifier = (*KeySet)(nil)

// NewKeySet returns an empty KeySet.
func NewKeySet(logger *slog.Logger) *KeySet {
	if logger == nil {
		logger = slog.Default()
	}
	return &KeySet{
		keys:        make(map[string]*rsa.PublicKey),
		logger:      logger,
		reloadDelay: defaultReloadDelay,
	}
}

// Add registers key under kid, replacing any previous key with that id.
func (s *KeySet) Add(kid string, key *rsa.PublicKey) error {
	if kid == "" {
		return errors.New("key id is required")
	}
	if key == nil {
		return errors.New("public key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[kid] = key
	return nil
}

// AddPEM parses a PEM encoded RSA public key (PKIX, PKCS1 or certificate) and
// registers it under kid.
func (s *KeySet) AddPEM(kid string, data []byte) error {
	key, err := jwt.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return fmt.Errorf("failed to parse public key %q: %w", kid, err)
	}
	return s.Add(kid, key)
}

// Remove drops the key registered under kid.
func (s *KeySet) Remove(kid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, kid)
}

// Replace swaps the full contents of the set.
func (s *KeySet) Replace(keys map[string]*rsa.PublicKey) {
	next := make(map[string]*rsa.PublicKey, len(keys))
	for kid, key := range keys {
		if kid != "" && key != nil {
			next[kid] = key
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = next
}

// KeyIDs returns the registered key ids in sorted order.
func (s *KeySet) KeyIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.keys))
	for kid := range s.keys {
		ids = append(ids, kid)
	}
	sort.Strings(ids)
	return ids
}

func (s *KeySet) get(kid string) (*rsa.PublicKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[kid]
	return key, ok
}

// Verify implements verifier.SignatureVerifier. A signature that does not
// match returns false with a nil error.
func (s *KeySet) Verify(ctx context.Context, keyID string, message, signature []byte, algorithm string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if algorithm != verifier.SigningAlgorithm {
		return false, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, algorithm)
	}
	key, ok := s.get(keyID)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownKey, keyID)
	}

	err := jwt.SigningMethodRS256.Verify(string(message), signature, key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, rsa.ErrVerification):
		return false, nil
	default:
		return false, fmt.Errorf("failed to verify signature: %w", err)
	}
}
