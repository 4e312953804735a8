package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	"github.com/giantswarm/tokengate/internal/util"
	"github.com/giantswarm/tokengate/security"
)

// ExpiryMargin is the fixed margin below which a stored token is treated as absent.
const ExpiryMargin = security.DefaultExpiryMargin

var (
	// ErrIncompleteTokenPair is returned when saving a pair without both tokens and expiries.
	ErrIncompleteTokenPair = errors.New("token pair requires access and refresh tokens with expiries")
)

// TokenPair is the access/refresh token pair held by the client device.
// A zero string means the corresponding token is not held.
type TokenPair struct {
	AccessToken        string
	AccessTokenExpiry  time.Time
	RefreshToken       string
	RefreshTokenExpiry time.Time
}

// HasAccessToken reports whether an access token is held.
func (p TokenPair) HasAccessToken() bool {
	return p.AccessToken != ""
}

// HasRefreshToken reports whether a refresh token is held.
func (p TokenPair) HasRefreshToken() bool {
	return p.RefreshToken != ""
}

// Validate checks that both tokens and both expiries are present.
func (p TokenPair) Validate() error {
	if p.AccessToken == "" || p.AccessTokenExpiry.IsZero() ||
		p.RefreshToken == "" || p.RefreshTokenExpiry.IsZero() {
		return ErrIncompleteTokenPair
	}
	return nil
}

// OAuth2Token converts the access half of the pair to an oauth2.Token for use with
// oauth2.Transport. The refresh token is deliberately left out: rotation is
// driven by the session, never by the oauth2 package.
func (p TokenPair) OAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken: p.AccessToken,
		TokenType:   "Bearer",
		Expiry:      p.AccessTokenExpiry,
	}
}

// TokenStore is the session-scoped view of the token pair.
type TokenStore struct {
	backend  Backend
	clientID string
	margin   time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// TokenStoreOption configures a TokenStore.
type TokenStoreOption func(*TokenStore)

// WithClock overrides the time source used for the expiry margin.
func WithClock(now func() time.Time) TokenStoreOption {
	return func(s *TokenStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) TokenStoreOption {
	return func(s *TokenStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewTokenStore creates a token store for clientID over backend.
func NewTokenStore(backend Backend, clientID string, opts ...TokenStoreOption) *TokenStore {
	s := &TokenStore{
		backend:  backend,
		clientID: clientID,
		margin:   ExpiryMargin,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TokenStore) key(field string) string {
	return Key(s.clientID, field)
}

// Load returns the tokens that are still usable. A token whose value or expiry is
// missing, whose expiry is not an integer, or whose remaining lifetime is below the
// margin is deleted from the backend and reported as absent.
func (s *TokenStore) Load(ctx context.Context) (TokenPair, error) {
	values, err := s.backend.Get(ctx,
		s.key(FieldAccessToken), s.key(FieldAccessTokenExp),
		s.key(FieldRefreshToken), s.key(FieldRefreshTokenExp),
	)
	if err != nil {
		return TokenPair{}, fmt.Errorf("failed to load tokens: %w", err)
	}

	now := s.now()
	var pair TokenPair
	var discard []string

	if token, exp, ok := s.usable(values, FieldAccessToken, FieldAccessTokenExp, now); ok {
		pair.AccessToken, pair.AccessTokenExpiry = token, exp
	} else {
		discard = append(discard, s.key(FieldAccessToken), s.key(FieldAccessTokenExp))
		s.logger.Debug("No valid access token found in storage", "client_id", s.clientID)
	}

	if token, exp, ok := s.usable(values, FieldRefreshToken, FieldRefreshTokenExp, now); ok {
		pair.RefreshToken, pair.RefreshTokenExpiry = token, exp
	} else {
		discard = append(discard, s.key(FieldRefreshToken), s.key(FieldRefreshTokenExp))
		s.logger.Debug("No valid refresh token found in storage", "client_id", s.clientID)
	}

	if len(discard) > 0 {
		if err := s.backend.Delete(ctx, discard...); err != nil {
			return TokenPair{}, fmt.Errorf("failed to discard invalid tokens: %w", err)
		}
	}

	return pair, nil
}

func (s *TokenStore) usable(values map[string]string, tokenField, expField string, now time.Time) (string, time.Time, bool) {
	token := values[s.key(tokenField)]
	rawExp := values[s.key(expField)]
	if token == "" || rawExp == "" {
		return "", time.Time{}, false
	}

	secs, err := strconv.ParseInt(rawExp, 10, 64)
	if err != nil {
		s.logger.Warn("Discarding token with malformed expiry", "client_id", s.clientID, "field", expField)
		return "", time.Time{}, false
	}

	exp := time.Unix(secs, 0)
	if !security.HasRemainingLifetime(exp, now, s.margin) {
		return "", time.Time{}, false
	}
	return token, exp, true
}

// StoredRefreshToken returns the raw stored refresh token without applying the
// margin. Used to detect a rotation performed by a sibling sharing the backend.
func (s *TokenStore) StoredRefreshToken(ctx context.Context) (string, error) {
	values, err := s.backend.Get(ctx, s.key(FieldRefreshToken))
	if err != nil {
		return "", fmt.Errorf("failed to read refresh token: %w", err)
	}
	return values[s.key(FieldRefreshToken)], nil
}

// Save overwrites the stored pair atomically.
func (s *TokenStore) Save(ctx context.Context, pair TokenPair) error {
	if err := pair.Validate(); err != nil {
		return err
	}
	if err := s.backend.Set(ctx, s.encode(pair)); err != nil {
		return fmt.Errorf("failed to save tokens: %w", err)
	}

	s.logger.Debug("Tokens saved",
		"client_id", s.clientID,
		"access_token_prefix", util.TokenPrefix(pair.AccessToken),
		"access_token_exp", pair.AccessTokenExpiry.Unix())
	return nil
}

// Rotate overwrites the stored pair only if the stored refresh token is still
// previousRefresh. It reports false when a sibling already rotated the pair; the
// caller must then discard its own result.
func (s *TokenStore) Rotate(ctx context.Context, previousRefresh string, pair TokenPair) (bool, error) {
	if err := pair.Validate(); err != nil {
		return false, err
	}
	swapped, err := s.backend.CompareAndSwap(ctx, s.key(FieldRefreshToken), previousRefresh, s.encode(pair))
	if err != nil {
		return false, fmt.Errorf("failed to rotate tokens: %w", err)
	}
	if !swapped {
		s.logger.Info("Stored refresh token changed during refresh, discarding result", "client_id", s.clientID)
	}
	return swapped, nil
}

// Clear removes the pair and returns the refresh token that was stored, expired
// or not, so the caller can ask the server to revoke it.
func (s *TokenStore) Clear(ctx context.Context) (string, error) {
	refresh, err := s.StoredRefreshToken(ctx)
	if err != nil {
		// Still clear: local logout must not depend on the read.
		s.logger.Warn("Failed to read refresh token before clearing", "client_id", s.clientID, "error", err)
	}

	if err := s.backend.Delete(ctx,
		s.key(FieldAccessToken), s.key(FieldAccessTokenExp),
		s.key(FieldRefreshToken), s.key(FieldRefreshTokenExp),
	); err != nil {
		return "", fmt.Errorf("failed to clear tokens: %w", err)
	}
	return refresh, nil
}

func (s *TokenStore) encode(pair TokenPair) map[string]string {
	return map[string]string{
		s.key(FieldAccessToken):     pair.AccessToken,
		s.key(FieldAccessTokenExp):  strconv.FormatInt(pair.AccessTokenExpiry.Unix(), 10),
		s.key(FieldRefreshToken):    pair.RefreshToken,
		s.key(FieldRefreshTokenExp): strconv.FormatInt(pair.RefreshTokenExpiry.Unix(), 10),
	}
}
