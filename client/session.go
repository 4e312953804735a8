package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/giantswarm/tokengate/instrumentation"
	"github.com/giantswarm/tokengate/security"
	"github.com/giantswarm/tokengate/storage"
)

// State is the position of a Session in the token state machine.
type State int32

const (
	StateUnauthenticated State = iota
	StateExchanging
	StateAuthenticated
	StateRefreshing
	StateLoggedOut
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateExchanging:
		return "exchanging"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	case StateLoggedOut:
		return "logged_out"
	default:
		return "unknown"
	}
}

// Session holds the token pair of one client on one device and drives the
// exchange, refresh and logout transitions. It is safe for concurrent use;
// token operations are serialized.
type Session struct {
	mu    sync.Mutex
	state atomic.Int32

	clientID string
	flow     *Flow
	tokens   *storage.TokenStore
	client   *TokenClient
	notifier Notifier
	logger   *slog.Logger
	auditor  *security.Auditor
	metrics  *instrumentation.Metrics
	tracer   trace.Tracer
}

var _ oauth2.TokenSource = (*Session)(nil)

// NewSession creates a Session. flowBackend holds the flow-scoped secrets and
// queued notices, tokenBackend the token pair. Both may be the same backend.
func NewSession(config Config, flowBackend, tokenBackend storage.Backend, navigator Navigator) (*Session, error) {
	flow, err := NewFlow(config, flowBackend, navigator)
	if err != nil {
		return nil, err
	}
	config = config.withDefaults()
	inst := instrumentation.OrNoop(config.Instrumentation)

	return &Session{
		clientID: config.ClientID,
		flow:     flow,
		tokens: storage.NewTokenStore(tokenBackend, config.ClientID,
			storage.WithClock(config.Now),
			storage.WithLogger(config.Logger),
		),
		client:   NewTokenClient(config.TokenEndpoint, config.ClientID, config.RedirectURI, config.HTTPClient),
		notifier: config.Notifier,
		logger:   config.Logger,
		auditor:  config.Auditor,
		metrics:  inst.Metrics(),
		tracer:   inst.Tracer("client"),
	}, nil
}

// State returns the current state without waiting for an operation in flight.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(state State) {
	s.state.Store(int32(state))
}

// Flow returns the authorization flow of the session.
func (s *Session) Flow() *Flow {
	return s.flow
}

// Login starts an authorization request and returns the URL navigated to.
func (s *Session) Login(ctx context.Context) (string, error) {
	return s.flow.Begin(ctx)
}

// Start is the entry point when the client (re)loads with rawQuery, the query
// of its current location. It completes a returned authorization response,
// otherwise loads the stored pair and refreshes it when only the refresh token
// is still usable. Queued notices are delivered along the way.
func (s *Session) Start(ctx context.Context, rawQuery string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, span := s.tracer.Start(ctx, "client.start")
	defer span.End()
	defer func() {
		span.SetAttributes(attribute.String(instrumentation.AttrSessionState, s.State().String()))
	}()

	redirect, err := s.flow.ParseRedirect(ctx, rawQuery)
	s.deliverQueuedNotices(ctx)
	if err != nil {
		instrumentation.RecordError(span, err)
		s.setState(StateUnauthenticated)
		return s.State(), err
	}

	if redirect != nil {
		span.SetAttributes(attribute.String(instrumentation.AttrRedirectKind, "authorization_response"))
		if redirect.Language != "" {
			span.SetAttributes(attribute.String(instrumentation.AttrLanguage, redirect.Language))
		}
		err := s.exchange(ctx, redirect)
		return s.State(), err
	}

	pair, err := s.tokens.Load(ctx)
	if err != nil {
		instrumentation.RecordError(span, err)
		s.setState(StateUnauthenticated)
		return s.State(), err
	}
	if !pair.HasAccessToken() && pair.HasRefreshToken() {
		_, err := s.refresh(ctx, pair)
		return s.State(), err
	}

	if pair.HasAccessToken() {
		s.setState(StateAuthenticated)
	} else {
		s.setState(StateUnauthenticated)
	}
	instrumentation.SetSpanSuccess(span)
	return s.State(), nil
}

// Token implements oauth2.TokenSource.
func (s *Session) Token() (*oauth2.Token, error) {
	return s.TokenContext(context.Background())
}

// TokenContext returns the stored access token, refreshing it first when only
// the refresh token is still usable. It returns ErrNotAuthenticated when
// neither is held.
func (s *Session) TokenContext(ctx context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pair, err := s.tokens.Load(ctx)
	if err != nil {
		return nil, err
	}
	switch {
	case pair.HasAccessToken():
		s.setState(StateAuthenticated)
		return pair.OAuth2Token(), nil
	case pair.HasRefreshToken():
		next, err := s.refresh(ctx, pair)
		if err != nil {
			return nil, err
		}
		return next.OAuth2Token(), nil
	default:
		s.setState(StateUnauthenticated)
		return nil, ErrNotAuthenticated
	}
}

// TokenSource returns a token source bound to ctx.
func (s *Session) TokenSource(ctx context.Context) oauth2.TokenSource {
	return contextTokenSource{ctx: ctx, session: s}
}

type contextTokenSource struct {
	ctx     context.Context
	session *Session
}

func (t contextTokenSource) Token() (*oauth2.Token, error) {
	return t.session.TokenContext(t.ctx)
}

// Logout clears the stored pair, then asks the server to revoke the refresh
// token. A failed revocation is logged and does not undo the local logout.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logout(ctx)
}

func (s *Session) exchange(ctx context.Context, redirect *Redirect) error {
	ctx, span := s.tracer.Start(ctx, "client.exchange")
	defer span.End()
	instrumentation.AddExchangeAttributes(span, s.clientID, GrantTypeAuthorizationCode, http.MethodPost)
	s.setState(StateExchanging)

	verifier, err := s.flow.CodeVerifier(ctx)
	if err != nil {
		return s.fail(ctx, span, "exchange", GrantTypeAuthorizationCode, err)
	}
	pair, err := s.client.Exchange(ctx, redirect.Code, verifier)
	if err != nil {
		return s.fail(ctx, span, "exchange", GrantTypeAuthorizationCode, err)
	}
	if err := s.tokens.Save(ctx, pair); err != nil {
		return s.fail(ctx, span, "exchange", GrantTypeAuthorizationCode, err)
	}
	if err := s.flow.Cleanup(ctx); err != nil {
		s.logger.Warn("Failed to clear flow secrets", "client_id", s.clientID, "error", err)
	}

	s.setState(StateAuthenticated)
	s.metrics.RecordCodeExchange(ctx, s.clientID)
	s.auditor.LogTokenIssued(s.clientID, pair.AccessTokenExpiry)
	s.logger.Info("Tokens obtained", "client_id", s.clientID, "access_token_exp", pair.AccessTokenExpiry.Unix())
	instrumentation.SetSpanSuccess(span)
	return nil
}

// refresh rotates pair. The new pair is stored only if the stored refresh
// token is still the one that was sent; otherwise the pair rotated by a
// sibling session is adopted.
func (s *Session) refresh(ctx context.Context, pair storage.TokenPair) (storage.TokenPair, error) {
	ctx, span := s.tracer.Start(ctx, "client.refresh")
	defer span.End()
	instrumentation.AddExchangeAttributes(span, s.clientID, GrantTypeRefreshToken, http.MethodPatch)
	s.setState(StateRefreshing)
	previous := pair.RefreshToken

	next, err := s.client.Refresh(ctx, previous)
	if err != nil {
		if adopted, ok := s.adoptSibling(ctx, span, previous); ok {
			return adopted, nil
		}
		return storage.TokenPair{}, s.fail(ctx, span, "refresh", GrantTypeRefreshToken, err)
	}
	if next.RefreshToken == previous {
		err := &Error{Kind: KindExchange, Status: http.StatusOK, Message: MessageGeneric,
			Err: fmt.Errorf("%w: refresh token was not rotated", ErrInvalidTokenResponse)}
		return storage.TokenPair{}, s.fail(ctx, span, "refresh", GrantTypeRefreshToken, err)
	}

	swapped, err := s.tokens.Rotate(ctx, previous, next)
	if err != nil {
		return storage.TokenPair{}, s.fail(ctx, span, "refresh", GrantTypeRefreshToken, err)
	}
	if !swapped {
		if adopted, ok := s.adoptSibling(ctx, span, previous); ok {
			return adopted, nil
		}
		// The pair was cleared by a logout elsewhere.
		s.logger.Info("Session was logged out during refresh", "client_id", s.clientID)
		s.setState(StateUnauthenticated)
		instrumentation.SetSpanError(span, "logged out during refresh")
		return storage.TokenPair{}, ErrNotAuthenticated
	}

	s.setState(StateAuthenticated)
	span.SetAttributes(attribute.Bool(instrumentation.AttrTokenRotated, true))
	s.metrics.RecordTokenRefresh(ctx, s.clientID, false)
	s.auditor.LogTokenRefreshed(s.clientID, false)
	s.logger.Info("Access token refreshed", "client_id", s.clientID, "access_token_exp", next.AccessTokenExpiry.Unix())
	instrumentation.SetSpanSuccess(span)
	return next, nil
}

// adoptSibling returns the stored pair when another session rotated it away
// from previous and it holds a usable access token.
func (s *Session) adoptSibling(ctx context.Context, span trace.Span, previous string) (storage.TokenPair, bool) {
	pair, err := s.tokens.Load(ctx)
	if err != nil || !pair.HasAccessToken() || !pair.HasRefreshToken() || pair.RefreshToken == previous {
		return storage.TokenPair{}, false
	}

	s.setState(StateAuthenticated)
	span.SetAttributes(attribute.Bool(instrumentation.AttrTokenAdopted, true))
	s.metrics.RecordTokenRefresh(ctx, s.clientID, true)
	s.auditor.LogTokenRefreshed(s.clientID, true)
	s.logger.Info("Adopted tokens rotated by another session", "client_id", s.clientID)
	instrumentation.SetSpanSuccess(span)
	return pair, true
}

// fail surfaces err to the user and forces a logout. Transport failures are
// included: the outcome of the request is unknown.
func (s *Session) fail(ctx context.Context, span trace.Span, operation, grantType string, err error) error {
	instrumentation.RecordError(span, err)
	status := statusOf(err)
	if status != 0 {
		span.SetAttributes(attribute.Int(instrumentation.AttrHTTPStatus, status))
	}

	s.metrics.RecordExchangeFailure(ctx, operation, status)
	s.auditor.LogExchangeFailed(s.clientID, grantType, status)
	level := slog.LevelWarn
	var clientErr *Error
	if errors.As(err, &clientErr) && clientErr.ServerError() {
		level = slog.LevelError
	}
	s.logger.Log(ctx, level, "Token request failed",
		"client_id", s.clientID,
		"operation", operation,
		"status", status,
		"error", err)

	s.notifier.Notify(ctx, errorNotice(messageOf(err)))
	if logoutErr := s.logout(ctx); logoutErr != nil {
		s.logger.Warn("Failed to clear tokens", "client_id", s.clientID, "error", logoutErr)
	}
	return err
}

// apiFailed handles a failed protected API call.
func (s *Session) apiFailed(ctx context.Context, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.RecordExchangeFailure(ctx, "api", statusOf(err))
	s.logger.Warn("API request failed", "client_id", s.clientID, "status", statusOf(err), "error", err)
	s.notifier.Notify(ctx, errorNotice(messageOf(err)))
	if logoutErr := s.logout(ctx); logoutErr != nil {
		s.logger.Warn("Failed to clear tokens", "client_id", s.clientID, "error", logoutErr)
	}
}

func (s *Session) logout(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "client.logout")
	defer span.End()

	refresh, err := s.tokens.Clear(ctx)
	s.setState(StateLoggedOut)
	if err != nil {
		instrumentation.RecordError(span, err)
		s.setState(StateUnauthenticated)
		return err
	}
	s.auditor.LogLoggedOut(s.clientID, refresh != "")
	s.logger.Info("Logged out", "client_id", s.clientID)

	if refresh != "" {
		s.revoke(ctx, refresh)
	}
	s.setState(StateUnauthenticated)
	instrumentation.SetSpanSuccess(span)
	return nil
}

// revoke is best effort.
func (s *Session) revoke(ctx context.Context, refreshToken string) {
	err := s.client.Revoke(ctx, refreshToken)
	s.metrics.RecordTokenRevocation(ctx, s.clientID, err == nil)
	if err != nil {
		s.logger.Warn("Error while deleting auth record", "client_id", s.clientID, "error", err)
		s.auditor.LogEvent(security.Event{
			Type:     security.EventRevocationFailed,
			ClientID: s.clientID,
			Details:  map[string]any{"status": statusOf(err)},
		})
	}
}

func (s *Session) deliverQueuedNotices(ctx context.Context) {
	notices, err := s.flow.DrainNotices(ctx)
	if err != nil {
		s.logger.Warn("Failed to load queued notices", "client_id", s.clientID, "error", err)
		return
	}
	for _, n := range notices {
		s.notifier.Notify(ctx, n)
	}
}
