package client

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/tokengate/internal/testutil"
	"github.com/giantswarm/tokengate/storage"
	"github.com/giantswarm/tokengate/storage/memory"
)

const (
	testClientID    = "web-client"
	testRedirectURI = "https://app.example.com/callback"
)

type fakeNavigator struct {
	mu        sync.Mutex
	navigated []string
	replaced  []string
}

func (n *fakeNavigator) Navigate(_ context.Context, authURL string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.navigated = append(n.navigated, authURL)
	return nil
}

func (n *fakeNavigator) ReplaceLocation(_ context.Context, location string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.replaced = append(n.replaced, location)
	return nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []storage.Notice
}

func (r *recordingNotifier) Notify(_ context.Context, n storage.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recordingNotifier) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.notices))
	for _, n := range r.notices {
		out = append(out, n.Message)
	}
	return out
}

type harness struct {
	server       *testutil.AuthServer
	clock        *testutil.MockTime
	navigator    *fakeNavigator
	notifier     *recordingNotifier
	flowBackend  *memory.Store
	tokenBackend *memory.Store
	session      *Session
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := testutil.NewMockTime(time.Unix(time.Now().Unix(), 0))
	server := testutil.NewAuthServer(t, testClientID, testRedirectURI)
	server.Now = clock.Now

	h := &harness{
		server:       server,
		clock:        clock,
		navigator:    &fakeNavigator{},
		notifier:     &recordingNotifier{},
		flowBackend:  memory.New(),
		tokenBackend: memory.New(),
	}
	h.session = h.newSession(t, nil)
	return h
}

// newSession returns another session over the same backends, as a second tab
// or a reload of the client would see them.
func (h *harness) newSession(t *testing.T, httpClient *http.Client) *Session {
	t.Helper()
	s, err := NewSession(h.config(httpClient), h.flowBackend, h.tokenBackend, h.navigator)
	require.NoError(t, err)
	return s
}

func (h *harness) config(httpClient *http.Client) Config {
	return Config{
		ClientID:              testClientID,
		RedirectURI:           testRedirectURI,
		AuthorizationEndpoint: h.server.AuthURL(),
		TokenEndpoint:         h.server.TokenURL(),
		HTTPClient:            httpClient,
		Notifier:              h.notifier,
		Logger:                slog.New(slog.DiscardHandler),
		Now:                   h.clock.Now,
	}
}

// authorize starts a login and returns the query the user agent comes back with.
func (h *harness) authorize(t *testing.T) string {
	t.Helper()
	authURL, err := h.session.Login(context.Background())
	require.NoError(t, err)
	query, err := h.server.Authorize(authURL)
	require.NoError(t, err)
	return query
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	state, err := h.session.Start(context.Background(), h.authorize(t))
	require.NoError(t, err)
	require.Equal(t, StateAuthenticated, state)
}

func (h *harness) expireAccessToken() {
	h.clock.Advance(testutil.DefaultAccessTTL - 29*time.Second)
}

func methods(requests []testutil.RecordedRequest) []string {
	out := make([]string, 0, len(requests))
	for _, r := range requests {
		out = append(out, r.Method)
	}
	return out
}

func TestSession_Login(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	query := h.authorize(t)
	require.Len(t, h.navigator.navigated, 1)

	state, err := h.session.Start(ctx, query)
	require.NoError(t, err)
	assert.Equal(t, StateAuthenticated, state)
	assert.Equal(t, StateAuthenticated, h.session.State())

	tok, err := h.session.Token()
	require.NoError(t, err)
	assert.Equal(t, "AT1", tok.AccessToken)
	assert.Equal(t, "Bearer", tok.Type())

	requests := h.server.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, http.MethodPost, requests[0].Method)
	assert.Equal(t, GrantTypeAuthorizationCode, requests[0].Body["grant_type"])
	assert.Equal(t, "C1", requests[0].Body["code"])
	assert.Equal(t, testClientID, requests[0].Body["client_id"])
	assert.Equal(t, testRedirectURI, requests[0].Body["redirect_uri"])
	assert.NotEmpty(t, requests[0].Body["code_verifier"])

	verifier, err := h.session.Flow().CodeVerifier(ctx)
	require.NoError(t, err)
	assert.Empty(t, verifier, "flow secrets should be cleared after the exchange")
	assert.Equal(t, []string{testRedirectURI}, h.navigator.replaced)
	assert.Empty(t, h.notifier.messages())
}

func TestSession_LoginRetryReusesSecrets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.session.Login(ctx)
	require.NoError(t, err)
	second, err := h.session.Login(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSession_StateMismatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	q, err := url.ParseQuery(h.authorize(t))
	require.NoError(t, err)
	q.Set("state", "forged")

	state, err := h.session.Start(ctx, q.Encode())
	require.ErrorIs(t, err, ErrStateMismatch)
	assert.Equal(t, StateUnauthenticated, state)

	var clientErr *Error
	require.ErrorAs(t, err, &clientErr)
	assert.Equal(t, KindStateMismatch, clientErr.Kind)

	assert.Equal(t, []string{MessageStateMismatch}, h.notifier.messages())
	assert.Empty(t, h.server.Requests(), "no exchange should be attempted")

	verifier, err := h.session.Flow().CodeVerifier(ctx)
	require.NoError(t, err)
	assert.Empty(t, verifier, "secrets should be cleared on a mismatch")

	// A restart generates a fresh state.
	restarted, err := h.session.Flow().Restart(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, h.navigator.navigated[0], restarted)
}

func TestSession_RedirectWithoutStoredState(t *testing.T) {
	h := newHarness(t)

	_, err := h.session.Start(context.Background(), "code=C1&state=anything")
	require.ErrorIs(t, err, ErrStateMismatch)
	assert.Empty(t, h.server.Requests())
}

func TestSession_MalformedRedirect(t *testing.T) {
	h := newHarness(t)

	_, err := h.session.Start(context.Background(), "code=%zz&state=1")
	require.ErrorIs(t, err, ErrMalformedRedirect)

	var clientErr *Error
	require.ErrorAs(t, err, &clientErr)
	assert.Equal(t, KindMalformedRedirect, clientErr.Kind)
}

func TestSession_StartWithoutTokens(t *testing.T) {
	h := newHarness(t)

	state, err := h.session.Start(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, StateUnauthenticated, state)

	_, err = h.session.Token()
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestSession_StartDeliversQueuedNotices(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.session.Flow().QueueNotice(ctx, storage.Notice{Level: storage.NoticeInfo, Message: "queued"}))

	_, err := h.session.Start(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"queued"}, h.notifier.messages())

	_, err = h.session.Start(ctx, "")
	require.NoError(t, err)
	assert.Len(t, h.notifier.messages(), 1, "notices are delivered once")
}

func TestSession_RefreshRotates(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.expireAccessToken()

	tok, err := h.session.Token()
	require.NoError(t, err)
	assert.Equal(t, "AT2", tok.AccessToken)
	assert.Equal(t, StateAuthenticated, h.session.State())

	requests := h.server.Requests()
	require.Equal(t, []string{http.MethodPost, http.MethodPatch}, methods(requests))
	assert.Equal(t, GrantTypeRefreshToken, requests[1].Body["grant_type"])
	assert.Equal(t, "RT1", requests[1].Body["refresh_token"])

	assert.False(t, h.server.RefreshTokenLive("RT1"), "RT1 must not be usable after rotation")
	assert.True(t, h.server.RefreshTokenLive("RT2"))

	rt, err := storage.NewTokenStore(h.tokenBackend, testClientID, storage.WithClock(h.clock.Now)).StoredRefreshToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "RT2", rt)
}

func TestSession_StartRefreshes(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.expireAccessToken()

	reloaded := h.newSession(t, nil)
	state, err := reloaded.Start(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, StateAuthenticated, state)

	tok, err := reloaded.Token()
	require.NoError(t, err)
	assert.Equal(t, "AT2", tok.AccessToken)
}

func TestSession_RefreshFailureLogsOut(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.expireAccessToken()
	h.server.FailNext(http.StatusUnauthorized, map[string]string{"error_description": "refresh token expired"})

	_, err := h.session.Token()
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, statusOf(err))
	assert.Equal(t, []string{"refresh token expired"}, h.notifier.messages())
	assert.Equal(t, StateUnauthenticated, h.session.State())
	assert.Equal(t, 0, h.tokenBackend.Len(), "tokens should be cleared")

	requests := h.server.Requests()
	require.Equal(t, []string{http.MethodPost, http.MethodPatch, http.MethodDelete}, methods(requests))
	assert.Equal(t, "RT1", requests[2].Body["refresh_token"])
}

func TestSession_RefreshWithoutRotationLogsOut(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.expireAccessToken()
	now := h.clock.Now()
	h.server.FailNext(http.StatusOK, map[string]any{
		"access_token":  "AT9",
		"exp":           now.Add(time.Hour).Unix(),
		"refresh_token": "RT1",
		"rt_exp":        now.Add(testutil.DefaultRefreshTTL).Unix(),
	})

	_, err := h.session.Token()
	require.ErrorIs(t, err, ErrInvalidTokenResponse)
	assert.Equal(t, []string{MessageGeneric}, h.notifier.messages())
	assert.Equal(t, StateUnauthenticated, h.session.State())
	assert.Equal(t, 0, h.tokenBackend.Len(), "an echoed refresh token must not be stored")

	requests := h.server.Requests()
	require.Equal(t, []string{http.MethodPost, http.MethodPatch, http.MethodDelete}, methods(requests))
	assert.Equal(t, "RT1", requests[2].Body["refresh_token"])
}

func TestSession_ExchangeFailures(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        any
		wantMessage string
	}{
		{"error description", http.StatusBadRequest, map[string]string{"error_description": "invalid code", "statusText": "Bad Request"}, "invalid code"},
		{"status text", http.StatusForbidden, map[string]string{"statusText": "Forbidden"}, "Forbidden"},
		{"no detail", http.StatusBadRequest, map[string]string{}, MessageGeneric},
		{"server error", http.StatusInternalServerError, map[string]string{"error_description": "stack trace"}, MessageServerError},
		{"bad gateway", http.StatusBadGateway, nil, MessageServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			query := h.authorize(t)
			h.server.FailNext(tt.status, tt.body)

			state, err := h.session.Start(context.Background(), query)
			require.Error(t, err)
			assert.Equal(t, StateUnauthenticated, state)
			assert.Equal(t, tt.status, statusOf(err))
			assert.Equal(t, []string{tt.wantMessage}, h.notifier.messages())
			assert.Equal(t, 0, h.tokenBackend.Len())
		})
	}
}

func TestSession_ServerErrorsLogAtErrorLevel(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantLevel string
	}{
		{"client error", http.StatusBadRequest, "level=WARN"},
		{"server error", http.StatusBadGateway, "level=ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			var logs bytes.Buffer
			config := h.config(nil)
			config.Logger = slog.New(slog.NewTextHandler(&logs, nil))
			session, err := NewSession(config, h.flowBackend, h.tokenBackend, h.navigator)
			require.NoError(t, err)
			h.session = session

			query := h.authorize(t)
			h.server.FailNext(tt.status, map[string]string{})
			_, err = h.session.Start(context.Background(), query)
			require.Error(t, err)

			var line string
			for _, l := range strings.Split(logs.String(), "\n") {
				if strings.Contains(l, "Token request failed") {
					line = l
				}
			}
			require.NotEmpty(t, line, "failure should be logged")
			assert.Contains(t, line, tt.wantLevel)
		})
	}
}

func TestSession_InvalidTokenResponse(t *testing.T) {
	h := newHarness(t)
	query := h.authorize(t)
	h.server.FailNext(http.StatusOK, map[string]any{"access_token": "AT1", "exp": 1})

	_, err := h.session.Start(context.Background(), query)
	require.ErrorIs(t, err, ErrInvalidTokenResponse)
	assert.Equal(t, []string{MessageGeneric}, h.notifier.messages())
	assert.Equal(t, 0, h.tokenBackend.Len(), "an incomplete pair must not be stored")
}

func TestSession_NetworkFailure(t *testing.T) {
	h := newHarness(t)
	query := h.authorize(t)
	h.server.Server.Close()

	state, err := h.session.Start(context.Background(), query)
	require.Error(t, err)
	assert.Equal(t, StateUnauthenticated, state)

	var clientErr *Error
	require.ErrorAs(t, err, &clientErr)
	assert.Equal(t, KindNetwork, clientErr.Kind)
	assert.Equal(t, []string{MessageNetwork}, h.notifier.messages())
}

func TestSession_RefreshNetworkFailureLogsOut(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.expireAccessToken()
	h.server.Server.Close()

	_, err := h.session.Token()
	require.Error(t, err)
	assert.Equal(t, StateUnauthenticated, h.session.State())
	assert.Equal(t, []string{MessageNetwork}, h.notifier.messages())

	rt, err := storage.NewTokenStore(h.tokenBackend, testClientID).StoredRefreshToken(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rt, "a transport failure during refresh should discard the refresh token")
	assert.Equal(t, 0, h.tokenBackend.Len())
}

func TestSession_Logout(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	require.NoError(t, h.session.Logout(context.Background()))
	assert.Equal(t, StateUnauthenticated, h.session.State())
	assert.Equal(t, 0, h.tokenBackend.Len())
	assert.False(t, h.server.RefreshTokenLive("RT1"), "logout should revoke the refresh token")

	requests := h.server.Requests()
	require.Equal(t, []string{http.MethodPost, http.MethodDelete}, methods(requests))
	assert.Equal(t, "RT1", requests[1].Body["refresh_token"])

	_, err := h.session.Token()
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestSession_LogoutSurvivesRevocationFailure(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.server.FailNext(http.StatusInternalServerError, nil)

	require.NoError(t, h.session.Logout(context.Background()))
	assert.Equal(t, StateUnauthenticated, h.session.State())
	assert.Equal(t, 0, h.tokenBackend.Len(), "local logout must not depend on revocation")
	assert.True(t, h.server.RefreshTokenLive("RT1"))
	assert.Empty(t, h.notifier.messages())
}

func TestSession_LogoutWithoutTokens(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.session.Logout(context.Background()))
	assert.Empty(t, h.server.Requests(), "nothing to revoke")
}

// hookTransport runs a hook around the first PATCH it carries.
type hookTransport struct {
	once   sync.Once
	before func()
	after  func()
}

func (h *hookTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.Method != http.MethodPatch {
		return http.DefaultTransport.RoundTrip(r)
	}
	var resp *http.Response
	var err error
	h.once.Do(func() {
		if h.before != nil {
			h.before()
		}
		resp, err = http.DefaultTransport.RoundTrip(r)
		if h.after != nil {
			h.after()
		}
	})
	if resp == nil && err == nil {
		return http.DefaultTransport.RoundTrip(r)
	}
	return resp, err
}

func TestSession_AdoptsSiblingRotationAfterRejectedRefresh(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.expireAccessToken()

	sibling := h.newSession(t, nil)
	transport := &hookTransport{before: func() {
		// The sibling wins the race and consumes RT1 first.
		tok, err := sibling.Token()
		require.NoError(t, err)
		require.Equal(t, "AT2", tok.AccessToken)
	}}
	racer := h.newSession(t, &http.Client{Transport: transport})

	tok, err := racer.Token()
	require.NoError(t, err)
	assert.Equal(t, "AT2", tok.AccessToken, "the sibling's pair should be adopted")
	assert.Equal(t, StateAuthenticated, racer.State())
	assert.Empty(t, h.notifier.messages(), "an adopted rotation is not a failure")
	assert.True(t, h.server.RefreshTokenLive("RT2"))
}

func TestSession_AdoptsSiblingRotationOnLostSwap(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.expireAccessToken()

	transport := &hookTransport{after: func() {
		// A sibling stores its own rotation between our refresh and our swap.
		store := storage.NewTokenStore(h.tokenBackend, testClientID, storage.WithClock(h.clock.Now))
		require.NoError(t, store.Save(context.Background(), storage.TokenPair{
			AccessToken:        "AT-sibling",
			AccessTokenExpiry:  h.clock.Now().Add(time.Hour),
			RefreshToken:       "RT-sibling",
			RefreshTokenExpiry: h.clock.Now().Add(24 * time.Hour),
		}))
	}}
	racer := h.newSession(t, &http.Client{Transport: transport})

	tok, err := racer.Token()
	require.NoError(t, err)
	assert.Equal(t, "AT-sibling", tok.AccessToken)

	rt, err := storage.NewTokenStore(h.tokenBackend, testClientID).StoredRefreshToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "RT-sibling", rt, "the lost rotation must not overwrite the sibling's pair")
}

func TestSession_LoggedOutDuringRefresh(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.expireAccessToken()

	transport := &hookTransport{after: func() {
		_, err := storage.NewTokenStore(h.tokenBackend, testClientID).Clear(context.Background())
		require.NoError(t, err)
	}}
	racer := h.newSession(t, &http.Client{Transport: transport})

	_, err := racer.Token()
	require.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Equal(t, StateUnauthenticated, racer.State())
	assert.Equal(t, 0, h.tokenBackend.Len(), "a logout elsewhere must not be undone")
}

func TestSession_TokenSource(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	tok, err := h.session.TokenSource(context.Background()).Token()
	require.NoError(t, err)
	assert.Equal(t, "AT1", tok.AccessToken)
}

func TestSession_EndpointRequired(t *testing.T) {
	_, err := NewSession(Config{ClientID: testClientID}, memory.New(), memory.New(), &fakeNavigator{})
	require.Error(t, err)

	h := newHarness(t)
	_, err = NewSession(h.config(nil), memory.New(), memory.New(), nil)
	require.Error(t, err)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "unauthenticated", StateUnauthenticated.String())
	assert.Equal(t, "exchanging", StateExchanging.String())
	assert.Equal(t, "authenticated", StateAuthenticated.String())
	assert.Equal(t, "refreshing", StateRefreshing.String())
	assert.Equal(t, "logged_out", StateLoggedOut.String())
	assert.Equal(t, "unknown", State(99).String())
}
