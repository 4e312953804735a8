package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

// Default token lifetimes of the fake authorization server.
const (
	DefaultAccessTTL  = time.Hour
	DefaultRefreshTTL = 30 * 24 * time.Hour
)

// RecordedRequest is a token endpoint request seen by AuthServer.
type RecordedRequest struct {
	Method string
	Body   map[string]string
}

// AuthServer is a fake authorization server. It issues codes bound to a PKCE
// challenge, exchanges them (POST), rotates refresh tokens (PATCH, each refresh
// token is accepted once) and revokes them (DELETE).
type AuthServer struct {
	Server *httptest.Server

	ClientID    string
	RedirectURI string
	Now         func() time.Time
	AccessTTL   time.Duration
	RefreshTTL  time.Duration

	// AccessToken builds the n-th access token (1-based). Defaults to "AT<n>".
	AccessToken func(n int) string

	mu        sync.Mutex
	codes     map[string]string // code -> challenge
	refresh   map[string]bool   // live refresh tokens
	issued    int
	failNext  []failure
	requests  []RecordedRequest
	codeCount int
}

type failure struct {
	status int
	body   any
}

// NewAuthServer starts a fake authorization server and registers its shutdown.
func NewAuthServer(t testing.TB, clientID, redirectURI string) *AuthServer {
	t.Helper()

	s := &AuthServer{
		ClientID:    clientID,
		RedirectURI: redirectURI,
		Now:         time.Now,
		AccessTTL:   DefaultAccessTTL,
		RefreshTTL:  DefaultRefreshTTL,
		AccessToken: func(n int) string { return fmt.Sprintf("AT%d", n) },
		codes:       make(map[string]string),
		refresh:     make(map[string]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", s.handleToken)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Server.Close)
	return s
}

// AuthURL is the authorization endpoint base URL.
func (s *AuthServer) AuthURL() string {
	return s.Server.URL + "/authorize"
}

// TokenURL is the token endpoint URL.
func (s *AuthServer) TokenURL() string {
	return s.Server.URL + "/token"
}

// Authorize plays the user approving the request at authURL. It validates the
// query, issues the next code ("C1", "C2", ...) bound to the code challenge and
// returns the redirect query string the client would receive.
func (s *AuthServer) Authorize(authURL string) (string, error) {
	u, err := url.Parse(authURL)
	if err != nil {
		return "", err
	}
	q := u.Query()

	switch {
	case q.Get("response_type") != "code":
		return "", fmt.Errorf("response_type = %q, want code", q.Get("response_type"))
	case q.Get("client_id") != s.ClientID:
		return "", fmt.Errorf("client_id = %q, want %q", q.Get("client_id"), s.ClientID)
	case q.Get("redirect_uri") != s.RedirectURI:
		return "", fmt.Errorf("redirect_uri = %q, want %q", q.Get("redirect_uri"), s.RedirectURI)
	case q.Get("code_challenge_method") != "S256":
		return "", fmt.Errorf("code_challenge_method = %q, want S256", q.Get("code_challenge_method"))
	case q.Get("code_challenge") == "" || q.Get("state") == "":
		return "", fmt.Errorf("code_challenge and state are required")
	}

	s.mu.Lock()
	s.codeCount++
	code := fmt.Sprintf("C%d", s.codeCount)
	s.codes[code] = q.Get("code_challenge")
	s.mu.Unlock()

	return url.Values{"code": {code}, "state": {q.Get("state")}}.Encode(), nil
}

// FailNext makes the next token endpoint call answer status with body.
func (s *AuthServer) FailNext(status int, body any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = append(s.failNext, failure{status: status, body: body})
}

// Requests returns the token endpoint requests in arrival order.
func (s *AuthServer) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// RefreshTokenLive reports whether the server would still accept rt.
func (s *AuthServer) RefreshTokenLive(rt string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refresh[rt]
}

func (s *AuthServer) handleToken(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error_description": "invalid JSON body"})
		return
	}
	if r.Header.Get("Content-Type") != "application/json" {
		writeJSON(w, http.StatusUnsupportedMediaType, map[string]string{"statusText": "Unsupported Media Type"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, RecordedRequest{Method: r.Method, Body: body})

	if len(s.failNext) > 0 {
		f := s.failNext[0]
		s.failNext = s.failNext[1:]
		writeJSON(w, f.status, f.body)
		return
	}

	switch r.Method {
	case http.MethodPost:
		s.exchange(w, body)
	case http.MethodPatch:
		s.rotate(w, body)
	case http.MethodDelete:
		delete(s.refresh, body["refresh_token"])
		writeJSON(w, http.StatusOK, map[string]string{})
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"statusText": "Method Not Allowed"})
	}
}

func (s *AuthServer) exchange(w http.ResponseWriter, body map[string]string) {
	challenge, ok := s.codes[body["code"]]
	switch {
	case body["grant_type"] != "authorization_code":
		writeJSON(w, http.StatusBadRequest, map[string]string{"error_description": "unsupported grant_type"})
		return
	case body["client_id"] != s.ClientID || body["redirect_uri"] != s.RedirectURI:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error_description": "client mismatch"})
		return
	case !ok:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error_description": "invalid authorization code"})
		return
	case oauth2.S256ChallengeFromVerifier(body["code_verifier"]) != challenge:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error_description": "PKCE verification failed"})
		return
	}
	delete(s.codes, body["code"])
	s.issue(w)
}

func (s *AuthServer) rotate(w http.ResponseWriter, body map[string]string) {
	rt := body["refresh_token"]
	if body["grant_type"] != "refresh_token" || !s.refresh[rt] {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error_description": "invalid refresh token"})
		return
	}
	delete(s.refresh, rt)
	s.issue(w)
}

// issue must be called with s.mu held.
func (s *AuthServer) issue(w http.ResponseWriter) {
	s.issued++
	now := s.Now()
	rt := fmt.Sprintf("RT%d", s.issued)
	s.refresh[rt] = true

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  s.AccessToken(s.issued),
		"exp":           now.Add(s.AccessTTL).Unix(),
		"refresh_token": rt,
		"rt_exp":        now.Add(s.RefreshTTL).Unix(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
