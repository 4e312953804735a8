package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/giantswarm/tokengate/storage"
)

// Grant types sent to the token endpoint.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
)

// maxResponseSize bounds token endpoint and API response bodies.
const maxResponseSize = 1 << 20

type exchangeRequest struct {
	GrantType    string `json:"grant_type"`
	Code         string `json:"code"`
	RedirectURI  string `json:"redirect_uri"`
	ClientID     string `json:"client_id"`
	CodeVerifier string `json:"code_verifier"`
}

type refreshRequest struct {
	GrantType    string `json:"grant_type"`
	RefreshToken string `json:"refresh_token"`
}

type revokeRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// tokenResponse is the success body of POST and PATCH. Expiries are epoch seconds.
type tokenResponse struct {
	AccessToken  string      `json:"access_token"`
	Exp          json.Number `json:"exp"`
	RefreshToken string      `json:"refresh_token"`
	RtExp        json.Number `json:"rt_exp"`
}

func (r tokenResponse) pair() (storage.TokenPair, error) {
	exp, err := epochSeconds(r.Exp)
	if err != nil {
		return storage.TokenPair{}, err
	}
	rtExp, err := epochSeconds(r.RtExp)
	if err != nil {
		return storage.TokenPair{}, err
	}
	pair := storage.TokenPair{
		AccessToken:        r.AccessToken,
		AccessTokenExpiry:  exp,
		RefreshToken:       r.RefreshToken,
		RefreshTokenExpiry: rtExp,
	}
	if err := pair.Validate(); err != nil {
		return storage.TokenPair{}, ErrInvalidTokenResponse
	}
	return pair, nil
}

func epochSeconds(n json.Number) (time.Time, error) {
	if n == "" {
		return time.Time{}, ErrInvalidTokenResponse
	}
	f, err := n.Float64()
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidTokenResponse, err)
	}
	return time.Unix(int64(f), 0), nil
}

// TokenClient calls the token endpoint. Every request and response body is JSON.
type TokenClient struct {
	endpoint    string
	clientID    string
	redirectURI string
	httpClient  *http.Client
}

// NewTokenClient creates a TokenClient. A nil httpClient uses one with
// DefaultHTTPTimeout.
func NewTokenClient(endpoint, clientID, redirectURI string, httpClient *http.Client) *TokenClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &TokenClient{
		endpoint:    endpoint,
		clientID:    clientID,
		redirectURI: redirectURI,
		httpClient:  httpClient,
	}
}

// Exchange trades an authorization code and its verifier for a token pair (POST).
func (c *TokenClient) Exchange(ctx context.Context, code, codeVerifier string) (storage.TokenPair, error) {
	return c.tokens(ctx, http.MethodPost, exchangeRequest{
		GrantType:    GrantTypeAuthorizationCode,
		Code:         code,
		RedirectURI:  c.redirectURI,
		ClientID:     c.clientID,
		CodeVerifier: codeVerifier,
	})
}

// Refresh trades a refresh token for a new pair (PATCH). The response must
// carry a new refresh token; the old one is no longer valid afterwards.
func (c *TokenClient) Refresh(ctx context.Context, refreshToken string) (storage.TokenPair, error) {
	return c.tokens(ctx, http.MethodPatch, refreshRequest{
		GrantType:    GrantTypeRefreshToken,
		RefreshToken: refreshToken,
	})
}

// Revoke asks the server to delete the grant behind refreshToken (DELETE).
func (c *TokenClient) Revoke(ctx context.Context, refreshToken string) error {
	_, err := c.do(ctx, http.MethodDelete, revokeRequest{RefreshToken: refreshToken})
	return err
}

func (c *TokenClient) tokens(ctx context.Context, method string, body any) (storage.TokenPair, error) {
	data, err := c.do(ctx, method, body)
	if err != nil {
		return storage.TokenPair{}, err
	}
	var resp tokenResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return storage.TokenPair{}, &Error{Kind: KindExchange, Status: http.StatusOK, Message: MessageGeneric, Err: fmt.Errorf("%w: %v", ErrInvalidTokenResponse, err)}
	}
	pair, err := resp.pair()
	if err != nil {
		return storage.TokenPair{}, &Error{Kind: KindExchange, Status: http.StatusOK, Message: MessageGeneric, Err: err}
	}
	return pair, nil
}

// do sends body to the token endpoint and returns the response body of a 2xx
// answer. Any other answer is returned as a classified *Error.
func (c *TokenClient) do(ctx context.Context, method string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode token request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	return send(c.httpClient, req)
}

// send performs req and returns the body of a 2xx answer.
func send(httpClient *http.Client, req *http.Request) ([]byte, error) {
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, networkError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, networkError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, classifyStatus(resp.StatusCode, data)
	}
	return data, nil
}
