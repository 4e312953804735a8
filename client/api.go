package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/giantswarm/tokengate/internal/util"
)

// APIClient calls a protected API with the access token of a Session.
type APIClient struct {
	session *Session
	baseURL string
	base    http.RoundTripper
}

// NewAPIClient creates an APIClient for baseURL. A nil base uses
// http.DefaultTransport.
func NewAPIClient(session *Session, baseURL string, base http.RoundTripper) *APIClient {
	return &APIClient{
		session: session,
		baseURL: util.NormalizeURL(baseURL),
		base:    base,
	}
}

// Get fetches path and decodes the JSON object it returns. A rejected call is
// shown to the user and, unless the API could not be reached, logs the
// session out.
func (c *APIClient) Get(ctx context.Context, path string) (map[string]any, error) {
	tok, err := c.session.TokenContext(ctx)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{
		Timeout: DefaultHTTPTimeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(tok),
			Base:   c.base,
		},
	}

	url := c.baseURL
	if path != "" {
		url += "/" + strings.TrimLeft(path, "/")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create API request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	data, err := send(httpClient, req)
	if err != nil {
		c.session.apiFailed(ctx, err)
		return nil, err
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode API response: %w", err)
	}
	return out, nil
}
