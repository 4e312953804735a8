package client

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/giantswarm/tokengate/pkce"
)

// Redirect is an authorization response returned to the redirect URI.
type Redirect struct {
	Code     string
	State    string
	Language string
	Locale   string
}

// Redirector builds authorization request URLs.
type Redirector struct {
	config   *oauth2.Config
	language string
	locale   string
}

// NewRedirector creates a Redirector for the endpoints in config.
func NewRedirector(config Config) *Redirector {
	return &Redirector{
		config: &oauth2.Config{
			ClientID:    config.ClientID,
			RedirectURL: config.RedirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:   config.AuthorizationEndpoint,
				TokenURL:  config.TokenEndpoint,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		language: config.Language,
		locale:   config.Locale,
	}
}

// AuthorizationURL returns the URL that starts an authorization request bound
// to secrets: response_type=code, client_id, redirect_uri, state and an S256
// code challenge, plus language and locale when configured.
func (r *Redirector) AuthorizationURL(secrets pkce.Secrets) string {
	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", pkce.Challenge(secrets.CodeVerifier)),
		oauth2.SetAuthURLParam("code_challenge_method", pkce.MethodS256),
	}
	if r.language != "" {
		opts = append(opts, oauth2.SetAuthURLParam("language", r.language))
	}
	if r.locale != "" {
		opts = append(opts, oauth2.SetAuthURLParam("locale", r.locale))
	}
	return r.config.AuthCodeURL(secrets.State, opts...)
}

// ParseRedirect reads an authorization response from a query string, with or
// without the leading "?". It returns nil when code or state is absent, which
// means the query is not an authorization response. A query that cannot be
// parsed returns ErrMalformedRedirect.
func ParseRedirect(rawQuery string) (*Redirect, error) {
	q, err := url.ParseQuery(strings.TrimPrefix(rawQuery, "?"))
	if err != nil {
		return nil, &Error{Kind: KindMalformedRedirect, Message: MessageGeneric, Err: fmt.Errorf("%w: %v", ErrMalformedRedirect, err)}
	}
	if !q.Has("code") || !q.Has("state") {
		return nil, nil
	}
	return &Redirect{
		Code:     q.Get("code"),
		State:    q.Get("state"),
		Language: q.Get("language"),
		Locale:   q.Get("locale"),
	}, nil
}
