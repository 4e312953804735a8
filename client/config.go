package client

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/giantswarm/tokengate/instrumentation"
	"github.com/giantswarm/tokengate/internal/util"
	"github.com/giantswarm/tokengate/security"
)

// DefaultHTTPTimeout bounds token endpoint and API calls when no HTTPClient is given.
const DefaultHTTPTimeout = 30 * time.Second

// Config configures a Session. It is read once at construction.
type Config struct {
	// ClientID is the registered client identifier (required).
	// It also scopes every persisted key.
	ClientID string

	// RedirectURI is where the authorization server sends the user back (required).
	RedirectURI string

	// AuthorizationEndpoint is the authorization request base URL (required).
	AuthorizationEndpoint string

	// TokenEndpoint handles POST (exchange), PATCH (refresh) and DELETE (revoke) (required).
	TokenEndpoint string

	// Language and Locale are optional hints passed on the authorization request,
	// e.g. "fr" and "fr-CA".
	Language string
	Locale   string

	// HTTPClient sends token endpoint requests.
	// Default: an http.Client with DefaultHTTPTimeout
	HTTPClient *http.Client

	// Notifier shows user-visible notices. Default: a LogNotifier
	Notifier Notifier

	// Logger is used for flow logging. Default: slog.Default()
	Logger *slog.Logger

	// Auditor logs security events. Optional.
	Auditor *security.Auditor

	// Instrumentation records flow metrics and spans. Optional.
	Instrumentation *instrumentation.Instrumentation

	// Now returns the current time. Default: time.Now
	Now func() time.Time
}

// Validate checks the required fields.
func (c Config) Validate() error {
	if c.ClientID == "" {
		return errors.New("client ID is required")
	}
	for name, raw := range map[string]string{
		"redirect URI":           c.RedirectURI,
		"authorization endpoint": c.AuthorizationEndpoint,
		"token endpoint":         c.TokenEndpoint,
	} {
		if raw == "" {
			return fmt.Errorf("%s is required", name)
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL: %q", name, raw)
		}
	}
	if u, _ := url.Parse(c.RedirectURI); !util.IsSecureRedirect(u) {
		return fmt.Errorf("redirect URI must use https or a loopback http address: %q", c.RedirectURI)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Notifier == nil {
		c.Notifier = LogNotifier{Logger: c.Logger}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// AuthorizationEndpointFor returns https://<server>/<version>/.
func AuthorizationEndpointFor(server, version string) string {
	return "https://" + server + "/" + strings.Trim(version, "/") + "/"
}

// TokenEndpointFor returns https://api.<server>/<version>/token.
func TokenEndpointFor(server, version string) string {
	return "https://api." + server + "/" + strings.Trim(version, "/") + "/token"
}
