package tokengate

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/giantswarm/tokengate/client"
	"github.com/giantswarm/tokengate/verifier"
)

// EnvPrefix prefixes every environment variable read by LoadConfigFromEnv.
const EnvPrefix = "TOKENGATE_"

// Config holds the settings shared by the client and the protected API.
// Fields are read from TOKENGATE_* environment variables.
type Config struct {
	// Issuer and Audience are the expected iss and aud of access tokens.
	Issuer   string `env:"ISSUER"`
	Audience string `env:"AUDIENCE"`

	// ClientID is the registered client and scopes every persisted key.
	ClientID    string `env:"CLIENT_ID"`
	RedirectURI string `env:"REDIRECT_URI"`

	// AuthServer is the host of the authorization server. The authorization
	// endpoint is https://<AuthServer>/<AuthAPIVersion>/ and the token endpoint
	// https://api.<AuthServer>/<AuthAPIVersion>/token.
	AuthServer     string `env:"AUTH_SERVER"`
	AuthAPIVersion string `env:"AUTH_API_VERSION" envDefault:"v1"`

	// AppAPIURI is the protected API called with the access token.
	AppAPIURI string `env:"APP_API_URI"`

	// Language and Locale are optional hints for the authorization page.
	Language string `env:"LANGUAGE"`
	Locale   string `env:"LOCALE"`

	// StoreDSN is a sqlite database path for the client's persistent store.
	// ValkeyAddr selects a shared valkey store instead. Both empty means memory.
	StoreDSN   string `env:"STORE_DSN"`
	ValkeyAddr string `env:"VALKEY_ADDR"`

	// EncryptionSecret enables encryption of stored values. A key is derived
	// from it per client.
	EncryptionSecret string `env:"ENCRYPTION_SECRET"`

	// Signature verification sources, in order of preference: a directory of
	// <kid>.pem files, a JWKS URL, or a remote signing service.
	KeysDir           string        `env:"KEYS_DIR"`
	JWKSURL           string        `env:"JWKS_URL"`
	SigningServiceURL string        `env:"SIGNING_SERVICE_URL"`
	SignatureTimeout  time.Duration `env:"SIGNATURE_TIMEOUT" envDefault:"5s"`

	// OTLPEndpoint enables trace export when set.
	OTLPEndpoint string `env:"OTLP_ENDPOINT"`

	// EnableAuditLogging enables security audit logging.
	EnableAuditLogging bool `env:"AUDIT_LOGGING" envDefault:"true"`

	// ListenAddr is where the protected API listens.
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
}

// LoadConfigFromEnv reads Config from TOKENGATE_* environment variables.
func LoadConfigFromEnv() (Config, error) {
	return loadConfig(env.Options{Prefix: EnvPrefix})
}

func loadConfig(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}

// AuthorizationEndpoint returns the authorization request base URL.
func (c Config) AuthorizationEndpoint() string {
	return client.AuthorizationEndpointFor(c.AuthServer, c.AuthAPIVersion)
}

// TokenEndpoint returns the token endpoint URL.
func (c Config) TokenEndpoint() string {
	return client.TokenEndpointFor(c.AuthServer, c.AuthAPIVersion)
}

// ValidateClient checks the settings the client flow needs.
func (c Config) ValidateClient() error {
	switch {
	case c.ClientID == "":
		return errors.New("client ID is required")
	case c.RedirectURI == "":
		return errors.New("redirect URI is required")
	case c.AuthServer == "":
		return errors.New("auth server is required")
	case c.StoreDSN != "" && c.ValkeyAddr != "":
		return errors.New("store DSN and valkey address are mutually exclusive")
	}
	return nil
}

// ValidateVerifier checks the settings the protected API needs.
func (c Config) ValidateVerifier() error {
	switch {
	case c.Issuer == "":
		return errors.New("issuer is required")
	case c.Audience == "":
		return errors.New("audience is required")
	case c.KeysDir == "" && c.JWKSURL == "" && c.SigningServiceURL == "":
		return errors.New("one of keys directory, JWKS URL or signing service URL is required")
	case c.SignatureTimeout < 0:
		return errors.New("signature timeout must not be negative")
	}
	return nil
}

// ClientConfig returns the client.Config derived from c. Callers set the
// runtime fields (HTTPClient, Notifier, Auditor, Instrumentation).
func (c Config) ClientConfig(logger *slog.Logger) client.Config {
	return client.Config{
		ClientID:              c.ClientID,
		RedirectURI:           c.RedirectURI,
		AuthorizationEndpoint: c.AuthorizationEndpoint(),
		TokenEndpoint:         c.TokenEndpoint(),
		Language:              c.Language,
		Locale:                c.Locale,
		Logger:                logger,
	}
}

// VerifierConfig returns the verifier.Config derived from c.
func (c Config) VerifierConfig(signatures verifier.SignatureVerifier, logger *slog.Logger) verifier.Config {
	return verifier.Config{
		Issuer:            c.Issuer,
		Audience:          c.Audience,
		SignatureVerifier: signatures,
		SignatureTimeout:  c.SignatureTimeout,
		Logger:            logger,
	}
}
