package client

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/tokengate/instrumentation"
	"github.com/giantswarm/tokengate/pkce"
	"github.com/giantswarm/tokengate/security"
	"github.com/giantswarm/tokengate/storage"
)

// Navigator moves the user agent. Navigate performs a full navigation to the
// authorization URL; ReplaceLocation swaps the visible location without a
// navigation, used to strip code and state after a completed exchange.
type Navigator interface {
	Navigate(ctx context.Context, authURL string) error
	ReplaceLocation(ctx context.Context, location string) error
}

// Flow manages the flow-scoped secrets of one authorization attempt.
type Flow struct {
	clientID    string
	redirectURI string
	secrets     *storage.SecretStore
	redirector  *Redirector
	navigator   Navigator
	logger      *slog.Logger
	auditor     *security.Auditor
	metrics     *instrumentation.Metrics
	tracer      trace.Tracer
}

// NewFlow creates a Flow keeping its secrets in backend.
func NewFlow(config Config, backend storage.Backend, navigator Navigator) (*Flow, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client config: %w", err)
	}
	if navigator == nil {
		return nil, errors.New("navigator is required")
	}
	config = config.withDefaults()
	inst := instrumentation.OrNoop(config.Instrumentation)

	return &Flow{
		clientID:    config.ClientID,
		redirectURI: config.RedirectURI,
		secrets:     storage.NewSecretStore(backend, config.ClientID, config.Logger),
		redirector:  NewRedirector(config),
		navigator:   navigator,
		logger:      config.Logger,
		auditor:     config.Auditor,
		metrics:     inst.Metrics(),
		tracer:      inst.Tracer("client"),
	}, nil
}

// Begin starts an authorization request. Stored secrets are reused, missing
// ones are generated. It returns the URL it navigated to.
func (f *Flow) Begin(ctx context.Context) (string, error) {
	ctx, span := f.tracer.Start(ctx, "client.begin")
	defer span.End()

	_, reused, err := f.secrets.Get(ctx)
	if err != nil {
		instrumentation.RecordError(span, err)
		return "", err
	}
	secrets, err := f.secrets.GetOrCreate(ctx)
	if err != nil {
		instrumentation.RecordError(span, err)
		if errors.Is(err, pkce.ErrEnvironmentUnsupported) {
			return "", environmentError(err)
		}
		return "", err
	}

	authURL := f.redirector.AuthorizationURL(secrets)
	span.SetAttributes(
		attribute.String(instrumentation.AttrClientID, f.clientID),
		attribute.String(instrumentation.AttrPKCEMethod, pkce.MethodS256),
	)
	f.metrics.RecordFlowStarted(ctx, f.clientID, reused)
	f.auditor.LogEvent(security.Event{Type: security.EventAuthorizationFlowStarted, ClientID: f.clientID})
	f.logger.Info("Redirecting to the authorization endpoint", "client_id", f.clientID, "reused_secrets", reused)

	if err := f.navigator.Navigate(ctx, authURL); err != nil {
		instrumentation.RecordError(span, err)
		return authURL, fmt.Errorf("failed to navigate to the authorization endpoint: %w", err)
	}
	instrumentation.SetSpanSuccess(span)
	return authURL, nil
}

// Restart begins a new attempt after a rejected redirect.
func (f *Flow) Restart(ctx context.Context) (string, error) {
	return f.Begin(ctx)
}

// ParseRedirect classifies the query the user agent returned with. It returns
// nil when the query is not an authorization response. On a state mismatch it
// queues a warning notice, clears the secrets and returns ErrStateMismatch.
func (f *Flow) ParseRedirect(ctx context.Context, rawQuery string) (*Redirect, error) {
	redirect, err := ParseRedirect(rawQuery)
	if err != nil {
		f.logger.Error("Could not parse redirect parameters", "client_id", f.clientID, "error", err)
		return nil, err
	}
	if redirect == nil {
		return nil, nil
	}

	secrets, _, err := f.secrets.Get(ctx)
	if err != nil {
		return nil, err
	}
	if secrets.State == "" || subtle.ConstantTimeCompare([]byte(redirect.State), []byte(secrets.State)) != 1 {
		f.logger.Warn("State mismatch detected", "client_id", f.clientID)
		f.metrics.RecordStateMismatch(ctx, f.clientID)
		f.auditor.LogStateMismatch(f.clientID)

		if err := f.secrets.AppendNotice(ctx, storage.Notice{Level: storage.NoticeWarning, Message: MessageStateMismatch}); err != nil {
			f.logger.Warn("Failed to queue notice", "client_id", f.clientID, "error", err)
		}
		if err := f.Cleanup(ctx); err != nil {
			return nil, err
		}
		return nil, &Error{Kind: KindStateMismatch, Message: MessageStateMismatch, Err: ErrStateMismatch}
	}

	f.logger.Info("Redirected response from the authorization server detected", "client_id", f.clientID)
	return redirect, nil
}

// CodeVerifier returns the stored verifier for the code exchange, or "" when
// none is stored.
func (f *Flow) CodeVerifier(ctx context.Context) (string, error) {
	secrets, _, err := f.secrets.Get(ctx)
	if err != nil {
		return "", err
	}
	return secrets.CodeVerifier, nil
}

// Cleanup clears the secrets and strips code and state from the visible
// location.
func (f *Flow) Cleanup(ctx context.Context) error {
	if err := f.secrets.Clear(ctx); err != nil {
		return err
	}
	if err := f.navigator.ReplaceLocation(ctx, f.redirectURI); err != nil {
		f.logger.Warn("Failed to replace location", "client_id", f.clientID, "error", err)
	}
	return nil
}

// QueueNotice persists a notice to be shown after a restart.
func (f *Flow) QueueNotice(ctx context.Context, notice storage.Notice) error {
	return f.secrets.AppendNotice(ctx, notice)
}

// DrainNotices returns and removes the queued notices.
func (f *Flow) DrainNotices(ctx context.Context) ([]storage.Notice, error) {
	return f.secrets.DrainNotices(ctx)
}
