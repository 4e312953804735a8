package verifier

import (
	"context"
	"log/slog"
	"strings"

	"github.com/giantswarm/tokengate/policy"
	"github.com/giantswarm/tokengate/security"
)

// Request is one authorizer invocation.
type Request struct {
	// AuthorizationToken is the raw Authorization header value.
	AuthorizationToken string

	// ResourceIdentifier names the protected resource, e.g. a method ARN.
	ResourceIdentifier string
}

// Authorizer adapts a Verifier to the gateway authorizer contract.
type Authorizer struct {
	verifier *Verifier
	auditor  *security.Auditor
	logger   *slog.Logger
}

// NewAuthorizer wraps v. auditor may be nil.
func NewAuthorizer(v *Verifier, auditor *security.Auditor) *Authorizer {
	return &Authorizer{
		verifier: v,
		auditor:  auditor,
		logger:   v.logger,
	}
}

// Authorize verifies the bearer token of req. A header without a bearer token
// returns ErrUnauthorized. Every other outcome, including a deny, is returned
// as a response.
func (a *Authorizer) Authorize(ctx context.Context, req Request) (*policy.Response, error) {
	result, err := a.Check(ctx, req)
	if err != nil {
		return nil, err
	}
	return result.Policy(req.ResourceIdentifier), nil
}

// Check is Authorize returning the Result instead of a policy.
func (a *Authorizer) Check(ctx context.Context, req Request) (Result, error) {
	requestID := security.GetRequestID(ctx)

	token, err := ParseBearer(req.AuthorizationToken)
	if err != nil {
		a.logger.Info("Authorization header rejected", "request_id", requestID)
		a.auditor.LogEvent(security.Event{
			Type:      security.EventUnauthorized,
			RequestID: requestID,
			Details:   map[string]any{"resource": req.ResourceIdentifier},
		})
		return Result{}, err
	}

	result := a.verifier.Verify(ctx, token)
	a.auditor.LogAccessDecision(result.Principal, requestID, req.ResourceIdentifier, string(result.Code))
	return result, nil
}

// ParseBearer extracts the token from an Authorization header value of the
// form "Bearer <token>". The scheme is matched case-insensitively.
func ParseBearer(header string) (string, error) {
	scheme, rest, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrUnauthorized
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", ErrUnauthorized
	}
	return fields[0], nil
}
