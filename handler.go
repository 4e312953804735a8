package tokengate

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/giantswarm/tokengate/policy"
	"github.com/giantswarm/tokengate/security"
	"github.com/giantswarm/tokengate/verifier"
)

// ResourceFunc names the resource a request accesses.
type ResourceFunc func(r *http.Request) string

// DefaultResource names a request "<METHOD> <path>".
func DefaultResource(r *http.Request) string {
	return r.Method + " " + r.URL.Path
}

// Handler is a thin HTTP adapter for a verifier.Authorizer.
type Handler struct {
	authorizer *verifier.Authorizer
	resource   ResourceFunc
	logger     *slog.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithResource sets how requests are named in policies and audit logs.
func WithResource(fn ResourceFunc) HandlerOption {
	return func(h *Handler) {
		if fn != nil {
			h.resource = fn
		}
	}
}

// NewHandler creates a new HTTP handler
func NewHandler(authorizer *verifier.Authorizer, logger *slog.Logger, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		authorizer: authorizer,
		resource:   DefaultResource,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ValidateToken is middleware that verifies the bearer token of every request
// before calling next.
func (h *Handler) ValidateToken(next http.Handler) http.Handler {
	return security.RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resource := h.resource(r)
		result, err := h.authorizer.Check(r.Context(), verifier.Request{
			AuthorizationToken: r.Header.Get("Authorization"),
			ResourceIdentifier: resource,
		})
		if err != nil {
			h.writeError(w, ErrUnauthorized())
			return
		}

		decision := result.Policy(resource)
		if !decision.Allowed() {
			h.writeDeny(w, decision)
			return
		}

		ctx := ContextWithClaims(r.Context(), result.Claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	}))
}

// ServeClaims answers the claims of the verified token. It must run behind
// ValidateToken.
func (h *Handler) ServeClaims(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok || claims == nil {
		h.writeError(w, ErrUnauthorized())
		return
	}
	security.SetAPIHeaders(w)
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(claims.Raw); err != nil {
		h.logger.Warn("Failed to write claims", "request_id", security.GetRequestID(r.Context()), "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, e *Error) {
	security.SetAPIHeaders(w)
	if e.Status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	w.WriteHeader(e.Status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Message: e.Description})
}

func (h *Handler) writeDeny(w http.ResponseWriter, decision *policy.Response) {
	security.SetAPIHeaders(w)
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	w.WriteHeader(policy.DenyStatusCode)
	_ = json.NewEncoder(w).Encode(DenyResponse{
		StatusCode: policy.DenyStatusCode,
		StatusText: decision.StatusText(),
	})
}

// Context key for verified claims
type contextKey string

const claimsKey contextKey = "claims"

// ClaimsFromContext retrieves the verified claims from the request context
func ClaimsFromContext(ctx context.Context) (*verifier.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*verifier.Claims)
	return claims, ok
}

// ContextWithClaims returns a context carrying claims.
//
// WARNING: outside tests, claims should only be set by the ValidateToken
// middleware after the token was verified.
func ContextWithClaims(ctx context.Context, claims *verifier.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}
