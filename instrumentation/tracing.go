package instrumentation

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common span attribute keys
//
// SECURITY WARNING: Never put token values, codes, verifiers or state values in
// traces or metrics. Only metadata such as expiries, codes and results belong here.
const (
	// Client flow attributes
	AttrClientID     = "oauth.client_id"
	AttrGrantType    = "oauth.grant_type"
	AttrPKCEMethod   = "oauth.pkce.method"
	AttrTokenRotated = "oauth.token.rotated" //nolint:gosec // boolean, never a token value
	AttrTokenAdopted = "oauth.token.adopted" //nolint:gosec // boolean, never a token value
	AttrTokenPresent = "oauth.token.present" //nolint:gosec // boolean, never a token value
	AttrSessionState = "oauth.session.state"
	AttrRedirectKind = "oauth.redirect.kind"
	AttrError        = "oauth.error"
	AttrErrorKind    = "oauth.error.kind"
	AttrHTTPStatus   = "http.status_code"
	AttrHTTPMethod   = "http.method"
	AttrLanguage     = "oauth.language"

	// Verifier attributes
	AttrVerifierDecision = "verifier.decision"
	AttrVerifierCode     = "verifier.code"
	AttrVerifierIssuer   = "verifier.issuer"
	AttrKeyID            = "verifier.key_id"
	AttrSigningAlgorithm = "verifier.signing_algorithm"

	// Storage attributes
	AttrStorageOperation = "storage.operation"
	AttrStorageType      = "storage.type"
	AttrStorageKeyCount  = "storage.key_count"
)

// RecordError records an error on a span with proper status codes (nil-safe)
func RecordError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess marks a span as successful (nil-safe)
func SetSpanSuccess(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

// SetSpanError sets an error status on a span (nil-safe)
func SetSpanError(span trace.Span, message string) {
	if span != nil {
		span.SetStatus(codes.Error, message)
	}
}

// SetSpanAttributes sets attributes on a span (nil-safe)
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span != nil {
		span.SetAttributes(attrs...)
	}
}

// AddExchangeAttributes adds token endpoint call attributes to a span (nil-safe)
func AddExchangeAttributes(span trace.Span, clientID, grantType, method string) {
	if clientID != "" {
		SetSpanAttributes(span, attribute.String(AttrClientID, clientID))
	}
	SetSpanAttributes(span,
		attribute.String(AttrGrantType, grantType),
		attribute.String(AttrHTTPMethod, method),
	)
}

// AddVerifierAttributes adds the decision of a verification to a span (nil-safe)
func AddVerifierAttributes(span trace.Span, decision, code string) {
	SetSpanAttributes(span, attribute.String(AttrVerifierDecision, decision))
	if code != "" {
		SetSpanAttributes(span, attribute.String(AttrVerifierCode, code))
	}
}

// AddKeyAttributes adds key selection attributes to a span (nil-safe)
func AddKeyAttributes(span trace.Span, keyID, algorithm string) {
	if keyID != "" {
		SetSpanAttributes(span, attribute.String(AttrKeyID, keyID))
	}
	if algorithm != "" {
		SetSpanAttributes(span, attribute.String(AttrSigningAlgorithm, algorithm))
	}
}

// AddStorageAttributes adds storage operation attributes to a span (nil-safe)
func AddStorageAttributes(span trace.Span, operation, storageType string, keyCount int) {
	SetSpanAttributes(span,
		attribute.String(AttrStorageOperation, operation),
		attribute.String(AttrStorageType, storageType),
		attribute.Int(AttrStorageKeyCount, keyCount),
	)
}
