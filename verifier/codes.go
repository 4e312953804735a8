package verifier

import "errors"

// Code identifies why a token was denied.
type Code string

const (
	CodeBadToken         Code = "BAD_TOKEN"
	CodeExpiredToken     Code = "EXPIRED_TOKEN"
	CodeNotBeforeToken   Code = "NBF_TOKEN"
	CodeIssuedAtToken    Code = "IAT_TOKEN"
	CodeBadIssuer        Code = "BAD_ISS_TOKEN"
	CodeBadAudience      Code = "BAD_AUD_TOKEN"
	CodeBadAlgorithm     Code = "BAD_ALG_TOKEN"
	CodeNoKeyID          Code = "NO_KID_TOKEN"
	CodeInvalidSignature Code = "INVALID_SIGNATURE"
)

// Decision is the outcome of a verification.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionDeny  Decision = "deny"
)

const (
	// HeaderAlgorithm is the only JWT header alg accepted.
	HeaderAlgorithm = "RS256"

	// SigningAlgorithm is the asymmetric scheme HeaderAlgorithm maps to when
	// the signature check is delegated.
	SigningAlgorithm = "RSASSA_PKCS1_V1_5_SHA_256"
)

var (
	// ErrUnauthorized is returned by Authorizer when the Authorization header
	// does not carry a bearer token at all. It maps to HTTP 401, unlike a deny
	// decision which maps to 403.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrMissingSignatureVerifier is returned by New without a SignatureVerifier.
	ErrMissingSignatureVerifier = errors.New("signature verifier is required")
)
