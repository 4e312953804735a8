// Package verifier decides whether a bearer token presented on a protected API
// call is acceptable.
//
// A token passes through a fixed sequence of checks and the first failure wins:
//
//  1. three dot-separated segments                   BAD_TOKEN
//  2. header and payload decode as base64url JSON   BAD_TOKEN
//  3. exp present and not in the past               EXPIRED_TOKEN
//  4. nbf, when present, not in the future          NBF_TOKEN
//  5. iat present and not in the future             IAT_TOKEN
//  6. iss equals the expected issuer                BAD_ISS_TOKEN
//  7. aud equals the expected audience              BAD_AUD_TOKEN
//  8. alg is RS256                                  BAD_ALG_TOKEN
//  9. kid present                                   NO_KID_TOKEN
//  10. the SignatureVerifier confirms the signature INVALID_SIGNATURE
//
// The signature check is delegated to an injected SignatureVerifier (see the
// signing package). Any failure, error or timeout of that call denies.
//
// Authorizer wraps a Verifier with the gateway invocation contract: it extracts
// the token from an Authorization header value and renders a policy.Response.
package verifier
