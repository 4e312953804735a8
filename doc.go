// Package tokengate wires the OAuth2 Authorization Code + PKCE client and the
// bearer token verifier into deployable pieces.
//
// The sub-packages do the work:
//
//   - client: authorization request, code exchange, refresh rotation, logout
//   - verifier: ordered, fail-closed bearer token checks
//   - policy: allow/deny policy documents returned to a gateway
//   - signing: signature verification by local keys or a remote service
//   - storage: token and flow secret persistence (memory, sqlite, valkey)
//
// This package adds the environment configuration shared by the programs under
// examples/ and an HTTP middleware that enforces the verifier on a handler:
//
//	v, _ := verifier.New(cfg.VerifierConfig(keys, logger))
//	h := tokengate.NewHandler(verifier.NewAuthorizer(v, auditor), logger)
//	mux.Handle("/", h.ValidateToken(api))
//
// A missing or malformed Authorization header answers 401 with
// {"message":"Unauthorized"}. A rejected token answers 403 with
// {"statusCode":403,"statusText":"<code>"}. An accepted token's claims are
// available to the wrapped handler through ClaimsFromContext.
package tokengate
