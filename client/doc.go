// Package client runs the OAuth2 Authorization Code flow with PKCE on the
// device that holds the tokens.
//
// A Flow owns the flow-scoped secrets (code verifier and state): it builds the
// authorization URL, hands it to a Navigator and validates the redirect that
// comes back. A TokenClient talks to the token endpoint: POST exchanges a code,
// PATCH rotates the refresh token and DELETE revokes it.
//
// A Session ties both to the session-scoped TokenStore and drives the state
// machine:
//
//	Unauthenticated -> Exchanging -> Authenticated
//	Authenticated   -> Refreshing -> Authenticated | Unauthenticated
//	Authenticated   -> LoggedOut  -> Unauthenticated
//
// Any failure surfaces as a Notice through the configured Notifier and ends in
// the unauthenticated state. Refreshes are serialized within a Session and
// guarded by a compare-and-swap on the stored refresh token across sessions
// that share a backend, so a pair rotated by a sibling is adopted rather than
// overwritten.
//
// Session implements oauth2.TokenSource, and APIClient uses it through
// oauth2.Transport to call protected APIs.
package client
