// Package pkce generates the per-flow secrets of an OAuth2 Authorization Code flow with
// PKCE (RFC 7636): the code verifier, its S256 code challenge, and the anti-CSRF state.
//
// Both the verifier and the state are 32 bytes read from crypto/rand and encoded as
// base64url without padding, which yields 43-character strings:
//
//	secrets, err := pkce.NewSecrets()
//	if err != nil {
//	    // No secure randomness: the flow cannot proceed.
//	    return err
//	}
//	challenge := pkce.Challenge(secrets.CodeVerifier)
//
// A failure to read randomness is reported as ErrEnvironmentUnsupported. It is an
// unrecoverable environment failure and must not be retried.
package pkce
