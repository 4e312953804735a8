package security

// Event type constants for security audit logging.
const (
	// Client flow events

	// EventAuthorizationFlowStarted is logged when the client redirects to the authorization endpoint
	EventAuthorizationFlowStarted = "authorization_flow_started"

	// EventStateMismatch is logged when a redirect carries a state that does not match the stored one
	EventStateMismatch = "state_mismatch"

	// EventTokenIssued is logged when an authorization code is exchanged for a token pair
	EventTokenIssued = "token_issued"

	// EventTokenRefreshed is logged when the access token is refreshed and the refresh token rotated
	EventTokenRefreshed = "token_refreshed"

	// EventTokenAdopted is logged when a pair rotated by a sibling context sharing the store is adopted
	EventTokenAdopted = "token_adopted"

	// EventExchangeFailed is logged when the token endpoint rejects an exchange or refresh
	EventExchangeFailed = "exchange_failed"

	// EventLoggedOut is logged when the local token pair is cleared
	EventLoggedOut = "logged_out"

	// EventRevocationFailed is logged when best-effort server-side revocation fails
	EventRevocationFailed = "revocation_failed"

	// Verifier events

	// EventAccessGranted is logged when a bearer token passes every check
	EventAccessGranted = "access_granted"

	// EventAccessDenied is logged when a bearer token is rejected
	EventAccessDenied = "access_denied"

	// EventUnauthorized is logged when the Authorization header is missing or malformed
	EventUnauthorized = "unauthorized"
)
