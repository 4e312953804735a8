// Package storage persists the client-side state of the authorization flow.
//
// Two lifetimes are kept apart, each as a scoped view over a Backend:
//   - SecretStore: flow-scoped code_verifier, state and queued notices, cleared when an
//     authorization attempt completes or its state does not match.
//   - TokenStore: session-scoped access/refresh token pair with expiries, cleared on
//     explicit logout.
//
// Keys are scoped by the client identifier, so several clients can share one backend:
//
//	{client_id}-access_token        -> access token
//	{client_id}-access_token_exp    -> epoch seconds
//	{client_id}-refresh_token       -> refresh token
//	{client_id}-refresh_token_exp   -> epoch seconds
//	{client_id}-code_verifier       -> PKCE verifier
//	{client_id}-state               -> anti-CSRF state
//	{client_id}-waitingToasts       -> JSON array of notices queued across a restart
//
// Backend implementations live in sub-packages:
//   - storage/memory: in-process map, for tests and single-process clients
//   - storage/sqlite: file-backed store shared by processes on one device
//   - storage/valkey: Valkey/Redis-compatible store shared across hosts
//   - storage/mock: function-injectable backend for unit tests
//
// NewEncrypted wraps any backend to encrypt values at rest.
package storage
