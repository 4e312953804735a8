// Package signing provides verifier.SignatureVerifier implementations.
//
// KeySet verifies RS256 signatures locally against RSA public keys selected by
// key id. Keys can be added from PEM, loaded from a JWKS document, or loaded
// from a directory of <kid>.pem files that is watched for changes.
//
// RemoteService delegates verification to a remote key management service
// speaking the KMS Verify JSON contract, so private and public key material
// never leave that service. Calls are rate limited on the client side.
package signing
