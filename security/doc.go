// Package security provides the security plumbing shared by the client flow and the
// bearer token verifier: encryption of persisted values, security audit logging,
// clock-margin helpers, request ids and response headers.
//
// # Encryption at rest
//
// Encryptor seals values with AES-256-GCM. Every value is bound to the name it is stored
// under through the GCM additional data, so a ciphertext copied to another key fails to
// open. Keys are 32 bytes, either random (GenerateKey) or derived from a configured secret
// with HKDF-SHA256 (DeriveKey):
//
//	key, err := security.DeriveKey([]byte(os.Getenv("TOKENGATE_ENCRYPTION_SECRET")), "my-client")
//	if err != nil {
//	    return err
//	}
//	enc, err := security.NewEncryptor(key)
//
// # Audit logging
//
// Auditor writes "security_audit" records through log/slog. Subjects are hashed before
// they are logged, and tokens are never logged at all.
//
// # Clock margins
//
// HasRemainingLifetime implements the fixed margin the client applies to stored tokens:
// a token whose remaining lifetime is below the margin is treated as absent.
package security
