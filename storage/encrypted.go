package storage

import (
	"context"
	"fmt"

	"github.com/giantswarm/tokengate/security"
)

// Encrypted is a Backend that encrypts values at rest. Each value is bound to its
// key, so a ciphertext copied to another key fails to decrypt.
type Encrypted struct {
	inner     Backend
	encryptor *security.Encryptor
}

var _ Backend = (*Encrypted)(nil)

// NewEncrypted wraps inner. A nil or disabled encryptor passes values through.
func NewEncrypted(inner Backend, encryptor *security.Encryptor) *Encrypted {
	return &Encrypted{inner: inner, encryptor: encryptor}
}

// Get decrypts the stored values.
func (e *Encrypted) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	raw, err := e.inner.Get(ctx, keys...)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		plain, err := e.encryptor.Decrypt(k, v)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt %q: %w", k, err)
		}
		out[k] = plain
	}
	return out, nil
}

// Set encrypts and writes the values. Empty values remain deletes.
func (e *Encrypted) Set(ctx context.Context, values map[string]string) error {
	sealed, err := e.seal(values)
	if err != nil {
		return err
	}
	return e.inner.Set(ctx, sealed)
}

// Delete removes the keys.
func (e *Encrypted) Delete(ctx context.Context, keys ...string) error {
	return e.inner.Delete(ctx, keys...)
}

// CompareAndSwap compares against the decrypted guard value. The inner swap is
// guarded on the exact ciphertext that was read, so a concurrent write between
// the read and the swap still fails the comparison.
func (e *Encrypted) CompareAndSwap(ctx context.Context, guardKey, expected string, values map[string]string) (bool, error) {
	raw, err := e.inner.Get(ctx, guardKey)
	if err != nil {
		return false, err
	}

	current := raw[guardKey]
	if current != "" {
		plain, err := e.encryptor.Decrypt(guardKey, current)
		if err != nil {
			return false, fmt.Errorf("failed to decrypt %q: %w", guardKey, err)
		}
		if plain != expected {
			return false, nil
		}
	} else if expected != "" {
		return false, nil
	}

	sealed, err := e.seal(values)
	if err != nil {
		return false, err
	}
	return e.inner.CompareAndSwap(ctx, guardKey, current, sealed)
}

// Close closes the inner backend.
func (e *Encrypted) Close() error {
	return e.inner.Close()
}

func (e *Encrypted) seal(values map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(values))
	for k, v := range values {
		if v == "" {
			out[k] = ""
			continue
		}
		sealed, err := e.encryptor.Encrypt(k, v)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt %q: %w", k, err)
		}
		out[k] = sealed
	}
	return out, nil
}
