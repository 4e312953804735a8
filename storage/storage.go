package storage

import (
	"context"
	"errors"
)

var (
	// ErrInvalidKey is returned for empty keys.
	ErrInvalidKey = errors.New("storage key must not be empty")

	// ErrClosed is returned by a backend after Close.
	ErrClosed = errors.New("storage backend is closed")
)

// Backend is a scoped key-value store. Implementations must apply each Set and
// CompareAndSwap atomically: readers never observe half of a write.
//
// In the values map of Set and CompareAndSwap an empty string deletes the key, so a
// value and its expiry can be removed in the same atomic write that stores others.
// All methods accept context.Context for tracing and cancellation.
type Backend interface {
	// Get returns the values of the keys that exist. Missing keys are absent from the
	// result; a missing key is not an error.
	Get(ctx context.Context, keys ...string) (map[string]string, error)

	// Set writes all values atomically.
	Set(ctx context.Context, values map[string]string) error

	// Delete removes the keys. Deleting a missing key is not an error.
	Delete(ctx context.Context, keys ...string) error

	// CompareAndSwap writes values only if the current value of guardKey equals
	// expected (a missing key compares equal to ""). It reports whether it wrote.
	CompareAndSwap(ctx context.Context, guardKey, expected string, values map[string]string) (bool, error)

	// Close releases backend resources.
	Close() error
}

// ValidateKeys checks that no key is empty. Backends call it before touching storage.
func ValidateKeys(keys ...string) error {
	for _, k := range keys {
		if k == "" {
			return ErrInvalidKey
		}
	}
	return nil
}

// ValidateValues checks the keys of a values map.
func ValidateValues(values map[string]string) error {
	for k := range values {
		if k == "" {
			return ErrInvalidKey
		}
	}
	return nil
}

// Field names of the persisted client state.
const (
	FieldAccessToken     = "access_token"
	FieldAccessTokenExp  = "access_token_exp"
	FieldRefreshToken    = "refresh_token"
	FieldRefreshTokenExp = "refresh_token_exp"
	FieldCodeVerifier    = "code_verifier"
	FieldState           = "state"
	FieldWaitingNotices  = "waitingToasts"
)

// Key returns the backend key of field for clientID.
func Key(clientID, field string) string {
	return clientID + "-" + field
}
