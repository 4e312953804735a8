package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/giantswarm/tokengate/storage"
)

// Store is an in-memory Backend. Every operation holds the store lock, so Set and
// CompareAndSwap are atomic with respect to all readers.
type Store struct {
	mu     sync.RWMutex
	values map[string]string
	closed bool
	logger *slog.Logger
}

// Compile-time interface check
var _ storage.Backend = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		values: make(map[string]string),
		logger: slog.Default(),
	}
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if logger != nil {
		s.logger = logger
	}
}

// Get returns the values of the keys that exist.
func (s *Store) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	if err := storage.ValidateKeys(keys...); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrClosed
	}

	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := s.values[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

// Set writes all values atomically. Empty values delete.
func (s *Store) Set(ctx context.Context, values map[string]string) error {
	if err := storage.ValidateValues(values); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}

	s.apply(values)
	return nil
}

// Delete removes the keys.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if err := storage.ValidateKeys(keys...); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}

	for _, k := range keys {
		delete(s.values, k)
	}
	return nil
}

// CompareAndSwap writes values if guardKey currently holds expected.
func (s *Store) CompareAndSwap(ctx context.Context, guardKey, expected string, values map[string]string) (bool, error) {
	if err := storage.ValidateKeys(guardKey); err != nil {
		return false, err
	}
	if err := storage.ValidateValues(values); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, storage.ErrClosed
	}

	if s.values[guardKey] != expected {
		s.logger.Debug("Compare-and-swap guard mismatch", "key", guardKey)
		return false, nil
	}
	s.apply(values)
	return true, nil
}

// Close marks the store closed. Later calls fail with storage.ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

func (s *Store) apply(values map[string]string) {
	for k, v := range values {
		if v == "" {
			delete(s.values, k)
			continue
		}
		s.values[k] = v
	}
}
