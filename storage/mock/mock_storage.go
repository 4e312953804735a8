// Package mock provides a mock implementation of storage.Backend for testing.
package mock

import (
	"context"
	"sync"

	"github.com/giantswarm/tokengate/storage"
)

// Backend is a mock storage.Backend. Each method delegates to its Func field,
// which defaults to an in-memory implementation. Override a Func to inject
// failures or to interleave a concurrent write.
type Backend struct {
	mu     sync.Mutex
	values map[string]string

	GetFunc            func(ctx context.Context, keys ...string) (map[string]string, error)
	SetFunc            func(ctx context.Context, values map[string]string) error
	DeleteFunc         func(ctx context.Context, keys ...string) error
	CompareAndSwapFunc func(ctx context.Context, guardKey, expected string, values map[string]string) (bool, error)
	CloseFunc          func() error

	countsMu   sync.Mutex
	CallCounts map[string]int
}

var _ storage.Backend = (*Backend)(nil)

// NewBackend creates a mock backend with working default implementations.
func NewBackend() *Backend {
	m := &Backend{
		values:     make(map[string]string),
		CallCounts: make(map[string]int),
	}

	m.GetFunc = m.DefaultGet
	m.SetFunc = m.DefaultSet
	m.DeleteFunc = m.DefaultDelete
	m.CompareAndSwapFunc = m.DefaultCompareAndSwap
	m.CloseFunc = func() error { return nil }

	return m
}

// DefaultGet reads from the in-memory map.
func (m *Backend) DefaultGet(_ context.Context, keys ...string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := m.values[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

// DefaultSet writes to the in-memory map.
func (m *Backend) DefaultSet(_ context.Context, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apply(values)
	return nil
}

// DefaultDelete deletes from the in-memory map.
func (m *Backend) DefaultDelete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

// DefaultCompareAndSwap swaps in the in-memory map.
func (m *Backend) DefaultCompareAndSwap(_ context.Context, guardKey, expected string, values map[string]string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values[guardKey] != expected {
		return false, nil
	}
	m.apply(values)
	return true, nil
}

func (m *Backend) apply(values map[string]string) {
	for k, v := range values {
		if v == "" {
			delete(m.values, k)
			continue
		}
		m.values[k] = v
	}
}

func (m *Backend) count(name string) {
	m.countsMu.Lock()
	defer m.countsMu.Unlock()
	m.CallCounts[name]++
}

// Calls returns how many times the named method was called.
func (m *Backend) Calls(name string) int {
	m.countsMu.Lock()
	defer m.countsMu.Unlock()
	return m.CallCounts[name]
}

// Snapshot returns a copy of the stored values.
func (m *Backend) Snapshot() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

// Get implements storage.Backend.
func (m *Backend) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	m.count("Get")
	return m.GetFunc(ctx, keys...)
}

// Set implements storage.Backend.
func (m *Backend) Set(ctx context.Context, values map[string]string) error {
	m.count("Set")
	return m.SetFunc(ctx, values)
}

// Delete implements storage.Backend.
func (m *Backend) Delete(ctx context.Context, keys ...string) error {
	m.count("Delete")
	return m.DeleteFunc(ctx, keys...)
}

// CompareAndSwap implements storage.Backend.
func (m *Backend) CompareAndSwap(ctx context.Context, guardKey, expected string, values map[string]string) (bool, error) {
	m.count("CompareAndSwap")
	return m.CompareAndSwapFunc(ctx, guardKey, expected, values)
}

// Close implements storage.Backend.
func (m *Backend) Close() error {
	m.count("Close")
	return m.CloseFunc()
}
