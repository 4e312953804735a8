// Package memory provides an in-memory implementation of storage.Backend.
//
// It is suitable for tests and for clients that keep their session in a single
// process. A sync.RWMutex protects the map, so compare-and-swap is atomic.
//
// Example usage:
//
//	backend := memory.New()
//	defer backend.Close()
//
//	tokens := storage.NewTokenStore(backend, "my-client")
//	secrets := storage.NewSecretStore(backend, "my-client", nil)
//
// For state that must survive a restart or be shared between processes, use
// storage/sqlite or storage/valkey instead.
package memory
