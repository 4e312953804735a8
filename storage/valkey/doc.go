// Package valkey provides a Valkey (Redis-compatible) implementation of storage.Backend.
//
// All keys are namespaced by a configurable prefix. Multi-key writes and
// compare-and-swap run as Lua scripts, which the server executes atomically,
// so refresh rotations from different hosts sharing one session serialize on
// the stored refresh token.
//
// Example usage:
//
//	backend, err := valkey.New(valkey.Config{
//		Address:   "localhost:6379",
//		KeyPrefix: "myapp:",
//	})
//	if err != nil {
//		return err
//	}
//	defer backend.Close()
package valkey
