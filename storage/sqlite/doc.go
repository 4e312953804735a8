// Package sqlite provides a file-backed storage.Backend on modernc.org/sqlite.
//
// Values live in a single kv table created by embedded golang-migrate
// migrations. The store is meant for a client device where several processes
// (for example a CLI run twice in parallel) share one token pair: writes use
// IMMEDIATE transactions and a busy timeout, so a refresh rotation guarded by
// CompareAndSwap cannot interleave with a sibling's rotation.
//
// Example usage:
//
//	backend, err := sqlite.New(sqlite.Config{Path: "/home/me/.config/app/session.db"})
//	if err != nil {
//		return err
//	}
//	defer backend.Close()
package sqlite
