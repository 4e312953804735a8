package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/giantswarm/tokengate/storage"

	_ "modernc.org/sqlite"
)

// busyTimeoutMs is how long a writer waits for another process holding the lock
const busyTimeoutMs = 5000

// Config holds configuration for the SQLite storage backend.
type Config struct {
	// Path is the database file path (required)
	Path string

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger

	// Now overrides the clock used for the updated_at column
	Now func() time.Time
}

// Store is a file-backed storage.Backend. Several processes on one device can
// share the file; writes run in IMMEDIATE transactions so compare-and-swap is
// atomic across processes.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
	now    func() time.Time
}

// Compile-time interface check
var _ storage.Backend = (*Store)(nil)

// DSN returns the modernc.org/sqlite data source name for path.
func DSN(path string) string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_txlock=immediate", path, busyTimeoutMs)
}

// New opens the database at cfg.Path and applies pending migrations.
func New(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	db, err := sql.Open("sqlite", DSN(cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	s := &Store{
		db:     db,
		path:   cfg.Path,
		logger: logger,
		now:    now,
	}

	if err := s.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	logger.Info("Opened SQLite storage", "path", cfg.Path)
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Get returns the values of the keys that exist.
func (s *Store) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	if err := storage.ValidateKeys(keys...); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	query := `SELECT key, value FROM kv WHERE key IN (` + placeholders(len(keys)) + `)`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return out, nil
}

// Set writes all values in one transaction. Empty values delete.
func (s *Store) Set(ctx context.Context, values map[string]string) error {
	if err := storage.ValidateValues(values); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.apply(ctx, tx, values)
	})
}

// Delete removes the keys.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if err := storage.ValidateKeys(keys...); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key IN (`+placeholders(len(keys))+`)`, args...); err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}

// CompareAndSwap reads the guard and writes values in the same IMMEDIATE
// transaction, which holds the database write lock from BEGIN.
func (s *Store) CompareAndSwap(ctx context.Context, guardKey, expected string, values map[string]string) (bool, error) {
	if err := storage.ValidateKeys(guardKey); err != nil {
		return false, err
	}
	if err := storage.ValidateValues(values); err != nil {
		return false, err
	}

	swapped := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var current string
		err := tx.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, guardKey).Scan(&current)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to read guard key: %w", err)
		}
		if current != expected {
			return nil
		}
		if err := s.apply(ctx, tx, values); err != nil {
			return err
		}
		swapped = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if !swapped {
		s.logger.Debug("Compare-and-swap guard mismatch", "key", guardKey)
	}
	return swapped, nil
}

func (s *Store) apply(ctx context.Context, tx *sql.Tx, values map[string]string) error {
	updatedAt := s.now().Unix()
	for k, v := range values {
		if v == "" {
			if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, k); err != nil {
				return fmt.Errorf("failed to delete key: %w", err)
			}
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			k, v, updatedAt,
		); err != nil {
			return fmt.Errorf("failed to write key: %w", err)
		}
	}
	return nil
}

// withTx executes fn within a transaction, automatically handling commit/rollback.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // safe to call even after commit
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
