package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/giantswarm/tokengate/storage"
	"github.com/giantswarm/tokengate/storage/storagetest"
)

func newTestStore(t *testing.T, path string) *Store {
	t.Helper()

	store, err := New(Config{Path: path})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_Backend(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Backend {
		return newTestStore(t, filepath.Join(t.TempDir(), "session.db"))
	})
}

func TestNew_RequiresPath(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New() without path should return error")
	}
}

func TestNew_MigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")

	first := newTestStore(t, path)
	if err := first.Set(context.Background(), map[string]string{"a": "1"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	second := newTestStore(t, path)
	got, err := second.Get(context.Background(), "a")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got["a"] != "1" {
		t.Errorf("Get()[a] = %q after reopen, want %q", got["a"], "1")
	}
}

func TestStore_SharedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")
	a := newTestStore(t, path)
	b := newTestStore(t, path)
	ctx := context.Background()

	if err := a.Set(ctx, map[string]string{"rt": "RT1"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	swapped, err := b.CompareAndSwap(ctx, "rt", "RT1", map[string]string{"rt": "RT2"})
	if err != nil {
		t.Fatalf("CompareAndSwap() error = %v", err)
	}
	if !swapped {
		t.Fatal("second handle should swap on the current guard")
	}

	swapped, err = a.CompareAndSwap(ctx, "rt", "RT1", map[string]string{"rt": "RT3"})
	if err != nil {
		t.Fatalf("CompareAndSwap() error = %v", err)
	}
	if swapped {
		t.Error("first handle should see the sibling's rotation and not swap")
	}
}

func TestStore_UpdatedAt(t *testing.T) {
	fixed := time.Unix(1700000000, 0)
	store, err := New(Config{
		Path: filepath.Join(t.TempDir(), "session.db"),
		Now:  func() time.Time { return fixed },
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	if err := store.Set(ctx, map[string]string{"a": "1"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	var updatedAt int64
	if err := store.db.QueryRowContext(ctx, `SELECT updated_at FROM kv WHERE key = ?`, "a").Scan(&updatedAt); err != nil {
		t.Fatalf("query error = %v", err)
	}
	if updatedAt != fixed.Unix() {
		t.Errorf("updated_at = %d, want %d", updatedAt, fixed.Unix())
	}
}

func TestDSN(t *testing.T) {
	want := "file:/tmp/x.db?_pragma=busy_timeout(5000)&_txlock=immediate"
	if got := DSN("/tmp/x.db"); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
