package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/giantswarm/tokengate/storage"
	"github.com/giantswarm/tokengate/storage/storagetest"
)

func TestStore_Backend(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Backend {
		store := New()
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}

func TestStore_Closed(t *testing.T) {
	store := New()
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	ctx := context.Background()
	if _, err := store.Get(ctx, "a"); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("Get() after Close error = %v, want ErrClosed", err)
	}
	if err := store.Set(ctx, map[string]string{"a": "1"}); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("Set() after Close error = %v, want ErrClosed", err)
	}
	if _, err := store.CompareAndSwap(ctx, "a", "", nil); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("CompareAndSwap() after Close error = %v, want ErrClosed", err)
	}
}

func TestStore_CanceledContext(t *testing.T) {
	store := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.Get(ctx, "a"); !errors.Is(err, context.Canceled) {
		t.Errorf("Get() error = %v, want context.Canceled", err)
	}
	if err := store.Delete(ctx, "a"); !errors.Is(err, context.Canceled) {
		t.Errorf("Delete() error = %v, want context.Canceled", err)
	}
}

func TestStore_Len(t *testing.T) {
	store := New()
	ctx := context.Background()

	if err := store.Set(ctx, map[string]string{"a": "1", "b": "2", "c": ""}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got := store.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}
}
