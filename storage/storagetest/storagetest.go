// Package storagetest provides a conformance suite for storage.Backend implementations.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/giantswarm/tokengate/storage"
)

// Factory returns a fresh, empty backend. It should register its own cleanup.
type Factory func(t *testing.T) storage.Backend

// Run exercises the Backend contract against backends created by newBackend.
func Run(t *testing.T, newBackend Factory) {
	t.Helper()

	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newBackend(t)) })
	t.Run("SetGet", func(t *testing.T) { testSetGet(t, newBackend(t)) })
	t.Run("SetEmptyDeletes", func(t *testing.T) { testSetEmptyDeletes(t, newBackend(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newBackend(t)) })
	t.Run("EmptyKey", func(t *testing.T) { testEmptyKey(t, newBackend(t)) })
	t.Run("CompareAndSwap", func(t *testing.T) { testCompareAndSwap(t, newBackend(t)) })
	t.Run("CompareAndSwapMissingGuard", func(t *testing.T) { testCompareAndSwapMissingGuard(t, newBackend(t)) })
	t.Run("CompareAndSwapConcurrent", func(t *testing.T) { testCompareAndSwapConcurrent(t, newBackend(t)) })
}

func testGetMissing(t *testing.T, b storage.Backend) {
	got, err := b.Get(context.Background(), "missing-a", "missing-b")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Get() = %v, want empty map", got)
	}
}

func testSetGet(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	values := map[string]string{"c-access_token": "AT1", "c-access_token_exp": "1700000000"}
	if err := b.Set(ctx, values); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := b.Get(ctx, "c-access_token", "c-access_token_exp", "c-other")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Get() returned %d values, want 2: %v", len(got), got)
	}
	for k, want := range values {
		if got[k] != want {
			t.Errorf("Get()[%q] = %q, want %q", k, got[k], want)
		}
	}
}

func testSetEmptyDeletes(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	if err := b.Set(ctx, map[string]string{"a": "1", "b": "2"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := b.Set(ctx, map[string]string{"a": "", "b": "3"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := b.Get(ctx, "a", "b")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if _, ok := got["a"]; ok {
		t.Errorf("key a should be deleted, got %q", got["a"])
	}
	if got["b"] != "3" {
		t.Errorf("Get()[b] = %q, want %q", got["b"], "3")
	}
}

func testDelete(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	if err := b.Set(ctx, map[string]string{"a": "1", "b": "2"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := b.Delete(ctx, "a", "never-set"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	got, err := b.Get(ctx, "a", "b")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if _, ok := got["a"]; ok {
		t.Error("key a should be deleted")
	}
	if got["b"] != "2" {
		t.Errorf("Get()[b] = %q, want %q", got["b"], "2")
	}
}

func testEmptyKey(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	if _, err := b.Get(ctx, ""); !errors.Is(err, storage.ErrInvalidKey) {
		t.Errorf("Get(\"\") error = %v, want ErrInvalidKey", err)
	}
	if err := b.Set(ctx, map[string]string{"": "x"}); !errors.Is(err, storage.ErrInvalidKey) {
		t.Errorf("Set() empty key error = %v, want ErrInvalidKey", err)
	}
	if err := b.Delete(ctx, ""); !errors.Is(err, storage.ErrInvalidKey) {
		t.Errorf("Delete(\"\") error = %v, want ErrInvalidKey", err)
	}
}

func testCompareAndSwap(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	if err := b.Set(ctx, map[string]string{"rt": "RT1", "at": "AT1"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	swapped, err := b.CompareAndSwap(ctx, "rt", "stale", map[string]string{"rt": "RTX", "at": "ATX"})
	if err != nil {
		t.Fatalf("CompareAndSwap() error = %v", err)
	}
	if swapped {
		t.Error("CompareAndSwap() with stale guard should not swap")
	}

	swapped, err = b.CompareAndSwap(ctx, "rt", "RT1", map[string]string{"rt": "RT2", "at": "AT2"})
	if err != nil {
		t.Fatalf("CompareAndSwap() error = %v", err)
	}
	if !swapped {
		t.Fatal("CompareAndSwap() with current guard should swap")
	}

	got, err := b.Get(ctx, "rt", "at")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got["rt"] != "RT2" || got["at"] != "AT2" {
		t.Errorf("Get() = %v, want rt=RT2 at=AT2", got)
	}
}

func testCompareAndSwapMissingGuard(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	swapped, err := b.CompareAndSwap(ctx, "rt", "", map[string]string{"rt": "RT1"})
	if err != nil {
		t.Fatalf("CompareAndSwap() error = %v", err)
	}
	if !swapped {
		t.Error("CompareAndSwap() on missing key with empty expected should swap")
	}

	swapped, err = b.CompareAndSwap(ctx, "other", "something", map[string]string{"other": "x"})
	if err != nil {
		t.Fatalf("CompareAndSwap() error = %v", err)
	}
	if swapped {
		t.Error("CompareAndSwap() on missing key with non-empty expected should not swap")
	}
}

// testCompareAndSwapConcurrent races several writers rotating from the same guard.
// Exactly one of them may win.
func testCompareAndSwapConcurrent(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	if err := b.Set(ctx, map[string]string{"rt": "RT1"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	const writers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
		errs []error
	)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			swapped, err := b.CompareAndSwap(ctx, "rt", "RT1", map[string]string{"rt": fmt.Sprintf("RT2-%d", i)})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if swapped {
				wins++
			}
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("CompareAndSwap() errors = %v", errs)
	}
	if wins != 1 {
		t.Errorf("CompareAndSwap() winners = %d, want 1", wins)
	}
}
