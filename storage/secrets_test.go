package storage_test

import (
	"context"
	"testing"

	"github.com/giantswarm/tokengate/pkce"
	"github.com/giantswarm/tokengate/storage"
	"github.com/giantswarm/tokengate/storage/memory"
)

func TestSecretStore_GetOrCreate(t *testing.T) {
	backend := memory.New()
	store := storage.NewSecretStore(backend, testClientID, nil)
	ctx := context.Background()

	if _, ok, err := store.Get(ctx); err != nil || ok {
		t.Fatalf("Get() on empty store = ok %v, err %v; want no secrets", ok, err)
	}

	first, err := store.GetOrCreate(ctx)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if !pkce.IsWellFormed(first.CodeVerifier) || !pkce.IsWellFormed(first.State) {
		t.Errorf("GetOrCreate() = %+v, want 43-char base64url values", first)
	}
	if first.CodeVerifier == first.State {
		t.Error("verifier and state should be generated independently")
	}

	// A retry before completion reuses the same pair.
	second, err := store.GetOrCreate(ctx)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if second != first {
		t.Errorf("GetOrCreate() = %+v on retry, want %+v", second, first)
	}
}

func TestSecretStore_RegeneratesPartialSecrets(t *testing.T) {
	backend := memory.New()
	store := storage.NewSecretStore(backend, testClientID, nil)
	ctx := context.Background()

	if err := backend.Set(ctx, map[string]string{storage.Key(testClientID, storage.FieldState): "S1"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := store.GetOrCreate(ctx)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if got.State == "S1" {
		t.Error("a state without a verifier should be replaced")
	}
	if got.CodeVerifier == "" {
		t.Error("verifier should be generated")
	}
}

func TestSecretStore_RegeneratesMalformedSecrets(t *testing.T) {
	backend := memory.New()
	store := storage.NewSecretStore(backend, testClientID, nil)
	ctx := context.Background()

	if err := backend.Set(ctx, map[string]string{
		storage.Key(testClientID, storage.FieldCodeVerifier): "short",
		storage.Key(testClientID, storage.FieldState):        "S1",
	}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if _, ok, err := store.Get(ctx); err != nil || ok {
		t.Fatalf("Get() of malformed secrets = ok %v, err %v; want no secrets", ok, err)
	}
	got, err := store.GetOrCreate(ctx)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if !pkce.IsWellFormed(got.CodeVerifier) || !pkce.IsWellFormed(got.State) {
		t.Errorf("GetOrCreate() = %+v, want fresh well-formed secrets", got)
	}
}

func TestSecretStore_Clear(t *testing.T) {
	backend := memory.New()
	store := storage.NewSecretStore(backend, testClientID, nil)
	ctx := context.Background()

	first, err := store.GetOrCreate(ctx)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if err := store.AppendNotice(ctx, storage.Notice{Level: storage.NoticeWarning, Message: "kept"}); err != nil {
		t.Fatalf("AppendNotice() error = %v", err)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if _, ok, _ := store.Get(ctx); ok {
		t.Error("secrets should be gone after Clear()")
	}

	next, err := store.GetOrCreate(ctx)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if next == first {
		t.Error("a new flow should get fresh secrets")
	}

	notices, err := store.DrainNotices(ctx)
	if err != nil {
		t.Fatalf("DrainNotices() error = %v", err)
	}
	if len(notices) != 1 {
		t.Errorf("Clear() should keep queued notices, got %d", len(notices))
	}
}

func TestSecretStore_Notices(t *testing.T) {
	backend := memory.New()
	store := storage.NewSecretStore(backend, testClientID, nil)
	ctx := context.Background()

	want := []storage.Notice{
		{Level: storage.NoticeWarning, Message: "Wrong State parameter. Please try again."},
		{Level: storage.NoticeError, Message: "Internal Server Error"},
	}
	for _, n := range want {
		if err := store.AppendNotice(ctx, n); err != nil {
			t.Fatalf("AppendNotice() error = %v", err)
		}
	}

	raw, _ := backend.Get(ctx, storage.Key(testClientID, storage.FieldWaitingNotices))
	if raw[storage.Key(testClientID, "waitingToasts")] == "" {
		t.Error("notices should be persisted under the waitingToasts key")
	}

	got, err := store.DrainNotices(ctx)
	if err != nil {
		t.Fatalf("DrainNotices() error = %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("DrainNotices() returned %d notices, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("notice[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}

	again, err := store.DrainNotices(ctx)
	if err != nil {
		t.Fatalf("DrainNotices() error = %v", err)
	}
	if len(again) != 0 {
		t.Errorf("second DrainNotices() = %v, want empty", again)
	}
}

func TestSecretStore_CorruptNoticeQueue(t *testing.T) {
	backend := memory.New()
	store := storage.NewSecretStore(backend, testClientID, nil)
	ctx := context.Background()

	if err := backend.Set(ctx, map[string]string{storage.Key(testClientID, storage.FieldWaitingNotices): "{not json"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if err := store.AppendNotice(ctx, storage.Notice{Level: storage.NoticeInfo, Message: "fresh"}); err != nil {
		t.Fatalf("AppendNotice() error = %v", err)
	}
	got, err := store.DrainNotices(ctx)
	if err != nil {
		t.Fatalf("DrainNotices() error = %v", err)
	}
	if len(got) != 1 || got[0].Message != "fresh" {
		t.Errorf("DrainNotices() = %v, want only the fresh notice", got)
	}
}
