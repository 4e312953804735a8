package storage_test

import (
	"context"
	"testing"

	"github.com/giantswarm/tokengate/security"
	"github.com/giantswarm/tokengate/storage"
	"github.com/giantswarm/tokengate/storage/memory"
	"github.com/giantswarm/tokengate/storage/storagetest"
)

func newEncryptor(t *testing.T) *security.Encryptor {
	t.Helper()
	key, err := security.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	enc, err := security.NewEncryptor(key)
	if err != nil {
		t.Fatalf("NewEncryptor() error = %v", err)
	}
	return enc
}

func TestEncrypted_Backend(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Backend {
		return storage.NewEncrypted(memory.New(), newEncryptor(t))
	})
}

func TestEncrypted_ValuesAtRest(t *testing.T) {
	inner := memory.New()
	backend := storage.NewEncrypted(inner, newEncryptor(t))
	ctx := context.Background()

	if err := backend.Set(ctx, map[string]string{"c-refresh_token": "RT1"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	raw, err := inner.Get(ctx, "c-refresh_token")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if raw["c-refresh_token"] == "" || raw["c-refresh_token"] == "RT1" {
		t.Errorf("inner value = %q, want ciphertext", raw["c-refresh_token"])
	}

	got, err := backend.Get(ctx, "c-refresh_token")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got["c-refresh_token"] != "RT1" {
		t.Errorf("Get() = %q, want %q", got["c-refresh_token"], "RT1")
	}
}

func TestEncrypted_MovedCiphertextFails(t *testing.T) {
	inner := memory.New()
	backend := storage.NewEncrypted(inner, newEncryptor(t))
	ctx := context.Background()

	if err := backend.Set(ctx, map[string]string{"c-access_token": "AT1"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	raw, _ := inner.Get(ctx, "c-access_token")
	if err := inner.Set(ctx, map[string]string{"c-refresh_token": raw["c-access_token"]}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if _, err := backend.Get(ctx, "c-refresh_token"); err == nil {
		t.Error("Get() of a ciphertext copied from another key should fail")
	}
}

func TestEncrypted_TokenStoreRotation(t *testing.T) {
	backend := storage.NewEncrypted(memory.New(), newEncryptor(t))
	store := storage.NewTokenStore(backend, testClientID)
	ctx := context.Background()

	pair := validPair(testNow.AddDate(100, 0, 0))
	if err := store.Save(ctx, pair); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	next := pair
	next.AccessToken, next.RefreshToken = "AT2", "RT2"
	swapped, err := store.Rotate(ctx, "RT1", next)
	if err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	if !swapped {
		t.Error("Rotate() through the encrypted backend should compare plaintext")
	}
}

func TestEncrypted_Disabled(t *testing.T) {
	inner := memory.New()
	backend := storage.NewEncrypted(inner, nil)
	ctx := context.Background()

	if err := backend.Set(ctx, map[string]string{"a": "plain"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	raw, _ := inner.Get(ctx, "a")
	if raw["a"] != "plain" {
		t.Errorf("inner value = %q, want passthrough", raw["a"])
	}
}
