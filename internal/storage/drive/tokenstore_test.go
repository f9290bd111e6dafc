package drive

import (
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func TestTokenStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")
	store, err := NewTokenStore(path)
	if err != nil {
		t.Fatalf("NewTokenStore error: %v", err)
	}

	if tok, err := store.Load(); err != nil || tok != nil {
		t.Fatalf("expected empty store, got tok=%v err=%v", tok, err)
	}

	saved := &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(time.Hour).UTC(),
	}
	if err := store.Save(saved); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if loaded == nil || loaded.AccessToken != "access" || loaded.RefreshToken != "refresh" {
		t.Fatalf("unexpected token: %+v", loaded)
	}
}

func TestTokenStoreClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	store, err := NewTokenStore(path)
	if err != nil {
		t.Fatalf("NewTokenStore error: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear on empty store should not fail: %v", err)
	}
	if err := store.Save(&oauth2.Token{AccessToken: "a"}); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear error: %v", err)
	}
	if tok, err := store.Load(); err != nil || tok != nil {
		t.Fatalf("expected cleared store, got tok=%v err=%v", tok, err)
	}
}
