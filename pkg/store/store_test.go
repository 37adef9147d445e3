package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestConfigStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()

	c, err := OpenConfig(dir)
	if err != nil {
		t.Fatalf("OpenConfig failed: %v", err)
	}

	if _, err := c.Get("enabled"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := c.Set("enabled", "true"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := c.SetMany(map[string]string{"lockType": "pin", "autoLockTimeMs": "5000"}); err != nil {
		t.Fatalf("SetMany failed: %v", err)
	}

	// A fresh open must see the persisted values.
	c2, err := OpenConfig(dir)
	if err != nil {
		t.Fatalf("OpenConfig (reopen) failed: %v", err)
	}
	for key, want := range map[string]string{"enabled": "true", "lockType": "pin", "autoLockTimeMs": "5000"} {
		got, err := c2.Get(key)
		if err != nil {
			t.Fatalf("Get(%q) failed: %v", key, err)
		}
		if got != want {
			t.Errorf("Get(%q) = %q, want %q", key, got, want)
		}
	}

	if err := c2.Delete("lockType"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := c2.Get("lockType"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	if err := c2.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, err := c2.Get("enabled"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after clear, got %v", err)
	}
}

func TestConfigStoreCorruptedFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("not json"), 0600); err != nil {
		t.Fatal(err)
	}

	c, err := OpenConfig(dir)
	if err != nil {
		t.Fatalf("OpenConfig should tolerate a corrupted file: %v", err)
	}
	if _, err := c.Get("enabled"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected empty store, got %v", err)
	}
}

func TestSecretStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := OpenSecret(dir)
	if err != nil {
		t.Fatalf("OpenSecret failed: %v", err)
	}
	defer s.Close()

	if _, err := s.Get(ctx, "hash"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := s.Set(ctx, "invalidAttempts", "3"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := s.Get(ctx, "invalidAttempts")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "3" {
		t.Errorf("Get = %q, want %q", got, "3")
	}

	// Overwrite
	if err := s.Set(ctx, "invalidAttempts", "4"); err != nil {
		t.Fatalf("Set (overwrite) failed: %v", err)
	}
	got, _ = s.Get(ctx, "invalidAttempts")
	if got != "4" {
		t.Errorf("Get after overwrite = %q, want %q", got, "4")
	}

	if err := s.Delete(ctx, "invalidAttempts"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, "invalidAttempts"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestSecretStoreSetMany(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := OpenSecret(dir)
	if err != nil {
		t.Fatalf("OpenSecret failed: %v", err)
	}
	defer s.Close()

	group := map[string]string{
		"hash":     "aabb",
		"salt":     "ccdd",
		"opsLimit": "3",
		"memLimit": "65536",
	}
	if err := s.SetMany(ctx, group); err != nil {
		t.Fatalf("SetMany failed: %v", err)
	}

	for k, want := range group {
		got, err := s.Get(ctx, k)
		if err != nil {
			t.Fatalf("Get(%q) failed: %v", k, err)
		}
		if got != want {
			t.Errorf("Get(%q) = %q, want %q", k, got, want)
		}
	}

	if err := s.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}
	if _, err := s.Get(ctx, "hash"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after DeleteAll, got %v", err)
	}
}

func TestSecretStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := OpenSecret(dir)
	if err != nil {
		t.Fatalf("OpenSecret failed: %v", err)
	}
	if err := s.Set(ctx, "cooldownExpiresAt", "1700000000000"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	s.Close()

	s2, err := OpenSecret(dir)
	if err != nil {
		t.Fatalf("OpenSecret (reopen) failed: %v", err)
	}
	defer s2.Close()

	got, err := s2.Get(ctx, "cooldownExpiresAt")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "1700000000000" {
		t.Errorf("Get = %q, want persisted value", got)
	}
}
