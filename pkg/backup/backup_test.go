package backup

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/forest6511/applockctl/pkg/store"
)

func seedState(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	cfg, err := store.OpenConfig(dir)
	if err != nil {
		t.Fatalf("OpenConfig: %v", err)
	}
	if err := cfg.SetMany(map[string]string{
		"enabled":        "true",
		"lockType":       "pin",
		"autoLockTimeMs": "300000",
	}); err != nil {
		t.Fatalf("SetMany: %v", err)
	}

	sec, err := store.OpenSecret(dir)
	if err != nil {
		t.Fatalf("OpenSecret: %v", err)
	}
	defer sec.Close()
	if err := sec.SetMany(context.Background(), map[string]string{
		"hash":            "deadbeef",
		"salt":            "cafef00d",
		"opsLimit":        "3",
		"memLimit":        "65536",
		"invalidAttempts": "2",
	}); err != nil {
		t.Fatalf("SetMany: %v", err)
	}
	return dir
}

func TestExportRestoreRoundTrip(t *testing.T) {
	src := seedState(t)
	password := []byte("transfer password")

	var buf bytes.Buffer
	if err := Export(context.Background(), src, password, &buf); err != nil {
		t.Fatalf("Export: %v", err)
	}

	dst := t.TempDir()
	result, err := Restore(context.Background(), dst, password, bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if result.ConfigRestored != 3 || result.SecretsRestored != 5 {
		t.Fatalf("unexpected result: %+v", result)
	}

	cfg, err := store.OpenConfig(dst)
	if err != nil {
		t.Fatalf("OpenConfig: %v", err)
	}
	if v, err := cfg.Get("lockType"); err != nil || v != "pin" {
		t.Errorf("lockType = %q (%v)", v, err)
	}

	sec, err := store.OpenSecret(dst)
	if err != nil {
		t.Fatalf("OpenSecret: %v", err)
	}
	defer sec.Close()
	if v, err := sec.Get(context.Background(), "hash"); err != nil || v != "deadbeef" {
		t.Errorf("hash = %q (%v)", v, err)
	}
	if v, err := sec.Get(context.Background(), "invalidAttempts"); err != nil || v != "2" {
		t.Errorf("invalidAttempts = %q (%v)", v, err)
	}
}

func TestRestoreReplacesExistingState(t *testing.T) {
	src := seedState(t)
	password := []byte("transfer password")

	var buf bytes.Buffer
	if err := Export(context.Background(), src, password, &buf); err != nil {
		t.Fatalf("Export: %v", err)
	}

	dst := t.TempDir()
	cfg, err := store.OpenConfig(dst)
	if err != nil {
		t.Fatalf("OpenConfig: %v", err)
	}
	if err := cfg.Set("stale", "value"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if _, err := Restore(context.Background(), dst, password, bytes.NewReader(buf.Bytes())); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	cfg2, err := store.OpenConfig(dst)
	if err != nil {
		t.Fatalf("OpenConfig: %v", err)
	}
	if _, err := cfg2.Get("stale"); !errors.Is(err, store.ErrNotFound) {
		t.Error("restore should replace, not merge")
	}
}

func TestRestoreWrongPassword(t *testing.T) {
	src := seedState(t)

	var buf bytes.Buffer
	if err := Export(context.Background(), src, []byte("right"), &buf); err != nil {
		t.Fatalf("Export: %v", err)
	}

	_, err := Restore(context.Background(), t.TempDir(), []byte("wrong"), bytes.NewReader(buf.Bytes()))
	if !errors.Is(err, ErrIntegrityFailed) {
		t.Fatalf("got %v, want ErrIntegrityFailed", err)
	}
}

func TestRestoreDetectsTampering(t *testing.T) {
	src := seedState(t)
	password := []byte("transfer password")

	var buf bytes.Buffer
	if err := Export(context.Background(), src, password, &buf); err != nil {
		t.Fatalf("Export: %v", err)
	}

	data := buf.Bytes()
	data[len(data)-hmacLength-1] ^= 0xFF // flip a ciphertext bit

	_, err := Restore(context.Background(), t.TempDir(), password, bytes.NewReader(data))
	if !errors.Is(err, ErrIntegrityFailed) {
		t.Fatalf("got %v, want ErrIntegrityFailed", err)
	}
}

func TestRestoreRejectsBadMagic(t *testing.T) {
	data := append([]byte("NOT_ABKP"), make([]byte, 64)...)
	_, err := Restore(context.Background(), t.TempDir(), []byte("pw"), bytes.NewReader(data))
	if !errors.Is(err, ErrInvalidMagic) {
		t.Fatalf("got %v, want ErrInvalidMagic", err)
	}
}

func TestRestoreTruncated(t *testing.T) {
	_, err := Restore(context.Background(), t.TempDir(), []byte("pw"), bytes.NewReader([]byte{1, 2, 3}))
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("got %v, want ErrTruncated", err)
	}
}

func TestVerify(t *testing.T) {
	src := seedState(t)
	password := []byte("transfer password")

	var buf bytes.Buffer
	if err := Export(context.Background(), src, password, &buf); err != nil {
		t.Fatalf("Export: %v", err)
	}

	header, err := Verify(bytes.NewReader(buf.Bytes()), password)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if header.Version != FormatVersion || header.EntryCount != 8 {
		t.Fatalf("unexpected header: %+v", header)
	}
}

func TestExportEmptyPassword(t *testing.T) {
	src := seedState(t)
	var buf bytes.Buffer
	if err := Export(context.Background(), src, nil, &buf); !errors.Is(err, ErrEmptyPassword) {
		t.Fatalf("got %v, want ErrEmptyPassword", err)
	}
}
