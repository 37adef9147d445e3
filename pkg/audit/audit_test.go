// Package audit provides audit logging with HMAC chain for tamper detection.
package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewLogger(t *testing.T) {
	tmpDir := t.TempDir()
	logger := NewLogger(tmpDir)

	if logger == nil {
		t.Fatal("NewLogger returned nil")
	}
	if logger.prevHash != "genesis" {
		t.Errorf("expected prevHash 'genesis', got %s", logger.prevHash)
	}
	if logger.sessionID == "" {
		t.Error("expected non-empty sessionID")
	}
	if !logger.ready {
		t.Error("expected chain key to be initialized")
	}

	// Install key should have been created
	if _, err := os.Stat(filepath.Join(tmpDir, "audit.key")); err != nil {
		t.Errorf("install key not created: %v", err)
	}
}

func TestLogAndChain(t *testing.T) {
	tmpDir := t.TempDir()
	logger := NewLogger(tmpDir)

	if err := logger.LogSuccess(OpSetup, SourceCLI); err != nil {
		t.Fatalf("LogSuccess failed: %v", err)
	}
	if err := logger.LogError(OpUnlockFailed, SourceCLI, "AUTH_FAILED", "wrong pin"); err != nil {
		t.Fatalf("LogError failed: %v", err)
	}
	if err := logger.LogDenied(OpCooldown, SourceCLI, "cooldown active"); err != nil {
		t.Fatalf("LogDenied failed: %v", err)
	}

	events, err := logger.ListEvents(0, time.Time{})
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}

	if events[0].Operation != OpSetup || events[0].Result != ResultSuccess {
		t.Errorf("unexpected first event: %+v", events[0])
	}
	if events[1].Error == nil || events[1].Error.Code != "AUTH_FAILED" {
		t.Errorf("expected error info on failed unlock event: %+v", events[1])
	}
	if events[2].Result != ResultDenied {
		t.Errorf("expected denied result, got %q", events[2].Result)
	}

	// Chain links
	if events[0].Chain.PrevHash != "genesis" {
		t.Errorf("first record should chain from genesis, got %s", events[0].Chain.PrevHash)
	}
	if events[1].Chain.PrevHash != events[0].Chain.HMAC {
		t.Error("second record not chained to first")
	}
	if events[1].Chain.Sequence != events[0].Chain.Sequence+1 {
		t.Error("sequence numbers not consecutive")
	}
}

func TestVerify(t *testing.T) {
	tmpDir := t.TempDir()
	logger := NewLogger(tmpDir)

	for i := 0; i < 5; i++ {
		if err := logger.LogSuccess(OpLock, SourceUI); err != nil {
			t.Fatalf("log %d failed: %v", i, err)
		}
	}

	result, err := logger.Verify()
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !result.Valid {
		t.Errorf("expected valid chain, got errors: %v", result.Errors)
	}
	if result.RecordsTotal != 5 {
		t.Errorf("expected 5 records, got %d", result.RecordsTotal)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	tmpDir := t.TempDir()
	logger := NewLogger(tmpDir)

	if err := logger.LogError(OpUnlockFailed, SourceCLI, "AUTH_FAILED", "wrong pin"); err != nil {
		t.Fatalf("LogError failed: %v", err)
	}
	if err := logger.LogSuccess(OpUnlock, SourceCLI); err != nil {
		t.Fatalf("LogSuccess failed: %v", err)
	}

	// Flip the failed attempt into a success in the raw log file.
	files, err := filepath.Glob(filepath.Join(tmpDir, "*.jsonl"))
	if err != nil || len(files) != 1 {
		t.Fatalf("expected one log file, got %v (%v)", files, err)
	}
	raw, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatal(err)
	}
	tampered := strings.Replace(string(raw), ResultError, ResultSuccess, 1)
	if tampered == string(raw) {
		t.Fatal("test setup: nothing replaced")
	}
	if err := os.WriteFile(files[0], []byte(tampered), 0600); err != nil {
		t.Fatal(err)
	}

	result, err := logger.Verify()
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if result.Valid {
		t.Error("expected tampering to be detected")
	}
}

func TestChainSurvivesRestart(t *testing.T) {
	tmpDir := t.TempDir()

	logger := NewLogger(tmpDir)
	if err := logger.LogSuccess(OpSetup, SourceCLI); err != nil {
		t.Fatalf("LogSuccess failed: %v", err)
	}

	// New logger over the same directory continues the chain.
	logger2 := NewLogger(tmpDir)
	if err := logger2.LogSuccess(OpLock, SourceCLI); err != nil {
		t.Fatalf("LogSuccess (restart) failed: %v", err)
	}

	result, err := logger2.Verify()
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !result.Valid {
		t.Errorf("expected chain to continue across restart, got: %v", result.Errors)
	}
	if result.RecordsTotal != 2 {
		t.Errorf("expected 2 records, got %d", result.RecordsTotal)
	}
}

func TestListEventsLimitAndSince(t *testing.T) {
	tmpDir := t.TempDir()
	logger := NewLogger(tmpDir)

	for i := 0; i < 10; i++ {
		if err := logger.LogSuccess(OpLock, SourceUI); err != nil {
			t.Fatalf("log %d failed: %v", i, err)
		}
	}

	limited, err := logger.ListEvents(3, time.Time{})
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(limited) != 3 {
		t.Errorf("expected 3 events with limit, got %d", len(limited))
	}

	future, err := logger.ListEvents(0, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(future) != 0 {
		t.Errorf("expected no events after future cutoff, got %d", len(future))
	}
}

func TestEventSerialization(t *testing.T) {
	tmpDir := t.TempDir()
	logger := NewLogger(tmpDir)

	if err := logger.Log(OpIntegrityError, SourceCLI, ResultError,
		&ErrorInfo{Code: "MISSING_SALT", Message: "stored salt not found"},
		map[string]interface{}{"lockType": "pin"}); err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	events, err := logger.ListEvents(0, time.Time{})
	if err != nil || len(events) != 1 {
		t.Fatalf("ListEvents = %v, %v", events, err)
	}

	raw, err := json.Marshal(events[0])
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	for _, want := range []string{`"op":"applock.integrity_error"`, `"code":"MISSING_SALT"`, `"lockType":"pin"`} {
		if !strings.Contains(string(raw), want) {
			t.Errorf("serialized event missing %s: %s", want, raw)
		}
	}
}
