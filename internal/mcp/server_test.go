package mcp

import (
	"context"
	"testing"

	"github.com/forest6511/applockctl/pkg/applock"
)

func newTestServer(t *testing.T) (*Server, *applock.Manager) {
	t.Helper()
	dir := t.TempDir()
	m, err := applock.New(dir)
	if err != nil {
		t.Fatalf("applock.New: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	if err := m.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	s, err := NewServer(&ServerOptions{Manager: m})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, m
}

func TestStatusDisabled(t *testing.T) {
	s, _ := newTestServer(t)

	_, out, err := s.handleStatus(context.Background(), nil, StatusInput{})
	if err != nil {
		t.Fatalf("handleStatus: %v", err)
	}
	if out.Enabled || out.IsLocked || out.LockType != "none" {
		t.Fatalf("unexpected status: %+v", out)
	}
}

func TestStatusReflectsLockState(t *testing.T) {
	s, m := newTestServer(t)
	if err := m.SetupPIN(context.Background(), []byte("283751")); err != nil {
		t.Fatalf("SetupPIN: %v", err)
	}
	m.Lock()
	m.AttemptUnlock(context.Background(), []byte("000000"))

	_, out, err := s.handleStatus(context.Background(), nil, StatusInput{})
	if err != nil {
		t.Fatalf("handleStatus: %v", err)
	}
	if !out.Enabled || !out.IsLocked || out.LockType != "pin" {
		t.Fatalf("unexpected status: %+v", out)
	}
	if out.InvalidAttemptCount != 1 {
		t.Errorf("attempt count = %d, want 1", out.InvalidAttemptCount)
	}
	if out.LockScreenMode != "lock" {
		t.Errorf("mode = %q, want lock", out.LockScreenMode)
	}
}

func TestLockTool(t *testing.T) {
	s, m := newTestServer(t)
	if err := m.SetupPIN(context.Background(), []byte("283751")); err != nil {
		t.Fatalf("SetupPIN: %v", err)
	}

	_, out, err := s.handleLock(context.Background(), nil, LockInput{})
	if err != nil {
		t.Fatalf("handleLock: %v", err)
	}
	if !out.IsLocked || out.LockScreenMode != "lock" {
		t.Fatalf("unexpected output: %+v", out)
	}
}

func TestLockToolReauthenticate(t *testing.T) {
	s, m := newTestServer(t)
	if err := m.SetupPIN(context.Background(), []byte("283751")); err != nil {
		t.Fatalf("SetupPIN: %v", err)
	}

	_, out, err := s.handleLock(context.Background(), nil, LockInput{Mode: "reauthenticate"})
	if err != nil {
		t.Fatalf("handleLock: %v", err)
	}
	if !out.IsLocked || out.LockScreenMode != "reauthenticate" {
		t.Fatalf("unexpected output: %+v", out)
	}
}

func TestLockToolRejectsUnknownMode(t *testing.T) {
	s, _ := newTestServer(t)
	if _, _, err := s.handleLock(context.Background(), nil, LockInput{Mode: "unlock"}); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestLockToolDisabledStaysUnlocked(t *testing.T) {
	s, _ := newTestServer(t)

	_, out, err := s.handleLock(context.Background(), nil, LockInput{})
	if err != nil {
		t.Fatalf("handleLock: %v", err)
	}
	if out.IsLocked || out.Enabled {
		t.Fatalf("disabled surface locked via tool: %+v", out)
	}
}
