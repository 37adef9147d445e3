package autolock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/forest6511/applockctl/pkg/applock"
)

type fakeLocker struct {
	mu    sync.Mutex
	state applock.State
	locks int
}

func (f *fakeLocker) Snapshot() applock.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeLocker) Lock() {
	f.mu.Lock()
	f.state.IsLocked = true
	f.locks++
	f.mu.Unlock()
}

func (f *fakeLocker) lockCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.locks
}

func enabledLocker(autoLockMs int64) *fakeLocker {
	return &fakeLocker{state: applock.State{
		Enabled:        true,
		LockType:       applock.LockTypePIN,
		AutoLockTimeMs: autoLockMs,
	}}
}

func waitForLock(t *testing.T, f *fakeLocker, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if f.Snapshot().IsLocked {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("target was not locked before deadline")
}

func TestLocksAfterIdleDelay(t *testing.T) {
	target := enabledLocker(50)
	s := New(target, WithInterval(10*time.Millisecond))
	s.Start(context.Background())
	defer s.Stop()

	waitForLock(t, target, time.Second)
}

func TestTouchDefersLock(t *testing.T) {
	target := enabledLocker(200)
	s := New(target, WithInterval(10*time.Millisecond))
	s.Start(context.Background())
	defer s.Stop()

	// Keep touching for longer than the delay; the lock must not fire.
	for i := 0; i < 10; i++ {
		s.Touch()
		time.Sleep(30 * time.Millisecond)
		if target.Snapshot().IsLocked {
			t.Fatal("locked despite continuous activity")
		}
	}
}

func TestDisabledNeverLocks(t *testing.T) {
	target := &fakeLocker{state: applock.State{AutoLockTimeMs: 10}}
	s := New(target, WithInterval(5*time.Millisecond))
	s.Start(context.Background())
	defer s.Stop()

	time.Sleep(100 * time.Millisecond)
	if target.lockCount() != 0 {
		t.Fatal("disabled surface must never auto-lock")
	}
}

func TestZeroDelayLocksOnBackgroundOnly(t *testing.T) {
	target := enabledLocker(0)
	s := New(target, WithInterval(5*time.Millisecond))
	s.Start(context.Background())
	defer s.Stop()

	time.Sleep(100 * time.Millisecond)
	if target.lockCount() != 0 {
		t.Fatal("zero delay must not lock on idle")
	}

	s.Background()
	if !target.Snapshot().IsLocked {
		t.Fatal("zero delay should lock immediately on background")
	}
}

func TestBackgroundWithDelayDoesNotLock(t *testing.T) {
	target := enabledLocker(60000)
	s := New(target)
	s.Start(context.Background())
	defer s.Stop()

	s.Background()
	if target.Snapshot().IsLocked {
		t.Fatal("background with a delay configured should defer to the idle timer")
	}
}

func TestStopHaltsWatcher(t *testing.T) {
	target := enabledLocker(20)
	s := New(target, WithInterval(5*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	s.Stop()

	// After Stop, idle expiry must not lock.
	time.Sleep(100 * time.Millisecond)
	if target.lockCount() != 0 {
		t.Fatal("watcher ran after Stop")
	}
}
