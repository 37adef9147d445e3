//go:build windows

package applock

import (
	"errors"
	"os"

	"golang.org/x/sys/windows"
)

// flockTryExclusive attempts an exclusive lock on the first byte of f
// without blocking. It reports false when another holder has the lock.
func flockTryExclusive(f *os.File) (bool, error) {
	var ol windows.Overlapped
	err := windows.LockFileEx(windows.Handle(f.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
		0, 1, 0, &ol)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, windows.ERROR_LOCK_VIOLATION) {
		return false, nil
	}
	return false, err
}

// flockRelease drops the exclusive lock on f.
func flockRelease(f *os.File) error {
	var ol windows.Overlapped
	return windows.UnlockFileEx(windows.Handle(f.Fd()), 0, 1, 0, &ol)
}
