//go:build !windows

package applock

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// flockTryExclusive attempts the advisory lock on f without blocking.
// It reports false when another holder has the lock.
func flockTryExclusive(f *os.File) (bool, error) {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN) {
		return false, nil
	}
	return false, err
}

// flockRelease drops the advisory lock on f.
func flockRelease(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
