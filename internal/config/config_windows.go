//go:build windows

package config

import (
	"os"
)

// openConfigFile opens the settings file on Windows. There is no
// O_NOFOLLOW; creating symlinks requires elevated privileges there, so
// the permission check remains the primary control.
func openConfigFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

// checkFileOwnership on Windows is a no-op. Ownership lives in ACLs,
// which need a different mechanism entirely.
func checkFileOwnership(_ os.FileInfo) error {
	return nil
}
