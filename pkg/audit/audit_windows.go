//go:build windows

package audit

// checkDiskSpace is a no-op on Windows; audit writes proceed without
// disk space verification there.
func (l *Logger) checkDiskSpace() error {
	return nil
}
