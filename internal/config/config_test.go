package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func writeConfig(t *testing.T, dir, content string, perm os.FileMode) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), perm); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestLoadValid(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `version: 1
auto_lock_time_ms: 60000
audit:
  enabled: false
sync:
  enabled: true
`, 0600)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AutoLockTimeMs != 60000 {
		t.Errorf("AutoLockTimeMs = %d, want 60000", cfg.AutoLockTimeMs)
	}
	if cfg.Audit.Enabled {
		t.Error("audit should be disabled")
	}
	if !cfg.Sync.Enabled {
		t.Error("sync should be enabled")
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(t.TempDir()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestLoadOrDefaultMissing(t *testing.T) {
	cfg, err := LoadOrDefault(t.TempDir())
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	want := Default()
	if *cfg != *want {
		t.Errorf("got %+v, want defaults %+v", cfg, want)
	}
}

func TestLoadInsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are advisory on windows")
	}
	dir := t.TempDir()
	writeConfig(t, dir, "version: 1\n", 0644)

	if _, err := Load(dir); !errors.Is(err, ErrInsecure) {
		t.Fatalf("got %v, want ErrInsecure", err)
	}
	// A present but insecure file must not fall back to defaults.
	if _, err := LoadOrDefault(dir); !errors.Is(err, ErrInsecure) {
		t.Fatalf("LoadOrDefault: got %v, want ErrInsecure", err)
	}
}

func TestLoadRejectsSymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation needs privileges on windows")
	}
	dir := t.TempDir()
	target := filepath.Join(dir, "real.yaml")
	if err := os.WriteFile(target, []byte("version: 1\n"), 0600); err != nil {
		t.Fatalf("write target: %v", err)
	}
	if err := os.Symlink(target, filepath.Join(dir, FileName)); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	if _, err := Load(dir); !errors.Is(err, ErrSymlink) {
		t.Fatalf("got %v, want ErrSymlink", err)
	}
}

func TestLoadUnsupportedVersion(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "version: 2\n", 0600)

	if _, err := Load(dir); err == nil {
		t.Fatal("expected version error")
	}
}

func TestLoadClampsNegativeAutoLock(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "version: 1\nauto_lock_time_ms: -100\n", 0600)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AutoLockTimeMs != 0 {
		t.Errorf("AutoLockTimeMs = %d, want 0", cfg.AutoLockTimeMs)
	}
}

func TestDefaultDirEnvOverride(t *testing.T) {
	t.Setenv(EnvStateDir, "/tmp/applock-test")
	dir, err := DefaultDir()
	if err != nil {
		t.Fatalf("DefaultDir: %v", err)
	}
	if dir != "/tmp/applock-test" {
		t.Errorf("dir = %q", dir)
	}
}
