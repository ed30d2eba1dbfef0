//go:build !windows

package singleinstance

import (
	"path/filepath"
	"testing"
)

func testLockName(t *testing.T, suffix string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "gamepause-test-"+suffix+".lock")
}

func TestDefaultMutexName(t *testing.T) {
	t.Setenv("USERNAME", "unit user")
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	if got := DefaultMutexName(); got != "/run/user/1000/gamepause-unit_user.lock" {
		t.Fatalf("DefaultMutexName = %q", got)
	}
}

func TestTryLockCreatesDirectory(t *testing.T) {
	name := filepath.Join(t.TempDir(), "nested", "dir", "gamepause.lock")
	lock, err := TryLock(name)
	if err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
}
