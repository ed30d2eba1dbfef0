//go:build !windows

package singleinstance

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"gamepause/internal/userutil"
)

// Lock holds an exclusive flock on a per-user lock file. The kernel drops
// the lock when the owning process exits.
type Lock struct {
	file *flock.Flock
}

// TryLock takes the lock file at name without blocking.
// Returns ErrAlreadyRunning if another process holds it.
func TryLock(name string) (*Lock, error) {
	if name == "" {
		return nil, errors.New("lock file name is required")
	}
	if err := os.MkdirAll(filepath.Dir(name), 0o700); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	fl := flock.New(name)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %q: %w", name, err)
	}
	if !locked {
		return nil, ErrAlreadyRunning
	}
	return &Lock{file: fl}, nil
}

// Release unlocks the file. Safe to call on nil receiver and idempotent.
// The file itself stays so a concurrent TryLock never races an unlink.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := l.file.Unlock()
	l.file = nil
	return err
}

// DefaultMutexName returns the per-user lock file path.
func DefaultMutexName() string {
	dir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, userutil.ScopedName("gamepause")+".lock")
}
