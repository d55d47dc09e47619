package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// openLock provides cross-process mutual exclusion over a tier directory
// during reconciliation, so two processes never interleave a snapshot
// read with a writer's rename. The lock file lives at <dir>/.reconcile.lock.
type openLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

func newOpenLock(dir string) *openLock {
	lockPath := filepath.Join(dir, ".reconcile.lock")
	return &openLock{path: lockPath, flock: flock.New(lockPath)}
}

// Lock acquires an exclusive lock, blocking until available.
func (l *openLock) Lock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	if err := l.flock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire reconciliation lock: %w", err)
	}
	l.locked = true
	return nil
}

// Unlock releases the lock. Safe to call multiple times.
func (l *openLock) Unlock() error {
	if !l.locked {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release reconciliation lock: %w", err)
	}
	l.locked = false
	return nil
}
