package graph

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// openLock is a cross-process exclusive lock guarding a tier directory.
// Store acquires it in Open, before reconciliation, and holds it until Close.
type openLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

func newOpenLock(dir string) *openLock {
	return &openLock{path: filepath.Join(dir, ".graph.lock")}
}

// Lock blocks until the lock is acquired, creating dir if necessary.
func (l *openLock) Lock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("graph: create lock dir: %w", err)
	}
	l.flock = flock.New(l.path)
	if err := l.flock.Lock(); err != nil {
		return fmt.Errorf("graph: acquire lock %s: %w", l.path, err)
	}
	l.locked = true
	return nil
}

// Unlock releases the lock. Safe to call more than once.
func (l *openLock) Unlock() error {
	if !l.locked || l.flock == nil {
		return nil
	}
	l.locked = false
	return l.flock.Unlock()
}
