//go:build windows

package scheduler

import (
	"errors"
	"os"
)

// TickLock provides a non-blocking file lock on Windows by atomically
// creating the lock file. Creation fails while another process owns it.
type TickLock struct {
	path   string
	locked bool
}

// NewTickLock creates a TickLock for the given path.
func NewTickLock(path string) *TickLock {
	return &TickLock{path: path}
}

// TryLock attempts to acquire the lock without blocking. Returns true if the
// lock was acquired, false if another process holds it.
func (l *TickLock) TryLock() (bool, error) {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(l.path)
		return false, err
	}
	l.locked = true
	return true, nil
}

// Unlock releases the lock and removes the lock file.
func (l *TickLock) Unlock() error {
	if !l.locked {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	l.locked = false
	return nil
}
