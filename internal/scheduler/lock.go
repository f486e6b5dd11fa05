//go:build !windows

package scheduler

import (
	"os"
	"syscall"
)

// TickLock is a non-blocking flock(2) guard so two daemon processes sharing
// a home directory cannot both trigger the agent.
type TickLock struct {
	path string
	file *os.File
}

// NewTickLock creates a TickLock for the given path.
func NewTickLock(path string) *TickLock {
	return &TickLock{path: path}
}

// TryLock attempts to acquire the lock without blocking. Returns true if the
// lock was acquired, false if another process holds it.
func (l *TickLock) TryLock() (bool, error) {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return false, err
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		if err == syscall.EWOULDBLOCK {
			return false, nil
		}
		return false, err
	}
	l.file = f
	return true, nil
}

// Unlock releases the lock and removes the lock file.
func (l *TickLock) Unlock() error {
	if l.file == nil {
		return nil
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		l.file.Close()
		return err
	}
	name := l.file.Name()
	l.file.Close()
	l.file = nil
	os.Remove(name)
	return nil
}
