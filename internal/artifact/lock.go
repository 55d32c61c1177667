package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

const lockFileName = ".artifacts.lock"

// DirLock provides cross-process mutual exclusion over an artifact
// directory using flock(2). Writers take it exclusively while publishing a
// set of files; readers take it shared so they never observe a set that is
// half old and half new.
type DirLock struct {
	path string
	file *os.File
}

// NewDirLock creates a DirLock for dir. The lock file is created inside dir.
func NewDirLock(dir string) *DirLock {
	return &DirLock{path: filepath.Join(dir, lockFileName)}
}

// Lock acquires an exclusive lock, blocking until available.
func (l *DirLock) Lock() error {
	return l.acquire(syscall.LOCK_EX)
}

// RLock acquires a shared lock, blocking while a writer holds the directory.
func (l *DirLock) RLock() error {
	return l.acquire(syscall.LOCK_SH)
}

func (l *DirLock) acquire(how int) error {
	if l.file != nil {
		return fmt.Errorf("lock %s already held", l.path)
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), how); err != nil {
		_ = f.Close()
		return fmt.Errorf("flock: %w", err)
	}
	l.file = f
	return nil
}

// TryLock attempts to acquire the exclusive lock without blocking.
// It returns false when another holder has the directory.
func (l *DirLock) TryLock() (bool, error) {
	if l.file != nil {
		return false, fmt.Errorf("lock %s already held", l.path)
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return false, fmt.Errorf("create artifact directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return false, fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		if err == syscall.EWOULDBLOCK {
			return false, nil
		}
		return false, fmt.Errorf("flock: %w", err)
	}
	l.file = f
	return true, nil
}

// Unlock releases the lock. It is a no-op when the lock is not held.
func (l *DirLock) Unlock() error {
	if l.file == nil {
		return nil
	}
	err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	if err != nil {
		return fmt.Errorf("funlock: %w", err)
	}
	return closeErr
}
