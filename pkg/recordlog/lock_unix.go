//go:build unix

package recordlog

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// FileLock holds an advisory exclusive lock on a record file. The compactor
// takes one to exclude live writers; a held lock makes TryLock fail rather
// than block.
type FileLock struct {
	f *os.File
}

// TryLock acquires a non-blocking advisory exclusive lock on path.
func TryLock(path string) (*FileLock, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("record file locked: %w", err)
	}
	return &FileLock{f: f}, nil
}

// Unlock releases the lock and closes the handle.
func (fl *FileLock) Unlock() error {
	if fl == nil || fl.f == nil {
		return nil
	}
	err := unix.Flock(int(fl.f.Fd()), unix.LOCK_UN)
	cerr := fl.f.Close()
	fl.f = nil
	if err != nil {
		return err
	}
	return cerr
}
