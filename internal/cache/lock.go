package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	lockFileName = "shellapp.lock"

	// StaleLockThreshold is the age after which a build lock is assumed to
	// belong to a crashed run.
	StaleLockThreshold = 30 * time.Minute
)

// ErrLocked is returned when another build holds the cache lock.
var ErrLocked = errors.New("cache is locked: another build may be in progress")

// Lock is an exclusive build lock on a cache directory. The lock is the
// existence of the lock file; no handle is held open.
type Lock struct {
	path string
}

// Lock acquires the build lock, creating the cache directory if needed. A
// lock older than StaleLockThreshold is taken over.
func (s *Store) Lock() (*Lock, error) {
	if err := s.Ensure(); err != nil {
		return nil, err
	}
	lockPath := filepath.Join(s.Dir, lockFileName)

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}
		if !isLockStale(lockPath) {
			return nil, ErrLocked
		}
		_ = os.Remove(lockPath)
		file, err = os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
		if err != nil {
			return nil, ErrLocked
		}
	}

	lockData := fmt.Sprintf("pid=%d\ntimestamp=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	_, werr := file.WriteString(lockData)
	cerr := file.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(lockPath)
		return nil, fmt.Errorf("write lock data: %w", err)
	}

	return &Lock{path: lockPath}, nil
}

// Touch refreshes the lock's modification time so a long build is not
// mistaken for a crashed one.
func (l *Lock) Touch() error {
	if l.path == "" {
		return nil
	}
	now := time.Now()
	if err := os.Chtimes(l.path, now, now); err != nil {
		return fmt.Errorf("refresh lock file: %w", err)
	}
	return nil
}

// Release removes the lock. Releasing twice, or after Clean, is harmless.
func (l *Lock) Release() error {
	if l.path != "" {
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove lock file: %w", err)
		}
		l.path = ""
	}
	return nil
}

func isLockStale(lockPath string) bool {
	info, err := os.Stat(lockPath)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) > StaleLockThreshold
}
