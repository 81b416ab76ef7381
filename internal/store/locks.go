package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Lock file names inside the store directory. The working-copy lock is
// always acquired before the store lock; release happens in reverse
// order on every exit path.
const (
	wlockFileName = "wlock"
	lockFileName  = "lock"
)

// lockTimeout bounds how long lock acquisition blocks before giving
// up, mirroring the SQLite busy_timeout.
const lockTimeout = 5 * time.Second

const lockRetryInterval = 50 * time.Millisecond

// ErrLockHeld is returned when a lock could not be acquired within the
// timeout because another process holds it.
var ErrLockHeld = errors.New("lock is held by another process")

// Lock is a held file lock. Release removes the lock file; releasing
// twice is a no-op.
type Lock struct {
	path  string
	token string
}

// Token returns the owner token written into the lock file.
func (l *Lock) Token() string { return l.token }

// Release drops the lock. Safe to call multiple times.
func (l *Lock) Release() error {
	if l.path == "" {
		return nil
	}
	path := l.path
	l.path = ""
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release lock %s: %w", filepath.Base(path), err)
	}
	return nil
}

// WLock acquires the working-copy lock.
func (s *Store) WLock() (*Lock, error) {
	return acquireLock(filepath.Join(s.dir, wlockFileName))
}

// Lock acquires the store lock. Callers holding both locks must take
// WLock first.
func (s *Store) Lock() (*Lock, error) {
	return acquireLock(filepath.Join(s.dir, lockFileName))
}

// acquireLock creates the lock file exclusively, retrying until
// lockTimeout. The file records an owner token and pid for diagnostics.
func acquireLock(path string) (*Lock, error) {
	token := uuid.Must(uuid.NewV7()).String()
	contents := fmt.Sprintf("%s\npid:%d\n", token, os.Getpid())

	deadline := time.Now().Add(lockTimeout)
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			if _, werr := f.WriteString(contents); werr != nil {
				f.Close()
				os.Remove(path)
				return nil, fmt.Errorf("write lock %s: %w", filepath.Base(path), werr)
			}
			if cerr := f.Close(); cerr != nil {
				os.Remove(path)
				return nil, fmt.Errorf("write lock %s: %w", filepath.Base(path), cerr)
			}
			return &Lock{path: path, token: token}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("acquire lock %s: %w", filepath.Base(path), err)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("acquire lock %s: %w", filepath.Base(path), ErrLockHeld)
		}
		time.Sleep(lockRetryInterval)
	}
}
