package store

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLock_AcquireRelease(t *testing.T) {
	s := testStore(t)

	lock, err := s.Lock()
	if err != nil {
		t.Fatalf("Lock() failed: %v", err)
	}
	if lock.Token() == "" {
		t.Error("lock has no token")
	}
	if _, err := os.Stat(filepath.Join(s.Dir(), lockFileName)); err != nil {
		t.Errorf("lock file missing: %v", err)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release() failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Dir(), lockFileName)); !os.IsNotExist(err) {
		t.Error("lock file still exists after release")
	}
}

func TestLock_ReleaseTwiceIsNoop(t *testing.T) {
	s := testStore(t)

	lock, err := s.Lock()
	if err != nil {
		t.Fatalf("Lock() failed: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("first Release() failed: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("second Release() should be a no-op, got %v", err)
	}
}

func TestLock_ReacquireAfterRelease(t *testing.T) {
	s := testStore(t)

	first, err := s.Lock()
	if err != nil {
		t.Fatalf("Lock() failed: %v", err)
	}
	token := first.Token()
	if err := first.Release(); err != nil {
		t.Fatalf("Release() failed: %v", err)
	}

	second, err := s.Lock()
	if err != nil {
		t.Fatalf("reacquire failed: %v", err)
	}
	defer second.Release()
	if second.Token() == token {
		t.Error("fresh lock reused the previous token")
	}
}

func TestWLock_IndependentOfStoreLock(t *testing.T) {
	s := testStore(t)

	wlock, err := s.WLock()
	if err != nil {
		t.Fatalf("WLock() failed: %v", err)
	}
	defer wlock.Release()

	// The store lock is a separate file; holding the wlock does not
	// block it.
	lock, err := s.Lock()
	if err != nil {
		t.Fatalf("Lock() while holding wlock failed: %v", err)
	}
	defer lock.Release()
}
