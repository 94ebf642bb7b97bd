package disk

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLockFileRejectsSecondHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")

	f1, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f1.Close()

	lock1, err := lockFile(f1)
	if err != nil {
		t.Fatalf("first lock should succeed: %v", err)
	}
	defer lock1.unlock()

	f2, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f2.Close()

	if _, err := lockFile(f2); err == nil {
		t.Fatalf("second lock on the same file should fail while the first is held")
	}
}

func TestLockFileReleasedOnUnlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")

	f1, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f1.Close()

	lock1, err := lockFile(f1)
	if err != nil {
		t.Fatalf("first lock should succeed: %v", err)
	}
	lock1.unlock()

	f2, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f2.Close()

	lock2, err := lockFile(f2)
	if err != nil {
		t.Fatalf("lock should succeed after release: %v", err)
	}
	lock2.unlock()
}
