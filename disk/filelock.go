package disk

import (
	"fmt"
	"os"
	"runtime"
	"syscall"
)

// fileLock is an advisory, exclusive, cross-process lock taken on the
// backing file for the lifetime of this process. It exists to stop a
// second instance of this program from opening the same database file and
// corrupting the log with interleaved writes neither process's in-process
// locking can see. This is a single exclusive lock taken once at open and
// released at close, not a full cross-process RWMutex: there is only ever
// one writer process for a given log file.
type fileLock struct {
	fd int
}

// lockFile takes an exclusive advisory lock on f. It returns an error if
// another process already holds the lock.
func lockFile(f *os.File) (*fileLock, error) {
	if !(runtime.GOOS == "linux" || runtime.GOOS == "darwin") {
		return nil, fmt.Errorf("file lock does not support %s", runtime.GOOS)
	}

	fd := int(f.Fd())
	if err := syscall.Flock(fd, syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		return nil, fmt.Errorf("another process holds the database file lock: %w", err)
	}

	return &fileLock{fd: fd}, nil
}

// unlock releases the lock. Errors are not actionable at shutdown, so they
// are swallowed here; the file descriptor is closed immediately after by
// the caller regardless, which also releases the lock.
func (l *fileLock) unlock() {
	_ = syscall.Flock(l.fd, syscall.LOCK_UN)
}
