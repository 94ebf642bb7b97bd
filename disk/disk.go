// Package disk provides positional, concurrency-safe read/write access to
// the single regular file backing the log, plus the fixed-size worker pool
// that blocking page I/O is submitted to so callers never block on the
// accept loop's goroutine.
package disk

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/kl4mm/hash-db/page"
)

// backend is the positional I/O surface Disk needs. It is implemented by a
// real file (fileBackend) and, for tests and an in-memory mode, by
// memBackend. Both implementations are safe for concurrent use: neither
// mutates a shared file cursor, so concurrent ReadAt/WriteAt calls never
// race on positioning.
type backend interface {
	io.ReaderAt
	io.WriterAt
	Len() (int64, error)
	Close() error
}

// Disk is a thin wrapper over one backing file, read and written a whole
// page at a time at offset pageID*pageSize. All page-shaped I/O is
// dispatched through a worker pool (see pool.go) so a caller goroutine
// suspends on a channel receive rather than blocking on the syscall itself.
type Disk struct {
	b        backend
	pageSize int
	pool     *pool
	lock     *fileLock
}

// Open opens (creating if necessary) the file at path as the backing store,
// taking an advisory exclusive lock for the lifetime of the process so a
// second instance of this program cannot open the same file concurrently.
// workers is the size of the disk I/O worker pool; 0 selects a small
// default.
func Open(path string, pageSize, workers int) (*Disk, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("disk: opening %s: %w", path, err)
	}

	lock, err := lockFile(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("disk: locking %s: %w", path, err)
	}

	return &Disk{
		b:        &fileBackend{f: f},
		pageSize: pageSize,
		pool:     newPool(workers),
		lock:     lock,
	}, nil
}

// OpenMemory returns a Disk backed entirely by memory. Used for tests and
// an in-memory run mode; there is nothing to lock.
func OpenMemory(pageSize, workers int) *Disk {
	return &Disk{
		b:        newMemBackend(),
		pageSize: pageSize,
		pool:     newPool(workers),
	}
}

// PageSize returns the configured page size in bytes.
func (d *Disk) PageSize() int { return d.pageSize }

// Close releases the backing file and its lock, and shuts down the worker
// pool. It does not flush any in-memory page; callers are responsible for
// flushing the current page first.
func (d *Disk) Close() error {
	d.pool.close()
	if d.lock != nil {
		d.lock.unlock()
	}
	return d.b.Close()
}

// ReadPage reads pageSize bytes at id*pageSize into a fresh byte slice. A
// short read at EOF (the page has never been written) is not an error; the
// unread tail is left zero. The read is performed on the disk worker pool.
func (d *Disk) ReadPage(id page.ID) ([]byte, error) {
	buf := make([]byte, d.pageSize)
	offset := int64(id) * int64(d.pageSize)

	err := d.pool.submit(func() error {
		n, err := d.b.ReadAt(buf, offset)
		if err != nil && err != io.EOF {
			return fmt.Errorf("disk: read page %d: %w", id, err)
		}
		_ = n // short reads at EOF are fine; remainder of buf stays zero
		return nil
	})
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// WritePage writes data (which must be exactly PageSize bytes) to id's
// offset. The write is performed on the disk worker pool.
func (d *Disk) WritePage(id page.ID, data []byte) error {
	if len(data) != d.pageSize {
		return fmt.Errorf("disk: write page %d: data is %d bytes, want %d", id, len(data), d.pageSize)
	}
	offset := int64(id) * int64(d.pageSize)

	return d.pool.submit(func() error {
		if _, err := d.b.WriteAt(data, offset); err != nil {
			return fmt.Errorf("disk: write page %d: %w", id, err)
		}
		return nil
	})
}

// Len returns the current byte length of the backing file.
func (d *Disk) Len() (int64, error) {
	return d.b.Len()
}

// PageCount returns the number of whole pages currently on disk.
func (d *Disk) PageCount() (uint32, error) {
	n, err := d.Len()
	if err != nil {
		return 0, err
	}
	return uint32(n / int64(d.pageSize)), nil
}

type fileBackend struct {
	f *os.File
}

func (fb *fileBackend) ReadAt(p []byte, off int64) (int, error)  { return fb.f.ReadAt(p, off) }
func (fb *fileBackend) WriteAt(p []byte, off int64) (int, error) { return fb.f.WriteAt(p, off) }
func (fb *fileBackend) Close() error                             { return fb.f.Close() }

func (fb *fileBackend) Len() (int64, error) {
	fi, err := fb.f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// memBackend is an in-memory backend. It grows its buffer on demand, with
// read/write synchronized under a mutex since, unlike a *os.File,
// append-growing a plain slice is not otherwise safe for concurrent
// ReadAt/WriteAt.
type memBackend struct {
	mu  sync.Mutex
	buf []byte
}

func newMemBackend() *memBackend {
	return &memBackend{}
}

func (m *memBackend) grow(to int64) {
	if int64(len(m.buf)) >= to {
		return
	}
	grown := make([]byte, to)
	copy(grown, m.buf)
	m.buf = grown
}

func (m *memBackend) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grow(off + int64(len(p)))
	n := copy(p, m.buf[off:off+int64(len(p))])
	return n, nil
}

func (m *memBackend) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grow(off + int64(len(p)))
	n := copy(m.buf[off:off+int64(len(p))], p)
	return n, nil
}

func (m *memBackend) Len() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.buf)), nil
}

func (m *memBackend) Close() error { return nil }
