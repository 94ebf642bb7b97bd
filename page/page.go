// Package page implements the fixed-size buffer that holds a run of
// whole log entries. A page never lets an entry straddle its boundary: an
// entry that will not fit forces the caller to roll to a new page (see
// package pager).
package page

import (
	"errors"

	"github.com/kl4mm/hash-db/entry"
)

// ID identifies a page by its position in the log file: page id N occupies
// byte range [N*Size, (N+1)*Size) of the backing file.
type ID = uint32

// ErrNotEnoughSpace is returned by Append when the entry would not fit in
// the page's remaining capacity.
var ErrNotEnoughSpace = errors.New("page: not enough space for entry")

// Page is a fixed-size byte buffer plus the logical length of the entries
// appended so far. The zero value is not usable; use New.
type Page struct {
	ID   ID
	size int
	data []byte
	len  int
}

// New allocates a zeroed page of the given size with the given id.
func New(id ID, size int) *Page {
	return &Page{
		ID:   id,
		size: size,
		data: make([]byte, size),
	}
}

// Size returns the page's fixed capacity in bytes.
func (p *Page) Size() int { return p.size }

// Len returns the logical length: the sum of the sizes of entries appended
// so far. Bytes beyond Len are zero.
func (p *Page) Len() int { return p.len }

// Bytes returns the full backing buffer, including the zero-padded suffix.
// Callers must not retain or mutate the slice beyond the page's lifetime.
func (p *Page) Bytes() []byte { return p.data }

// Append encodes e and writes it at the page's current length, advancing
// the length by e's encoded size. It returns the offset the entry was
// written at. ErrNotEnoughSpace is returned, and the page left unchanged,
// when the entry would not fit.
func (p *Page) Append(e *entry.Entry) (offset int, err error) {
	n := e.Len()
	if p.len+n > p.size {
		return 0, ErrNotEnoughSpace
	}

	buf := entry.Encode(e)
	copy(p.data[p.len:p.len+n], buf)
	offset = p.len
	p.len += n
	return offset, nil
}

// ReadEntry decodes the entry starting at offset, or reports ok=false if
// offset holds the zero sentinel or would read past the page.
func (p *Page) ReadEntry(offset int) (e *entry.Entry, ok bool) {
	return entry.Decode(p.data, offset)
}

// Reset zeroes the buffer and resets the logical length to zero. The page
// id is left untouched; callers assign a fresh id after Reset.
func (p *Page) Reset() {
	for i := range p.data {
		p.data[i] = 0
	}
	p.len = 0
}

// Load installs id and data as this page's contents, deriving the logical
// length by scanning backwards in 8 byte strides to find the last non-zero
// stride. This is the durable re-open contract: after writing a page to disk
// and reading it back, Load on the raw bytes yields the Len the in-memory
// page had before it was flushed, rounded up to the end of its last
// non-zero 8 byte stride (so up to 7 bytes more than the sum of the entry
// sizes).
func (p *Page) Load(id ID, data []byte) {
	p.ID = id
	p.size = len(data)
	p.data = data
	p.len = derivePageLen(data)
}

// derivePageLen scans data backwards in 8 byte strides, skipping strides
// that are entirely zero, and returns the offset just past the last
// non-zero stride. The result is the last non-zero trailing byte's position
// rounded up to the next 8 byte boundary.
func derivePageLen(data []byte) int {
	end := len(data)
	for end >= 8 {
		stride := data[end-8 : end]
		allZero := true
		for _, b := range stride {
			if b != 0 {
				allZero = false
				break
			}
		}
		if !allZero {
			break
		}
		end -= 8
	}
	return end
}
