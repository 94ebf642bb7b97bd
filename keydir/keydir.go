// Package keydir implements the in-memory key directory: the map from a key
// to the (page id, offset) of its most recently written Put entry, and the
// bootstrap routine that rebuilds it by replaying every page on disk.
//
// This sits between the raw page cache and the dispatcher, turning "where
// is this key's latest record" into a single lookup: a flat hash map
// rather than a b-tree, since there are no range scans or secondary
// indices to support.
package keydir

import (
	"fmt"
	"sync"

	"github.com/kl4mm/hash-db/entry"
	"github.com/kl4mm/hash-db/page"
)

// Data locates a key's most recent Put entry.
type Data struct {
	PageID page.ID
	Offset uint64
}

// KeyDir is a concurrency-safe map from key to Data.
type KeyDir struct {
	mu sync.RWMutex
	m  map[string]Data
}

// New returns an empty key directory.
func New() *KeyDir {
	return &KeyDir{m: make(map[string]Data)}
}

// Get returns the location of key's live value, if any.
func (kd *KeyDir) Get(key []byte) (Data, bool) {
	kd.mu.RLock()
	defer kd.mu.RUnlock()
	d, ok := kd.m[string(key)]
	return d, ok
}

// Insert replaces any existing binding for key and returns the previous one,
// if there was one.
func (kd *KeyDir) Insert(key []byte, d Data) (prev Data, hadPrev bool) {
	kd.mu.Lock()
	defer kd.mu.Unlock()
	prev, hadPrev = kd.m[string(key)]
	kd.m[string(key)] = d
	return prev, hadPrev
}

// Remove erases key's binding, if any, and returns the previous one.
func (kd *KeyDir) Remove(key []byte) (prev Data, hadPrev bool) {
	kd.mu.Lock()
	defer kd.mu.Unlock()
	prev, hadPrev = kd.m[string(key)]
	delete(kd.m, string(key))
	return prev, hadPrev
}

// Len reports the number of live keys.
func (kd *KeyDir) Len() int {
	kd.mu.RLock()
	defer kd.mu.RUnlock()
	return len(kd.m)
}

// pageReader is the slice of Disk that bootstrap needs: read one page at a
// time and know how many whole pages exist. Defined as an interface here so
// tests can bootstrap from a fake without pulling in the disk package.
type pageReader interface {
	PageCount() (uint32, error)
	ReadPage(id page.ID) ([]byte, error)
}

// Bootstrap scans pages 0..PageCount ascending, replaying every entry to
// rebuild the key directory exactly as it existed after the last mutation
// before the process stopped. It returns the rebuilt directory, the final
// page encountered (to be installed as the new current page), and that
// page's id. On an empty file it returns an empty directory and a fresh
// page with id 0.
func Bootstrap(d pageReader, pageSize int) (*KeyDir, *page.Page, page.ID, error) {
	count, err := d.PageCount()
	if err != nil {
		return nil, nil, 0, fmt.Errorf("keydir: bootstrap: %w", err)
	}

	kd := New()

	if count == 0 {
		return kd, page.New(0, pageSize), 0, nil
	}

	var last *page.Page
	var lastID page.ID
	for id := page.ID(0); id < count; id++ {
		raw, err := d.ReadPage(id)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("keydir: bootstrap: reading page %d: %w", id, err)
		}

		p := page.New(id, pageSize)
		p.Load(id, raw)

		offset := 0
		for {
			e, ok := p.ReadEntry(offset)
			if !ok {
				break
			}
			switch e.Type {
			case entry.Put:
				kd.Insert(e.Key, Data{PageID: id, Offset: uint64(offset)})
			case entry.Delete:
				kd.Remove(e.Key)
			}
			offset += e.Len()
		}

		last, lastID = p, id
	}

	return kd, last, lastID, nil
}
