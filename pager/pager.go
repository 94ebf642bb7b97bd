// Package pager implements the page cache: the buffer pool that owns the
// single writable current page and a fixed-size ring of read slots backed
// by the LRU-K replacer.
//
// A page table distinguishes a single exclusive write slot from many
// shared read slots, matching the asymmetric access pattern in
// original_source/src/storagev2/page_manager.rs (PageCacheInner, Pin,
// PageIndex): one writer appends to the tail, many readers fetch
// historical pages, and only the read pool is subject to eviction.
package pager

import (
	"fmt"
	"sync"

	"github.com/kl4mm/hash-db/disk"
	"github.com/kl4mm/hash-db/entry"
	"github.com/kl4mm/hash-db/keydir"
	"github.com/kl4mm/hash-db/page"
	"github.com/kl4mm/hash-db/replacer"
)

// DefaultReadSlots is the number of read slots a cache is given absent
// explicit configuration.
const DefaultReadSlots = 8

// loc is a page table entry: either the write slot or one of the read
// slots, identified by index.
type loc struct {
	write bool
	slot  int
}

// readSlot is one entry in the read pool: a page guarded by its own lock,
// plus the page id it currently holds (so a victim's old page-table entry
// can be found and dropped on eviction).
type readSlot struct {
	mu      sync.RWMutex
	page    *page.Page
	hasPage bool
}

// PageCache is the buffer pool: one exclusive current page, R shared read
// slots, a page table mapping resident ids to slots, and a handle to the
// LRU-K replacer that picks eviction victims among the read slots.
type PageCache struct {
	disk *disk.Disk

	tableMu sync.RWMutex
	table   map[page.ID]loc

	currentMu sync.RWMutex
	current   *page.Page

	read []*readSlot

	freeMu sync.Mutex
	free   []int

	nextID uint32
	idMu   sync.Mutex

	replacer *replacer.Replacer
}

// New builds a page cache around an already-open disk and an already
// bootstrapped current page (see package keydir's Bootstrap). readSlots of
// 0 selects DefaultReadSlots.
func New(d *disk.Disk, lruK int, current *page.Page, currentID page.ID, readSlots int) *PageCache {
	if readSlots <= 0 {
		readSlots = DefaultReadSlots
	}

	read := make([]*readSlot, readSlots)
	free := make([]int, readSlots)
	for i := range read {
		read[i] = &readSlot{page: page.New(0, d.PageSize())}
		free[i] = readSlots - 1 - i // pop from the end: a LIFO free list
	}

	return &PageCache{
		disk:     d,
		table:    map[page.ID]loc{currentID: {write: true}},
		current:  current,
		read:     read,
		free:     free,
		nextID:   uint32(currentID) + 1,
		replacer: replacer.New(lruK),
	}
}

// Close stops the replacer actor. It does not flush the current page;
// callers must FlushCurrent first.
func (pc *PageCache) Close() {
	pc.replacer.Close()
}

func (pc *PageCache) incID() page.ID {
	pc.idMu.Lock()
	defer pc.idMu.Unlock()
	id := pc.nextID
	pc.nextID++
	return id
}

// CurrentHandle is the exclusive handle on the current page returned by
// GetCurrent. It must be released with Unlock, typically via defer.
type CurrentHandle struct {
	pc *PageCache
}

// Page returns the current page. Valid only while the handle is held.
func (h *CurrentHandle) Page() *page.Page { return h.pc.current }

// Unlock releases the exclusive hold on the current page.
func (h *CurrentHandle) Unlock() { h.pc.currentMu.Unlock() }

// GetCurrent acquires exclusive access to the current page. The current
// page is never pinned through the replacer: this handle is its only
// protection, rather than a pin-counted slot.
func (pc *PageCache) GetCurrent() *CurrentHandle {
	pc.currentMu.Lock()
	return &CurrentHandle{pc: pc}
}

// ReplaceCurrent flushes the handle's page to disk, drops it from the page
// table, then resets the page in place under a freshly allocated id and
// records it as the new write slot. Callers invoke this when Append on the
// current page returns page.ErrNotEnoughSpace, then retry the append.
func (pc *PageCache) ReplaceCurrent(h *CurrentHandle) error {
	cur := h.Page()

	if err := pc.disk.WritePage(cur.ID, cur.Bytes()); err != nil {
		return fmt.Errorf("pager: flushing current page %d: %w", cur.ID, err)
	}

	oldID := cur.ID
	newID := pc.incID()

	pc.tableMu.Lock()
	delete(pc.table, oldID)
	pc.table[newID] = loc{write: true}
	pc.tableMu.Unlock()

	cur.Reset()
	cur.ID = newID
	return nil
}

// FlushCurrent writes the current page's bytes to disk without rotating
// it. Used on graceful shutdown.
func (pc *PageCache) FlushCurrent() error {
	pc.currentMu.RLock()
	defer pc.currentMu.RUnlock()
	if err := pc.disk.WritePage(pc.current.ID, pc.current.Bytes()); err != nil {
		return fmt.Errorf("pager: flushing current page %d: %w", pc.current.ID, err)
	}
	return nil
}

// popFreeOrEvict returns a read slot index ready for reuse: first from the
// free list, else from the replacer. ok is false when nothing is free and
// nothing is evictable (every resident read slot is pinned).
func (pc *PageCache) popFreeOrEvict() (slot int, ok bool) {
	pc.freeMu.Lock()
	if n := len(pc.free); n > 0 {
		slot = pc.free[n-1]
		pc.free = pc.free[:n-1]
		pc.freeMu.Unlock()
		return slot, true
	}
	pc.freeMu.Unlock()

	return pc.replacer.Evict()
}

// evictSlotForPage prepares read slot i to hold a new page: it removes the
// slot's prior page-table entry (if any), resets the replacer's bookkeeping
// for i, and records+pins the new access. The caller must already hold the
// slot's write lock.
func (pc *PageCache) evictSlotForPage(i int, s *readSlot) {
	if s.hasPage {
		pc.tableMu.Lock()
		delete(pc.table, s.page.ID)
		pc.tableMu.Unlock()
	}
	pc.replacer.Remove(replacer.Slot(i))
	pc.replacer.RecordAccess(replacer.Slot(i))
	pc.replacer.Pin(replacer.Slot(i))
}

// FetchEntry locates and decodes the entry described by kd. It returns
// ok=false, with no error, when every read slot is pinned during a cache
// miss; the caller is expected to report this as a transient failure.
//
// RecordAccess/Pin are fire-and-forget messages to the replacer actor, so a
// concurrent miss on another key can still be handed this slot by Evict
// before this call's Pin is processed. The fast path therefore takes s.mu
// (shared) before sending RecordAccess/Pin and sends Unpin before releasing
// it: an evictor needs s.mu exclusively, so every pin on the slot is
// balanced before the evictor's Remove reaches the replacer. After locking,
// the fast path re-checks the slot's page id and retries the lookup
// whenever the slot no longer holds the page it looked up; once this call
// holds s.mu and confirms the id matches, no other goroutine can change the
// page out from under it until it unlocks.
func (pc *PageCache) FetchEntry(kd keydir.Data) (e *entry.Entry, ok bool, err error) {
	for {
		pc.tableMu.RLock()
		l, resident := pc.table[kd.PageID]
		pc.tableMu.RUnlock()

		if resident {
			if l.write {
				pc.currentMu.RLock()
				e, ok := pc.current.ReadEntry(int(kd.Offset))
				pc.currentMu.RUnlock()
				return e, ok, nil
			}

			s := pc.read[l.slot]
			s.mu.RLock()
			if !s.hasPage || s.page.ID != kd.PageID {
				s.mu.RUnlock()
				continue
			}
			pc.replacer.RecordAccess(replacer.Slot(l.slot))
			pc.replacer.Pin(replacer.Slot(l.slot))
			e, ok := s.page.ReadEntry(int(kd.Offset))
			pc.replacer.Unpin(replacer.Slot(l.slot))
			s.mu.RUnlock()
			return e, ok, nil
		}

		i, evictable := pc.popFreeOrEvict()
		if !evictable {
			return nil, false, nil
		}

		e, ok, err := pc.loadIntoSlot(i, kd)
		if err != nil {
			return nil, false, err
		}
		return e, ok, nil
	}
}

// loadIntoSlot evicts whatever read slot i currently holds, loads kd's page
// from disk into it, installs the new page-table entry, and decodes kd's
// entry. Called with slot i already popped from the free list or chosen by
// the replacer (and therefore pinned against re-eviction by evictSlotForPage).
func (pc *PageCache) loadIntoSlot(i int, kd keydir.Data) (e *entry.Entry, ok bool, err error) {
	s := pc.read[i]
	s.mu.Lock()
	defer s.mu.Unlock()
	defer pc.replacer.Unpin(replacer.Slot(i))

	pc.evictSlotForPage(i, s)

	data, err := pc.disk.ReadPage(kd.PageID)
	if err != nil {
		return nil, false, fmt.Errorf("pager: loading page %d: %w", kd.PageID, err)
	}
	s.page.Load(kd.PageID, data)
	s.hasPage = true

	pc.tableMu.Lock()
	pc.table[kd.PageID] = loc{slot: i}
	pc.tableMu.Unlock()

	e, ok = s.page.ReadEntry(int(kd.Offset))
	return e, ok, nil
}

// NewPage allocates a fresh, empty page into a read slot: used by tests and
// any future pre-allocation path. ok is false when no slot is evictable.
func (pc *PageCache) NewPage() (id page.ID, ok bool, err error) {
	i, evictable := pc.popFreeOrEvict()
	if !evictable {
		return 0, false, nil
	}

	s := pc.read[i]
	s.mu.Lock()
	defer s.mu.Unlock()
	defer pc.replacer.Unpin(replacer.Slot(i))

	pc.evictSlotForPage(i, s)

	newID := pc.incID()
	s.page.Reset()
	s.page.ID = newID
	s.hasPage = true

	if err := pc.disk.WritePage(newID, s.page.Bytes()); err != nil {
		return 0, false, fmt.Errorf("pager: writing new page %d: %w", newID, err)
	}

	pc.tableMu.Lock()
	pc.table[newID] = loc{slot: i}
	pc.tableMu.Unlock()

	return newID, true, nil
}
