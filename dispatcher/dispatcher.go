// Package dispatcher turns a parsed protocol.Command into storage
// operations against the page cache and key directory, and produces the
// reply bytes to write back to the client: the single front door between a
// transport and the storage engine, grounded on
// original_source/src/serverv2/message.rs's Message::exec.
package dispatcher

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kl4mm/hash-db/entry"
	"github.com/kl4mm/hash-db/keydir"
	"github.com/kl4mm/hash-db/page"
	"github.com/kl4mm/hash-db/pager"
	"github.com/kl4mm/hash-db/protocol"
)

// ErrNoEvictableSlot is returned by Execute when a get misses the cache and
// every read slot is pinned: a transient server-side failure, not a
// missing key. The caller should reply with no bytes and log the event.
var ErrNoEvictableSlot = errors.New("dispatcher: no evictable read slot")

// Dispatcher wires a page cache and key directory together to answer
// parsed commands. It is safe for concurrent use by many connections: the
// page cache and key directory each do their own locking.
type Dispatcher struct {
	cache *pager.PageCache
	dir   *keydir.KeyDir
	log   *logrus.Entry
}

// New builds a dispatcher over an already-constructed cache and key
// directory.
func New(cache *pager.PageCache, dir *keydir.KeyDir, log *logrus.Entry) *Dispatcher {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Dispatcher{cache: cache, dir: dir, log: log}
}

// Execute runs cmd and returns the bytes to write back to the client. A nil
// reply with a nil error means nothing should be written (blank lines,
// unrecognised verbs, a get that found nothing).
func (d *Dispatcher) Execute(cmd protocol.Command) ([]byte, error) {
	switch cmd.Kind {
	case protocol.KindInsert:
		return d.insert(cmd.Key, cmd.Value)
	case protocol.KindDelete:
		return d.delete(cmd.Key)
	case protocol.KindGet:
		return d.get(cmd.Key)
	default: // protocol.KindIgnore
		return nil, nil
	}
}

func (d *Dispatcher) insert(key, value []byte) ([]byte, error) {
	e := entry.New(entry.Put, key, value, uint64(time.Now().Unix()))

	h := d.cache.GetCurrent()
	defer h.Unlock()

	offset, err := h.Page().Append(e)
	if errors.Is(err, page.ErrNotEnoughSpace) {
		if err := d.cache.ReplaceCurrent(h); err != nil {
			return nil, fmt.Errorf("dispatcher: insert: %w", err)
		}
		offset, err = h.Page().Append(e)
	}
	if err != nil {
		return nil, fmt.Errorf("dispatcher: insert: %w", err)
	}

	d.dir.Insert(key, keydir.Data{PageID: h.Page().ID, Offset: uint64(offset)})
	return protocol.EncodeSuccess(), nil
}

func (d *Dispatcher) delete(key []byte) ([]byte, error) {
	e := entry.New(entry.Delete, key, nil, uint64(time.Now().Unix()))

	h := d.cache.GetCurrent()
	defer h.Unlock()

	_, err := h.Page().Append(e)
	if errors.Is(err, page.ErrNotEnoughSpace) {
		if err := d.cache.ReplaceCurrent(h); err != nil {
			return nil, fmt.Errorf("dispatcher: delete: %w", err)
		}
		_, err = h.Page().Append(e)
	}
	if err != nil {
		return nil, fmt.Errorf("dispatcher: delete: %w", err)
	}

	// A delete of a key that was never present is not an error: it is
	// treated the same as deleting a live key.
	d.dir.Remove(key)
	return protocol.EncodeSuccess(), nil
}

func (d *Dispatcher) get(key []byte) ([]byte, error) {
	kd, found := d.dir.Get(key)
	if !found {
		return nil, nil
	}

	e, ok, err := d.cache.FetchEntry(kd)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: get: %w", err)
	}
	if !ok {
		d.log.WithField("key", string(key)).Warn("get missed: no evictable read slot")
		return nil, ErrNoEvictableSlot
	}

	return protocol.EncodeResult(e.Key, e.Value), nil
}
