// Package replacer implements the LRU-K (O'Neil et al.) eviction policy used
// to pick a victim read slot in the page cache. It is realized as a
// single-writer actor: all state lives inside one goroutine, reached only
// through a channel of request messages, so each operation is applied whole
// and in the order the actor receives it. The replacer has no compound
// operation: a sequence such as "evict, then remove the victim's node, then
// record+pin the new slot" is sent as separate messages, and messages from
// other goroutines can be processed between them. This directly ports the actor split found in
// original_source/src/storagev2/replacer.rs (LRUKReplacer + LRUKActor +
// LRUKHandle) from tokio mpsc/oneshot channels to Go channels.
package replacer

// Slot identifies a read slot in the page cache by its index.
type Slot = int

type node struct {
	history []uint64
	pin     int
}

// core is the actual LRU-K bookkeeping. It is never touched from more than
// one goroutine: only the actor loop in run() calls its methods.
type core struct {
	nodes     map[Slot]*node
	currentTS uint64
	k         int
}

func newCore(k int) *core {
	return &core{nodes: make(map[Slot]*node), k: k}
}

// kDistance returns the gap between the most recent and k-th most recent
// access, or ok=false if the slot has fewer than k recorded accesses.
func (n *node) kDistance(k int) (dist uint64, ok bool) {
	l := len(n.history)
	if l < k {
		return 0, false
	}
	latest := n.history[l-1]
	kth := n.history[l-k]
	return latest - kth, true
}

func (c *core) recordAccess(s Slot) {
	n, ok := c.nodes[s]
	if !ok {
		n = &node{}
		c.nodes[s] = n
	}
	n.history = append(n.history, c.currentTS)
	c.currentTS++
}

func (c *core) pin(s Slot) {
	if n, ok := c.nodes[s]; ok {
		n.pin++
	}
}

func (c *core) unpin(s Slot) {
	if n, ok := c.nodes[s]; ok {
		n.pin--
	}
}

func (c *core) remove(s Slot) {
	n, ok := c.nodes[s]
	if !ok {
		return
	}
	if n.pin != 0 {
		panic("replacer: remove called on a pinned slot")
	}
	delete(c.nodes, s)
}

// evict picks an evictable slot with the largest k-distance, breaking ties
// toward the larger slot id. If no evictable slot has k accesses yet, it
// falls back to the evictable slot with the earliest single access. It
// returns ok=false when nothing is evictable.
func (c *core) evict() (victim Slot, ok bool) {
	var (
		haveMax bool
		maxSlot Slot
		maxDist uint64
		singles []Slot
	)

	for s, n := range c.nodes {
		if n.pin != 0 {
			continue
		}
		dist, hasK := n.kDistance(c.k)
		if !hasK {
			singles = append(singles, s)
			continue
		}
		if !haveMax || dist > maxDist || (dist == maxDist && s > maxSlot) {
			haveMax, maxSlot, maxDist = true, s, dist
		}
	}

	if haveMax {
		return maxSlot, true
	}

	if len(singles) == 0 {
		return 0, false
	}

	var (
		earliestSlot Slot
		earliestTS   uint64
		found        bool
	)
	for _, s := range singles {
		n := c.nodes[s]
		ts := n.history[len(n.history)-1]
		if !found || ts < earliestTS {
			earliestSlot, earliestTS, found = s, ts, true
		}
	}
	return earliestSlot, true
}

// message is the actor mailbox's envelope. evict is the only request/reply
// operation; the rest are fire-and-forget but are still processed strictly
// in the order they were sent by a given caller because the channel is
// FIFO and the actor drains it one message at a time.
type message struct {
	kind  msgKind
	slot  Slot
	reply chan evictReply
}

type evictReply struct {
	slot Slot
	ok   bool
}

type msgKind int

const (
	msgRecordAccess msgKind = iota
	msgPin
	msgUnpin
	msgRemove
	msgEvict
)

// Replacer is the actor handle: a cheap, comparable value that can be
// shared freely across goroutines. All methods send on an internal
// channel to the goroutine started by New.
type Replacer struct {
	mailbox chan message
}

// New starts the replacer actor goroutine with LRU-K parameter k and
// returns a handle to it.
func New(k int) *Replacer {
	r := &Replacer{mailbox: make(chan message, 256)}
	c := newCore(k)
	go r.run(c)
	return r
}

func (r *Replacer) run(c *core) {
	for m := range r.mailbox {
		switch m.kind {
		case msgRecordAccess:
			c.recordAccess(m.slot)
		case msgPin:
			c.pin(m.slot)
		case msgUnpin:
			c.unpin(m.slot)
		case msgRemove:
			c.remove(m.slot)
		case msgEvict:
			slot, ok := c.evict()
			m.reply <- evictReply{slot: slot, ok: ok}
		}
	}
}

// RecordAccess appends an access timestamp for slot, creating its node if
// this is the first access. Fire-and-forget.
func (r *Replacer) RecordAccess(s Slot) {
	r.mailbox <- message{kind: msgRecordAccess, slot: s}
}

// Pin increments slot's pin counter. Fire-and-forget.
func (r *Replacer) Pin(s Slot) {
	r.mailbox <- message{kind: msgPin, slot: s}
}

// Unpin decrements slot's pin counter. Fire-and-forget.
func (r *Replacer) Unpin(s Slot) {
	r.mailbox <- message{kind: msgUnpin, slot: s}
}

// Remove drops slot's node. The slot must be unpinned; violating this is a
// bug and the actor goroutine will panic.
func (r *Replacer) Remove(s Slot) {
	r.mailbox <- message{kind: msgRemove, slot: s}
}

// Evict requests the current best eviction victim and blocks for the
// actor's reply. ok is false when no slot is evictable (every resident
// slot is pinned).
func (r *Replacer) Evict() (slot Slot, ok bool) {
	reply := make(chan evictReply, 1)
	r.mailbox <- message{kind: msgEvict, reply: reply}
	res := <-reply
	return res.slot, res.ok
}

// Close stops the actor goroutine. The Replacer must not be used again
// afterward.
func (r *Replacer) Close() {
	close(r.mailbox)
}
