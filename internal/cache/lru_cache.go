// Package cache implements the block cache: a bounded LRU keyed by
// (sst-id, block-offset) with reference-counted handles so a block
// being read concurrently is never evicted out from under a reader.
package cache

import (
	"container/list"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrEntryTooLarge is returned by Insert when value's charge alone
// exceeds the cache's capacity; no amount of eviction could make room.
var ErrEntryTooLarge = errors.New("cache: entry larger than capacity")

// Key identifies one cached block by the SSTable it belongs to and its
// byte offset within that file.
type Key struct {
	SSTID       uint64
	BlockOffset uint64
}

// Handle is a reference to a cached block. The caller must call
// Release exactly once per Handle returned by Insert or Lookup.
type Handle struct {
	key     Key
	value   []byte
	charge  uint64
	refs    int32
	deleted bool
}

// Value returns the cached bytes. Valid until Release.
func (h *Handle) Value() []byte {
	return h.value
}

// Charge returns the byte cost this entry was inserted with.
func (h *Handle) Charge() uint64 {
	return h.charge
}

type entry struct {
	handle *Handle
}

// Cache is a thread-safe, bounded-by-bytes LRU block cache. All
// mutations — insert, lookup, release, eviction — take a single mutex,
// matching the spec's "all mutations take a single mutex" contract;
// handle construction/destruction never blocks on I/O.
type Cache struct {
	mu       sync.Mutex
	capacity uint64
	usage    uint64
	table    map[Key]*list.Element
	lru      *list.List

	hits   atomic.Uint64
	misses atomic.Uint64
}

// New returns an empty Cache bounded to capacity bytes.
func New(capacity uint64) *Cache {
	return &Cache{
		capacity: capacity,
		table:    make(map[Key]*list.Element),
		lru:      list.New(),
	}
}

func getEntry(elem *list.Element) *entry {
	e, _ := elem.Value.(*entry)
	return e
}

// Insert adds value under key with the given byte charge and returns a
// held Handle (refcount 1). If key is already present its value and
// charge are replaced. Returns ErrEntryTooLarge if charge alone exceeds
// capacity.
func (c *Cache) Insert(key Key, value []byte, charge uint64) (*Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if charge > c.capacity {
		return nil, ErrEntryTooLarge
	}

	if elem, ok := c.table[key]; ok {
		e := getEntry(elem)
		c.usage -= e.handle.charge
		e.handle.value = value
		e.handle.charge = charge
		c.usage += charge
		c.lru.MoveToFront(elem)
		e.handle.refs++
		return e.handle, nil
	}

	for c.usage+charge > c.capacity && c.lru.Len() > 0 {
		if !c.evictOneLocked() {
			break
		}
	}

	h := &Handle{key: key, value: value, charge: charge, refs: 1}
	elem := c.lru.PushFront(&entry{handle: h})
	c.table[key] = elem
	c.usage += charge
	return h, nil
}

// Lookup returns a held Handle for key, or nil if absent. A found entry
// is moved to the most-recently-used end of the LRU list; it is not
// taken off the list while referenced; evictOneLocked skips it instead
// as long as its refcount is above zero.
func (c *Cache) Lookup(key Key) *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.table[key]; ok {
		e := getEntry(elem)
		if !e.handle.deleted {
			c.lru.MoveToFront(elem)
			e.handle.refs++
			c.hits.Add(1)
			return e.handle
		}
	}
	c.misses.Add(1)
	return nil
}

// Release drops a reference obtained from Insert or Lookup. When the
// refcount reaches zero and the entry is not marked deleted, it becomes
// eligible for eviction (it stays in the cache, moved to the
// most-recently-used end of the LRU list).
func (c *Cache) Release(h *Handle) {
	if h == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	h.refs--
	if h.refs == 0 && h.deleted {
		c.removeHandleLocked(h)
	} else if h.refs == 0 {
		if elem, ok := c.table[h.key]; ok {
			c.lru.MoveToFront(elem)
		}
	}
}

// Erase removes key from the cache. If a Handle for key is still held,
// the entry is only marked deleted and is removed once the last
// reference is released.
func (c *Cache) Erase(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.table[key]; ok {
		e := getEntry(elem)
		e.handle.deleted = true
		if e.handle.refs == 0 {
			c.removeEntryLocked(elem)
		}
	}
}

// Usage returns the total charge of all cached entries.
func (c *Cache) Usage() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

// HitRate returns the fraction of Lookup calls that found a live entry.
func (c *Cache) HitRate() float64 {
	hits, misses := c.hits.Load(), c.misses.Load()
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// evictOneLocked evicts the least recently used unpinned entry. Returns
// false if every entry is currently pinned (refs > 0).
func (c *Cache) evictOneLocked() bool {
	for e := c.lru.Back(); e != nil; e = e.Prev() {
		en := getEntry(e)
		if en.handle.refs == 0 {
			c.removeEntryLocked(e)
			return true
		}
	}
	return false
}

func (c *Cache) removeEntryLocked(elem *list.Element) {
	en := getEntry(elem)
	delete(c.table, en.handle.key)
	c.lru.Remove(elem)
	c.usage -= en.handle.charge
}

func (c *Cache) removeHandleLocked(h *Handle) {
	if elem, ok := c.table[h.key]; ok {
		c.removeEntryLocked(elem)
	}
}
