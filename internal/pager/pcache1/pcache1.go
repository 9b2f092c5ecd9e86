// Package pcache1 implements the pluggable cache module: a hash table of
// page entries, keyed by page number, backed by a per-connection or
// process-wide Group that can recycle unpinned entries across caches
// under memory pressure. This is the layer the page-cache manager
// (internal/pager/pcache) drives through Fetch/Unpin/CreateFlag.
package pcache1

import (
	"sync"

	"github.com/golang/groupcache/lru"

	"github.com/FocuswithJustin/gopager/internal/pager/alloc"
)

// CreateFlag controls how Fetch behaves when the requested page is not
// already cached.
type CreateFlag int

const (
	// CreateNone performs a lookup only; a miss returns nil.
	CreateNone CreateFlag = 0
	// CreateIfSpare allocates a new entry only if the group has room
	// under its configured page budget, or an unpinned entry can be
	// recycled without exceeding it.
	CreateIfSpare CreateFlag = 1
	// CreateAlways allocates a new entry unconditionally, even past the
	// group's page budget; Fetch evicts nothing for it, and the group is
	// brought back under budget when entries are later unpinned.
	CreateAlways CreateFlag = 2
)

// Entry is one cached page: its identity, its buffer, and its place in
// the group-wide unpinned LRU while ref count is zero.
type Entry struct {
	Pgno uint32
	Buf  *alloc.Buffer

	// UserData is free for the page-cache manager layer above this
	// package to stash its own per-page header in, so a repeat Fetch of
	// the same entry can recover state without a second allocation.
	UserData any

	cache *Cache
	nRef  int
	inGrp bool // true while this entry sits in the group's unpinned LRU
}

// Pinned reports whether this entry currently has any outstanding
// reference.
func (e *Entry) Pinned() bool {
	e.cache.mu.Lock()
	defer e.cache.mu.Unlock()
	return e.nRef > 0
}

// groupKey identifies an Entry uniquely across every Cache sharing a
// Group, since the LRU is shared.
type groupKey struct {
	cache *Cache
	pgno  uint32
}

// Group is a set of Caches able to recycle each other's unpinned pages
// under memory pressure, mirroring SQLite's pcache1.g /
// PGroup::EnforceMaxPage. A private Group (one Cache) needs no mutex of
// its own beyond what Group already has; a shared Group is how several
// Caches (e.g. several pagers in one process) pool memory.
type Group struct {
	mu       sync.Mutex
	maxPage  int
	minPage  int
	current  int // purgeable pages allocated across the group
	unpinned *lru.Cache
}

// NewGroup returns a Group with no page budget (maxPage 0, unlimited)
// until SetMaxPage is called.
func NewGroup() *Group {
	g := &Group{unpinned: lru.New(0)}
	g.unpinned.OnEvicted = func(key lru.Key, value interface{}) {
		// Eviction triggered directly by the lru package (e.g. Add
		// exceeding MaxEntries) is not used by this package; entries are
		// always removed explicitly so the group's accounting and the
		// cache's own hash table stay consistent. This hook exists so a
		// future caller of lru.New(n > 0) doesn't silently desync the two.
	}
	return g
}

// removeOldest removes and returns the oldest entry in c, using c's
// OnEvicted hook to recover the (key, value) pair that groupcache's
// lru.Cache.RemoveOldest does not return directly.
func removeOldest(c *lru.Cache) (key lru.Key, value interface{}, ok bool) {
	prev := c.OnEvicted
	c.OnEvicted = func(k lru.Key, v interface{}) {
		key, value, ok = k, v, true
		if prev != nil {
			prev(k, v)
		}
	}
	c.RemoveOldest()
	c.OnEvicted = prev
	return
}

// SetMaxPage sets the group's page budget. A value of 0 means
// unlimited.
func (g *Group) SetMaxPage(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.maxPage = n
}

// EnforceMaxPage evicts unpinned entries, oldest first, until the group
// is at or under its page budget.
func (g *Group) EnforceMaxPage() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.enforceMaxPageLocked()
}

func (g *Group) enforceMaxPageLocked() {
	for g.maxPage > 0 && g.current > g.maxPage {
		key, value, ok := removeOldest(g.unpinned)
		if !ok {
			return
		}
		gk := key.(groupKey)
		e := value.(*Entry)
		e.inGrp = false
		e.cache.removeLocked(gk.pgno)
		g.current--
	}
}

// Cache is one connection's view into a Group: a hash table from page
// number to Entry, plus the bookkeeping SQLite calls nMax/bPurgeable.
type Cache struct {
	mu        sync.Mutex
	group     *Group
	alloc     *alloc.Allocator
	purgeable bool
	entries   map[uint32]*Entry
}

// NewCache returns a Cache drawing buffers from a and sharing g's
// recycling pool. purgeable marks whether this cache's pages may be
// discarded and refetched from backing storage (false for in-memory or
// temp pagers that have nowhere else to read a page from).
func NewCache(g *Group, a *alloc.Allocator, purgeable bool) *Cache {
	return &Cache{
		group:     g,
		alloc:     a,
		purgeable: purgeable,
		entries:   make(map[uint32]*Entry),
	}
}

// Fetch looks up pgno, creating an entry per createFlag's rules if it is
// missing. It returns nil if createFlag is CreateNone and the page is
// not cached, or if createFlag is CreateIfSpare and the group has no
// room.
func (c *Cache) Fetch(pgno uint32, createFlag CreateFlag) *Entry {
	c.mu.Lock()
	if e, ok := c.entries[pgno]; ok {
		c.pinLocked(e)
		c.mu.Unlock()
		return e
	}
	c.mu.Unlock()

	if createFlag == CreateNone {
		return nil
	}

	c.group.mu.Lock()
	hasRoom := createFlag == CreateAlways || c.group.maxPage == 0 || c.group.current < c.group.maxPage
	if !hasRoom {
		// Try to recycle one unpinned entry from the group to make room.
		if key, value, ok := removeOldest(c.group.unpinned); ok {
			gk := key.(groupKey)
			victim := value.(*Entry)
			victim.inGrp = false
			victim.cache.removeLocked(gk.pgno)
			c.group.current--
			hasRoom = true
		}
	}
	if !hasRoom {
		c.group.mu.Unlock()
		return nil
	}
	c.group.current++
	c.group.mu.Unlock()

	buf := c.alloc.Alloc()
	e := &Entry{Pgno: pgno, Buf: buf, cache: c, nRef: 1}

	c.mu.Lock()
	c.entries[pgno] = e
	c.mu.Unlock()
	return e
}

// Unpin marks e as no longer referenced. Once unreferenced it becomes
// eligible for group-wide recycling; discard, if true, removes it from
// the cache immediately rather than keeping it around as a clean cache
// hit for a future Fetch.
func (c *Cache) Unpin(e *Entry, discard bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e.nRef--
	if e.nRef > 0 {
		return
	}
	if discard || !c.purgeable {
		// c.mu is already held above; removeLocked would re-acquire it
		// and deadlock (sync.Mutex is not reentrant), so inline the
		// delete instead of calling it here. The inverse ordering also
		// exists: enforceMaxPageLocked calls removeLocked while holding
		// g.mu but not c.mu, whereas this path holds c.mu first and
		// takes g.mu below. The two never nest the other way round
		// (removeLocked itself never takes g.mu), so no cycle results,
		// but a future caller must not acquire c.mu while holding g.mu
		// from outside enforceMaxPageLocked's own call chain.
		delete(c.entries, e.Pgno)
		c.group.mu.Lock()
		if e.inGrp {
			c.group.unpinned.Remove(groupKey{c, e.Pgno})
			e.inGrp = false
		}
		c.group.current--
		c.group.mu.Unlock()
		c.alloc.Free(e.Buf)
		return
	}

	c.group.mu.Lock()
	c.group.unpinned.Add(groupKey{c, e.Pgno}, e)
	e.inGrp = true
	c.group.enforceMaxPageLocked()
	c.group.mu.Unlock()
}

func (c *Cache) pinLocked(e *Entry) {
	if e.nRef == 0 && e.inGrp {
		c.group.mu.Lock()
		c.group.unpinned.Remove(groupKey{c, e.Pgno})
		e.inGrp = false
		c.group.mu.Unlock()
	}
	e.nRef++
}

func (c *Cache) removeLocked(pgno uint32) {
	c.mu.Lock()
	delete(c.entries, pgno)
	c.mu.Unlock()
}

// Truncate drops every cached entry with a page number greater than
// pgno. Entries still pinned are left untouched; the page-cache manager
// above this layer guarantees no such entries exist past pgno except
// page 1, per the Truncate contract it exposes to callers.
func (c *Cache) Truncate(pgno uint32) {
	c.mu.Lock()
	var victims []uint32
	for n, e := range c.entries {
		if n > pgno && e.nRef == 0 {
			victims = append(victims, n)
		}
	}
	c.mu.Unlock()

	for _, n := range victims {
		c.group.mu.Lock()
		c.group.unpinned.Remove(groupKey{c, n})
		c.group.current--
		c.group.mu.Unlock()
		c.mu.Lock()
		e := c.entries[n]
		delete(c.entries, n)
		c.mu.Unlock()
		if e != nil {
			c.alloc.Free(e.Buf)
		}
	}
}

// PageCount returns the number of entries currently held by this cache,
// pinned or not.
func (c *Cache) PageCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Shrink asks the group to evict unpinned entries, oldest first and from
// any cache in the group, until the group is at or under its page
// budget. It does not evict entries beyond that.
func (c *Cache) Shrink() {
	c.group.mu.Lock()
	c.group.enforceMaxPageLocked()
	c.group.mu.Unlock()
}

// Close releases every entry this cache still holds back to the
// allocator. Callers must ensure no entry is pinned.
func (c *Cache) Close() {
	c.mu.Lock()
	entries := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		entries = append(entries, e)
	}
	c.entries = make(map[uint32]*Entry)
	c.mu.Unlock()

	c.group.mu.Lock()
	for _, e := range entries {
		if e.inGrp {
			c.group.unpinned.Remove(groupKey{c, e.Pgno})
		}
		c.group.current--
	}
	c.group.mu.Unlock()

	for _, e := range entries {
		c.alloc.Free(e.Buf)
	}
}
