// Package pcache is the page-cache manager: the layer the pager state
// machine talks to directly. It wraps pcache1's pluggable cache with
// the dirty-page list, the change-counter-adjacent bookkeeping pages
// need (NeedSync, the pSynced search bookmark), and the stress
// callback protocol that lets a Fetch under memory pressure force a
// dirty page out to the journal/WAL so its slot can be reused.
package pcache

import (
	"fmt"
	"sort"
	"sync"

	"github.com/FocuswithJustin/gopager/internal/pager/alloc"
	"github.com/FocuswithJustin/gopager/internal/pager/pcache1"
)

// Page is one cached database page as seen by the pager: its identity,
// its content, and the dirty-list linkage the Manager maintains.
type Page struct {
	Pgno  uint32
	Data  []byte // exactly PageSize bytes; mutate in place, then MakeDirty
	Extra []byte // pager-private header extension

	// Writeable and DontWrite are owned by the caller (the pager state
	// machine above this package); they persist on the entry across
	// repeated Fetch calls for the same page within one transaction, so
	// a page journalled once is never mistaken for not-yet-journalled
	// just because the caller re-fetched it.
	Writeable bool
	DontWrite bool

	// Loaded is false until the pager has filled Data from the database
	// file (or WAL) at least once; it distinguishes a freshly allocated
	// cache slot from one that legitimately holds an all-zero page.
	Loaded bool

	entry *pcache1.Entry

	dirty    bool
	needSync bool

	dirtyNext, dirtyPrev *Page
}

// Dirty reports whether this page has unwritten modifications.
func (p *Page) Dirty() bool { return p.dirty }

// ShouldWrite reports whether this page's content should reach the
// database file, i.e. it is not flagged DontWrite.
func (p *Page) ShouldWrite() bool { return !p.DontWrite }

// NeedsSync reports whether the journal/WAL entry backing this page's
// original content still needs to be synced before the page itself may
// be written to the database file.
func (p *Page) NeedsSync() bool { return p.needSync }

// StressFunc is invoked when Fetch needs to recycle a dirty page's slot
// and none is available un-dirtied. It must write page out (to the
// journal/WAL and, if safe, the database file) and call MakeClean, or
// return an error to abort the Fetch.
type StressFunc func(p *Page) error

// Manager is one connection's page cache: a pcache1.Cache plus the
// dirty list and stress-eviction policy layered on top.
type Manager struct {
	mu sync.Mutex

	cache     *pcache1.Cache
	pageSize  int
	purgeable bool

	nRef int

	dirtyHead, dirtyTail *Page // MRU ... LRU
	synced                *Page // bookmark: nearest-to-tail dirty page known not to need sync

	stress   StressFunc
	page1    *Page
}

// New returns a Manager whose pages are pageSize bytes, drawing buffers
// from a and sharing g's group-wide recycling pool.
func New(g *pcache1.Group, a *alloc.Allocator, pageSize int, purgeable bool) *Manager {
	return &Manager{
		cache:     pcache1.NewCache(g, a, purgeable),
		pageSize:  pageSize,
		purgeable: purgeable,
	}
}

// SetStress installs the callback Fetch uses to evict a dirty page
// under pressure.
func (m *Manager) SetStress(f StressFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stress = f
}

// Fetch returns the page numbered pgno, creating it per createFlag's
// rules (see pcache1.CreateFlag) if it is not already cached. If no
// entry can be produced without evicting a dirty page, and a stress
// callback is installed, Fetch invokes it on the best eviction
// candidate (the page nearest pSynced that needs no journal sync,
// falling back to the least-recently-dirtied referenced-zero page)
// before retrying once.
func (m *Manager) Fetch(pgno uint32, createFlag pcache1.CreateFlag) (*Page, error) {
	e := m.cache.Fetch(pgno, createFlag)
	if e == nil && createFlag != pcache1.CreateNone {
		victim := m.pickStressVictim()
		if victim != nil && m.stress != nil {
			if err := m.stress(victim); err != nil {
				return nil, fmt.Errorf("pcache: stress callback: %w", err)
			}
			e = m.cache.Fetch(pgno, pcache1.CreateAlways)
		}
	}
	if e == nil {
		if createFlag == pcache1.CreateNone {
			return nil, nil
		}
		return nil, fmt.Errorf("pcache: out of cache memory for page %d", pgno)
	}

	p := pageFromEntry(e)
	m.mu.Lock()
	if p.Pgno == 0 {
		p.Pgno = pgno
		p.Data = e.Buf.Data
		p.Extra = e.Buf.Extra
		p.entry = e
	}
	m.nRef++
	if pgno == 1 {
		m.page1 = p
	}
	m.mu.Unlock()
	return p, nil
}

// pageFromEntry recovers (or lazily initialises) the Page header living
// in an entry's extra space, mirroring pcache1 handing back raw
// buffers that the layer above overlays its own header onto.
func pageFromEntry(e *pcache1.Entry) *Page {
	if e.UserData == nil {
		e.UserData = &Page{}
	}
	return e.UserData.(*Page)
}

// pickStressVictim finds the best dirty page to force out: the nearest
// bookmark-forward page that is both unreferenced and does not need a
// journal sync, falling back to the least-recently-dirtied
// unreferenced page of any kind.
func (m *Manager) pickStressVictim() *Page {
	m.mu.Lock()
	defer m.mu.Unlock()

	for p := m.synced; p != nil; p = p.dirtyPrev {
		if !m.referenced(p) && !p.needSync {
			m.synced = p
			return p
		}
	}
	for p := m.dirtyTail; p != nil; p = p.dirtyPrev {
		if !m.referenced(p) {
			return p
		}
	}
	return nil
}

// referenced reports whether p has any outstanding reference beyond the
// cache's own hold. The pager is expected to track its own per-page
// pin count above this layer and only call Release when it truly drops
// a reference; this package treats any page whose underlying entry
// still has more than zero net references (tracked via entry.Pinned)
// as busy.
func (m *Manager) referenced(p *Page) bool {
	return p.entry != nil && p.entry.Pinned()
}

// Release gives up the caller's reference to p. discard forces the
// page out of the cache even if clean, used when the pager knows the
// content is no longer valid (e.g. after a failed write).
func (m *Manager) Release(p *Page, discard bool) {
	m.mu.Lock()
	m.nRef--
	m.mu.Unlock()
	m.cache.Unpin(p.entry, discard)
}

// MakeDirty marks p as modified, linking it into the dirty list at the
// head (most-recently-dirtied end) if it is not already linked.
func (m *Manager) MakeDirty(p *Page) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.dirty {
		return
	}
	p.dirty = true
	p.needSync = true
	m.linkDirtyLocked(p)
}

func (m *Manager) linkDirtyLocked(p *Page) {
	p.dirtyNext = m.dirtyHead
	p.dirtyPrev = nil
	if m.dirtyHead != nil {
		m.dirtyHead.dirtyPrev = p
	}
	m.dirtyHead = p
	if m.dirtyTail == nil {
		m.dirtyTail = p
	}
	if m.synced == nil {
		m.synced = p
	}
}

// MakeClean removes p from the dirty list, e.g. once its content has
// been written to the database file at checkpoint/commit time.
func (m *Manager) MakeClean(p *Page) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unlinkDirtyLocked(p)
}

func (m *Manager) unlinkDirtyLocked(p *Page) {
	if !p.dirty {
		return
	}
	p.dirty = false
	p.needSync = false

	if m.synced == p {
		m.synced = p.dirtyPrev
	}
	if p.dirtyPrev != nil {
		p.dirtyPrev.dirtyNext = p.dirtyNext
	} else {
		m.dirtyHead = p.dirtyNext
	}
	if p.dirtyNext != nil {
		p.dirtyNext.dirtyPrev = p.dirtyPrev
	} else {
		m.dirtyTail = p.dirtyPrev
	}
	p.dirtyNext, p.dirtyPrev = nil, nil
}

// ClearSyncFlags drops NeedSync on every currently dirty page, called
// once the journal (or WAL frames) backing them has been synced to
// disk, and resets the pSynced bookmark to scan from the tail again.
func (m *Manager) ClearSyncFlags() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for p := m.dirtyHead; p != nil; p = p.dirtyNext {
		p.needSync = false
	}
	m.synced = m.dirtyTail
}

// CleanAll marks every dirty page clean without writing it anywhere.
// The pager calls it at the end of both Commit and Rollback; the pages
// stay in the cache.
func (m *Manager) CleanAll() {
	m.mu.Lock()
	var pages []*Page
	for p := m.dirtyHead; p != nil; p = p.dirtyNext {
		pages = append(pages, p)
	}
	m.mu.Unlock()
	for _, p := range pages {
		m.MakeClean(p)
	}
}

// Truncate drops every cached page with a number greater than pgno. If
// pgno is 0 and page 1 is cached, its content is zeroed rather than
// dropped.
func (m *Manager) Truncate(pgno uint32) {
	m.mu.Lock()
	var dirtyVictims []*Page
	for p := m.dirtyHead; p != nil; p = p.dirtyNext {
		if p.Pgno > pgno {
			dirtyVictims = append(dirtyVictims, p)
		}
	}
	m.mu.Unlock()
	for _, p := range dirtyVictims {
		m.MakeClean(p)
	}

	if pgno == 0 {
		m.mu.Lock()
		p1 := m.page1
		m.mu.Unlock()
		if p1 != nil {
			for i := range p1.Data {
				p1.Data[i] = 0
			}
		}
		pgno = 1
	}
	m.cache.Truncate(pgno)
}

// Clear discards the entire cache contents.
func (m *Manager) Clear() {
	m.Truncate(0)
}

// DirtyList returns every dirty page, sorted by page number ascending,
// the order pages must be written to the journal/database to keep I/O
// roughly sequential.
func (m *Manager) DirtyList() []*Page {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []*Page
	for p := m.dirtyHead; p != nil; p = p.dirtyNext {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Pgno < list[j].Pgno })
	return list
}

// RefCount returns the number of outstanding page references.
func (m *Manager) RefCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nRef
}

// PageCount returns the number of pages currently cached.
func (m *Manager) PageCount() int {
	return m.cache.PageCount()
}

// SetCacheSize takes no budget of its own: it calls this cache's
// Shrink, which trims the group to the page budget already set on it.
func (m *Manager) SetCacheSize() {
	m.cache.Shrink()
}

// Close releases every page back to the allocator. Callers must first
// release every outstanding reference.
func (m *Manager) Close() {
	m.mu.Lock()
	m.dirtyHead, m.dirtyTail, m.synced, m.page1 = nil, nil, nil, nil
	m.mu.Unlock()
	m.cache.Close()
}
