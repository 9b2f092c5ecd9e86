package pcache1

import (
	"testing"
	"time"

	"github.com/FocuswithJustin/gopager/internal/pager/alloc"
)

func newTestCache(maxPage int) (*Cache, *Group) {
	g := NewGroup()
	g.SetMaxPage(maxPage)
	a := alloc.New(4096, 32, 8)
	return NewCache(g, a, true), g
}

func TestFetchCreateAlwaysAllocatesNewEntry(t *testing.T) {
	c, _ := newTestCache(0)
	e := c.Fetch(1, CreateAlways)
	if e == nil {
		t.Fatal("expected a fresh entry")
	}
	if e.Pgno != 1 {
		t.Fatalf("Pgno = %d, want 1", e.Pgno)
	}
}

func TestFetchLookupHitReturnsSameEntry(t *testing.T) {
	c, _ := newTestCache(0)
	e1 := c.Fetch(5, CreateAlways)
	c.Unpin(e1, false)

	e2 := c.Fetch(5, CreateNone)
	if e2 != e1 {
		t.Fatal("expected lookup hit to return the same entry")
	}
}

func TestFetchCreateNoneMissReturnsNil(t *testing.T) {
	c, _ := newTestCache(0)
	if e := c.Fetch(9, CreateNone); e != nil {
		t.Fatal("expected nil for a lookup-only miss")
	}
}

func TestUnpinnedEntryIsRecycledUnderPressure(t *testing.T) {
	c, g := newTestCache(1)

	e1 := c.Fetch(1, CreateAlways)
	c.Unpin(e1, false) // now unpinned, eligible for recycling

	e2 := c.Fetch(2, CreateIfSpare)
	if e2 == nil {
		t.Fatal("expected page 2 to recycle page 1's slot")
	}
	if g.current > 1 {
		t.Fatalf("group.current = %d, want at most 1", g.current)
	}
	if c.Fetch(1, CreateNone) != nil {
		t.Fatal("expected page 1 to have been evicted")
	}
}

func TestCreateIfSpareFailsWhenGroupFull(t *testing.T) {
	c, _ := newTestCache(1)
	e1 := c.Fetch(1, CreateAlways)
	// e1 stays pinned, so nothing is recyclable.
	if e2 := c.Fetch(2, CreateIfSpare); e2 != nil {
		t.Fatal("expected CreateIfSpare to fail with no recyclable entries and a full group")
	}
	c.Unpin(e1, false)
}

func TestTruncateDropsPagesPastBoundary(t *testing.T) {
	c, _ := newTestCache(0)
	for _, pgno := range []uint32{1, 2, 3, 4} {
		e := c.Fetch(pgno, CreateAlways)
		c.Unpin(e, false)
	}

	c.Truncate(2)

	if c.Fetch(3, CreateNone) != nil {
		t.Fatal("page 3 should have been truncated away")
	}
	if c.Fetch(4, CreateNone) != nil {
		t.Fatal("page 4 should have been truncated away")
	}
	if c.Fetch(1, CreateNone) == nil {
		t.Fatal("page 1 should survive truncation at boundary 2")
	}
	if c.Fetch(2, CreateNone) == nil {
		t.Fatal("page 2 should survive truncation at boundary 2")
	}
}

func TestPageCountReflectsEntries(t *testing.T) {
	c, _ := newTestCache(0)
	e1 := c.Fetch(1, CreateAlways)
	e2 := c.Fetch(2, CreateAlways)
	if n := c.PageCount(); n != 2 {
		t.Fatalf("PageCount = %d, want 2", n)
	}
	c.Unpin(e1, false)
	c.Unpin(e2, false)
}

// TestUnpinDiscardDoesNotDeadlock guards against Unpin re-entering its
// own mutex: discard=true (as Release(p, true) on a page read error
// produces) must remove the entry in place, not hang forever trying to
// lock c.mu a second time.
func TestUnpinDiscardDoesNotDeadlock(t *testing.T) {
	c, g := newTestCache(0)
	e := c.Fetch(1, CreateAlways)

	done := make(chan struct{})
	go func() {
		c.Unpin(e, true)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Unpin(discard=true) deadlocked")
	}

	if c.Fetch(1, CreateNone) != nil {
		t.Fatal("discarded entry should no longer be cached")
	}
	if g.current != 0 {
		t.Fatalf("group.current = %d, want 0 after discarding the only entry", g.current)
	}
}

// TestUnpinOnNonPurgeableCacheDoesNotDeadlock exercises the other path
// into the same branch: every unpin on a non-purgeable cache takes the
// discard-like removal, so it must not deadlock either.
func TestUnpinOnNonPurgeableCacheDoesNotDeadlock(t *testing.T) {
	g := NewGroup()
	a := alloc.New(4096, 32, 8)
	c := NewCache(g, a, false)
	e := c.Fetch(1, CreateAlways)

	done := make(chan struct{})
	go func() {
		c.Unpin(e, false)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Unpin on a non-purgeable cache deadlocked")
	}
}

func TestCloseReleasesAllEntries(t *testing.T) {
	c, g := newTestCache(0)
	e := c.Fetch(1, CreateAlways)
	c.Unpin(e, false)
	c.Close()
	if n := c.PageCount(); n != 0 {
		t.Fatalf("PageCount after Close = %d, want 0", n)
	}
	if g.current != 0 {
		t.Fatalf("group.current after Close = %d, want 0", g.current)
	}
}
