package pager

import (
	"testing"

	"github.com/FocuswithJustin/gopager/internal/pager/pcache"
	"github.com/FocuswithJustin/gopager/internal/pager/pcache1"
)

func newTestPager(t *testing.T) *Pager {
	t.Helper()
	p, err := Open(t.Name()+".db", false, WithMemoryVFS(), WithPageSize(512))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestDbPage_DirtyRoundTrip(t *testing.T) {
	p := newTestPager(t)

	page, err := p.Get(1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer p.Put(page)

	if page.IsDirty() {
		t.Error("freshly fetched page should not be dirty")
	}

	if err := p.Write(page); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !page.IsDirty() {
		t.Error("page should be dirty after Write")
	}
	if !page.IsWriteable() {
		t.Error("page should be writeable after Write")
	}

	page.MakeClean()
	if page.IsDirty() {
		t.Error("page should be clean after MakeClean")
	}
}

func TestDbPage_WriteAndRead(t *testing.T) {
	p := newTestPager(t)

	page, err := p.Get(1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer p.Put(page)

	if err := p.Write(page); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := page.Write(10, []byte("hello")); err != nil {
		t.Fatalf("page.Write: %v", err)
	}

	got, err := page.Read(10, 5)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("Read = %q, want %q", got, "hello")
	}
}

func TestDbPage_WriteOutOfRange(t *testing.T) {
	p := newTestPager(t)
	page, err := p.Get(1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer p.Put(page)

	if err := page.Write(page.Size()-1, []byte("ab")); err != ErrInvalidOffset {
		t.Fatalf("Write out of range: got %v, want ErrInvalidOffset", err)
	}
}

func TestDbPage_Zero(t *testing.T) {
	p := newTestPager(t)
	page, err := p.Get(1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer p.Put(page)

	if err := page.Write(0, []byte("nonzero")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	page.Zero()
	for i, b := range page.Data {
		if b != 0 {
			t.Fatalf("byte %d = %d, want 0 after Zero", i, b)
		}
	}
	if !page.IsDirty() {
		t.Error("Zero should mark the page dirty")
	}
}

func TestDbPage_ShouldWrite(t *testing.T) {
	p := newTestPager(t)
	page, err := p.Get(1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer p.Put(page)

	if !page.ShouldWrite() {
		t.Error("a fresh page should be writeable to disk by default")
	}
	page.SetDontWrite()
	if page.ShouldWrite() {
		t.Error("ShouldWrite should be false after SetDontWrite")
	}
}

// TestDbPage_WriteableSurvivesRefetch guards the correctness property
// that motivated moving Writeable onto pcache.Page: re-fetching the
// same page mid-transaction must not make it look unjournaled again.
func TestDbPage_WriteableSurvivesRefetch(t *testing.T) {
	p := newTestPager(t)

	page, err := p.Get(1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := p.Write(page); err != nil {
		t.Fatalf("Write: %v", err)
	}
	p.Put(page)

	page2, err := p.Get(1)
	if err != nil {
		t.Fatalf("Get (refetch): %v", err)
	}
	defer p.Put(page2)

	if !page2.IsWriteable() {
		t.Fatal("re-fetched page lost its Writeable flag; would be re-journaled incorrectly")
	}
}

func TestWrapPage(t *testing.T) {
	g := pcache1.NewGroup()
	g.SetMaxPage(10)
	a := newTestAllocator(t)
	mgr := pcache.New(g, a, 512, true)
	defer mgr.Close()

	cp, err := mgr.Fetch(1, pcache1.CreateAlways)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	dp := wrapPage(nil, cp)
	if dp.Pgno != 1 {
		t.Errorf("Pgno = %d, want 1", dp.Pgno)
	}
	if len(dp.Data) != 512 {
		t.Errorf("Data len = %d, want 512", len(dp.Data))
	}
}
