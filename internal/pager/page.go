package pager

import (
	"github.com/FocuswithJustin/gopager/internal/pager/pcache"
)

// Pgno represents a page number in the database.
// Page numbers start at 1 (page 0 is reserved/invalid).
type Pgno uint32

// DbPage is a pager client's handle on one cached database page. It is
// a thin wrapper around the page-cache manager's own Page; the
// Writeable/dirty bits it exposes live on that underlying Page so they
// survive being re-fetched within the same transaction.
type DbPage struct {
	Pgno Pgno
	Data []byte

	entry *pcache.Page
	pager *Pager
}

func wrapPage(pager *Pager, p *pcache.Page) *DbPage {
	return &DbPage{Pgno: Pgno(p.Pgno), Data: p.Data, entry: p, pager: pager}
}

// IsDirty returns true if the page has been modified since it was last
// written or rolled back.
func (p *DbPage) IsDirty() bool { return p.entry.Dirty() }

// IsClean returns true if the page has not been modified.
func (p *DbPage) IsClean() bool { return !p.IsDirty() }

// IsWriteable returns true if the page has already been journaled in
// the current transaction and is ready to be modified further without
// re-journaling.
func (p *DbPage) IsWriteable() bool { return p.entry.Writeable }

// MakeDirty marks the page as modified, linking it into the pager's
// dirty list.
func (p *DbPage) MakeDirty() { p.pager.cache.MakeDirty(p.entry) }

// MakeClean marks the page as no longer modified, e.g. once its
// content has reached the database file.
func (p *DbPage) MakeClean() { p.pager.cache.MakeClean(p.entry) }

// MakeWriteable marks the page as journaled and ready to modify.
func (p *DbPage) MakeWriteable() { p.entry.Writeable = true }

// SetDontWrite marks the page to be skipped when dirty pages are
// flushed, used for a page whose on-disk copy must not change (e.g. one
// being restored verbatim during rollback).
func (p *DbPage) SetDontWrite() { p.entry.DontWrite = true }

// ShouldWrite reports whether the page should be written to disk.
func (p *DbPage) ShouldWrite() bool { return !p.entry.DontWrite }

// Ref adds a reference to this page, keeping it pinned in the cache.
func (p *DbPage) Ref() {
	p.pager.cache.Fetch(uint32(p.Pgno), 0) //nolint:errcheck // page is already cached; CreateNone cannot fail here
}

// Unref releases a reference previously taken by Fetch or Ref.
func (p *DbPage) Unref() { p.pager.cache.Release(p.entry, false) }

// GetData returns the page's content. Callers should not hold onto the
// slice past the matching Unref.
func (p *DbPage) GetData() []byte { return p.Data }

// Write writes data into the page at offset, marking it dirty and
// writeable. The caller is responsible for having journaled the page
// first via the pager's Write method.
func (p *DbPage) Write(offset int, data []byte) error {
	if offset < 0 || offset+len(data) > len(p.Data) {
		return ErrInvalidOffset
	}
	copy(p.Data[offset:], data)
	p.MakeWriteable()
	p.MakeDirty()
	return nil
}

// Read returns a copy of length bytes starting at offset.
func (p *DbPage) Read(offset, length int) ([]byte, error) {
	if offset < 0 || offset+length > len(p.Data) {
		return nil, ErrInvalidOffset
	}
	result := make([]byte, length)
	copy(result, p.Data[offset:offset+length])
	return result, nil
}

// Size returns the page size in bytes.
func (p *DbPage) Size() int { return len(p.Data) }

// Zero clears the entire page content and marks it dirty/writeable.
func (p *DbPage) Zero() {
	for i := range p.Data {
		p.Data[i] = 0
	}
	p.MakeWriteable()
	p.MakeDirty()
}
