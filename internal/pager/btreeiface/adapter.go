package btreeiface

import (
	"github.com/FocuswithJustin/gopager/internal/pager"
)

// Adapter adapts a *pager.Pager to PageProvider, generalizing the
// distilled reference implementation's PagerAdapter (which only ever
// bound to `interface{}` pages) to the pager's real DbPage type.
type Adapter struct {
	pager    *pager.Pager
	nextPage uint32
}

// New wraps p. Allocation starts one page past whatever the pager
// already reports as its current page count.
func New(p *pager.Pager) *Adapter {
	return &Adapter{pager: p, nextPage: uint32(p.PageCount()) + 1}
}

// GetPageData implements PageProvider.
func (a *Adapter) GetPageData(pgno uint32) ([]byte, error) {
	page, err := a.pager.Get(pager.Pgno(pgno))
	if err != nil {
		return nil, err
	}
	defer a.pager.Put(page)
	return page.GetData(), nil
}

// AllocatePageData implements PageProvider. The returned page is
// already marked writeable and dirty; a caller only needs MarkDirty
// again if it fetches the page afresh later in the same transaction.
func (a *Adapter) AllocatePageData() (uint32, []byte, error) {
	pgno := a.nextPage
	a.nextPage++

	page, err := a.pager.Get(pager.Pgno(pgno))
	if err != nil {
		return 0, nil, err
	}
	defer a.pager.Put(page)

	if err := a.pager.Write(page); err != nil {
		return 0, nil, err
	}
	page.Zero()

	return pgno, page.GetData(), nil
}

// MarkDirty implements PageProvider.
func (a *Adapter) MarkDirty(pgno uint32) error {
	page, err := a.pager.Get(pager.Pgno(pgno))
	if err != nil {
		return err
	}
	defer a.pager.Put(page)
	return a.pager.Write(page)
}

// PageSize implements PageProvider.
func (a *Adapter) PageSize() int { return a.pager.PageSize() }

// PageCount implements PageProvider.
func (a *Adapter) PageCount() uint32 { return uint32(a.pager.PageCount()) }
