// Package btreeiface defines the page-access contract a B-tree layer
// would consume from a pager, without the B-tree package depending on
// the pager's concrete types. It exists so the pager's public surface
// can be exercised end to end by tests standing in for that layer.
package btreeiface

// PageProvider is the interface a B-tree implementation needs from
// underlying page storage: it never sees pgno-vs-Pgno type distinctions,
// transaction state, or locking, only page bytes it can read, allocate,
// and mark dirty.
type PageProvider interface {
	// GetPageData returns the current content of page pgno.
	GetPageData(pgno uint32) ([]byte, error)

	// AllocatePageData reserves a new page and returns its number along
	// with a zeroed, writeable buffer for it.
	AllocatePageData() (pgno uint32, data []byte, err error)

	// MarkDirty records that pgno's content (already mutated in the
	// slice GetPageData or AllocatePageData returned) must reach
	// storage on the next commit.
	MarkDirty(pgno uint32) error

	// PageSize returns the fixed page size in bytes.
	PageSize() int

	// PageCount returns the number of pages currently allocated.
	PageCount() uint32
}
