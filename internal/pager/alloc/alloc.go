// Package alloc provides the page buffer allocator: the component that
// hands the page cache fixed-size buffers for page content plus a small
// header extension the cache uses for its own bookkeeping, without a
// separate allocation per header.
//
// Buffers are sourced from three tiers, tried in order:
//
//  1. slab  - a free list of buffers already sized for this pager's page
//     size, reused with no allocation at all once warmed up.
//  2. arena - modernc.org/memory's manually-managed heap, used when the
//     slab free list is empty; a single arena backs many buffers with
//     far less GC pressure than one make([]byte, n) per page.
//  3. heap  - a plain Go allocation, used only if the arena reports it
//     is out of room; this keeps the pager alive (degraded) rather than
//     failing a fetch outright when memory is under extreme pressure.
package alloc

import (
	"fmt"
	"sync"

	"modernc.org/memory"
)

// Buffer is one page-sized allocation plus its header extension. The two
// live in a single underlying allocation ("clownshoe": one malloc call
// backs both the page's data bytes and the cache's per-entry header),
// split into two slices so callers never see the seam.
type Buffer struct {
	Data  []byte // exactly PageSize bytes
	Extra []byte // exactly ExtraSize bytes, opaque to this package

	tier   tier
	raw    []byte // the full clownshoe allocation, for Free
	pooled bool   // true if raw came from the slab and should be returned there
}

type tier int

const (
	tierSlab tier = iota
	tierArena
	tierHeap
)

// Allocator hands out and reclaims Buffers of a fixed page size and
// extra-header size. It is safe for concurrent use.
type Allocator struct {
	pageSize  int
	extraSize int
	unit      int // pageSize + extraSize, rounded up to the arena's alignment

	mu       sync.Mutex
	slab     [][]byte // free list of previously-freed raw allocations
	slabCap  int      // maximum entries retained in the free list
	arena    memory.Allocator
	arenaErr error // sticks once the arena has failed once, to skip retrying it every call

	// Stats, exported by value for logging/metrics; a Get is a cheap
	// mutex-protected copy.
	stats Stats
}

// Stats tracks allocator behaviour for logging and the testable
// property that heap fallback stays rare under normal operation.
type Stats struct {
	SlabHits  int64
	ArenaHits int64
	HeapHits  int64
	Frees     int64
}

// New returns an Allocator for buffers of pageSize bytes of page content
// plus extraSize bytes of header extension. slabCap bounds how many
// freed buffers the slab tier retains before spilling frees to the
// arena's own Free.
func New(pageSize, extraSize, slabCap int) *Allocator {
	if pageSize <= 0 {
		panic("alloc: pageSize must be positive")
	}
	if slabCap < 0 {
		slabCap = 0
	}
	return &Allocator{
		pageSize:  pageSize,
		extraSize: extraSize,
		unit:      pageSize + extraSize,
		slabCap:   slabCap,
	}
}

// Alloc returns a Buffer, trying the slab, then the arena, then the Go
// heap in that order. It never returns an error from the heap tier;
// only a genuine Go allocation failure (which panics rather than
// returning, per runtime convention) can stop it.
func (a *Allocator) Alloc() *Buffer {
	a.mu.Lock()
	if n := len(a.slab); n > 0 {
		raw := a.slab[n-1]
		a.slab = a.slab[:n-1]
		a.stats.SlabHits++
		a.mu.Unlock()
		return a.split(raw, tierSlab, true)
	}

	if a.arenaErr == nil {
		raw, err := a.arena.Malloc(a.unit)
		if err == nil {
			a.stats.ArenaHits++
			a.mu.Unlock()
			return a.split(raw, tierArena, false)
		}
		a.arenaErr = err
	}
	a.mu.Unlock()

	raw := make([]byte, a.unit)
	a.mu.Lock()
	a.stats.HeapHits++
	a.mu.Unlock()
	return a.split(raw, tierHeap, false)
}

func (a *Allocator) split(raw []byte, t tier, pooled bool) *Buffer {
	for i := range raw {
		raw[i] = 0
	}
	return &Buffer{
		Data:   raw[:a.pageSize:a.pageSize],
		Extra:  raw[a.pageSize:a.unit:a.unit],
		tier:   t,
		raw:    raw,
		pooled: pooled,
	}
}

// Free returns b's storage to its originating tier. b must not be used
// after Free returns.
func (a *Allocator) Free(b *Buffer) {
	if b == nil || b.raw == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats.Frees++

	if len(a.slab) < a.slabCap {
		a.slab = append(a.slab, b.raw)
		b.raw = nil
		return
	}

	switch b.tier {
	case tierArena:
		_ = a.arena.Free(b.raw)
	case tierSlab:
		a.slab = append(a.slab, b.raw)
	case tierHeap:
		// let the GC reclaim it
	}
	b.raw = nil
}

// Stats returns a snapshot of allocation counters.
func (a *Allocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// Close releases the arena's own reservation. Any Buffer still
// outstanding from the arena tier becomes invalid; callers must Free
// every Buffer before calling Close.
func (a *Allocator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.arena.Close(); err != nil {
		return fmt.Errorf("alloc: closing arena: %w", err)
	}
	a.slab = nil
	return nil
}
