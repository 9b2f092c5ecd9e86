package alloc

import "testing"

func TestAllocReturnsCorrectSizes(t *testing.T) {
	a := New(4096, 64, 4)
	b := a.Alloc()
	defer a.Free(b)

	if len(b.Data) != 4096 {
		t.Fatalf("Data len = %d, want 4096", len(b.Data))
	}
	if len(b.Extra) != 64 {
		t.Fatalf("Extra len = %d, want 64", len(b.Extra))
	}
}

func TestFreeThenAllocReusesSlab(t *testing.T) {
	a := New(512, 16, 8)
	b1 := a.Alloc()
	a.Free(b1)

	b2 := a.Alloc()
	defer a.Free(b2)

	stats := a.Stats()
	if stats.SlabHits != 1 {
		t.Fatalf("SlabHits = %d, want 1", stats.SlabHits)
	}
}

func TestBuffersAreZeroed(t *testing.T) {
	a := New(256, 8, 2)
	b1 := a.Alloc()
	for i := range b1.Data {
		b1.Data[i] = 0xff
	}
	for i := range b1.Extra {
		b1.Extra[i] = 0xff
	}
	a.Free(b1)

	b2 := a.Alloc()
	defer a.Free(b2)
	for i, v := range b2.Data {
		if v != 0 {
			t.Fatalf("Data[%d] = %#x, want zeroed buffer on reuse", i, v)
		}
	}
	for i, v := range b2.Extra {
		if v != 0 {
			t.Fatalf("Extra[%d] = %#x, want zeroed buffer on reuse", i, v)
		}
	}
}

func TestSlabCapSpillsToArena(t *testing.T) {
	a := New(64, 0, 1)
	b1 := a.Alloc()
	b2 := a.Alloc()

	a.Free(b1)
	a.Free(b2) // slab already has 1 entry, cap 1; this one spills

	b3 := a.Alloc()
	defer a.Free(b3)

	stats := a.Stats()
	if stats.SlabHits != 1 {
		t.Fatalf("SlabHits = %d, want 1", stats.SlabHits)
	}
}

func TestStatsCountAllocationsAndFrees(t *testing.T) {
	a := New(128, 4, 0)
	b := a.Alloc()
	a.Free(b)

	stats := a.Stats()
	if stats.Frees != 1 {
		t.Fatalf("Frees = %d, want 1", stats.Frees)
	}
	if stats.ArenaHits+stats.HeapHits != 1 {
		t.Fatalf("ArenaHits+HeapHits = %d, want 1", stats.ArenaHits+stats.HeapHits)
	}
}
