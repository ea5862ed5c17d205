package pagealloc_test

import (
	"testing"

	"github.com/patha454/xv6-rpi2-port/internal/pagealloc"
)

// TestAllocExhaustsExactCapacity checks that Alloc succeeds exactly
// size/PageSize times before returning 0, and that every one of those
// pages can be freed and reallocated — the invariant a stale "free
// list empty" sentinel collision would silently violate by stranding
// one page for the allocator's entire lifetime.
func TestAllocExhaustsExactCapacity(t *testing.T) {
	const npages = 8
	a := pagealloc.New(0x1000, npages*pagealloc.PageSize)

	var got []uint32
	for i := 0; i < npages; i++ {
		kva := a.Alloc()
		if kva == 0 {
			t.Fatalf("Alloc failed after only %d of %d pages", i, npages)
		}
		got = append(got, kva)
	}
	if extra := a.Alloc(); extra != 0 {
		t.Fatalf("Alloc succeeded past capacity, returned %#x", extra)
	}

	for _, kva := range got {
		a.Free(kva)
	}
	for i := 0; i < npages; i++ {
		if a.Alloc() == 0 {
			t.Fatalf("Alloc failed refilling page %d of %d after freeing all of them", i, npages)
		}
	}
	if extra := a.Alloc(); extra != 0 {
		t.Fatalf("Alloc succeeded past capacity on the refill pass, returned %#x", extra)
	}
}

// TestAllocNeverHandsOutPageZero regression-tests the base-0 boot
// arena: Alloc's "0 means exhausted" return must never collide with a
// legitimately allocated page, so the page at address 0 is reserved
// rather than freed, costing one page of capacity.
func TestAllocNeverHandsOutPageZero(t *testing.T) {
	const npages = 8
	a := pagealloc.New(0, npages*pagealloc.PageSize)

	var got []uint32
	for {
		kva := a.Alloc()
		if kva == 0 {
			break
		}
		got = append(got, kva)
	}

	if len(got) != npages-1 {
		t.Fatalf("allocated %d pages from a %d-page base-0 arena, want %d (page 0 reserved)", len(got), npages, npages-1)
	}
	for _, kva := range got {
		if kva == 0 {
			t.Fatal("Alloc handed out page address 0")
		}
	}
}

// TestFreeThenAllocReturnsSamePage checks the free list is LIFO over
// a single page, the simplest possible exercise of the intrusive
// next-pointer splice.
func TestFreeThenAllocReturnsSamePage(t *testing.T) {
	a := pagealloc.New(0x2000, 2*pagealloc.PageSize)

	first := a.Alloc()
	if first == 0 {
		t.Fatal("Alloc failed on a fresh 2-page arena")
	}
	a.Free(first)
	second := a.Alloc()
	if second != first {
		t.Fatalf("Alloc after Free returned %#x, want the just-freed %#x", second, first)
	}
}

// TestDoubleFreePanics checks freeing the same page twice is treated
// as a fatal precondition violation, not silently corrupting the free
// list.
func TestDoubleFreePanics(t *testing.T) {
	a := pagealloc.New(0x3000, pagealloc.PageSize)
	kva := a.Alloc()
	if kva == 0 {
		t.Fatal("Alloc failed on a fresh 1-page arena")
	}
	a.Free(kva)

	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic freeing an already-free page twice")
		}
	}()
	a.Free(kva)
}

// TestFreeOutOfRangePanics checks an address outside the arena is
// rejected rather than corrupting unrelated memory.
func TestFreeOutOfRangePanics(t *testing.T) {
	a := pagealloc.New(0x4000, pagealloc.PageSize)

	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic freeing an address outside the arena")
		}
	}()
	a.Free(0x9000)
}

// TestAllocZeroesPage checks a reallocated page never leaks the
// previous tenant's bytes.
func TestAllocZeroesPage(t *testing.T) {
	a := pagealloc.New(0x5000, pagealloc.PageSize)

	kva := a.Alloc()
	page := a.Page(kva)
	for i := range page {
		page[i] = 0xff
	}
	a.Free(kva)

	kva2 := a.Alloc()
	page2 := a.Page(kva2)
	for i, b := range page2 {
		if b != 0 {
			t.Fatalf("byte %d = %#x, want 0 on a freshly (re)allocated page", i, b)
		}
	}
}
