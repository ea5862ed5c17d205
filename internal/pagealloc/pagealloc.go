/*
Package pagealloc is the physical page allocator spec.md §6 treats as
an opaque external collaborator (`alloc_page()/free_page()`). It backs
physical memory with a fixed byte arena and threads an intrusive
free list through the free pages themselves, the same trick xv6's
kalloc.c and this package's own free-list-splice idiom in the
scheduler's sibling event queue both use: the first machine word of a
free page holds the address of the next free page.

Addresses handed out and accepted here are kernel-window addresses
(mirroring how rcornwell-S370's emu/memory package treats its whole
backing array as addressed directly, with no separate physical/virtual
split at this layer) — the virt/phys distinction lives one layer up,
in package vm.
*/
package pagealloc

import (
	"encoding/binary"
	"fmt"
	"sync"
)

const PageSize = 4096

// Allocator owns a fixed-size arena and a free list through it.
type Allocator struct {
	mu        sync.Mutex
	arena     []byte
	base      uint32 // kernel-window address of arena[0]
	freeHead  uint32 // arena-relative address of a free page, valid iff freeCount > 0
	freeCount uint32 // number of pages on the free list
	inUse     map[uint32]bool
}

// New creates an allocator over size bytes, all initially free, based
// at base (a kernel-window virtual address). If base is 0, the page
// at address 0 is withheld from the free list rather than freed: real
// xv6's kalloc.c never puts low/reserved physical memory on its free
// list either, and Alloc's "0 means exhausted" contract would
// otherwise be unable to tell a legitimately allocated page at address
// 0 apart from failure.
func New(base uint32, size uint32) *Allocator {
	size -= size % PageSize
	a := &Allocator{
		arena: make([]byte, size),
		base:  base,
		inUse: make(map[uint32]bool),
	}
	for off := uint32(0); off+PageSize <= size; off += PageSize {
		if base+off == 0 {
			continue
		}
		a.freePage(base + off)
	}
	return a
}

// Base returns the arena's kernel-window base address.
func (a *Allocator) Base() uint32 { return a.base }

// Size returns the arena size in bytes.
func (a *Allocator) Size() uint32 { return uint32(len(a.arena)) }

// Contains reports whether kva falls within this arena.
func (a *Allocator) Contains(kva uint32) bool {
	return kva >= a.base && kva < a.base+uint32(len(a.arena))
}

func (a *Allocator) offset(kva uint32) int { return int(kva - a.base) }

// Alloc returns a zeroed page, or 0 if the arena is exhausted. New
// withholds the page at address 0 from the free list so this 0 return
// is never ambiguous with a legitimately allocated page; emptiness of
// the list itself is tracked with freeCount rather than by comparing
// freeHead against 0, since 0 is also the terminator value stored in
// the last free page's next-pointer.
func (a *Allocator) Alloc() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.freeCount == 0 {
		return 0
	}
	kva := a.freeHead
	off := a.offset(kva)
	a.freeHead = binary.LittleEndian.Uint32(a.arena[off : off+4])
	a.freeCount--
	for i := range a.arena[off : off+PageSize] {
		a.arena[off+i] = 0
	}
	a.inUse[kva] = true
	return kva
}

// Free returns a previously allocated page to the free list. Freeing
// an address this allocator never handed out, or freeing it twice,
// is a precondition violation — it panics, matching spec.md §7's
// taxonomy of fatal in-kernel errors (the dealloc_uvm "kfree" panic).
func (a *Allocator) Free(kva uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.inUse[kva]; !ok && a.Contains(kva) {
		panic(fmt.Sprintf("pagealloc: free of never-allocated address %#x", kva))
	}
	a.freePage(kva)
}

func (a *Allocator) freePage(kva uint32) {
	if !a.Contains(kva) || kva%PageSize != 0 {
		panic(fmt.Sprintf("pagealloc: free of invalid address %#x", kva))
	}
	if a.inUse != nil {
		if in, ok := a.inUse[kva]; ok && !in {
			panic(fmt.Sprintf("pagealloc: double free of %#x", kva))
		}
		a.inUse[kva] = false
	}
	off := a.offset(kva)
	binary.LittleEndian.PutUint32(a.arena[off:off+4], a.freeHead)
	a.freeHead = kva
	a.freeCount++
}

// Page returns a view of the page at kva for the VM layer to copy
// into or out of.
func (a *Allocator) Page(kva uint32) []byte {
	off := a.offset(kva)
	return a.arena[off : off+PageSize]
}
