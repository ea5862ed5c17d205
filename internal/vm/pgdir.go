package vm

import (
	"fmt"

	"github.com/patha454/xv6-rpi2-port/internal/pagealloc"
)

// phys is the single physical-page source every pgdir in the kernel
// draws from, set once at boot — the same package-level singleton
// style rcornwell-S370 uses for its backing memory array.
var phys *pagealloc.Allocator

// Init installs the physical allocator the VM layer allocates pages
// from. Must be called once, at boot, before any other vm function.
func Init(alloc *pagealloc.Allocator) { phys = alloc }

// PageDirectory is a process's (or the kernel's) top-level page
// table: one page holding nPDEntries 32-bit L1 entries.
type PageDirectory struct {
	kva VA // kernel-window address of the directory page
}

func newDirectory() *PageDirectory {
	kva := phys.Alloc()
	if kva == 0 {
		return nil
	}
	return &PageDirectory{kva: VA(kva)}
}

// KVA returns the directory's own kernel-window address (for
// SwitchUVM to install as the live translation table).
func (pd *PageDirectory) KVA() VA { return pd.kva }

func getWord(page []byte, index int) uint32 {
	o := index * 4
	return uint32(page[o]) | uint32(page[o+1])<<8 | uint32(page[o+2])<<16 | uint32(page[o+3])<<24
}

func putWord(page []byte, index int, v uint32) {
	o := index * 4
	page[o] = byte(v)
	page[o+1] = byte(v >> 8)
	page[o+2] = byte(v >> 16)
	page[o+3] = byte(v >> 24)
}

func (pd *PageDirectory) getL1(index int) uint32 {
	return getWord(phys.Page(uint32(pd.kva)), index)
}

func (pd *PageDirectory) putL1(index int, v uint32) {
	putWord(phys.Page(uint32(pd.kva)), index, v)
}

// Walk returns the L2 entry slot for va: the kernel-window page
// holding the L2 table and the index within it. If the L1 entry is
// absent and alloc is false, ok is false. If absent and alloc is
// true, a new L2 table page is allocated, zeroed, and installed with
// l1attr (spec.md §9: the caller's l1attr is written into the new PDE
// verbatim, so callers creating user mappings must pass UVMPDXAttr).
func (pd *PageDirectory) Walk(va VA, l1attr uint32, alloc bool) (page []byte, index int, ok bool) {
	pdx := PDX(va)
	pde := pd.getL1(pdx)

	if pde == 0 {
		if !alloc {
			return nil, 0, false
		}
		kva := phys.Alloc()
		if kva == 0 {
			return nil, 0, false
		}
		pd.putL1(pdx, kva|l1attr)
		pde = pd.getL1(pdx)
	}

	if l1Type(pde) != L1TypeTable {
		panic(fmt.Sprintf("vm: walk: va %#x has a non-table L1 entry %#x", va, pde))
	}

	tab := l1TableBase(pde)
	return phys.Page(tab), PTX(va), true
}

// MapRange installs mappings for [va, va+size) starting at physical
// address pa, in either section mode (1 MiB steps, direct L1 writes)
// or table mode (4 KiB steps via Walk), selected by l1attr per
// spec.md §4.2. Any already-present target entry is a "remap" —
// fatal, matching spec.md §8 scenario S5.
func MapRange(pd *PageDirectory, va VA, size uint32, pa PA, l1attr uint32, l2attr uint32) {
	switch l1Type(l1attr) {
	case L1TypeSection:
		mapRangeSection(pd, va, size, pa, l1attr)
	case L1TypeTable:
		mapRangeTable(pd, va, size, pa, l1attr, l2attr)
	default:
		panic(fmt.Sprintf("vm: map_range: unknown l1attr %#x", l1attr))
	}
}

func mapRangeSection(pd *PageDirectory, va VA, size uint32, pa PA, l1attr uint32) {
	start := VA(uint32(va) &^ (sectionSize - 1))
	last := VA((uint32(va) + size - 1) &^ (sectionSize - 1))
	for {
		pdx := PDX(start)
		if pd.getL1(pdx) != 0 {
			panic(fmt.Sprintf("vm: map_range: remap at va %#x", start))
		}
		pd.putL1(pdx, uint32(pa)|l1attr)
		if start == last {
			break
		}
		start += sectionSize
		pa += sectionSize
	}
}

func mapRangeTable(pd *PageDirectory, va VA, size uint32, pa PA, l1attr uint32, l2attr uint32) {
	start := VA(PageRoundDown(uint32(va)))
	last := VA(PageRoundDown(uint32(va) + size - 1))
	for {
		page, idx, ok := pd.Walk(start, l1attr, true)
		if !ok {
			panic("vm: map_range: out of physical pages for page table")
		}
		if getWord(page, idx) != 0 {
			panic(fmt.Sprintf("vm: map_range: remap at va %#x", start))
		}
		putWord(page, idx, uint32(pa)|l2attr)
		if start == last {
			break
		}
		start += PGSize
		pa += PGSize
	}
}
