package vm

import "fmt"

// active is the page directory currently installed as the live
// translation table — what switch_uvm would point TTBR0 at on real
// hardware. Kept so diagnostics and tests can ask "whose address
// space is live", even though in this hosted model every vm function
// takes its pgdir explicitly rather than relying on this for
// correctness.
var active *PageDirectory

// SwitchUVM installs pd as the active user address space: spec.md
// §4.2 requires this be called with IRQs disabled (the caller, not
// this function, is responsible for that — matching the original's
// division of labor between C callers and this primitive).
func SwitchUVM(pd *PageDirectory) {
	active = pd
	Flush()
}

// SwitchKVM reinstalls the shared kernel directory as the live
// translation table, used when no process is running.
func SwitchKVM() { SwitchUVM(kernelPDir) }

// Active returns the page directory SwitchUVM last installed.
func Active() *PageDirectory { return active }

// NewDirectory allocates a bare page directory with no mappings.
// Exposed for tests exercising Walk/MapRange directly.
func NewDirectory() *PageDirectory { return newDirectory() }

// InitUVM loads the very first user process's image: sz must be
// under one page. Used only for the initial process (spec.md §4.2).
func InitUVM(pd *PageDirectory, src []byte, sz uint32) {
	if sz >= PGSize {
		panic("vm: init_uvm: image larger than one page")
	}
	kva := phys.Alloc()
	if kva == 0 {
		panic("vm: init_uvm: out of memory")
	}
	MapRange(pd, 0, PGSize, PA(kva), UVMPDXAttr, UserRWSmall)
	copy(phys.Page(kva), src[:sz])
}

// Inode is the opaque external collaborator spec.md §6 names
// (read_inode); package inode provides a concrete implementation.
type Inode interface {
	ReadAt(dst []byte, off int64) (int, error)
}

// LoadUVM reads sz bytes from inode at offset into the pages already
// mapped at va (va page-aligned, va+sz <= USERBOUND). Every page in
// range must already have a present PTE — if not, that is a
// precondition violation the caller made (the loader maps memory with
// AllocUVM before calling LoadUVM) and LoadUVM panics rather than
// silently mapping more memory.
func LoadUVM(pd *PageDirectory, va VA, ip Inode, offset int64, sz uint32) error {
	if uint32(va)%PGSize != 0 {
		panic("vm: load_uvm: va not page-aligned")
	}
	if uint32(va)+sz > uint32(USERBOUND) {
		panic("vm: load_uvm: range exceeds USERBOUND")
	}
	for off := uint32(0); off < sz; off += PGSize {
		page, idx, ok := pd.Walk(va+VA(off), UVMPDXAttr, false)
		if !ok {
			panic(fmt.Sprintf("vm: load_uvm: va %#x not mapped", va+VA(off)))
		}
		pte := getWord(page, idx)
		if !ptePresent(pte) {
			panic(fmt.Sprintf("vm: load_uvm: va %#x not mapped", va+VA(off)))
		}
		dst := phys.Page(uint32(pteAddr(pte)))
		n := sz - off
		if n > PGSize {
			n = PGSize
		}
		if _, err := ip.ReadAt(dst[:n], offset+int64(off)); err != nil {
			return err
		}
	}
	return nil
}

// AllocUVM grows a process's user memory from oldsz to newsz,
// allocating and zeroing each new page and mapping it user-RW. On
// allocation failure partway through, it rolls back via DeallocUVM
// and returns 0, matching spec.md §4.2's resource-exhaustion
// contract. Returns oldsz unchanged if newsz <= oldsz, and fails if
// newsz is USERBOUND or more.
func AllocUVM(pd *PageDirectory, oldsz, newsz uint32) uint32 {
	if newsz <= oldsz {
		return oldsz
	}
	if newsz >= uint32(USERBOUND) {
		return 0
	}

	start := PageRoundUp(oldsz)
	for a := start; a < newsz; a += PGSize {
		kva := phys.Alloc()
		if kva == 0 {
			DeallocUVM(pd, newsz, oldsz)
			return 0
		}
		MapRange(pd, VA(a), PGSize, PA(kva), UVMPDXAttr, UserRWSmall)
	}
	return newsz
}

// DeallocUVM shrinks a process's user memory from oldsz to newsz,
// freeing every physical page from round_up(newsz) up to oldsz and
// clearing its L2 entry. An L1 whose corresponding range is
// altogether absent is skipped in one jump (fast-forwarded past the
// whole section it would have covered); a present PTE with a zero
// physical address is a corrupt page table — fatal (spec.md §7
// "kfree" panic).
func DeallocUVM(pd *PageDirectory, oldsz, newsz uint32) uint32 {
	if newsz >= oldsz {
		return oldsz
	}

	a := PageRoundUp(newsz)
	for a < oldsz {
		pdx := PDX(VA(a))
		if l1Type(pd.getL1(pdx)) == L1TypeFault {
			// Nothing mapped for this whole 1 MiB section: skip to
			// the next one instead of walking page by page.
			a = uint32(PDX2VA(pdx+1))
			continue
		}
		page, idx, ok := pd.Walk(VA(a), UVMPDXAttr, false)
		if ok {
			pte := getWord(page, idx)
			if ptePresent(pte) {
				if pteAddr(pte) == 0 {
					panic("vm: dealloc_uvm: kfree: present PTE with zero physical address")
				}
				phys.Free(uint32(pteAddr(pte)))
				putWord(page, idx, 0)
			}
		}
		a += PGSize
	}
	return newsz
}

// PDX2VA is the inverse of PDX for a freshly aliased 1024-entry
// directory: the first virtual address whose PDX equals pdx.
func PDX2VA(pdx int) VA { return VA(pdx) * sectionSize }

// CopyUVM builds a fresh page directory that is a deep copy of
// parent's user mappings in [0, sz): every physical page is
// duplicated, never shared (spec.md §8 property 6). parent's PTE for
// every va in range must exist and be present; a missing PTE there is
// a precondition violation (fatal). On any allocation failure, the
// partially built child directory is torn down and nil is returned.
func CopyUVM(parent *PageDirectory, sz uint32) *PageDirectory {
	child := SetupKVM()
	if child == nil {
		return nil
	}

	for a := uint32(0); a < sz; a += PGSize {
		page, idx, ok := parent.Walk(VA(a), UVMPDXAttr, false)
		if !ok {
			panic(fmt.Sprintf("vm: copy_uvm: va %#x not present in parent", a))
		}
		pte := getWord(page, idx)
		if !ptePresent(pte) {
			panic(fmt.Sprintf("vm: copy_uvm: va %#x not present in parent", a))
		}

		dstKVA := phys.Alloc()
		if dstKVA == 0 {
			FreeVM(child)
			return nil
		}
		copy(phys.Page(dstKVA), phys.Page(uint32(pteAddr(pte))))
		MapRange(child, VA(a), PGSize, PA(dstKVA), UVMPDXAttr, ptePageFlags(pte))
	}
	return child
}

// FreeVM tears down pgdir completely: all user memory from USERBOUND
// down, then every non-zero L1 target page, then the directory page
// itself. This is the sole legitimate path to release a pgdir's
// ownership graph (spec.md §4.2).
func FreeVM(pd *PageDirectory) {
	if pd == nil {
		return
	}
	DeallocUVM(pd, uint32(USERBOUND), 0)

	for i := 0; i < nPDEntries; i++ {
		pde := pd.getL1(i)
		if l1Type(pde) == L1TypeTable {
			phys.Free(l1TableBase(pde))
		}
	}
	phys.Free(uint32(pd.kva))
}

// ClearPTEU masks off the user-access-permission bits on the single
// page mapped at uva, turning it into a kernel-only guard page — used
// beneath a user stack to catch stack overflow.
func ClearPTEU(pd *PageDirectory, uva VA) {
	page, idx, ok := pd.Walk(uva, UVMPDXAttr, false)
	if !ok {
		panic(fmt.Sprintf("vm: clear_pte_u: va %#x not mapped", uva))
	}
	pte := getWord(page, idx)
	putWord(page, idx, clearUserAccessBits(pte))
}

// UVA2KA translates a user virtual address to a kernel-window pointer
// into the same physical page, or ok=false if the PTE is absent or
// not user-accessible.
func UVA2KA(pd *PageDirectory, uva VA) (kva uint32, ok bool) {
	page, idx, present := pd.Walk(uva, UVMPDXAttr, false)
	if !present {
		return 0, false
	}
	pte := getWord(page, idx)
	if !ptePresent(pte) || pte&(0x2<<pteAPShift) == 0 { // AP[1] grants user access
		return 0, false
	}
	return uint32(pteAddr(pte)), true
}

// CopyOut copies len(src) bytes from a kernel buffer into pd's
// address space starting at va, page by page, honoring per-page
// boundaries — pd need not be the currently active directory.
func CopyOut(pd *PageDirectory, va VA, src []byte) error {
	for len(src) > 0 {
		base := VA(PageRoundDown(uint32(va)))
		kva, ok := UVA2KA(pd, base)
		if !ok {
			return fmt.Errorf("vm: copy_out: va %#x not mapped", va)
		}
		pageOff := uint32(va) - uint32(base)
		n := uint32(PGSize) - pageOff
		if n > uint32(len(src)) {
			n = uint32(len(src))
		}
		copy(phys.Page(kva)[pageOff:pageOff+n], src[:n])
		src = src[n:]
		va += VA(n)
	}
	return nil
}
