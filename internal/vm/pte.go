package vm

// L1 entry (page directory entry) layout: spec.md §3. Bits [1:0]
// select fault / table / section, matching the ARMv7 short-descriptor
// format (ARM Architecture Reference Manual, ARMv7-A/R, table B3-10) —
// the same table other_examples' usbarmory-tamago arm64-mmu.go names
// its TTE_* constants after, adapted here to the ARMv7 short
// descriptor rather than the ARMv8 long descriptor that file targets.
const (
	l1TypeMask    uint32 = 0x3
	L1TypeFault   uint32 = 0x0
	L1TypeTable   uint32 = 0x1
	L1TypeSection uint32 = 0x2

	// Shared L1 attribute bits.
	L1Cacheable uint32 = 1 << 3
	L1Bufferable uint32 = 1 << 2
	L1APKernelRW uint32 = 0x3 << 10 // AP[1:0] in a section descriptor's bits [11:10]

	// UVMPDXAttr is supplied by every caller that creates a new L2
	// table via Walk for user mappings — spec.md §9 notes walk writes
	// l1attr into newly-created PDEs verbatim, so the access
	// permission bits a caller supplies are what ends up live.
	UVMPDXAttr uint32 = L1TypeTable

	// KernSectionAttr is used for the direct-mapped kernel RAM window:
	// kernel read/write, cacheable, bufferable, 1 MiB sections.
	KernSectionAttr uint32 = L1TypeSection | L1APKernelRW | L1Cacheable | L1Bufferable

	// MMIOSectionAttr maps the MMIO window: kernel read/write,
	// uncached, unbuffered.
	MMIOSectionAttr uint32 = L1TypeSection | L1APKernelRW
)

// l1SectionPhys extracts the physical section base from a section PDE.
func l1SectionPhys(pde uint32) PA { return PA(pde &^ (sectionSize - 1)) }

// l1TableBase extracts the L2 table's kernel-window pointer from a
// table PDE. The implementation rounds L2 tables to a full page, so
// the low 12 bits are attribute/reserved bits rather than the
// architectural 10-bit-aligned field.
func l1TableBase(pde uint32) uint32 { return pde &^ (PGSize - 1) }

func l1Type(pde uint32) uint32 { return pde & l1TypeMask }

// L2 entry (page table entry) layout: upper 20 bits physical page
// base, low 12 bits attributes (ARMv7 small-page descriptor, table
// B3-7 in the ARM ARM).
const (
	PTEXN    uint32 = 1 << 0 // execute-never
	pteSmall uint32 = 1 << 1 // small-page type marker, always set when present
	PTEB     uint32 = 1 << 2 // bufferable
	PTEC     uint32 = 1 << 3 // cacheable
	pteAPShift       = 4
	PTEAP10  uint32 = 0x3 << pteAPShift // AP[1:0]: user+kernel read/write
	PTEAPKernelOnly uint32 = 0x1 << pteAPShift
	PTEAPX   uint32 = 1 << 9  // AP[2], access-permission extension bit
	PTES     uint32 = 1 << 10 // shareable
	PTENG    uint32 = 1 << 11 // not-global

	// UserRWSmall is the attribute word every user mapping uses:
	// small page, user+kernel RW, cacheable, bufferable.
	UserRWSmall uint32 = pteSmall | PTEAP10 | PTEC | PTEB
)

func pteAddr(pte uint32) PA       { return PA(pte &^ (PGSize - 1)) }
func ptePresent(pte uint32) bool  { return pte != 0 }
func ptePageFlags(pte uint32) uint32 { return pte & (PGSize - 1) }

// clearUserAccessBits masks off the AP bits that grant user-mode access,
// turning a user-RW small-page entry into a kernel-only one without
// disturbing its other attributes or physical address. Used by
// ClearPTEU to build the guard page beneath a user stack.
func clearUserAccessBits(pte uint32) uint32 {
	return (pte &^ PTEAP10) | PTEAPKernelOnly
}
