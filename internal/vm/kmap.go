package vm

// kmapEntry describes one permanent kernel mapping (spec.md §3's
// "kmap table"): a region of virtual address space that maps a fixed
// physical range for the lifetime of the kernel.
type kmapEntry struct {
	virtBase VA
	physStart PA
	physEnd   PA
	l1attr    uint32
	l2attr    uint32
}

// MMIOBase and mmioSize describe the peripheral window. On real
// hardware these come from the board's datasheet; here they are
// boot-time constants (spec.md §6: INT_REGS_BASE is part of this
// window).
const (
	MMIOBase VA = 0x20000000
	mmioSize      = 0x01000000

	// HVECTORS is the fixed high exception-vector address ARMv7
	// expects when the high-vectors control bit is set.
	HVECTORS VA = 0xFFFF0000
)

// kernelPDir is the shared, permanent kernel page directory: there is
// exactly one of these, built once at boot, and every process's own
// directory copies these same high entries so kernel code and data
// are reachable no matter which user pgdir is active.
var kernelPDir *PageDirectory

// physRAMSize is set by MMUInitStage2 once the real memory size is
// known (on hardware, queried over the mailbox interface; here it is
// handed in by the boot sequence).
var physRAMSize uint32

// MMUInitStage1 maps a conservative 256 MiB kernel window, the MMIO
// window, and the high vectors, all via section/table entries in a
// freshly allocated kernel directory. Must run before any user
// process is created.
func MMUInitStage1() {
	kernelPDir = newDirectory()
	if kernelPDir == nil {
		panic("vm: MMUInitStage1: out of memory for kernel page directory")
	}

	const earlyWindow = 256 * 1024 * 1024
	applyKmap(kernelPDir, kmapEntry{
		virtBase:  KernBase,
		physStart: 0,
		physEnd:   PA(earlyWindow),
		l1attr:    KernSectionAttr,
	})
	applyKmap(kernelPDir, kmapEntry{
		virtBase:  MMIOBase,
		physStart: PA(MMIOBase),
		physEnd:   PA(MMIOBase) + mmioSize,
		l1attr:    MMIOSectionAttr,
	})

	// High exception vectors: a single 4 KiB, fine-grained mapping,
	// table mode even though everything else near it is sections,
	// per spec.md §3's kmap description.
	vecPage := phys.Alloc()
	if vecPage == 0 {
		panic("vm: MMUInitStage1: out of memory for exception vector page")
	}
	MapRange(kernelPDir, HVECTORS, PGSize, PA(vecPage), UVMPDXAttr, (UserRWSmall&^PTEAP10)|PTEAPKernelOnly)
}

// MMUInitStage2 extends the kernel window to the board's actual RAM
// size (queried by the caller, e.g. over the mailbox interface — out
// of scope for this core). It does not clear any identity mapping of
// the first megabyte: MMUInitStage1 creates none. The TLB/cache flush spec.md calls for is
// represented here by Flush, a no-op hook in this hosted model (there
// is no real TLB to invalidate), kept so the boot sequence reads the
// same as the hardware original.
func MMUInitStage2(ramSize uint32) {
	physRAMSize = ramSize
	const earlyWindow = 256 * 1024 * 1024
	if ramSize > earlyWindow {
		applyKmap(kernelPDir, kmapEntry{
			virtBase:  KernBase + earlyWindow,
			physStart: PA(earlyWindow),
			physEnd:   PA(ramSize),
			l1attr:    KernSectionAttr,
		})
	}
	Flush()
}

// Flush stands in for "data-synchronization barrier + flush I/D cache
// + invalidate TLB": a real hardware operation this hosted kernel has
// no equivalent for. It is a deliberate no-op, kept as a named call
// site so SwitchUVM and the boot sequence still read like the
// original's instruction sequence.
func Flush() {}

func applyKmap(pd *PageDirectory, e kmapEntry) {
	size := uint32(e.physEnd - e.physStart)
	MapRange(pd, e.virtBase, size, e.physStart, e.l1attr, e.l2attr)
}

// KernelDirectory returns the shared kernel page directory, for
// SwitchKVM and for constructing fresh per-process directories.
func KernelDirectory() *PageDirectory { return kernelPDir }

// SetupKVM builds a fresh page directory carrying the shared kernel
// mappings, for a newly created process. Per-process directories each
// get their own copy of the kernel's L1 entries for the kernel
// window, MMIO window and vectors so free_vm can tear down a
// process's own user mappings without disturbing any other process.
// Before MMUInitStage1 has run there is no kernel directory to copy
// from, and the new directory starts empty.
func SetupKVM() *PageDirectory {
	pd := newDirectory()
	if pd == nil {
		return nil
	}
	for i := 0; kernelPDir != nil && i < nPDEntries; i++ {
		if v := kernelPDir.getL1(i); v != 0 {
			pd.putL1(i, v)
		}
	}
	return pd
}
